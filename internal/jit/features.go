package jit

import (
	"errors"
	"runtime"

	"golang.org/x/sys/cpu"
)

var (
	// ErrUnsupportedHost 宿主不是 amd64，不能生成或执行原生代码
	ErrUnsupportedHost = errors.New("jit: unsupported host architecture")

	// ErrUnsupported 函数使用了后端不支持的构造
	ErrUnsupported = errors.New("jit: unsupported construct")
)

// Features 生成代码可以使用的 CPU 特性
type Features struct {
	SSE2  bool
	SSE3  bool
	SSSE3 bool
	SSE41 bool
	SSE42 bool
	AVX   bool
	AVX2  bool
}

// HostFeatures 探测当前 CPU
func HostFeatures() Features {
	if runtime.GOARCH != "amd64" {
		return Features{}
	}
	return Features{
		SSE2:  cpu.X86.HasSSE2,
		SSE3:  cpu.X86.HasSSE3,
		SSSE3: cpu.X86.HasSSSE3,
		SSE41: cpu.X86.HasSSE41,
		SSE42: cpu.X86.HasSSE42,
		AVX:   cpu.X86.HasAVX,
		AVX2:  cpu.X86.HasAVX2,
	}
}

// Baseline 只包含 amd64 的基础特性（SSE2），用于测试回退路径
func Baseline() Features {
	return Features{SSE2: true}
}

// HostSupported 当前宿主能否执行生成的代码
func HostSupported() error {
	if runtime.GOARCH != "amd64" {
		return ErrUnsupportedHost
	}
	return nil
}
