// engine.go - 编译引擎
//
// Engine 把一个已验证的 ir.Function 生成为机器码，再通过 MemoryManager
// 放进可执行内存。函数体缓冲区按估计大小申请，放不下时报告并按精确大小重试。

package jit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/logging"
)

// maxBodyAttempts 第二次申请使用精确大小，理论上不会失败
const maxBodyAttempts = 3

// Options 引擎选项
type Options struct {
	Features Features

	// MaxFrameSize 单个函数栈帧的上限（0 表示不限制）
	MaxFrameSize int
}

// DefaultOptions 宿主特性，栈帧上限为原生栈的一半
func DefaultOptions(nativeStackSize int) Options {
	return Options{
		Features:     HostFeatures(),
		MaxFrameSize: nativeStackSize / 2,
	}
}

// Stats 一次编译的结果统计
type Stats struct {
	CodeBytes  int // 指令字节数
	DataBytes  int // 代码之后的只读数据字节数
	FrameBytes int
	Attempts   int // 申请函数体的次数
}

// Engine 编译引擎
type Engine struct {
	mm   MemoryManager
	opts Options
}

// NewEngine 创建引擎
func NewEngine(mm MemoryManager, opts Options) *Engine {
	return &Engine{mm: mm, opts: opts}
}

// Features 引擎生成代码时使用的 CPU 特性
func (e *Engine) Features() Features {
	return e.opts.Features
}

// Compile 编译函数；成功后函数体已经可执行
func (e *Engine) Compile(f *ir.Function) (Stats, error) {
	var stats Stats
	if err := HostSupported(); err != nil {
		return stats, err
	}

	out, err := Generate(f, e.opts.Features, e.opts.MaxFrameSize)
	if err != nil {
		return stats, err
	}
	stats.CodeBytes = out.CodeSize
	stats.DataBytes = len(out.Code) - out.CodeSize
	stats.FrameBytes = out.FrameSize

	size := 0
	for {
		stats.Attempts++
		buf, err := e.mm.StartFunctionBody(f, &size)
		if err != nil {
			return stats, err
		}
		if len(out.Code) <= len(buf) {
			copy(buf, out.Code)
			break
		}
		e.mm.ReportBodyTooSmall(f)
		if stats.Attempts >= maxBodyAttempts {
			return stats, fmt.Errorf("jit: %s: function body of %d bytes does not fit after %d attempts", f.Name, len(out.Code), stats.Attempts)
		}
		size = len(out.Code)
	}

	if err := e.mm.EndFunctionBody(f, 0, len(out.Code)); err != nil {
		return stats, err
	}
	if err := e.mm.SetMemoryExecutable(); err != nil {
		return stats, err
	}

	logging.L().Debug("jit: compiled function",
		zap.String("function", f.Name),
		zap.Int("code", stats.CodeBytes),
		zap.Int("data", stats.DataBytes),
		zap.Int("frame", stats.FrameBytes),
		zap.Int("attempts", stats.Attempts))
	return stats, nil
}
