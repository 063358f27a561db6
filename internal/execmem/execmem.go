// Package execmem 分配存放机器码和原生栈的堆外内存
//
// 可执行缓冲区的生命周期：
//
//	AllocateExecutable (读写) -> 写入代码 -> MarkExecutable (读执行) -> DeallocateExecutable
//
// Allocate/AllocateZero 返回任意对齐的堆外存储，返回指针之前紧挨着一个
// 头部，记录真实映射的起始地址和长度，Deallocate 据此释放。
package execmem

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrAllocation 内存分配或保护属性修改失败
var ErrAllocation = errors.New("execmem: allocation failed")

// header 位于 Allocate 返回的指针之前
type header struct {
	base   unsafe.Pointer
	length uintptr
}

const headerSize = unsafe.Sizeof(header{})

// PageSize 宿主页面大小
func PageSize() int {
	return pageSize()
}

// RoundUp 向上取整到页面大小
func RoundUp(n int) int {
	ps := PageSize()
	return (n + ps - 1) &^ (ps - 1)
}

// Allocate 分配 bytes 字节、按 alignment 对齐的存储，失败返回 nil
// 内容不保证清零。
func Allocate(bytes, alignment int) unsafe.Pointer {
	if bytes <= 0 {
		bytes = 1
	}
	if alignment < int(headerSize) {
		alignment = int(headerSize)
	}
	if alignment&(alignment-1) != 0 {
		return nil
	}

	total := RoundUp(bytes + alignment + int(headerSize))
	mem, err := mapPages(total)
	if err != nil {
		return nil
	}

	base := uintptr(unsafe.Pointer(&mem[0]))
	addr := (base + headerSize + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)
	off := addr - base
	h := (*header)(unsafe.Pointer(&mem[off-headerSize]))
	h.base = unsafe.Pointer(&mem[0])
	h.length = uintptr(total)
	return unsafe.Pointer(&mem[off])
}

// AllocateZero 分配并清零
func AllocateZero(bytes, alignment int) unsafe.Pointer {
	p := Allocate(bytes, alignment)
	if p == nil {
		return nil
	}
	if bytes <= 0 {
		bytes = 1
	}
	clear(unsafe.Slice((*byte)(p), bytes))
	return p
}

// Deallocate 释放 Allocate 返回的存储（nil 忽略）
func Deallocate(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	h := (*header)(unsafe.Add(p, -int(headerSize)))
	mem := unsafe.Slice((*byte)(h.base), h.length)
	if err := unmapPages(mem); err != nil {
		return fmt.Errorf("%w: release: %v", ErrAllocation, err)
	}
	return nil
}

// AllocateExecutable 分配至少 bytes 字节、按页对齐的读写缓冲区
func AllocateExecutable(bytes int) ([]byte, error) {
	if bytes <= 0 {
		bytes = 1
	}
	n := RoundUp(bytes)
	mem, err := mapPages(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %v", ErrAllocation, n, err)
	}
	return mem, nil
}

// MarkExecutable 把缓冲区切换为读+执行
func MarkExecutable(buf []byte) error {
	buf = whole(buf)
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrAllocation)
	}
	if err := protect(buf, true); err != nil {
		return fmt.Errorf("%w: mprotect rx: %v", ErrAllocation, err)
	}
	return nil
}

// DeallocateExecutable 恢复读写后释放缓冲区
func DeallocateExecutable(buf []byte) error {
	buf = whole(buf)
	if len(buf) == 0 {
		return nil
	}
	if err := protect(buf, false); err != nil {
		return fmt.Errorf("%w: mprotect rw: %v", ErrAllocation, err)
	}
	if err := unmapPages(buf); err != nil {
		return fmt.Errorf("%w: release: %v", ErrAllocation, err)
	}
	return nil
}

// whole 恢复 AllocateExecutable 返回的完整映射
func whole(buf []byte) []byte {
	return buf[:cap(buf)]
}
