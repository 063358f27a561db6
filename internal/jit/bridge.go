// bridge.go - Go 到生成代码的调用桥
//
// 生成的代码使用 SysV 调用约定，运行在从 execmem 分配的独立原生栈上。
// 参数和返回值通过 Frame 传递，汇编跳板负责装载寄存器、切换栈并回写结果。
// 生成的代码不会回调 Go，因此不需要 goroutine 栈的任何保证。

package jit

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/execmem"
	"github.com/tangzhangming/reactor/internal/logging"
)

// Frame 一次原生调用的寄存器映像
// 字段偏移被汇编跳板直接使用，不能调整顺序。
type Frame struct {
	Ints   [6]uint64    // rdi, rsi, rdx, rcx, r8, r9
	Vecs   [8][2]uint64 // xmm0-xmm7
	RetInt uint64       // rax
	RetVec [2]uint64    // xmm0
}

// SetInt 设置第 i 个整数/指针参数
func (f *Frame) SetInt(i int, v uint64) {
	f.Ints[i] = v
}

// SetPointer 设置第 i 个整数参数为指针
func (f *Frame) SetPointer(i int, p unsafe.Pointer) {
	f.Ints[i] = uint64(uintptr(p))
}

// SetFloat 设置第 i 个浮点参数
func (f *Frame) SetFloat(i int, v float32) {
	f.Vecs[i] = [2]uint64{uint64(math.Float32bits(v)), 0}
}

// SetVec 设置第 i 个向量参数（最多 16 字节，小端）
func (f *Frame) SetVec(i int, b []byte) {
	var buf [16]byte
	copy(buf[:], b)
	f.Vecs[i] = [2]uint64{binary.LittleEndian.Uint64(buf[:8]), binary.LittleEndian.Uint64(buf[8:])}
}

// SetVec32 按 32 位通道设置第 i 个向量参数
func (f *Frame) SetVec32(i int, lanes [4]uint32) {
	f.Vecs[i] = [2]uint64{
		uint64(lanes[0]) | uint64(lanes[1])<<32,
		uint64(lanes[2]) | uint64(lanes[3])<<32,
	}
}

// Float 浮点返回值
func (f *Frame) Float() float32 {
	return math.Float32frombits(uint32(f.RetVec[0]))
}

// Vec 向量返回值的 16 个字节
func (f *Frame) Vec() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], f.RetVec[0])
	binary.LittleEndian.PutUint64(b[8:], f.RetVec[1])
	return b
}

// Vec32 向量返回值的 32 位通道
func (f *Frame) Vec32() [4]uint32 {
	return [4]uint32{
		uint32(f.RetVec[0]), uint32(f.RetVec[0] >> 32),
		uint32(f.RetVec[1]), uint32(f.RetVec[1] >> 32),
	}
}

// ============================================================================
// 原生栈池
// ============================================================================

// maxPooledStacks 池中保留的空闲栈个数，多余的直接释放
const maxPooledStacks = 16

type nativeStack struct {
	base unsafe.Pointer
	size int
}

func (s nativeStack) top() uintptr {
	return uintptr(s.base) + uintptr(s.size)
}

type stackPool struct {
	mu   sync.Mutex
	size int
	free []nativeStack
}

var stacks = &stackPool{size: config.DefaultNativeStackSize}

// SetNativeStackSize 设置之后分配的原生栈大小，已缓存的栈被释放
func SetNativeStackSize(n int) {
	if n <= 0 {
		n = config.DefaultNativeStackSize
	}
	stacks.mu.Lock()
	defer stacks.mu.Unlock()
	stacks.size = n
	for _, s := range stacks.free {
		stacks.release(s)
	}
	stacks.free = nil
}

// NativeStackSize 当前原生栈大小
func NativeStackSize() int {
	stacks.mu.Lock()
	defer stacks.mu.Unlock()
	return stacks.size
}

func (p *stackPool) get() nativeStack {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return s
	}
	size := p.size
	p.mu.Unlock()

	base := execmem.Allocate(size, 16)
	if base == nil {
		panic(fmt.Sprintf("jit: cannot allocate a %d byte native stack", size))
	}
	return nativeStack{base: base, size: size}
}

func (p *stackPool) put(s nativeStack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.size != p.size || len(p.free) >= maxPooledStacks {
		p.release(s)
		return
	}
	p.free = append(p.free, s)
}

func (p *stackPool) release(s nativeStack) {
	if err := execmem.Deallocate(s.base); err != nil {
		logging.L().Warn("jit: failed to release native stack", zap.Error(err))
	}
}

// ============================================================================
// 调用
// ============================================================================

// Invoke 用 frame 中的参数调用 entry，返回值写回 frame
// 非 amd64 宿主上 panic。
func Invoke(entry uintptr, frame *Frame) {
	if entry == 0 {
		panic("jit: Invoke on a null entry")
	}
	if err := HostSupported(); err != nil {
		panic(err)
	}
	s := stacks.get()
	defer stacks.put(s)
	invoke(entry, s.top(), frame)
}

// Call 以整数参数调用 entry，返回 rax
func Call(entry uintptr, args ...uint64) uint64 {
	if len(args) > len(intArgRegs) {
		panic(fmt.Sprintf("jit: Call with %d integer arguments", len(args)))
	}
	var f Frame
	copy(f.Ints[:], args)
	Invoke(entry, &f)
	return f.RetInt
}
