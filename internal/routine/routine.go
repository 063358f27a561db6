// Package routine 管理一段可直接调用的原生代码及其生命周期
//
// 例程在单线程构造期间可以调整大小、记录代码长度和入口；第一次 Bind
// 之后冻结，此后只允许原子的 Bind/Unbind，可以被多个线程共享。
package routine

import (
	"fmt"
	"unsafe"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/execmem"
	"github.com/tangzhangming/reactor/internal/logging"
)

// Routine 一块原生代码
type Routine struct {
	buffer  []byte
	entry   int // 入口相对 buffer 起始的偏移
	size    int // 实际代码长度
	dynamic bool
	sealed  bool
	exec    bool

	refs   atomic.Int32
	frozen atomic.Bool
	freed  atomic.Bool
}

// New 分配 bufferSize 字节的动态例程（按页取整）
func New(bufferSize int) (*Routine, error) {
	buf, err := execmem.AllocateExecutable(bufferSize)
	if err != nil {
		return nil, fmt.Errorf("routine: %w", err)
	}
	return &Routine{buffer: buf, dynamic: true}, nil
}

// NewStatic 包装外部拥有的内存，offset 是入口偏移
// 例程不会释放这块内存，调用方负责它的可执行属性。
func NewStatic(memory []byte, bufferSize, offset int) *Routine {
	if bufferSize > len(memory) || offset < 0 || offset > bufferSize {
		panic(fmt.Sprintf("routine: static buffer %d/%d with entry offset %d out of range", bufferSize, len(memory), offset))
	}
	return &Routine{
		buffer: memory[:bufferSize:bufferSize],
		entry:  offset,
		size:   bufferSize,
		sealed: true,
		exec:   true,
	}
}

func (r *Routine) mutable(op string) {
	if r.frozen.Load() {
		panic("routine: " + op + " after bind")
	}
	if r.freed.Load() {
		panic("routine: " + op + " after free")
	}
}

// Resize 在密封前把动态缓冲区扩大到至少 n 字节（保留已有内容）
func (r *Routine) Resize(n int) error {
	r.mutable("Resize")
	if !r.dynamic || r.sealed {
		panic("routine: Resize on a static or sealed routine")
	}
	if n <= len(r.buffer) {
		return nil
	}
	buf, err := execmem.AllocateExecutable(n)
	if err != nil {
		return fmt.Errorf("routine: resize: %w", err)
	}
	copy(buf, r.buffer)
	if err := execmem.DeallocateExecutable(r.buffer); err != nil {
		logging.L().Warn("routine: failed to release old buffer", zap.Error(err))
	}
	r.buffer = buf
	return nil
}

// SetFunctionSize 记录实际生成的代码长度
func (r *Routine) SetFunctionSize(n int) {
	r.mutable("SetFunctionSize")
	if n < 0 || n > len(r.buffer) {
		panic(fmt.Sprintf("routine: function size %d exceeds buffer of %d bytes", n, len(r.buffer)))
	}
	r.size = n
}

// Seal 记录入口偏移，之后不能再改变大小
func (r *Routine) Seal(entryOffset int) {
	r.mutable("Seal")
	if entryOffset < 0 || entryOffset >= len(r.buffer) {
		panic(fmt.Sprintf("routine: entry offset %d outside buffer", entryOffset))
	}
	r.entry = entryOffset
	r.sealed = true
}

// MarkExecutable 把动态缓冲区切换为可执行（静态例程为空操作）
func (r *Routine) MarkExecutable() error {
	r.mutable("MarkExecutable")
	if !r.sealed {
		panic("routine: MarkExecutable before Seal")
	}
	if !r.dynamic || r.exec {
		return nil
	}
	if err := execmem.MarkExecutable(r.buffer); err != nil {
		return fmt.Errorf("routine: %w", err)
	}
	r.exec = true
	return nil
}

// Entry 入口地址；未密封或已释放时为 0
func (r *Routine) Entry() uintptr {
	if !r.sealed || r.freed.Load() || len(r.buffer) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.buffer[0])) + uintptr(r.entry)
}

// Buffer 完整的代码缓冲区（可执行后只读）
func (r *Routine) Buffer() []byte {
	return r.buffer
}

// Code 已生成的代码字节
func (r *Routine) Code() []byte {
	if r.buffer == nil {
		return nil
	}
	return r.buffer[:r.size]
}

// FunctionSize 实际代码长度
func (r *Routine) FunctionSize() int {
	return r.size
}

// EntryOffset 入口相对缓冲区起始的偏移
func (r *Routine) EntryOffset() int {
	return r.entry
}

// IsDynamic 是否拥有自己的内存
func (r *Routine) IsDynamic() bool {
	return r.dynamic
}

// IsExecutable 是否已经可以调用
func (r *Routine) IsExecutable() bool {
	return r.exec
}

// Refs 当前引用计数
func (r *Routine) Refs() int32 {
	return r.refs.Load()
}

// Bind 增加一次引用并冻结例程
func (r *Routine) Bind() {
	if r.freed.Load() {
		panic("routine: Bind after free")
	}
	r.frozen.Store(true)
	r.refs.Inc()
}

// Unbind 减少一次引用，计数归零时释放例程并返回 true
func (r *Routine) Unbind() bool {
	n := r.refs.Dec()
	if n < 0 {
		panic("routine: Unbind without matching Bind")
	}
	if n > 0 {
		return false
	}
	r.release()
	return true
}

// Free 释放从未被绑定的例程（构造失败路径）
func (r *Routine) Free() {
	if r.frozen.Load() {
		panic("routine: Free on a bound routine, use Unbind")
	}
	r.release()
}

func (r *Routine) release() {
	if !r.freed.CompareAndSwap(false, true) {
		return
	}
	if !r.dynamic {
		return
	}
	if err := execmem.DeallocateExecutable(r.buffer); err != nil {
		logging.L().Error("routine: failed to release code buffer", zap.Error(err))
	}
	r.buffer = nil
}

// IsFreed 是否已经释放
func (r *Routine) IsFreed() bool {
	return r.freed.Load()
}
