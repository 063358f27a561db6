// memory_manager.go - 代码生成期间的内存回调
//
// 引擎生成机器码时通过 MemoryManager 申请函数体缓冲区。
// RoutineMemoryManager 把每个函数体放进一个新的 Routine，
// 引擎完成后由调用方用 TakeRoutine 取走。

package jit

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/execmem"
	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/logging"
	"github.com/tangzhangming/reactor/internal/routine"
)

// ErrUnsupportedCallback 引擎请求了不支持的内存回调
var ErrUnsupportedCallback = errors.New("jit: unsupported memory manager callback")

// averageInstructionSize 每条 IR 指令的平均机器码字节数（进程共享）
// 函数体放不下时增加，后续估算会更大。
var averageInstructionSize = atomic.NewInt64(5)

// AverageInstructionSize 当前的平均指令大小估计
func AverageInstructionSize() int64 {
	return averageInstructionSize.Load()
}

// MemoryManager 引擎使用的内存回调
type MemoryManager interface {
	// StartFunctionBody 为 fn 申请可写的函数体缓冲区
	// *actualSize 为 0 表示没有估计值；返回时写入缓冲区的实际容量。
	StartFunctionBody(fn *ir.Function, actualSize *int) ([]byte, error)

	// ReportBodyTooSmall 上一次申请的缓冲区放不下函数体
	ReportBodyTooSmall(fn *ir.Function)

	// EndFunctionBody 函数体写完，[start, end) 是代码范围
	EndFunctionBody(fn *ir.Function, start, end int) error

	// SetMemoryExecutable 在执行前把代码切换为可执行
	SetMemoryExecutable() error

	AllocateStub(fn *ir.Function, size, align int) ([]byte, error)
	AllocateDataSection(size, align int, readOnly bool) ([]byte, error)
	StartExceptionTable(fn *ir.Function) ([]byte, error)
	EndExceptionTable(fn *ir.Function, start, end int) error
	AllocateGlobal(size, align int) ([]byte, error)
}

// RoutineMemoryManager 把函数体放入 Routine 的 MemoryManager
type RoutineMemoryManager struct {
	debug   bool
	current *routine.Routine
}

// NewRoutineMemoryManager 创建内存管理器；debug 时不支持的回调直接 panic
func NewRoutineMemoryManager(debug bool) *RoutineMemoryManager {
	return &RoutineMemoryManager{debug: debug}
}

// StartFunctionBody 实现 MemoryManager
func (m *RoutineMemoryManager) StartFunctionBody(fn *ir.Function, actualSize *int) ([]byte, error) {
	size := *actualSize
	if size <= 0 {
		size = fn.NumInstructions() * int(averageInstructionSize.Load())
	}
	if size < 1 {
		size = 1
	}
	size = execmem.RoundUp(size)

	// 上一次估计太小时在原来的例程上扩大
	if m.current != nil {
		if err := m.current.Resize(size); err != nil {
			m.Discard()
			return nil, fmt.Errorf("jit: function body for %s: %w", fn.Name, err)
		}
		*actualSize = len(m.current.Buffer())
		return m.current.Buffer(), nil
	}

	r, err := routine.New(size)
	if err != nil {
		return nil, fmt.Errorf("jit: function body for %s: %w", fn.Name, err)
	}
	m.current = r
	*actualSize = len(r.Buffer())
	return r.Buffer(), nil
}

// ReportBodyTooSmall 实现 MemoryManager
// 例程保留下来，下一次 StartFunctionBody 调整它的大小。
func (m *RoutineMemoryManager) ReportBodyTooSmall(fn *ir.Function) {
	avg := averageInstructionSize.Inc()
	logging.L().Debug("jit: function body too small",
		zap.String("function", fn.Name),
		zap.Int64("avgInstructionSize", avg))
}

// EndFunctionBody 实现 MemoryManager
func (m *RoutineMemoryManager) EndFunctionBody(fn *ir.Function, start, end int) error {
	if m.current == nil {
		return fmt.Errorf("jit: EndFunctionBody for %s without a function body", fn.Name)
	}
	m.current.SetFunctionSize(end)
	m.current.Seal(start)
	return nil
}

// SetMemoryExecutable 实现 MemoryManager
func (m *RoutineMemoryManager) SetMemoryExecutable() error {
	if m.current == nil {
		return nil
	}
	return m.current.MarkExecutable()
}

// TakeRoutine 取走已完成的 Routine，之后管理器不再持有它
func (m *RoutineMemoryManager) TakeRoutine() *routine.Routine {
	r := m.current
	m.current = nil
	return r
}

// Discard 释放尚未取走的 Routine（编译失败路径）
func (m *RoutineMemoryManager) Discard() {
	if m.current != nil {
		m.current.Free()
		m.current = nil
	}
}

func (m *RoutineMemoryManager) unsupported(name string) error {
	if m.debug {
		panic("jit: unsupported memory manager callback " + name)
	}
	logging.L().Error("jit: unsupported memory manager callback", zap.String("callback", name))
	return fmt.Errorf("%w: %s", ErrUnsupportedCallback, name)
}

// AllocateStub 实现 MemoryManager（不支持）
func (m *RoutineMemoryManager) AllocateStub(fn *ir.Function, size, align int) ([]byte, error) {
	return nil, m.unsupported("AllocateStub")
}

// AllocateDataSection 实现 MemoryManager（不支持，只读数据放在函数体之后）
func (m *RoutineMemoryManager) AllocateDataSection(size, align int, readOnly bool) ([]byte, error) {
	return nil, m.unsupported("AllocateDataSection")
}

// StartExceptionTable 实现 MemoryManager（不支持）
func (m *RoutineMemoryManager) StartExceptionTable(fn *ir.Function) ([]byte, error) {
	return nil, m.unsupported("StartExceptionTable")
}

// EndExceptionTable 实现 MemoryManager（不支持）
func (m *RoutineMemoryManager) EndExceptionTable(fn *ir.Function, start, end int) error {
	return m.unsupported("EndExceptionTable")
}

// AllocateGlobal 实现 MemoryManager（不支持）
func (m *RoutineMemoryManager) AllocateGlobal(size, align int) ([]byte, error) {
	return nil, m.unsupported("AllocateGlobal")
}
