//go:build linux || darwin || freebsd || netbsd || openbsd || windows

package jit

import (
	"errors"
	"testing"

	"github.com/tangzhangming/reactor/internal/execmem"
	"github.com/tangzhangming/reactor/internal/ir"
)

func TestStartFunctionBodyEstimate(t *testing.T) {
	mm := NewRoutineMemoryManager(false)
	defer mm.Discard()

	size := 0
	buf, err := mm.StartFunctionBody(buildAdd(), &size)
	if err != nil {
		t.Fatalf("StartFunctionBody: %v", err)
	}
	if size != len(buf) || size%execmem.PageSize() != 0 {
		t.Errorf("actual size = %d, buffer = %d", size, len(buf))
	}

	size = 3*execmem.PageSize() + 1
	buf, err = mm.StartFunctionBody(buildAdd(), &size)
	if err != nil {
		t.Fatal(err)
	}
	if size != 4*execmem.PageSize() || len(buf) != size {
		t.Errorf("explicit estimate rounded to %d, want four pages", size)
	}
}

func TestReportBodyTooSmallGrowsAverage(t *testing.T) {
	mm := NewRoutineMemoryManager(false)
	defer mm.Discard()
	size := 0
	buf, err := mm.StartFunctionBody(buildAdd(), &size)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 0xCC
	first := mm.current

	before := AverageInstructionSize()
	mm.ReportBodyTooSmall(buildAdd())
	if got := AverageInstructionSize(); got != before+1 {
		t.Errorf("average = %d, want %d", got, before+1)
	}

	// 重试时扩大同一个例程
	size = len(buf) + 1
	buf, err = mm.StartFunctionBody(buildAdd(), &size)
	if err != nil {
		t.Fatal(err)
	}
	if mm.current != first {
		t.Error("retry allocated a new routine instead of resizing")
	}
	if size != 2*execmem.PageSize() || len(buf) != size {
		t.Errorf("resized to %d bytes, want two pages", size)
	}
	if buf[0] != 0xCC {
		t.Error("resize lost the buffer contents")
	}
}

func TestEndFunctionBodySeals(t *testing.T) {
	mm := NewRoutineMemoryManager(false)
	size := 0
	buf, err := mm.StartFunctionBody(buildAdd(), &size)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 0xC3
	if err := mm.EndFunctionBody(buildAdd(), 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := mm.SetMemoryExecutable(); err != nil {
		t.Fatal(err)
	}
	r := mm.TakeRoutine()
	if r == nil {
		t.Fatal("no routine")
	}
	defer r.Free()
	if r.FunctionSize() != 1 || r.Entry() == 0 || !r.IsExecutable() {
		t.Errorf("routine size=%d entry=%#x exec=%v", r.FunctionSize(), r.Entry(), r.IsExecutable())
	}
}

func TestUnsupportedCallbacks(t *testing.T) {
	mm := NewRoutineMemoryManager(false)
	f := ir.NewFunction("f", ir.Void, nil)
	calls := map[string]func() error{
		"AllocateStub":        func() error { _, err := mm.AllocateStub(f, 16, 16); return err },
		"AllocateDataSection": func() error { _, err := mm.AllocateDataSection(16, 16, true); return err },
		"StartExceptionTable": func() error { _, err := mm.StartExceptionTable(f); return err },
		"EndExceptionTable":   func() error { return mm.EndExceptionTable(f, 0, 0) },
		"AllocateGlobal":      func() error { _, err := mm.AllocateGlobal(8, 8); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrUnsupportedCallback) {
			t.Errorf("%s: err = %v, want ErrUnsupportedCallback", name, err)
		}
	}
}

func TestUnsupportedCallbackPanicsInDebug(t *testing.T) {
	mm := NewRoutineMemoryManager(true)
	defer func() {
		if recover() == nil {
			t.Error("debug memory manager should panic")
		}
	}()
	mm.AllocateGlobal(8, 8)
}
