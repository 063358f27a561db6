//go:build linux || darwin || freebsd || netbsd || openbsd || windows

package execmem

import (
	"errors"
	"testing"
	"unsafe"
)

func TestAllocateAlignment(t *testing.T) {
	for _, align := range []int{1, 8, 16, 64, 4096} {
		p := Allocate(100, align)
		if p == nil {
			t.Fatalf("Allocate(100, %d) returned nil", align)
		}
		if uintptr(p)%uintptr(align) != 0 {
			t.Errorf("Allocate(100, %d) = %p, not aligned", align, p)
		}
		buf := unsafe.Slice((*byte)(p), 100)
		for i := range buf {
			buf[i] = byte(i)
		}
		if err := Deallocate(p); err != nil {
			t.Errorf("Deallocate: %v", err)
		}
	}
}

func TestAllocateRejectsBadAlignment(t *testing.T) {
	if p := Allocate(16, 24); p != nil {
		t.Error("alignment 24 should be rejected")
		_ = Deallocate(p)
	}
}

func TestAllocateZero(t *testing.T) {
	p := AllocateZero(256, 16)
	if p == nil {
		t.Fatal("AllocateZero returned nil")
	}
	defer Deallocate(p)
	for i, b := range unsafe.Slice((*byte)(p), 256) {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestDeallocateNil(t *testing.T) {
	if err := Deallocate(nil); err != nil {
		t.Errorf("Deallocate(nil) = %v", err)
	}
}

func TestExecutableCycle(t *testing.T) {
	ps := PageSize()
	for i := 0; i < 64; i++ {
		buf, err := AllocateExecutable(ps + 1)
		if err != nil {
			t.Fatalf("AllocateExecutable: %v", err)
		}
		if len(buf) != 2*ps {
			t.Fatalf("len = %d, want %d", len(buf), 2*ps)
		}
		if uintptr(unsafe.Pointer(&buf[0]))%uintptr(ps) != 0 {
			t.Fatal("buffer not page aligned")
		}
		// mov eax, 42; ret
		copy(buf, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3})
		if err := MarkExecutable(buf[:6]); err != nil {
			t.Fatalf("MarkExecutable: %v", err)
		}
		if buf[0] != 0xB8 {
			t.Fatal("code not readable after MarkExecutable")
		}
		if err := DeallocateExecutable(buf); err != nil {
			t.Fatalf("DeallocateExecutable: %v", err)
		}
	}
}

func TestMarkExecutableEmpty(t *testing.T) {
	if err := MarkExecutable(nil); !errors.Is(err, ErrAllocation) {
		t.Errorf("MarkExecutable(nil) = %v, want ErrAllocation", err)
	}
}

func TestRoundUp(t *testing.T) {
	ps := PageSize()
	if RoundUp(1) != ps || RoundUp(ps) != ps || RoundUp(ps+1) != 2*ps {
		t.Errorf("RoundUp wrong for page size %d", ps)
	}
}
