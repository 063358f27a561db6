//go:build amd64 && (linux || darwin || freebsd || netbsd || openbsd || windows)

package jit

import (
	"math"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/routine"
)

func compileWith(t *testing.T, f *ir.Function, cpu Features) *routine.Routine {
	t.Helper()
	if err := ir.Verify(f); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	mm := NewRoutineMemoryManager(true)
	opts := DefaultOptions(config.DefaultNativeStackSize)
	opts.Features = cpu
	if _, err := NewEngine(mm, opts).Compile(f); err != nil {
		mm.Discard()
		t.Fatalf("Compile %s: %v", f.Name, err)
	}
	r := mm.TakeRoutine()
	r.Bind()
	t.Cleanup(func() { r.Unbind() })
	return r
}

func compile(t *testing.T, f *ir.Function) *routine.Routine {
	t.Helper()
	return compileWith(t, f, HostFeatures())
}

func TestFrameLayout(t *testing.T) {
	var f Frame
	offsets := map[string]uintptr{
		"Ints":   unsafe.Offsetof(f.Ints),
		"Vecs":   unsafe.Offsetof(f.Vecs),
		"RetInt": unsafe.Offsetof(f.RetInt),
		"RetVec": unsafe.Offsetof(f.RetVec),
	}
	want := map[string]uintptr{"Ints": 0, "Vecs": 48, "RetInt": 176, "RetVec": 184}
	if diff := cmp.Diff(want, offsets); diff != "" {
		t.Errorf("Frame offsets used by the trampoline changed (-want +got):\n%s", diff)
	}
}

func TestReturnConstant(t *testing.T) {
	f := ir.NewFunction("answer", ir.I32, nil)
	b := f.Entry()
	b.SetRet(b.NewConst(ir.I32, 42))
	r := compile(t, f)
	if got := Call(r.Entry()); got != 42 {
		t.Errorf("answer() = %d, want 42", got)
	}
}

func TestIntegerOpsMatchFolder(t *testing.T) {
	ops := []ir.Op{
		ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr,
	}
	pairs := [][2]uint64{
		{7, 3},
		{uint64(uint32(0xFFFFFFF9)), 3}, // -7
		{0x80000000, 1},
		{123456, 31},
		{0xDEADBEEF, 0xFFFFFFFF},
		{0x80000000, 0xFFFFFFFF}, // MIN / -1
	}
	for _, op := range ops {
		f := ir.NewFunction(op.String(), ir.I32, []ir.Type{ir.I32, ir.I32})
		b := f.Entry()
		b.SetRet(b.NewValue(op, ir.I32, f.Param(0), f.Param(1)))
		r := compile(t, f)
		for _, p := range pairs {
			want, ok := ir.EvalBinary(op, ir.KindI32, p[0], p[1])
			if !ok {
				continue
			}
			if got := Call(r.Entry(), p[0], p[1]); got != want {
				t.Errorf("%s(%#x, %#x) = %#x, want %#x", op, p[0], p[1], got, want)
			}
		}
	}
}

func TestNarrowIntegersWrap(t *testing.T) {
	f := ir.NewFunction("addsext8", ir.I32, []ir.Type{ir.I8, ir.I8})
	b := f.Entry()
	sum := b.NewValue(ir.OpAdd, ir.I8, f.Param(0), f.Param(1))
	b.SetRet(b.NewValue(ir.OpSExt, ir.I32, sum))
	r := compile(t, f)
	// 100 + 100 = 200 -> -56
	if got := int32(Call(r.Entry(), 100, 100)); got != -56 {
		t.Errorf("sext(i8 100+100) = %d, want -56", got)
	}
}

func buildMax() *ir.Function {
	f := ir.NewFunction("max", ir.I32, []ir.Type{ir.I32, ir.I32})
	entry := f.Entry()
	then, els, merge := f.NewBlock(), f.NewBlock(), f.NewBlock()
	cmp := entry.NewValue(ir.OpICmp, ir.I1, f.Param(0), f.Param(1))
	cmp.AuxInt = int64(ir.PredSGT)
	entry.SetIf(cmp, then, els)
	then.SetPlain(merge)
	els.SetPlain(merge)
	merge.SetRet(merge.NewValue(ir.OpPhi, ir.I32, f.Param(0), f.Param(1)))
	return f
}

func TestBranchAndPhi(t *testing.T) {
	r := compile(t, buildMax())
	neg := uint64(uint32(0xFFFFFFFB)) // -5
	cases := [][3]uint64{{5, 9, 9}, {9, 5, 9}, {neg, 2, 2}, {neg, neg, neg}}
	for _, c := range cases {
		if got := Call(r.Entry(), c[0], c[1]); got != c[2] {
			t.Errorf("max(%d, %d) = %d, want %d", int32(c[0]), int32(c[1]), int32(got), int32(c[2]))
		}
	}
}

// sum(n) = 0 + 1 + ... + (n-1)
func buildSum() *ir.Function {
	f := ir.NewFunction("sum", ir.I64, []ir.Type{ir.I64})
	entry := f.Entry()
	head, body, exit := f.NewBlock(), f.NewBlock(), f.NewBlock()
	zero := entry.NewConst(ir.I64, 0)
	one := entry.NewConst(ir.I64, 1)
	entry.SetPlain(head)

	i := head.NewValue(ir.OpPhi, ir.I64)
	acc := head.NewValue(ir.OpPhi, ir.I64)
	cond := head.NewValue(ir.OpICmp, ir.I1, i, f.Param(0))
	cond.AuxInt = int64(ir.PredSLT)
	head.SetIf(cond, body, exit)

	acc2 := body.NewValue(ir.OpAdd, ir.I64, acc, i)
	i2 := body.NewValue(ir.OpAdd, ir.I64, i, one)
	body.SetPlain(head)

	i.Args = []*ir.Value{zero, i2}
	acc.Args = []*ir.Value{zero, acc2}
	exit.SetRet(acc)
	return f
}

func TestLoop(t *testing.T) {
	r := compile(t, buildSum())
	cases := map[uint64]uint64{0: 0, 1: 0, 10: 45, 1000: 499500}
	for n, want := range cases {
		if got := Call(r.Entry(), n); got != want {
			t.Errorf("sum(%d) = %d, want %d", n, got, want)
		}
	}
}

func buildVectorAddMul(op ir.Op) *ir.Function {
	f := ir.NewFunction("vec", ir.V4I32, []ir.Type{ir.V4I32, ir.V4I32})
	b := f.Entry()
	sum := b.NewValue(ir.OpAdd, ir.V4I32, f.Param(0), f.Param(1))
	two := b.NewVectorConst(ir.V4I32, []uint64{2, 2, 2, 2})
	b.SetRet(b.NewValue(op, ir.V4I32, sum, two))
	return f
}

func TestVectorArithmetic(t *testing.T) {
	for name, cpu := range map[string]Features{"host": HostFeatures(), "baseline": Baseline()} {
		t.Run(name, func(t *testing.T) {
			r := compileWith(t, buildVectorAddMul(ir.OpMul), cpu)
			var fr Frame
			fr.SetVec32(0, [4]uint32{1, 2, 3, 4})
			fr.SetVec32(1, [4]uint32{10, 20, 30, 40})
			Invoke(r.Entry(), &fr)
			if diff := cmp.Diff([4]uint32{22, 44, 66, 88}, fr.Vec32()); diff != "" {
				t.Errorf("(a+b)*2 mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVectorCompareSelect(t *testing.T) {
	f := ir.NewFunction("vmax", ir.V4I32, []ir.Type{ir.V4I32, ir.V4I32})
	b := f.Entry()
	gt := b.NewValue(ir.OpICmp, ir.V4I32, f.Param(0), f.Param(1))
	gt.AuxInt = int64(ir.PredSGT)
	b.SetRet(b.NewValue(ir.OpSelect, ir.V4I32, gt, f.Param(0), f.Param(1)))
	r := compile(t, f)

	var fr Frame
	fr.SetVec32(0, [4]uint32{1, 50, uint32(0xFFFFFFFF), 7})
	fr.SetVec32(1, [4]uint32{2, 40, 0, 7})
	Invoke(r.Entry(), &fr)
	if diff := cmp.Diff([4]uint32{2, 50, 0, 7}, fr.Vec32()); diff != "" {
		t.Errorf("select(a>b, a, b) mismatch (-want +got):\n%s", diff)
	}
}

func TestFloatMath(t *testing.T) {
	// hypot(a, b) = sqrt(a*a + b*b)
	f := ir.NewFunction("hypot", ir.F32, []ir.Type{ir.F32, ir.F32})
	b := f.Entry()
	aa := b.NewValue(ir.OpFMul, ir.F32, f.Param(0), f.Param(0))
	bb := b.NewValue(ir.OpFMul, ir.F32, f.Param(1), f.Param(1))
	s := b.NewValue(ir.OpFAdd, ir.F32, aa, bb)
	b.SetRet(b.NewValue(ir.OpFSqrt, ir.F32, s))
	r := compile(t, f)

	var fr Frame
	fr.SetFloat(0, 3)
	fr.SetFloat(1, 4)
	Invoke(r.Entry(), &fr)
	if got := fr.Float(); got != 5 {
		t.Errorf("hypot(3, 4) = %v, want 5", got)
	}
}

func TestFloatCompareUnordered(t *testing.T) {
	preds := []ir.Predicate{ir.PredOLT, ir.PredULTF, ir.PredOEQ, ir.PredUNE, ir.PredUNO}
	nan := float32(math.NaN())
	inputs := [][2]float32{{1, 2}, {2, 1}, {3, 3}, {nan, 1}}
	for _, p := range preds {
		f := ir.NewFunction("fcmp", ir.I1, []ir.Type{ir.F32, ir.F32})
		b := f.Entry()
		c := b.NewValue(ir.OpFCmp, ir.I1, f.Param(0), f.Param(1))
		c.AuxInt = int64(p)
		b.SetRet(c)
		r := compile(t, f)
		for _, in := range inputs {
			var fr Frame
			fr.SetFloat(0, in[0])
			fr.SetFloat(1, in[1])
			Invoke(r.Entry(), &fr)
			want := ir.EvalCompare(p, ir.KindF32, uint64(math.Float32bits(in[0])), uint64(math.Float32bits(in[1])))
			if got := fr.RetInt == 1; got != want {
				t.Errorf("fcmp %s %v, %v = %v, want %v", p, in[0], in[1], got, want)
			}
		}
	}
}

func TestConversions(t *testing.T) {
	f := ir.NewFunction("u2f", ir.F32, []ir.Type{ir.I64})
	b := f.Entry()
	b.SetRet(b.NewValue(ir.OpUIToFP, ir.F32, f.Param(0)))
	r := compile(t, f)
	for _, v := range []uint64{0, 1, 1 << 40, 1<<63 + 1<<40, math.MaxUint64} {
		var fr Frame
		fr.SetInt(0, v)
		Invoke(r.Entry(), &fr)
		if got, want := fr.Float(), float32(v); got != want {
			t.Errorf("uitofp(%d) = %v, want %v", v, got, want)
		}
	}
}

func TestMemoryAndGlobals(t *testing.T) {
	m := ir.NewModule("mem")
	table := m.AddGlobal("table", []byte{10, 0, 0, 0, 20, 0, 0, 0, 30, 0, 0, 0}, 4)
	f := m.AddFunction("lookup", ir.I32, []ir.Type{ir.I64})
	b := f.Entry()
	slot := b.NewValue(ir.OpAlloca, ir.Ptr)
	slot.AuxInt = 4
	base := b.NewValue(ir.OpGlobalAddr, ir.Ptr)
	base.Global = table
	p := b.NewValue(ir.OpGEP, ir.Ptr, base, f.Param(0))
	p.AuxInt = 4
	v := b.NewValue(ir.OpLoad, ir.I32, p)
	b.NewValue(ir.OpStore, ir.Void, v, slot)
	b.SetRet(b.NewValue(ir.OpLoad, ir.I32, slot))
	r := compile(t, f)

	for i, want := range []uint64{10, 20, 30} {
		if got := Call(r.Entry(), uint64(i)); got != want {
			t.Errorf("lookup(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestStoreThroughPointerArgument(t *testing.T) {
	f := ir.NewFunction("fill", ir.Void, []ir.Type{ir.Ptr, ir.I16})
	b := f.Entry()
	for i := 0; i < 3; i++ {
		idx := b.NewConst(ir.I64, uint64(i))
		p := b.NewValue(ir.OpGEP, ir.Ptr, f.Param(0), idx)
		p.AuxInt = 2
		b.NewValue(ir.OpStore, ir.Void, f.Param(1), p)
	}
	b.SetRet(nil)
	r := compile(t, f)

	buf := make([]uint16, 4)
	var fr Frame
	fr.SetPointer(0, unsafe.Pointer(&buf[0]))
	fr.SetInt(1, 0xBEEF)
	Invoke(r.Entry(), &fr)
	if diff := cmp.Diff([]uint16{0xBEEF, 0xBEEF, 0xBEEF, 0}, buf); diff != "" {
		t.Errorf("fill mismatch (-want +got):\n%s", diff)
	}
}

func TestShuffle(t *testing.T) {
	f := ir.NewFunction("rev", ir.V4I32, []ir.Type{ir.V4I32})
	b := f.Entry()
	s := b.NewValue(ir.OpShuffle, ir.V4I32, f.Param(0), f.Param(0))
	s.Mask = []int{3, 2, -1, 0}
	b.SetRet(s)
	r := compile(t, f)

	var fr Frame
	fr.SetVec32(0, [4]uint32{1, 2, 3, 4})
	Invoke(r.Entry(), &fr)
	if diff := cmp.Diff([4]uint32{4, 3, 0, 1}, fr.Vec32()); diff != "" {
		t.Errorf("shuffle mismatch (-want +got):\n%s", diff)
	}
}

func TestSaturatingIntrinsic(t *testing.T) {
	f := ir.NewFunction("adds", ir.V8I16, []ir.Type{ir.V8I16, ir.V8I16})
	b := f.Entry()
	v := b.NewValue(ir.OpIntrinsic, ir.V8I16, f.Param(0), f.Param(1))
	v.AuxInt = int64(ir.IntrAddSatS)
	b.SetRet(v)
	r := compile(t, f)

	var fr Frame
	fr.SetVec(0, []byte{0xFF, 0x7F, 1, 0}) // 32767, 1
	fr.SetVec(1, []byte{1, 0, 2, 0})       // 1, 2
	Invoke(r.Entry(), &fr)
	got := fr.Vec()
	if got[0] != 0xFF || got[1] != 0x7F || got[2] != 3 {
		t.Errorf("addsat = % x, want 32767, 3", got[:4])
	}
}

func TestCallBetweenRoutines(t *testing.T) {
	callee := compile(t, buildMax())

	f := ir.NewFunction("caller", ir.I32, []ir.Type{ir.Ptr, ir.I32})
	b := f.Entry()
	ten := b.NewConst(ir.I32, 10)
	m := b.NewValue(ir.OpCall, ir.I32, f.Param(0), f.Param(1), ten)
	b.SetRet(b.NewValue(ir.OpAdd, ir.I32, m, b.NewConst(ir.I32, 1)))
	r := compile(t, f)

	if got := Call(r.Entry(), uint64(callee.Entry()), 3); got != 11 {
		t.Errorf("caller(max, 3) = %d, want 11", got)
	}
	if got := Call(r.Entry(), uint64(callee.Entry()), 30); got != 31 {
		t.Errorf("caller(max, 30) = %d, want 31", got)
	}
}

func TestCompileRetriesWithExactSize(t *testing.T) {
	// 足够多的指令让第一次估计放不下
	f := ir.NewFunction("long", ir.I64, []ir.Type{ir.I64})
	b := f.Entry()
	acc := f.Param(0)
	for i := 0; i < 2000; i++ {
		acc = b.NewValue(ir.OpXor, ir.I64, acc, b.NewConst(ir.I64, uint64(i)*0x9E3779B97F4A7C15))
	}
	b.SetRet(acc)

	mm := NewRoutineMemoryManager(true)
	stats, err := NewEngine(mm, Options{Features: HostFeatures()}).Compile(f)
	if err != nil {
		t.Fatal(err)
	}
	r := mm.TakeRoutine()
	r.Bind()
	defer r.Unbind()
	if stats.Attempts < 1 || r.FunctionSize() != stats.CodeBytes+stats.DataBytes {
		t.Errorf("stats = %+v, size = %d", stats, r.FunctionSize())
	}

	var want uint64 = 5
	for i := 0; i < 2000; i++ {
		want ^= uint64(i) * 0x9E3779B97F4A7C15
	}
	if got := Call(r.Entry(), 5); got != want {
		t.Errorf("long(5) = %#x, want %#x", got, want)
	}
}
