package ir

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildMax 构造 max(a, b)：entry -> then/else -> merge(phi)
func buildMax() *Function {
	f := NewFunction("max", I32, []Type{I32, I32})
	entry := f.Entry()
	then, els, merge := f.NewBlock(), f.NewBlock(), f.NewBlock()
	cmp := entry.NewValue(OpICmp, I1, f.Param(0), f.Param(1))
	cmp.AuxInt = int64(PredSGT)
	entry.SetIf(cmp, then, els)
	then.SetPlain(merge)
	els.SetPlain(merge)
	phi := merge.NewValue(OpPhi, I32, f.Param(0), f.Param(1))
	merge.SetRet(phi)
	return f
}

func TestTypes(t *testing.T) {
	if V4I32.Size() != 16 || V4I32.NumLanes() != 4 || V4I32.ElemType() != I32 {
		t.Errorf("bad <4 x i32> shape: %v", V4I32)
	}
	if V4F32.MaskType() != V4I32 {
		t.Errorf("float mask = %v", V4F32.MaskType())
	}
	if I32.MaskType() != I1 {
		t.Errorf("scalar mask = %v", I32.MaskType())
	}
	if got := V8I16.WithLanes(4).String(); got != "<4 x i16>" {
		t.Errorf("WithLanes = %s", got)
	}
	if F32.IsInt() || !I1.IsInt() || !V16I8.IsInt() {
		t.Error("IsInt classification wrong")
	}
}

func TestVectorShapePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for 256-bit vector")
		}
	}()
	Vector(KindI64, 4)
}

func TestEvalBinaryWraps(t *testing.T) {
	tests := []struct {
		op   Op
		k    Kind
		a, b uint64
		want uint64
	}{
		{OpAdd, KindI8, 0xFF, 1, 0},
		{OpAdd, KindI32, math.MaxInt32, 1, 0x80000000},
		{OpMul, KindI16, 0x100, 0x100, 0},
		{OpSub, KindI64, 0, 1, math.MaxUint64},
		{OpAShr, KindI8, 0x80, 1, 0xC0},
		{OpLShr, KindI8, 0x80, 1, 0x40},
		{OpShl, KindI32, 1, 65, 2},
		{OpSDiv, KindI32, Canon(KindI32, uint64(-7&0xFFFFFFFF)), 2, Canon(KindI32, uint64(0xFFFFFFFD))},
		{OpSRem, KindI32, Canon(KindI32, uint64(-7&0xFFFFFFFF)), 2, 0xFFFFFFFF},
		{OpUDiv, KindI8, 200, 3, 66},
	}
	for _, tt := range tests {
		got, ok := EvalBinary(tt.op, tt.k, tt.a, tt.b)
		if !ok || got != tt.want {
			t.Errorf("%s.%s(%#x, %#x) = %#x, %v; want %#x", tt.op, tt.k, tt.a, tt.b, got, ok, tt.want)
		}
	}
}

func TestEvalBinaryRefusesTraps(t *testing.T) {
	if _, ok := EvalBinary(OpSDiv, KindI32, 5, 0); ok {
		t.Error("folded division by zero")
	}
	if _, ok := EvalBinary(OpSDiv, KindI64, MinSigned(KindI64), math.MaxUint64); ok {
		t.Error("folded i64 MIN / -1")
	}
	if _, ok := EvalBinary(OpURem, KindI16, 5, 0); ok {
		t.Error("folded remainder by zero")
	}
}

func TestEvalCompareFloat(t *testing.T) {
	nan := uint64(math.Float32bits(float32(math.NaN())))
	one := uint64(math.Float32bits(1))
	if EvalCompare(PredOEQ, KindF32, nan, nan) {
		t.Error("oeq(NaN, NaN) must be false")
	}
	if !EvalCompare(PredUNE, KindF32, nan, one) {
		t.Error("une(NaN, 1) must be true")
	}
	if !EvalCompare(PredSLT, KindI8, 0xFF, 0) || EvalCompare(PredULT, KindI8, 0xFF, 0) {
		t.Error("signedness of i8 compare wrong")
	}
}

func TestFoldVector(t *testing.T) {
	f := NewFunction("k", V4I32, nil)
	b := f.Entry()
	x := b.NewVectorConst(V4I32, []uint64{1, 2, 3, 4})
	y := b.NewVectorConst(V4I32, []uint64{10, 20, 30, 40})
	add := b.NewValue(OpAdd, V4I32, x, y)
	got, ok := Fold(add)
	if !ok {
		t.Fatal("vector add did not fold")
	}
	if diff := cmp.Diff([]uint64{11, 22, 33, 44}, got); diff != "" {
		t.Errorf("fold mismatch (-want +got):\n%s", diff)
	}

	c := b.NewValue(OpICmp, V4I32, x, y)
	c.AuxInt = int64(PredSLT)
	got, _ = Fold(c)
	if diff := cmp.Diff([]uint64{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}, got); diff != "" {
		t.Errorf("compare mask mismatch (-want +got):\n%s", diff)
	}

	sh := b.NewValue(OpShuffle, V4I32, x, y)
	sh.Mask = []int{0, 4, -1, 7}
	got, _ = Fold(sh)
	if diff := cmp.Diff([]uint64{1, 10, 0, 40}, got); diff != "" {
		t.Errorf("shuffle mismatch (-want +got):\n%s", diff)
	}

	bc := b.NewValue(OpBitcast, V8I16, x)
	got, _ = Fold(bc)
	if diff := cmp.Diff([]uint64{1, 0, 2, 0, 3, 0, 4, 0}, got); diff != "" {
		t.Errorf("bitcast mismatch (-want +got):\n%s", diff)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	lanes := []uint64{0x1234, 0xFFFF, 0, 7, 1, 2, 3, 4}
	buf := Bytes(V8I16, lanes)
	if len(buf) != 16 || buf[0] != 0x34 || buf[1] != 0x12 {
		t.Fatalf("unexpected layout % x", buf)
	}
	if diff := cmp.Diff(lanes, FromBytes(V8I16, buf)); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestDominators(t *testing.T) {
	f := buildMax()
	dom := f.Dominators()
	entry, then, els, merge := f.Blocks[0], f.Blocks[1], f.Blocks[2], f.Blocks[3]
	if dom.Idom(merge) != entry || dom.Idom(then) != entry || dom.Idom(els) != entry {
		t.Error("all blocks should be immediately dominated by entry")
	}
	if dom.Dominates(then, merge) {
		t.Error("then must not dominate merge")
	}
	df := dom.Frontiers(f)
	if diff := cmp.Diff([]int{merge.ID}, blockIDs(df[then.ID])); diff != "" {
		t.Errorf("frontier of then (-want +got):\n%s", diff)
	}
	if len(df[entry.ID]) != 0 {
		t.Errorf("entry frontier = %v", df[entry.ID])
	}
}

func blockIDs(bs []*Block) []int {
	ids := make([]int, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}

func TestLoops(t *testing.T) {
	// entry -> header <-> body, header -> exit
	f := NewFunction("loop", Void, []Type{I1})
	entry := f.Entry()
	header, body, exit := f.NewBlock(), f.NewBlock(), f.NewBlock()
	entry.SetPlain(header)
	header.SetIf(f.Param(0), body, exit)
	body.SetPlain(header)
	exit.SetRet(nil)

	dead := f.NewBlock()
	dead.SetPlain(header)

	loops := f.Loops(f.Dominators())
	if len(loops) != 1 {
		t.Fatalf("found %d loops, want 1", len(loops))
	}
	l := loops[0]
	if l.Header != header || !l.Contains(body) || l.Contains(exit) || l.Contains(dead) {
		t.Errorf("bad loop body %v", l.Blocks)
	}
}

func TestVerifyAcceptsMax(t *testing.T) {
	if err := Verify(buildMax()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyReportsAll(t *testing.T) {
	f := NewFunction("bad", I32, []Type{I32, I64})
	b := f.Entry()
	b.NewValue(OpAdd, I32, f.Param(0), f.Param(1))
	open := f.NewBlock()
	_ = open
	b.SetRet(nil)

	err := Verify(f)
	if err == nil {
		t.Fatal("expected errors")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error does not wrap ErrInvalid: %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"operand types", "ret type mismatch", "no terminator"} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in %s", want, msg)
		}
	}
}

func TestVerifyDominance(t *testing.T) {
	f := NewFunction("dom", I32, []Type{I1, I32})
	entry := f.Entry()
	then, merge := f.NewBlock(), f.NewBlock()
	entry.SetIf(f.Param(0), then, merge)
	x := then.NewValue(OpAdd, I32, f.Param(1), f.Param(1))
	then.SetPlain(merge)
	merge.SetRet(x)
	if err := Verify(f); err == nil || !strings.Contains(err.Error(), "does not dominate") {
		t.Errorf("Verify = %v, want dominance error", err)
	}
}

func TestReplaceSuccMovesPhi(t *testing.T) {
	f := buildMax()
	then, merge := f.Blocks[1], f.Blocks[3]
	mid := f.NewBlock()
	mid.SetPlain(merge)
	phi := merge.Values[0]
	phi.Args = append(phi.Args, f.Param(0))
	then.ReplaceSucc(merge, mid)
	if merge.PredIndex(then) >= 0 {
		t.Error("then still a predecessor of merge")
	}
	if len(phi.Args) != len(merge.Preds) {
		t.Errorf("phi args %d, preds %d", len(phi.Args), len(merge.Preds))
	}
}

func TestPrinter(t *testing.T) {
	text := buildMax().String()
	for _, want := range []string{"func max(i32, i32) i32 {", "icmp sgt i1", "phi i32", "ret v"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in\n%s", want, text)
		}
	}
}

func TestDumpLLVM(t *testing.T) {
	m := NewModule("unit")
	f := m.AddFunction("max", I32, []Type{I32, I32})
	entry := f.Entry()
	then, els, merge := f.NewBlock(), f.NewBlock(), f.NewBlock()
	c := entry.NewValue(OpICmp, I1, f.Param(0), f.Param(1))
	c.AuxInt = int64(PredSGT)
	entry.SetIf(c, then, els)
	then.SetPlain(merge)
	els.SetPlain(merge)
	merge.SetRet(merge.NewValue(OpPhi, I32, f.Param(0), f.Param(1)))
	m.AddGlobal("table", []byte{1, 2, 3, 4}, 4)

	text, err := DumpLLVM(m)
	if err != nil {
		t.Fatalf("DumpLLVM: %v", err)
	}
	for _, want := range []string{"define i32 @max", "icmp sgt", "phi i32", "@table"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in\n%s", want, text)
		}
	}
}
