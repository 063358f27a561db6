package reactor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/jit"
)

// fold 构建一个无参函数并把它优化成常量，返回常量的通道
func fold[T Typed[T]](t *testing.T, build func(f *Function) T, opts ...Option) []uint64 {
	t.Helper()
	c := NewContext(opts...)
	defer c.Close()
	var zero T
	f := NewFunctionIn(c, zero)
	f.Return(build(f))
	return constResult(t, c)
}

func constResult(t *testing.T, c *Context) []uint64 {
	t.Helper()
	fn := c.Function()
	c.terminate()
	if err := ir.Verify(fn); err != nil {
		t.Fatalf("Verify: %v\n%s", err, fn)
	}
	if err := c.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for _, b := range fn.Blocks {
		if b.Kind != ir.BlockRet || (b != fn.Entry() && len(b.Preds) == 0) {
			continue
		}
		v := b.Control
		if v.Op != ir.OpConst {
			t.Fatalf("return value was not folded:\n%s", fn)
		}
		if v.Type.IsVector() {
			return v.Lanes
		}
		return []uint64{uint64(v.AuxInt)}
	}
	t.Fatalf("no reachable return:\n%s", fn)
	return nil
}

func floatLanes(lanes []uint64) []float32 {
	out := make([]float32, len(lanes))
	for i, l := range lanes {
		out[i] = math.Float32frombits(uint32(l))
	}
	return out
}

func countOps(fn *ir.Function, op ir.Op) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if v.Op == op {
				n++
			}
		}
	}
	return n
}

func TestDivisionSentinels(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int32
		div, rem int32
	}{
		{"plain", 7, 2, 3, 1},
		{"negative dividend", -7, 2, -3, -1},
		{"by zero", 7, 0, 7, 0},
		{"zero by zero", 0, 0, 0, 0},
		{"min by minus one", math.MinInt32, -1, math.MinInt32, 0},
		{"min by one", math.MinInt32, 1, math.MinInt32, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			div := fold(t, func(f *Function) Int { return Div(f.Int(tt.a), f.Int(tt.b)) })
			rem := fold(t, func(f *Function) Int { return Rem(f.Int(tt.a), f.Int(tt.b)) })
			if got := int32(div[0]); got != tt.div {
				t.Errorf("%d / %d = %d, want %d", tt.a, tt.b, got, tt.div)
			}
			if got := int32(rem[0]); got != tt.rem {
				t.Errorf("%d %% %d = %d, want %d", tt.a, tt.b, got, tt.rem)
			}
		})
	}
}

func TestUnsignedDivisionByZero(t *testing.T) {
	got := fold(t, func(f *Function) UInt4 {
		return Div(f.UInt4(9, 0xFFFFFFFF, 10, 3), f.UInt4(0, 2, 0, 3))
	})
	if diff := cmp.Diff([]uint64{9, 0x7FFFFFFF, 10, 1}, got); diff != "" {
		t.Errorf("lanes mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *Function) Int
		want  int32
	}{
		{"byte zero-extends", func(f *Function) Int { return Convert[Int](f.Byte(200)) }, 200},
		{"sbyte sign-extends", func(f *Function) Int { return Convert[Int](f.SByte(-3)) }, -3},
		{"long truncates", func(f *Function) Int { return Convert[Int](f.Long(0x1_0000_0005)) }, 5},
		{"float truncates toward zero", func(f *Function) Int { return Convert[Int](f.Float(-2.75)) }, -2},
		{"bool is zero or one", func(f *Function) Int { return Convert[Int](f.True()) }, 1},
		{"same width rewraps", func(f *Function) Int { return Convert[Int](f.UInt(0xFFFFFFFF)) }, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := int32(fold(t, tt.build)[0]); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	f := fold(t, func(f *Function) Float { return Convert[Float](f.UInt(3000000000)) })
	if got := math.Float32frombits(uint32(f[0])); got != 3e9 {
		t.Errorf("Convert[Float](UInt) = %v, want 3e9", got)
	}
	b := fold(t, func(f *Function) Bool { return Convert[Bool](f.Int(-8)) })
	if b[0] != 1 {
		t.Errorf("Convert[Bool](-8) = %d, want 1", b[0])
	}
}

func TestBitcastKeepsBits(t *testing.T) {
	got := fold(t, func(f *Function) Int { return Bitcast[Int](f.Float(1)) })
	if got[0] != 0x3F800000 {
		t.Errorf("Bitcast[Int](1.0) = %#x, want 0x3f800000", got[0])
	}
}

func TestMinMaxAbs(t *testing.T) {
	got := fold(t, func(f *Function) Int4 {
		a := f.Int4(-5, 3, math.MinInt32, 0)
		b := f.Int4(2, -7, 4, 0)
		return Add(Min(a, b), Mul(Max(a, b), f.Int4(100, 100, 100, 100)))
	})
	low := int32(math.MinInt32 + 400)
	want := []uint64{195, 293, uint64(uint32(low)), 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("min + 100*max (-want +got):\n%s", diff)
	}
	// 无符号比较：0xFFFFFFFF 是最大值
	got = fold(t, func(f *Function) UInt4 {
		return Max(f.UInt4(0xFFFFFFFF, 1, 2, 3), f.UInt4(0, 0, 5, 5))
	})
	if diff := cmp.Diff([]uint64{0xFFFFFFFF, 1, 5, 5}, got); diff != "" {
		t.Errorf("unsigned max (-want +got):\n%s", diff)
	}
	abs := fold(t, func(f *Function) Float4 { return Abs(f.Float4(-1.5, 2, float32(math.Inf(-1)), 0)) })
	if diff := cmp.Diff([]float32{1.5, 2, float32(math.Inf(1)), 0}, floatLanes(abs)); diff != "" {
		t.Errorf("float abs (-want +got):\n%s", diff)
	}
}

func TestRoundFallbackTiesToEven(t *testing.T) {
	got := fold(t, func(f *Function) Float4 {
		return Round(f.Float4(0.5, 1.5, 2.5, -1.5))
	}, WithFeatures(jit.Baseline()))
	if diff := cmp.Diff([]float32{0, 2, 2, -2}, floatLanes(got)); diff != "" {
		t.Errorf("Round (-want +got):\n%s", diff)
	}
	got = fold(t, func(f *Function) Float4 {
		return Round(f.Float4(-0.25, 16777216, 8388609.5, -3.5))
	}, WithFeatures(jit.Baseline()))
	lanes := floatLanes(got)
	if diff := cmp.Diff([]float32{0, 16777216, 8388610, -4}, lanes); diff != "" {
		t.Errorf("Round (-want +got):\n%s", diff)
	}
	if !math.Signbit(float64(lanes[0])) {
		t.Errorf("Round(-0.25) lost the sign of zero")
	}
}

func TestIntrinsicSelection(t *testing.T) {
	tests := []struct {
		name     string
		features jit.Features
		want     int
	}{
		{"sse4.1", jit.Features{SSE2: true, SSE41: true}, 1},
		{"baseline", jit.Baseline(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(WithFeatures(tt.features))
			defer c.Close()
			f := NewFunctionIn(c, Float4{}, Float4{})
			f.Return(Round(Arg[Float4](f, 0)))
			if got := countOps(c.Function(), ir.OpIntrinsic); got != tt.want {
				t.Errorf("%d intrinsics, want %d:\n%s", got, tt.want, c.Function())
			}
		})
	}
}

func TestSaturatingFallback(t *testing.T) {
	tests := []struct {
		name  string
		build func(f *Function) Short
		want  int16
	}{
		{"signed add overflows up", func(f *Function) Short { return AddSat(f.Short(30000), f.Short(10000)) }, math.MaxInt16},
		{"signed add overflows down", func(f *Function) Short { return AddSat(f.Short(-30000), f.Short(-10000)) }, math.MinInt16},
		{"signed add in range", func(f *Function) Short { return AddSat(f.Short(-300), f.Short(100)) }, -200},
		{"signed sub overflows up", func(f *Function) Short { return SubSat(f.Short(30000), f.Short(-30000)) }, math.MaxInt16},
		{"signed sub overflows down", func(f *Function) Short { return SubSat(f.Short(-30000), f.Short(30000)) }, math.MinInt16},
		{"signed sub in range", func(f *Function) Short { return SubSat(f.Short(5), f.Short(7)) }, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := int16(fold(t, tt.build)[0]); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	got := fold(t, func(f *Function) Byte8 {
		a := f.Byte8([8]uint8{200, 10, 255, 0, 128, 1, 2, 3})
		b := f.Byte8([8]uint8{100, 20, 1, 0, 127, 1, 2, 3})
		return Add(AddSat(a, b), SubSat(b, a))
	})
	want := []uint64{255, 30 + 10, 255, 0, 255, 2, 4, 6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unsigned saturation (-want +got):\n%s", diff)
	}
}

func TestMulHighFallback(t *testing.T) {
	tests := []struct {
		name string
		x, y int16
		want int16
	}{
		{"negative product", -30000, 20000, -9156},
		{"largest positive", math.MaxInt16, math.MaxInt16, 16383},
		{"smallest squared", math.MinInt16, math.MinInt16, 16384},
		{"small product", 3, 5, 0},
		{"minus one", -1, 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fold(t, func(f *Function) Short { return MulHigh(f.Short(tt.x), f.Short(tt.y)) })
			if int16(got[0]) != tt.want {
				t.Errorf("MulHigh(%d, %d) = %d, want %d", tt.x, tt.y, int16(got[0]), tt.want)
			}
		})
	}

	got := fold(t, func(f *Function) UShort4 {
		return MulHigh(f.UShort4(0xFFFF, 1000, 0x8000, 0), f.UShort4(0xFFFF, 1000, 2, 5))
	})
	if diff := cmp.Diff([]uint64{0xFFFE, 15, 1, 0}, got); diff != "" {
		t.Errorf("unsigned MulHigh (-want +got):\n%s", diff)
	}

	// 32 位通道加宽后超过 128 位，分两半计算
	got = fold(t, func(f *Function) Int4 {
		return MulHigh(f.Int4(-1, 0x40000000, math.MinInt32, 123), f.Int4(1, 4, math.MinInt32, 456))
	})
	if diff := cmp.Diff([]uint64{0xFFFFFFFF, 1, 1 << 30, 0}, got); diff != "" {
		t.Errorf("Int4 MulHigh (-want +got):\n%s", diff)
	}
	got = fold(t, func(f *Function) UInt4 {
		return MulHigh(f.UInt4(0xFFFFFFFF, 0x10000, 7, 0x80000000), f.UInt4(0xFFFFFFFF, 0x10000, 9, 2))
	})
	if diff := cmp.Diff([]uint64{0xFFFFFFFE, 1, 0, 1}, got); diff != "" {
		t.Errorf("UInt4 MulHigh (-want +got):\n%s", diff)
	}
}

func TestAvgFallback(t *testing.T) {
	got := fold(t, func(f *Function) Byte8 {
		a := f.Byte8([8]uint8{0, 255, 255, 1, 2, 100, 7, 8})
		b := f.Byte8([8]uint8{0, 255, 0, 2, 2, 101, 9, 8})
		return Avg(a, b)
	})
	if diff := cmp.Diff([]uint64{0, 255, 128, 2, 2, 101, 8, 8}, got); diff != "" {
		t.Errorf("unsigned Avg (-want +got):\n%s", diff)
	}

	got = fold(t, func(f *Function) Short4 {
		return Avg(f.Short4(-3, -1, math.MaxInt16, math.MinInt16), f.Short4(-4, 0, math.MaxInt16, math.MinInt16))
	})
	want := []uint64{0xFFFD, 0, math.MaxInt16, 0x8000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("signed Avg (-want +got):\n%s", diff)
	}
}

func TestRoundFallbackKeepsNaN(t *testing.T) {
	snan := math.Float32frombits(0x7F800001)
	got := fold(t, func(f *Function) Float4 {
		return Round(f.Float4(snan, float32(math.NaN()), float32(math.Inf(-1)), 0))
	}, WithFeatures(jit.Baseline()))
	if got[0] != 0x7F800001 {
		t.Errorf("Round(sNaN) = %#x, want the input bits", got[0])
	}
	lanes := floatLanes(got)
	if !math.IsNaN(float64(lanes[1])) || !math.IsInf(float64(lanes[2]), -1) {
		t.Errorf("Round(NaN, -Inf) = %v", lanes[1:3])
	}
}

func TestNarrow(t *testing.T) {
	got := fold(t, func(f *Function) UShort8 {
		return Narrow[UShort8](f.Int4(70000, -5, 65535, 65536), f.Int4(1, 2, 3, -1), true)
	}, WithFeatures(jit.Baseline()))
	if diff := cmp.Diff([]uint64{65535, 0, 65535, 65535, 1, 2, 3, 0}, got); diff != "" {
		t.Errorf("saturating narrow (-want +got):\n%s", diff)
	}

	// 半宽向量没有 PACKSS
	got = fold(t, func(f *Function) SByte8 {
		return Narrow[SByte8](f.Short4(300, -300, 127, -128), f.Short4(0, 1, -1, 1000), true)
	})
	if diff := cmp.Diff([]uint64{127, 0x80, 127, 0x80, 0, 1, 0xFF, 127}, got); diff != "" {
		t.Errorf("signed saturating narrow (-want +got):\n%s", diff)
	}

	// 无符号源只钳位上界
	got = fold(t, func(f *Function) SByte16 {
		a := f.UShort8([8]uint16{300, 0xFFFF, 127, 128, 0, 1, 2, 1000})
		return Narrow[SByte16](a, a, true)
	})
	want := []uint64{127, 127, 127, 127, 0, 1, 2, 127}
	if diff := cmp.Diff(append(want, want...), got); diff != "" {
		t.Errorf("unsigned-to-signed narrow (-want +got):\n%s", diff)
	}

	got = fold(t, func(f *Function) Short8 {
		return Narrow[Short8](f.Int4(0x12345, -1, 2, 3), f.Int4(4, 5, 6, 0x10007), false)
	})
	if diff := cmp.Diff([]uint64{0x2345, 0xFFFF, 2, 3, 4, 5, 6, 7}, got); diff != "" {
		t.Errorf("truncating narrow (-want +got):\n%s", diff)
	}
}

func TestWiden(t *testing.T) {
	src := [8]int16{0, 1, 2, 3, -4, -5, 6, -7}
	low := fold(t, func(f *Function) Int4 { return Widen[Int4](f.Short8(src), false) })
	high := fold(t, func(f *Function) Int4 { return Widen[Int4](f.Short8(src), true) })
	if diff := cmp.Diff([]uint64{0, 1, 2, 3}, low); diff != "" {
		t.Errorf("low half (-want +got):\n%s", diff)
	}
	m := func(x int32) uint64 { return uint64(uint32(x)) }
	if diff := cmp.Diff([]uint64{m(-4), m(-5), 6, m(-7)}, high); diff != "" {
		t.Errorf("high half (-want +got):\n%s", diff)
	}
	// 无符号源零扩展
	u := fold(t, func(f *Function) UInt4 { return Widen[UInt4](f.UShort4(0xFFFF, 1, 0x8000, 2), false) })
	if diff := cmp.Diff([]uint64{0xFFFF, 1, 0x8000, 2}, u); diff != "" {
		t.Errorf("unsigned widen (-want +got):\n%s", diff)
	}
}

func TestShuffleSwizzleBlend(t *testing.T) {
	got := fold(t, func(f *Function) Int4 {
		a, b := f.Int4(1, 2, 3, 4), f.Int4(5, 6, 7, 8)
		return Shuffle(a, b, 0, 4, -1, 7)
	})
	if diff := cmp.Diff([]uint64{1, 5, 0, 8}, got); diff != "" {
		t.Errorf("Shuffle (-want +got):\n%s", diff)
	}
	got = fold(t, func(f *Function) Int4 { return Swizzle(f.Int4(1, 2, 3, 4), 3, 3, 0, 1) })
	if diff := cmp.Diff([]uint64{4, 4, 1, 2}, got); diff != "" {
		t.Errorf("Swizzle (-want +got):\n%s", diff)
	}
	got = fold(t, func(f *Function) Float4 {
		a, b := f.Float4(1, 5, 3, 9), f.Float4(4, 4, 4, 4)
		return Blend(a.CmpLT(b), a, b)
	})
	if diff := cmp.Diff([]float32{1, 4, 3, 4}, floatLanes(got)); diff != "" {
		t.Errorf("Blend (-want +got):\n%s", diff)
	}
}

func TestVectorCompareMasks(t *testing.T) {
	a := func(f *Function) UShort8 { return f.UShort8([8]uint16{1, 0xFFFF, 5, 5, 0, 9, 9, 2}) }
	b := func(f *Function) UShort8 { return f.UShort8([8]uint16{2, 1, 5, 4, 0, 10, 8, 2}) }
	got := fold(t, func(f *Function) Short8 { return a(f).CmpLT(b(f)) })
	want := []uint64{0xFFFF, 0, 0, 0, 0, 0xFFFF, 0, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unsigned CmpLT (-want +got):\n%s", diff)
	}
	got = fold(t, func(f *Function) Short8 { return a(f).CmpNLE(b(f)) })
	want = []uint64{0, 0xFFFF, 0, 0xFFFF, 0, 0, 0xFFFF, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unsigned CmpNLE (-want +got):\n%s", diff)
	}
	nan := float32(math.NaN())
	got = fold(t, func(f *Function) Int4 { return f.Float4(nan, 1, 2, 3).CmpNLT(f.Float4(0, 2, 2, 1)) })
	u := uint64(0xFFFFFFFF)
	if diff := cmp.Diff([]uint64{u, 0, u, u}, got); diff != "" {
		t.Errorf("float CmpNLT (-want +got):\n%s", diff)
	}
}

func TestLanes(t *testing.T) {
	got := fold(t, func(f *Function) Int {
		v := f.Int4(1, 2, 3, 4).Insert(2, f.Int(30))
		return Add(v.Extract(2), v.Extract(3))
	})
	if got[0] != 34 {
		t.Errorf("Extract/Insert = %d, want 34", got[0])
	}
	splat := fold(t, func(f *Function) Int4 { return f.Int4Splat(f.Int(-9)) })
	m := uint64(uint32(0xFFFFFFF7))
	if diff := cmp.Diff([]uint64{m, m, m, m}, splat); diff != "" {
		t.Errorf("Int4Splat (-want +got):\n%s", diff)
	}
}

func TestIfElseWithVariable(t *testing.T) {
	for _, tt := range []struct{ a, b, want int32 }{{5, 9, 9}, {9, 5, 9}} {
		got := fold(t, func(f *Function) Int {
			a, b := f.Int(tt.a), f.Int(tt.b)
			r := NewVariable[Int](f.Context)
			f.If(Gt(a, b), func() {
				r.Store(a)
			}).Else(func() {
				r.Store(b)
			})
			return r.Load()
		})
		if int32(got[0]) != tt.want {
			t.Errorf("max(%d, %d) = %d, want %d", tt.a, tt.b, int32(got[0]), tt.want)
		}
	}
}

func TestElseRetargetsThenExit(t *testing.T) {
	c := NewContext()
	defer c.Close()
	f := NewFunctionIn(c, Int{}, Bool{})
	head := c.InsertBlock()
	var then *ir.Block
	f.If(Arg[Bool](f, 0), func() {
		then = c.InsertBlock()
	}).Else(func() {})

	merge := c.InsertBlock()
	if len(then.Succs) != 1 || then.Succs[0] != merge {
		t.Fatalf("then arm branches to %v, want merge block %s", then.Succs, merge)
	}
	els := head.Succs[1]
	if diff := cmp.Diff([]int{head.ID}, blockIDs(els.Preds)); diff != "" {
		t.Errorf("else preds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{then.ID, els.ID}, blockIDs(merge.Preds)); diff != "" {
		t.Errorf("merge preds (-want +got):\n%s", diff)
	}
}

func blockIDs(bs []*ir.Block) []int {
	ids := make([]int, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}

func TestUninitializedVariableReadsZero(t *testing.T) {
	got := fold(t, func(f *Function) Int { return NewVariable[Int](f.Context).Load() })
	if got[0] != 0 {
		t.Errorf("uninitialized variable = %d, want 0", got[0])
	}
}

func TestReturnInsideIf(t *testing.T) {
	got := fold(t, func(f *Function) Int {
		f.If(f.True(), func() {
			f.Return(f.Int(1))
		})
		return f.Int(2)
	})
	if got[0] != 1 {
		t.Errorf("got %d, want 1", got[0])
	}
}

func expectScopeMismatch(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrScopeMismatch) {
			t.Errorf("panic = %v, want ErrScopeMismatch", r)
		}
	}()
	fn()
}

func TestScopeMismatch(t *testing.T) {
	c := NewContext()
	defer c.Close()
	f := NewFunctionIn(c, Void{}, Bool{})
	cond := Arg[Bool](f, 0)

	outer := c.BeginIf(cond)
	loop := c.BeginLoop()
	expectScopeMismatch(t, outer.End)
	expectScopeMismatch(t, outer.Else)
	expectScopeMismatch(t, loop.End) // 没有条件

	loop.Cond(cond)
	expectScopeMismatch(t, func() { loop.Cond(cond) })
	loop.End()
	outer.End()
	expectScopeMismatch(t, outer.End)
}

func TestAcquireRejectsOpenScope(t *testing.T) {
	c := NewContext()
	defer c.Close()
	f := NewFunctionIn(c, Void{}, Bool{})
	c.BeginDo()
	_, err := f.Acquire("open", false)
	if !errors.Is(err, ErrScopeMismatch) {
		t.Errorf("Acquire = %v, want ErrScopeMismatch", err)
	}
}

func TestAcquireWithoutFunction(t *testing.T) {
	c := NewContext()
	defer c.Close()
	if _, err := c.Acquire("none", false); !errors.Is(err, ErrNoFunction) {
		t.Errorf("Acquire = %v, want ErrNoFunction", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewContext()
	c.Close()
	c.Close()
	if _, err := c.Acquire("closed", false); err == nil {
		t.Error("Acquire on a closed context succeeded")
	}
	// 锁已经释放，可以打开新会话
	NewContext().Close()
}

// 第二个会话在第一个关闭之前一直阻塞
func TestSessionsAreSerialized(t *testing.T) {
	first := NewContext()
	opened := make(chan *Context, 1)
	go func() {
		opened <- NewContext()
	}()

	select {
	case second := <-opened:
		second.Close()
		t.Fatal("second NewContext returned while the first session was open")
	case <-time.After(100 * time.Millisecond):
	}

	// 第一个会话仍然可用
	f := NewFunctionIn(first, Int{})
	f.Return(f.Int(1))
	first.Close()

	select {
	case second := <-opened:
		if second.Function() != nil {
			t.Error("new session inherited a function")
		}
		second.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("second NewContext still blocked after Close")
	}
}
