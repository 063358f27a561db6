package main

import (
	"fmt"
	"math"
	"strings"
	"unsafe"

	"github.com/tangzhangming/reactor/internal/cache"
	"github.com/tangzhangming/reactor/internal/execmem"
	"github.com/tangzhangming/reactor/internal/jit"
	"github.com/tangzhangming/reactor/internal/reactor"
	"github.com/tangzhangming/reactor/internal/routine"
)

type result struct {
	size      int
	got, want string
	err       error
}

type probe struct {
	name string
	run  func() result
}

var probes = []probe{
	{"vec4 (a+b)*2", probeVectorArithmetic},
	{"max if/else", probeMax},
	{"while sum", probeSum},
	{"for factorial", probeFactorial},
	{"round float4", probeRound},
	{"blit row cache", probeBlitCache},
}

func codeSize(r *routine.Routine) int {
	return r.FunctionSize()
}

func probeVectorArithmetic() result {
	f := reactor.NewFunction(reactor.Int4{}, reactor.Int4{}, reactor.Int4{})
	a, b := reactor.Arg[reactor.Int4](f, 0), reactor.Arg[reactor.Int4](f, 1)
	f.Return(reactor.Mul(reactor.Add(a, b), f.Int4(2, 2, 2, 2)))
	r, err := f.Finalize("vecadd")
	if err != nil {
		return result{err: err}
	}
	defer r.Unbind()

	var frame jit.Frame
	frame.SetVec32(0, [4]uint32{1, 2, 3, 4})
	frame.SetVec32(1, [4]uint32{10, 20, 30, 40})
	jit.Invoke(r.Entry(), &frame)
	return result{size: codeSize(r), got: fmt.Sprint(frame.Vec32()), want: "[22 44 66 88]"}
}

func probeMax() result {
	f := reactor.NewFunction(reactor.Int{}, reactor.Int{}, reactor.Int{})
	a, b := reactor.Arg[reactor.Int](f, 0), reactor.Arg[reactor.Int](f, 1)
	v := reactor.NewVariable[reactor.Int](f.Context)
	f.If(reactor.Gt(a, b), func() {
		v.Store(a)
	}).Else(func() {
		v.Store(b)
	})
	f.Return(v.Load())
	r, err := f.Finalize("max")
	if err != nil {
		return result{err: err}
	}
	defer r.Unbind()

	x := int32(jit.Call(r.Entry(), 5, 9))
	y := int32(jit.Call(r.Entry(), 9, 5))
	return result{size: codeSize(r), got: fmt.Sprintf("%d %d", x, y), want: "9 9"}
}

func probeSum() result {
	f := reactor.NewFunction(reactor.Int{}, reactor.Int{})
	n := reactor.Arg[reactor.Int](f, 0)
	i := reactor.Local(f.Context, f.Int(0))
	sum := reactor.Local(f.Context, f.Int(0))
	f.While(func() reactor.Bool { return reactor.Lt(i.Load(), n) }, func() {
		sum.Store(reactor.Add(sum.Load(), i.Load()))
		i.Store(reactor.Add(i.Load(), f.Int(1)))
	})
	f.Return(sum.Load())
	r, err := f.Finalize("sum")
	if err != nil {
		return result{err: err}
	}
	defer r.Unbind()
	return result{size: codeSize(r), got: fmt.Sprint(int32(jit.Call(r.Entry(), 100))), want: "4950"}
}

func probeFactorial() result {
	f := reactor.NewFunction(reactor.Long{}, reactor.Int{})
	m := reactor.Arg[reactor.Int](f, 0)
	i := reactor.Local(f.Context, f.Int(1))
	acc := reactor.Local(f.Context, f.Long(1))
	f.For(func() reactor.Bool { return reactor.Le(i.Load(), m) }, func() {
		i.Store(reactor.Add(i.Load(), f.Int(1)))
	}, func() {
		acc.Store(reactor.Mul(acc.Load(), reactor.Convert[reactor.Long](i.Load())))
	})
	f.Return(acc.Load())
	r, err := f.Finalize("factorial")
	if err != nil {
		return result{err: err}
	}
	defer r.Unbind()
	return result{size: codeSize(r), got: fmt.Sprint(int64(jit.Call(r.Entry(), 10))), want: "3628800"}
}

func probeRound() result {
	f := reactor.NewFunction(reactor.Float4{}, reactor.Float4{})
	f.Return(reactor.Round(reactor.Arg[reactor.Float4](f, 0)))
	r, err := f.Finalize("round")
	if err != nil {
		return result{err: err}
	}
	defer r.Unbind()

	var lanes [4]uint32
	for i, x := range []float32{0.5, 1.5, 2.5, -2.5} {
		lanes[i] = math.Float32bits(x)
	}
	var frame jit.Frame
	frame.SetVec32(0, lanes)
	jit.Invoke(r.Entry(), &frame)
	out := make([]string, 4)
	for i, bits := range frame.Vec32() {
		out[i] = fmt.Sprint(math.Float32frombits(bits))
	}
	return result{size: codeSize(r), got: strings.Join(out, " "), want: "0 2 2 -2"}
}

// ============================================================================
// 行混合
// ============================================================================

const (
	blendAdd uint8 = iota // dst = sat(dst + src)
	blendSub              // dst = sat(dst - src)
)

// blitState 行混合例程的状态描述
type blitState struct {
	Blend uint8
	Bias  uint8 // 混合后再饱和加上的常量
}

// generateBlit 生成 void blit(src, dst *byte16, n int)，处理 n 个 16 字节块
func generateBlit(s blitState) (*routine.Routine, error) {
	f := reactor.NewFunction(reactor.Void{}, reactor.Pointer[reactor.Byte16]{}, reactor.Pointer[reactor.Byte16]{}, reactor.Int{})
	src, dst, n := reactor.Arg[reactor.Pointer[reactor.Byte16]](f, 0), reactor.Arg[reactor.Pointer[reactor.Byte16]](f, 1), reactor.Arg[reactor.Int](f, 2)
	bias := f.Byte16Splat(f.Byte(s.Bias))
	i := reactor.Local(f.Context, f.Int(0))
	f.While(func() reactor.Bool { return reactor.Lt(i.Load(), n) }, func() {
		d, x := dst.At(i.Load()), src.At(i.Load())
		var v reactor.Byte16
		if s.Blend == blendSub {
			v = reactor.SubSat(d, x)
		} else {
			v = reactor.AddSat(d, x)
		}
		dst.Index(i.Load()).Store(reactor.AddSat(v, bias))
		i.Store(reactor.Add(i.Load(), f.Int(1)))
	})
	f.ReturnVoid()
	return f.Finalize(fmt.Sprintf("blit_%d_%d", s.Blend, s.Bias))
}

func probeBlitCache() result {
	const rows = 4
	c, err := cache.FromConfig[blitState](reactor.Settings())
	if err != nil {
		return result{err: err}
	}
	defer c.Clear()

	mem := execmem.AllocateZero(2*rows*16, 16)
	defer execmem.Deallocate(mem)
	buf := unsafe.Slice((*byte)(mem), 2*rows*16)
	src, dst := buf[:rows*16], buf[rows*16:]

	generated := 0
	gen := func(s blitState) func() (*routine.Routine, error) {
		return func() (*routine.Routine, error) {
			generated++
			return generateBlit(s)
		}
	}

	// add, add, sub：第二次 add 命中缓存
	states := []blitState{{Blend: blendAdd, Bias: 1}, {Blend: blendAdd, Bias: 1}, {Blend: blendSub}}
	var size int
	for _, s := range states {
		r, err := c.GetOrGenerate(s, gen(s))
		if err != nil {
			return result{err: err}
		}
		size = codeSize(r)
		for i := range src {
			src[i] = byte(i * 5)
			dst[i] = 200
		}
		jit.Call(r.Entry(), uint64(uintptr(unsafe.Pointer(&src[0]))), uint64(uintptr(unsafe.Pointer(&dst[0]))), rows)
		for i := range dst {
			if want := blitReference(s, 200, src[i]); dst[i] != want {
				return result{size: size, got: fmt.Sprintf("%+v dst[%d]=%d, want %d", s, i, dst[i], want), want: "match"}
			}
		}
	}
	return result{
		size: size,
		got:  fmt.Sprintf("%d routines for %d states", generated, len(states)),
		want: "2 routines for 3 states",
	}
}

func blitReference(s blitState, d, x byte) byte {
	sat := func(v int) byte { return byte(min(max(v, 0), 255)) }
	v := sat(int(d) + int(x))
	if s.Blend == blendSub {
		v = sat(int(d) - int(x))
	}
	return sat(int(v) + int(s.Bias))
}
