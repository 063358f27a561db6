// intrinsics.go - 有 CPU 加速的运算
//
// CPU 支持时映射到单条 SSE 指令，否则用普通操作组合出可移植实现。
// 是否支持由会话的 Features 决定，见 jit.IntrinsicSupported。

package reactor

import (
	"fmt"
	"math"

	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/jit"
)

// hasIntrinsic 会话的目标 CPU 能否直接执行 id
func (c *Context) hasIntrinsic(id ir.Intrinsic, t ir.Type) bool {
	return jit.IntrinsicSupported(c.features, id, t)
}

// ============================================================================
// 浮点
// ============================================================================

// Sqrt 平方根
func Sqrt[T Floating[T]](x T) T {
	c := session(x)
	return wrap[T](c, c.CreateFSqrt(x.IR()))
}

// Rcp 倒数的近似值，相对误差不超过 1.5 * 2^-12
// 没有 RCPPS 时精确计算 1/x。
func Rcp[T Floating[T]](x T) T {
	c := session(x)
	v := x.IR()
	if c.hasIntrinsic(ir.IntrRcp, v.Type) {
		return wrap[T](c, c.CreateIntrinsic(ir.IntrRcp, v.Type, v))
	}
	return wrap[T](c, c.CreateFDiv(c.floatSplat(v.Type, 1), v))
}

// RcpSqrt 平方根倒数的近似值，误差界同 Rcp
func RcpSqrt[T Floating[T]](x T) T {
	c := session(x)
	v := x.IR()
	if c.hasIntrinsic(ir.IntrRsqrt, v.Type) {
		return wrap[T](c, c.CreateIntrinsic(ir.IntrRsqrt, v.Type, v))
	}
	return wrap[T](c, c.CreateFDiv(c.floatSplat(v.Type, 1), c.CreateFSqrt(v)))
}

// Round 舍入到最近的整数，平局取偶
//
// NaN 与无穷原样返回。可移植实现不改动 signaling NaN 的位，
// roundps 则会把它变成 quiet NaN。
func Round[T Floating[T]](x T) T {
	c := session(x)
	v := x.IR()
	if c.hasIntrinsic(ir.IntrRound, v.Type) {
		return wrap[T](c, c.CreateIntrinsic(ir.IntrRound, v.Type, v))
	}
	return wrap[T](c, c.roundEven(v))
}

// roundEven 用 2^23 做加减：|x| < 2^23 时加法的舍入就是所求的结果，
// 再大的值本身就是整数。符号位最后补回，保留 -0。
func (c *Context) roundEven(v *ir.Value) *ir.Value {
	t := v.Type
	it := floatBitsType(t)
	ax := c.clearSign(v)
	magic := c.floatSplat(t, 1<<23)
	r := c.CreateFSub(c.CreateFAdd(ax, magic), magic)
	r = c.CreateSelect(c.CreateFCmpOLT(ax, magic), r, ax)

	sign := c.CreateAnd(c.CreateBitCast(v, it), c.CreateSplat(it, 0x80000000))
	bits := c.CreateOr(c.CreateBitCast(r, it), sign)
	return c.CreateBitCast(bits, t)
}

func (c *Context) floatSplat(t ir.Type, f float32) *ir.Value {
	return c.CreateSplat(t, uint64(math.Float32bits(f)))
}

// ============================================================================
// 饱和运算
// ============================================================================

// AddSat 饱和加法
func AddSat[T Saturating[T]](x, y T) T {
	c := session(x, y)
	a, b := x.IR(), y.IR()
	signed := x.class() == classSigned
	id := ir.IntrAddSatU
	if signed {
		id = ir.IntrAddSatS
	}
	if c.hasIntrinsic(id, a.Type) {
		return wrap[T](c, c.CreateIntrinsic(id, a.Type, a, b))
	}

	s := c.CreateAdd(a, b)
	if !signed {
		// 回绕时和小于任一加数
		return wrap[T](c, c.CreateSelect(c.CreateICmpULT(s, a), c.CreateAllOnes(a.Type), s))
	}
	// 两个加数同号且和的符号不同
	ov := c.CreateAnd(c.CreateXor(a, s), c.CreateXor(b, s))
	return wrap[T](c, c.saturateOnOverflow(a, s, ov))
}

// SubSat 饱和减法
func SubSat[T Saturating[T]](x, y T) T {
	c := session(x, y)
	a, b := x.IR(), y.IR()
	signed := x.class() == classSigned
	id := ir.IntrSubSatU
	if signed {
		id = ir.IntrSubSatS
	}
	if c.hasIntrinsic(id, a.Type) {
		return wrap[T](c, c.CreateIntrinsic(id, a.Type, a, b))
	}

	d := c.CreateSub(a, b)
	if !signed {
		return wrap[T](c, c.CreateSelect(c.CreateICmpULT(a, b), c.CreateNull(a.Type), d))
	}
	// 操作数异号且差与被减数异号
	ov := c.CreateAnd(c.CreateXor(a, b), c.CreateXor(a, d))
	return wrap[T](c, c.saturateOnOverflow(a, d, ov))
}

// ============================================================================
// 乘法高位与平均
// ============================================================================

// MulHigh 乘积的高半部分，ab >> bits；64 位通道不支持
func MulHigh[T Integer[T]](x, y T) T {
	c := session(x, y)
	a, b := x.IR(), y.IR()
	signed := x.class() == classSigned
	id := ir.IntrMulHighU
	if signed {
		id = ir.IntrMulHighS
	}
	if c.hasIntrinsic(id, a.Type) {
		return wrap[T](c, c.CreateIntrinsic(id, a.Type, a, b))
	}
	return wrap[T](c, c.mulHigh(a, b, signed))
}

// mulHigh 把通道加宽一倍后相乘；加宽后超过 128 位时分成两半
func (c *Context) mulHigh(a, b *ir.Value, signed bool) *ir.Value {
	t := a.Type
	size := t.ElemKind().Size()
	if size >= 8 {
		panic(fmt.Sprintf("reactor: no high multiply for %s", t))
	}
	if t.IsVector() && 2*t.Size() > ir.MaxVectorBytes {
		n := t.NumLanes() / 2
		lo := c.mulHigh(c.lanesFrom(a, 0, n), c.lanesFrom(b, 0, n), signed)
		hi := c.mulHigh(c.lanesFrom(a, n, n), c.lanesFrom(b, n, n), signed)
		return c.CreateShuffleVector(lo, hi, iotaSel(2*n))
	}

	wide := ir.Scalar(ir.IntKindOfSize(2 * size)).WithLanes(t.NumLanes())
	ext := c.CreateZExt
	if signed {
		ext = c.CreateSExt
	}
	p := c.CreateMul(ext(a, wide), ext(b, wide))
	p = c.CreateLShr(p, c.CreateSplat(wide, uint64(8*size)))
	return c.CreateTrunc(p, t)
}

// lanesFrom v 从 off 开始的 n 个通道
func (c *Context) lanesFrom(v *ir.Value, off, n int) *ir.Value {
	sel := iotaSel(n)
	for i := range sel {
		sel[i] += off
	}
	return c.CreateShuffleVector(v, v, sel)
}

func iotaSel(n int) []int {
	sel := make([]int, n)
	for i := range sel {
		sel[i] = i
	}
	return sel
}

// Avg 向上取整的平均值 (x + y + 1) >> 1，中间结果不溢出
func Avg[T Integer[T]](x, y T) T {
	c := session(x, y)
	a, b := x.IR(), y.IR()
	signed := x.class() == classSigned
	if !signed && c.hasIntrinsic(ir.IntrAvgU, a.Type) {
		return wrap[T](c, c.CreateIntrinsic(ir.IntrAvgU, a.Type, a, b))
	}
	// (a | b) - ((a ^ b) >> 1)
	one := c.CreateSplat(a.Type, 1)
	d := c.CreateXor(a, b)
	if signed {
		d = c.CreateAShr(d, one)
	} else {
		d = c.CreateLShr(d, one)
	}
	return wrap[T](c, c.CreateSub(c.CreateOr(a, b), d))
}

// saturateOnOverflow ov 的符号位为 1 的通道按 a 的符号取 MIN 或 MAX
func (c *Context) saturateOnOverflow(a, r, ov *ir.Value) *ir.Value {
	t := a.Type
	bits := t.ElemKind().Bits()
	zero := c.CreateNull(t)
	min := c.CreateSplat(t, 1<<(bits-1))
	max := c.CreateSplat(t, 1<<(bits-1)-1)
	sat := c.CreateSelect(c.CreateICmpSLT(a, zero), min, max)
	return c.CreateSelect(c.CreateICmpSLT(ov, zero), sat, r)
}
