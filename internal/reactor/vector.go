package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 通道重排
// ============================================================================

// Shuffle 从 a‖b 中按 sel 选择通道，-1 表示零
func Shuffle[T VectorValue[T]](a, b T, sel ...int) T {
	c := session(a, b)
	n := a.Type().NumLanes()
	if len(sel) != n {
		panic(fmt.Sprintf("reactor: shuffle of %s needs %d selectors, got %d", a.Type(), n, len(sel)))
	}
	for _, s := range sel {
		if s < -1 || s >= 2*n {
			panic(fmt.Sprintf("reactor: shuffle selector %d out of range", s))
		}
	}
	return wrap[T](c, c.CreateShuffleVector(a.IR(), b.IR(), sel))
}

// Swizzle 按 sel 重排 v 的通道，每个通道一个字节
func Swizzle[T VectorValue[T]](v T, sel ...uint8) T {
	c := session(v)
	n := v.Type().NumLanes()
	if len(sel) != n {
		panic(fmt.Sprintf("reactor: swizzle of %s needs %d selectors, got %d", v.Type(), n, len(sel)))
	}
	mask := make([]int, n)
	for i, s := range sel {
		if int(s) >= n {
			panic(fmt.Sprintf("reactor: swizzle lane %d out of range", s))
		}
		mask[i] = int(s)
	}
	return wrap[T](c, c.CreateShuffleVector(v.IR(), v.IR(), mask))
}

// Blend 按掩码逐通道选择：非零取 a，零取 b
// mask 通常来自 CmpXX，通道数必须与 a 相同。
func Blend[T VectorValue[T]](mask Value, a, b T) T {
	c := session(mask, a, b)
	m := mask.IR()
	if !m.Type.IsVector() || !m.Type.IsInt() || m.Type.NumLanes() != a.Type().NumLanes() {
		panic(fmt.Sprintf("reactor: blend mask %s does not match %s", m.Type, a.Type()))
	}
	return wrap[T](c, c.CreateSelect(m, a.IR(), b.IR()))
}

// ============================================================================
// 拓宽与收窄
// ============================================================================

// Widen 把 v 的一半通道扩展为 To 的通道
// v 的通道数是 To 的两倍时，high 选择高半部分；相等时整体扩展。
// 扩展方式取决于 v 的符号。
func Widen[To VectorValue[To], T VectorValue[T]](v T, high bool) To {
	c := session(v)
	to := typeOf[To]()
	src := v.IR()
	n := to.NumLanes()
	if to.ElemKind().Size() <= src.Type.ElemKind().Size() || to.IsFloat() || v.class() == classFloat {
		panic(fmt.Sprintf("reactor: cannot widen %s to %s", src.Type, to))
	}
	switch src.Type.NumLanes() {
	case n:
	case 2 * n:
		off := 0
		if high {
			off = n
		}
		sel := make([]int, n)
		for i := range sel {
			sel[i] = off + i
		}
		src = c.CreateShuffleVector(src, src, sel)
	default:
		panic(fmt.Sprintf("reactor: cannot widen %s to %s", src.Type, to))
	}
	if v.class() == classSigned {
		return wrap[To](c, c.CreateSExt(src, to))
	}
	return wrap[To](c, c.CreateZExt(src, to))
}

// Narrow 把 a 和 b 的通道收窄到一半宽度并拼接（a 在低位）
// saturate 时按 To 的取值范围钳位，否则直接截断。
func Narrow[To VectorValue[To], T VectorValue[T]](a, b T, saturate bool) To {
	c := session(a, b)
	to := typeOf[To]()
	from := a.Type()
	if a.class() == classFloat || classOf[To]() == classFloat ||
		to.NumLanes() != 2*from.NumLanes() || 2*to.ElemKind().Size() != from.ElemKind().Size() {
		panic(fmt.Sprintf("reactor: cannot narrow %s to %s", from, to))
	}
	x, y := a.IR(), b.IR()
	signedDst := classOf[To]() == classSigned

	if saturate {
		// PACKSS/PACKUS 把源当作有符号数
		if a.class() == classSigned {
			id := ir.IntrPackUS
			if signedDst {
				id = ir.IntrPackSS
			}
			if c.hasIntrinsic(id, from) {
				return wrap[To](c, c.CreateIntrinsic(id, to, x, y))
			}
		}
		x = c.clampToRange(x, a.class() == classSigned, to.ElemKind(), signedDst)
		y = c.clampToRange(y, a.class() == classSigned, to.ElemKind(), signedDst)
	}

	half := ir.Vector(to.ElemKind(), from.NumLanes())
	lo := c.CreateTrunc(x, half)
	hi := c.CreateTrunc(y, half)
	sel := make([]int, to.NumLanes())
	for i := range sel {
		sel[i] = i
	}
	return wrap[To](c, c.CreateShuffleVector(lo, hi, sel))
}

// clampToRange 把每个通道钳位到 dst 种类能表示的范围
func (c *Context) clampToRange(v *ir.Value, signedSrc bool, dst ir.Kind, signedDst bool) *ir.Value {
	t := v.Type
	bits := dst.Bits()
	var lo, hi int64
	if signedDst {
		lo, hi = -(1 << (bits - 1)), 1<<(bits-1)-1
	} else {
		lo, hi = 0, 1<<bits-1
	}
	hiV := c.CreateSplat(t, uint64(hi))
	if !signedSrc {
		// 无符号源没有负数，只需要上界
		return c.CreateSelect(c.CreateICmpUGT(v, hiV), hiV, v)
	}
	loV := c.CreateSplat(t, uint64(lo))
	v = c.CreateSelect(c.CreateICmpSGT(v, hiV), hiV, v)
	return c.CreateSelect(c.CreateICmpSLT(v, loV), loV, v)
}
