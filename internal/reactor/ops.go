// ops.go - 泛型运算符
//
// 每个运算符按操作数的数值类别（有符号/无符号/浮点）选择一个 Context 原语。
// 整数除法和取余会替换掉会触发硬件异常的除数，结果是固定的哨兵值：
//
//	x / 0 = x, x % 0 = 0, MIN / -1 = MIN, MIN % -1 = 0

package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

type prim func(*Context, *ir.Value, *ir.Value) *ir.Value

// binaryPrims 一个运算符在各数值类别上的原语
type binaryPrims struct {
	signed, unsigned, float prim
}

func (p binaryPrims) pick(k class) prim {
	var f prim
	switch k {
	case classSigned:
		f = p.signed
	case classUnsigned, classBool:
		f = p.unsigned
	case classFloat:
		f = p.float
	}
	if f == nil {
		panic(fmt.Sprintf("reactor: operation not defined on %s values", k))
	}
	return f
}

var (
	addPrims = binaryPrims{(*Context).CreateAdd, (*Context).CreateAdd, (*Context).CreateFAdd}
	subPrims = binaryPrims{(*Context).CreateSub, (*Context).CreateSub, (*Context).CreateFSub}
	mulPrims = binaryPrims{(*Context).CreateMul, (*Context).CreateMul, (*Context).CreateFMul}
	divPrims = binaryPrims{(*Context).CreateSDiv, (*Context).CreateUDiv, (*Context).CreateFDiv}
	remPrims = binaryPrims{(*Context).CreateSRem, (*Context).CreateURem, nil}
	andPrims = binaryPrims{(*Context).CreateAnd, (*Context).CreateAnd, nil}
	orPrims  = binaryPrims{(*Context).CreateOr, (*Context).CreateOr, nil}
	xorPrims = binaryPrims{(*Context).CreateXor, (*Context).CreateXor, nil}
	shlPrims = binaryPrims{(*Context).CreateShl, (*Context).CreateShl, nil}
	shrPrims = binaryPrims{(*Context).CreateAShr, (*Context).CreateLShr, nil}
)

func binop[T Typed[T]](p binaryPrims, x, y T) T {
	c := session(x, y)
	return wrap[T](c, p.pick(x.class())(c, x.IR(), y.IR()))
}

// ============================================================================
// 算术
// ============================================================================

func Add[T Numeric[T]](x, y T) T { return binop(addPrims, x, y) }
func Sub[T Numeric[T]](x, y T) T { return binop(subPrims, x, y) }
func Mul[T Numeric[T]](x, y T) T { return binop(mulPrims, x, y) }

// Div 除法；整数除数按哨兵规则替换
func Div[T Numeric[T]](x, y T) T {
	if x.class() == classFloat {
		return binop(divPrims, x, y)
	}
	return guardedDiv(divPrims, x, y)
}

// Rem 整数取余，规则同 Div
func Rem[T Integer[T]](x, y T) T {
	return guardedDiv(remPrims, x, y)
}

func guardedDiv[T Typed[T]](p binaryPrims, x, y T) T {
	c := session(x, y)
	signed := x.class() == classSigned
	d := c.safeDivisor(x.IR(), y.IR(), signed)
	return wrap[T](c, p.pick(x.class())(c, x.IR(), d))
}

// safeDivisor 除数为 0，或有符号 MIN / -1 时换成 1
func (c *Context) safeDivisor(a, b *ir.Value, signed bool) *ir.Value {
	t := b.Type
	bad := c.CreateICmpEQ(b, c.CreateNull(t))
	if signed {
		min := c.CreateSplat(t, 1<<(t.ElemKind().Bits()-1))
		ov := c.CreateAnd(c.CreateICmpEQ(a, min), c.CreateICmpEQ(b, c.CreateAllOnes(t)))
		bad = c.CreateOr(bad, ov)
	}
	return c.CreateSelect(bad, c.CreateSplat(t, 1), b)
}

// Neg 取负
func Neg[T Numeric[T]](x T) T {
	c := session(x)
	if x.class() == classFloat {
		return wrap[T](c, c.CreateFNeg(x.IR()))
	}
	return wrap[T](c, c.CreateNeg(x.IR()))
}

// Min 较小值；浮点遵循 MINPS 的语义（有 NaN 时返回第二个操作数）
func Min[T Numeric[T]](x, y T) T {
	c := session(x, y)
	switch x.class() {
	case classFloat:
		return wrap[T](c, c.CreateFMin(x.IR(), y.IR()))
	case classSigned:
		return wrap[T](c, c.CreateSelect(c.CreateICmpSLT(x.IR(), y.IR()), x.IR(), y.IR()))
	}
	return wrap[T](c, c.CreateSelect(c.CreateICmpULT(x.IR(), y.IR()), x.IR(), y.IR()))
}

// Max 较大值
func Max[T Numeric[T]](x, y T) T {
	c := session(x, y)
	switch x.class() {
	case classFloat:
		return wrap[T](c, c.CreateFMax(x.IR(), y.IR()))
	case classSigned:
		return wrap[T](c, c.CreateSelect(c.CreateICmpSGT(x.IR(), y.IR()), x.IR(), y.IR()))
	}
	return wrap[T](c, c.CreateSelect(c.CreateICmpUGT(x.IR(), y.IR()), x.IR(), y.IR()))
}

// Abs 绝对值；有符号 MIN 保持不变，无符号是恒等
func Abs[T Numeric[T]](x T) T {
	c := session(x)
	v := x.IR()
	switch x.class() {
	case classFloat:
		return wrap[T](c, c.clearSign(v))
	case classSigned:
		neg := c.CreateICmpSLT(v, c.CreateNull(v.Type))
		return wrap[T](c, c.CreateSelect(neg, c.CreateNeg(v), v))
	}
	return x
}

// clearSign 清掉浮点值的符号位
func (c *Context) clearSign(v *ir.Value) *ir.Value {
	it := floatBitsType(v.Type)
	bits := c.CreateBitCast(v, it)
	bits = c.CreateAnd(bits, c.CreateSplat(it, 0x7FFFFFFF))
	return c.CreateBitCast(bits, v.Type)
}

// floatBitsType 与浮点类型同形状的整数类型
func floatBitsType(t ir.Type) ir.Type {
	if t.IsVector() {
		return ir.Vector(ir.KindI32, t.NumLanes())
	}
	return ir.I32
}

// ============================================================================
// 位运算
// ============================================================================

func And[T Bitwise[T]](x, y T) T { return binop(andPrims, x, y) }
func Or[T Bitwise[T]](x, y T) T  { return binop(orPrims, x, y) }
func Xor[T Bitwise[T]](x, y T) T { return binop(xorPrims, x, y) }

// Not 按位取反
func Not[T Bitwise[T]](x T) T {
	c := session(x)
	return wrap[T](c, c.CreateNot(x.IR()))
}

// Shl 左移，位数按 64 取模
func Shl[T Integer[T]](x, n T) T { return binop(shlPrims, x, n) }

// Shr 右移；有符号类型是算术右移
func Shr[T Integer[T]](x, n T) T { return binop(shrPrims, x, n) }

// ShlN 按常量位数左移
func ShlN[T Integer[T]](x T, n uint) T {
	c := session(x)
	return Shl(x, wrap[T](c, c.CreateSplat(x.Type(), uint64(n))))
}

// ShrN 按常量位数右移
func ShrN[T Integer[T]](x T, n uint) T {
	c := session(x)
	return Shr(x, wrap[T](c, c.CreateSplat(x.Type(), uint64(n))))
}

// ============================================================================
// 选择与比较
// ============================================================================

// Select cond ? x : y
func Select[T Typed[T]](cond Bool, x, y T) T {
	c := session(cond, x, y)
	return wrap[T](c, c.CreateSelect(cond.IR(), x.IR(), y.IR()))
}

type scmpKind uint8

const (
	scmpEq scmpKind = iota
	scmpNe
	scmpLt
	scmpLe
	scmpGt
	scmpGe
)

// 浮点 Ne 是无序比较，与 Go 的 != 一致
var scmpPreds = [...][6]ir.Predicate{
	classSigned:   {ir.PredEQ, ir.PredNE, ir.PredSLT, ir.PredSLE, ir.PredSGT, ir.PredSGE},
	classUnsigned: {ir.PredEQ, ir.PredNE, ir.PredULT, ir.PredULE, ir.PredUGT, ir.PredUGE},
	classFloat:    {ir.PredOEQ, ir.PredUNE, ir.PredOLT, ir.PredOLE, ir.PredOGT, ir.PredOGE},
}

func compare[T Orderable[T]](k scmpKind, x, y T) Bool {
	c := session(x, y)
	p := scmpPreds[x.class()][k]
	if x.class() == classFloat {
		return wrap[Bool](c, c.CreateFCmp(p, x.IR(), y.IR()))
	}
	return wrap[Bool](c, c.CreateICmp(p, x.IR(), y.IR()))
}

func Eq[T Orderable[T]](x, y T) Bool { return compare(scmpEq, x, y) }
func Ne[T Orderable[T]](x, y T) Bool { return compare(scmpNe, x, y) }
func Lt[T Orderable[T]](x, y T) Bool { return compare(scmpLt, x, y) }
func Le[T Orderable[T]](x, y T) Bool { return compare(scmpLe, x, y) }
func Gt[T Orderable[T]](x, y T) Bool { return compare(scmpGt, x, y) }
func Ge[T Orderable[T]](x, y T) Bool { return compare(scmpGe, x, y) }

// ============================================================================
// 类型转换
// ============================================================================

// Convert 数值转换
//
//	整数 -> 整数  按源类型的符号截断或扩展
//	整数 -> 浮点  按源类型的符号转换
//	浮点 -> 整数  向零截断；超出范围的结果未定义
//	Bool -> 整数  0 或 1；整数 -> Bool 非零为真
//
// 源和目标的通道数必须相同。
func Convert[To Typed[To]](x Value) To {
	c := session(x)
	v := x.IR()
	to := typeOf[To]()
	from, dst := x.class(), classOf[To]()
	if v.Type.NumLanes() != to.NumLanes() {
		panic(fmt.Sprintf("reactor: cannot convert %s to %s", v.Type, to))
	}

	var r *ir.Value
	fb, tb := v.Type.ElemKind().Size(), to.ElemKind().Size()
	switch {
	case v.Type == to && from != classPointer:
		r = v
	case dst == classBool && from == classFloat:
		r = c.CreateFCmpUNE(v, c.CreateNull(v.Type))
	case dst == classBool:
		r = c.CreateICmpNE(v, c.CreateNull(v.Type))
	case from == classFloat && dst == classFloat:
		r = v
	case from == classFloat && dst == classSigned:
		r = c.CreateFPToSI(v, to)
	case from == classFloat:
		r = c.CreateFPToUI(v, to)
	case dst == classFloat && from == classSigned:
		r = c.CreateSIToFP(v, to)
	case dst == classFloat:
		r = c.CreateUIToFP(v, to)
	case from == classPointer || dst == classPointer:
		panic("reactor: use PointerCast or Address for pointer conversions")
	case fb > tb:
		r = c.CreateTrunc(v, to)
	case fb == tb:
		r = v
	case from == classSigned:
		r = c.CreateSExt(v, to)
	default:
		// Bool 和无符号类型零扩展
		r = c.CreateZExt(v, to)
	}
	return wrap[To](c, r)
}

// Bitcast 保持位模式，重新解释为 To；大小必须相同
func Bitcast[To Typed[To]](x Value) To {
	c := session(x)
	to := typeOf[To]()
	if x.Type() == to {
		return wrap[To](c, x.IR())
	}
	if x.Type().Size() != to.Size() {
		panic(fmt.Sprintf("reactor: bitcast %s to %s changes size", x.Type(), to))
	}
	return wrap[To](c, c.CreateBitCast(x.IR(), to))
}
