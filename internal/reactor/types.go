// types.go - DSL 类型系统
//
// 每个具体类型（Int、Float4 ...）是对一个 *ir.Value 的带类型句柄，
// 句柄的 IR 类型总是等于声明的类型。类型的能力通过标记方法表达：
//
//	Numeric     算术（Add/Sub/Mul/Div/Neg/Min/Max）
//	Integer     位运算、移位、取余
//	Saturating  饱和加减（8/16 位整数）
//	Floating    Sqrt/Rcp/RcpSqrt/Round
//	Orderable   标量比较，结果是 Bool
//	VectorValue 通道访问，比较结果是整数掩码
//
// 运算符是泛型函数（ops.go），按类型的数值类别查一张表，映射到唯一的
// Context 原语。

package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

// class 数值类别，决定运算映射到哪个原语
type class uint8

const (
	classBool class = iota
	classSigned
	classUnsigned
	classFloat
	classPointer
)

func (k class) String() string {
	switch k {
	case classBool:
		return "bool"
	case classSigned:
		return "signed"
	case classUnsigned:
		return "unsigned"
	case classFloat:
		return "float"
	case classPointer:
		return "pointer"
	}
	return fmt.Sprintf("class(%d)", k)
}

// ============================================================================
// 句柄
// ============================================================================

// val 所有句柄共享的表示
type val struct {
	c *Context
	v *ir.Value
}

// IR 句柄对应的 IR 值
func (x val) IR() *ir.Value { return x.v }

// Context 句柄所属的会话
func (x val) Context() *Context { return x.c }

// Value DSL 值
type Value interface {
	IR() *ir.Value
	Context() *Context
	Type() ir.Type
	class() class
}

// Typed 能从 IR 值构造自身句柄的类型
type Typed[T any] interface {
	Value
	wrap(x val) T
}

// 能力标记
type (
	numeric    struct{}
	integer    struct{}
	floating   struct{}
	scalar     struct{}
	vector     struct{}
	bitwise    struct{}
	saturating struct{}
)

func (numeric) isNumeric()       {}
func (integer) isInteger()       {}
func (integer) isBitwise()       {}
func (bitwise) isBitwise()       {}
func (floating) isFloating()     {}
func (scalar) isScalar()         {}
func (vector) isVector()         {}
func (saturating) isSaturating() {}

// Numeric 支持算术的类型
type Numeric[T any] interface {
	Typed[T]
	isNumeric()
}

// Integer 整数类型（标量或向量）
type Integer[T any] interface {
	Numeric[T]
	isInteger()
}

// Bitwise 支持按位运算的类型（整数和 Bool）
type Bitwise[T any] interface {
	Typed[T]
	isBitwise()
}

// Floating 浮点类型（标量或向量）
type Floating[T any] interface {
	Numeric[T]
	isFloating()
}

// Orderable 可以比较大小的标量类型
type Orderable[T any] interface {
	Numeric[T]
	isScalar()
}

// VectorValue 向量类型
type VectorValue[T any] interface {
	Numeric[T]
	isVector()
}

// Saturating 有饱和加减的类型（8/16 位整数）
type Saturating[T any] interface {
	Integer[T]
	isSaturating()
}

// wrap 把 IR 值包装为 T 并检查类型
func wrap[T Typed[T]](c *Context, v *ir.Value) T {
	var zero T
	if v.Type != zero.Type() {
		panic(fmt.Sprintf("reactor: %s has type %s, want %s", v, v.Type, zero.Type()))
	}
	return zero.wrap(val{c: c, v: v})
}

// typeOf T 的 IR 类型
func typeOf[T Value]() ir.Type {
	var zero T
	return zero.Type()
}

func classOf[T Value]() class {
	var zero T
	return zero.class()
}

// session 取两个操作数共同的会话
func session(xs ...Value) *Context {
	var c *Context
	for _, x := range xs {
		if x.IR() == nil {
			panic("reactor: use of an uninitialized value")
		}
		switch {
		case c == nil:
			c = x.Context()
		case x.Context() != c:
			panic("reactor: values from different contexts")
		}
	}
	return c
}

// ============================================================================
// 标量类型
// ============================================================================

// Void 只用作函数签名中的返回类型
type Void struct{ val }

func (Void) Type() ir.Type   { return ir.Void }
func (Void) class() class    { return classBool }
func (Void) wrap(x val) Void { return Void{x} }

// Bool i1
type Bool struct {
	val
	bitwise
	scalar
}

func (Bool) Type() ir.Type   { return ir.I1 }
func (Bool) class() class    { return classBool }
func (Bool) wrap(x val) Bool { return Bool{val: x} }

// Byte 无符号 8 位整数
type Byte struct {
	val
	numeric
	integer
	saturating
	scalar
}

func (Byte) Type() ir.Type   { return ir.I8 }
func (Byte) class() class    { return classUnsigned }
func (Byte) wrap(x val) Byte { return Byte{val: x} }

// SByte 有符号 8 位整数
type SByte struct {
	val
	numeric
	integer
	saturating
	scalar
}

func (SByte) Type() ir.Type    { return ir.I8 }
func (SByte) class() class     { return classSigned }
func (SByte) wrap(x val) SByte { return SByte{val: x} }

// Short 有符号 16 位整数
type Short struct {
	val
	numeric
	integer
	saturating
	scalar
}

func (Short) Type() ir.Type    { return ir.I16 }
func (Short) class() class     { return classSigned }
func (Short) wrap(x val) Short { return Short{val: x} }

// UShort 无符号 16 位整数
type UShort struct {
	val
	numeric
	integer
	saturating
	scalar
}

func (UShort) Type() ir.Type     { return ir.I16 }
func (UShort) class() class      { return classUnsigned }
func (UShort) wrap(x val) UShort { return UShort{val: x} }

// Int 有符号 32 位整数
type Int struct {
	val
	numeric
	integer
	scalar
}

func (Int) Type() ir.Type  { return ir.I32 }
func (Int) class() class   { return classSigned }
func (Int) wrap(x val) Int { return Int{val: x} }

// UInt 无符号 32 位整数
type UInt struct {
	val
	numeric
	integer
	scalar
}

func (UInt) Type() ir.Type   { return ir.I32 }
func (UInt) class() class    { return classUnsigned }
func (UInt) wrap(x val) UInt { return UInt{val: x} }

// Long 有符号 64 位整数
type Long struct {
	val
	numeric
	integer
	scalar
}

func (Long) Type() ir.Type   { return ir.I64 }
func (Long) class() class    { return classSigned }
func (Long) wrap(x val) Long { return Long{val: x} }

// ULong 无符号 64 位整数
type ULong struct {
	val
	numeric
	integer
	scalar
}

func (ULong) Type() ir.Type    { return ir.I64 }
func (ULong) class() class     { return classUnsigned }
func (ULong) wrap(x val) ULong { return ULong{val: x} }

// Float IEEE-754 单精度
type Float struct {
	val
	numeric
	floating
	scalar
}

func (Float) Type() ir.Type    { return ir.F32 }
func (Float) class() class     { return classFloat }
func (Float) wrap(x val) Float { return Float{val: x} }

// ============================================================================
// 字面量
// ============================================================================

// constOf T 类型、每个通道都是 bits 的常量
func constOf[T Typed[T]](c *Context, bits uint64) T {
	return wrap[T](c, c.CreateSplat(typeOf[T](), bits))
}

// True 布尔常量
func (c *Context) True() Bool { return constOf[Bool](c, 1) }

// False 布尔常量
func (c *Context) False() Bool { return constOf[Bool](c, 0) }

// Bool 布尔常量
func (c *Context) Bool(b bool) Bool { return wrap[Bool](c, c.CreateConstBool(b)) }

// Byte 常量
func (c *Context) Byte(x uint8) Byte { return constOf[Byte](c, uint64(x)) }

// SByte 常量
func (c *Context) SByte(x int8) SByte { return constOf[SByte](c, uint64(x)) }

// Short 常量
func (c *Context) Short(x int16) Short { return constOf[Short](c, uint64(x)) }

// UShort 常量
func (c *Context) UShort(x uint16) UShort { return constOf[UShort](c, uint64(x)) }

// Int 常量
func (c *Context) Int(x int32) Int { return constOf[Int](c, uint64(x)) }

// UInt 常量
func (c *Context) UInt(x uint32) UInt { return constOf[UInt](c, uint64(x)) }

// Long 常量
func (c *Context) Long(x int64) Long { return constOf[Long](c, uint64(x)) }

// ULong 常量
func (c *Context) ULong(x uint64) ULong { return constOf[ULong](c, x) }

// Float 常量
func (c *Context) Float(x float32) Float { return wrap[Float](c, c.CreateConstFloat(x)) }
