// types_vector.go - 向量类型
//
// 完整宽度的向量占 128 位；Byte8/SByte8/Short4/UShort4 是拓宽和收窄时使用的
// 64 位半宽形式。向量比较返回与通道宽度相同的有符号整数掩码：
// 真为全 1，假为 0。

package reactor

import (
	"math"

	"github.com/tangzhangming/reactor/internal/ir"
)

// 半宽向量的 IR 类型
var (
	v8i8  = ir.Vector(ir.KindI8, 8)
	v4i16 = ir.Vector(ir.KindI16, 4)
)

// ============================================================================
// 通道访问与比较
// ============================================================================

type vcmpKind uint8

const (
	cmpEQ vcmpKind = iota
	cmpNEQ
	cmpLT
	cmpLE
	cmpNLT
	cmpNLE
)

// 按数值类别排列的谓词，NLT/NLE 对浮点是无序比较（NaN 为真）
var vcmpPreds = [...][6]ir.Predicate{
	classSigned:   {ir.PredEQ, ir.PredNE, ir.PredSLT, ir.PredSLE, ir.PredSGE, ir.PredSGT},
	classUnsigned: {ir.PredEQ, ir.PredNE, ir.PredULT, ir.PredULE, ir.PredUGE, ir.PredUGT},
	classFloat:    {ir.PredOEQ, ir.PredUNE, ir.PredOLT, ir.PredOLE, ir.PredUGEF, ir.PredUGTF},
}

func vcmp[M Typed[M]](k vcmpKind, x, y Value) M {
	c := session(x, y)
	p := vcmpPreds[x.class()][k]
	if x.class() == classFloat {
		return wrap[M](c, c.CreateFCmp(p, x.IR(), y.IR()))
	}
	return wrap[M](c, c.CreateICmp(p, x.IR(), y.IR()))
}

func extract[E Typed[E]](x Value, i int) E {
	c := session(x)
	return wrap[E](c, c.CreateExtractElement(x.IR(), i))
}

func insert[T Typed[T]](x T, i int, e Value) T {
	c := session(x, e)
	return wrap[T](c, c.CreateInsertElement(x.IR(), e.IR(), i))
}

// splat 把运行时标量复制到每个通道
func splat[T Typed[T]](x Value) T {
	c := session(x)
	t := typeOf[T]()
	v := c.CreateInsertElement(c.CreateNull(t), x.IR(), 0)
	return wrap[T](c, c.CreateShuffleVector(v, v, make([]int, t.NumLanes())))
}

// lanesOf 把通道值转换成常量位模式
func lanesOf[E ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32](xs ...E) []uint64 {
	out := make([]uint64, len(xs))
	for i, x := range xs {
		out[i] = uint64(x)
	}
	return out
}

// ============================================================================
// Byte16
// ============================================================================

// Byte16 16 个无符号 8 位通道
type Byte16 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (Byte16) Type() ir.Type     { return ir.V16I8 }
func (Byte16) class() class      { return classUnsigned }
func (Byte16) wrap(x val) Byte16 { return Byte16{val: x} }

// Extract 第 i 个通道
func (x Byte16) Extract(i int) Byte { return extract[Byte](x, i) }

// Insert 替换第 i 个通道
func (x Byte16) Insert(i int, e Byte) Byte16 { return insert(x, i, e) }

func (x Byte16) CmpEQ(y Byte16) SByte16  { return vcmp[SByte16](cmpEQ, x, y) }
func (x Byte16) CmpNEQ(y Byte16) SByte16 { return vcmp[SByte16](cmpNEQ, x, y) }
func (x Byte16) CmpLT(y Byte16) SByte16  { return vcmp[SByte16](cmpLT, x, y) }
func (x Byte16) CmpLE(y Byte16) SByte16  { return vcmp[SByte16](cmpLE, x, y) }
func (x Byte16) CmpNLT(y Byte16) SByte16 { return vcmp[SByte16](cmpNLT, x, y) }
func (x Byte16) CmpNLE(y Byte16) SByte16 { return vcmp[SByte16](cmpNLE, x, y) }

// ============================================================================
// SByte16
// ============================================================================

// SByte16 16 个有符号 8 位通道
type SByte16 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (SByte16) Type() ir.Type      { return ir.V16I8 }
func (SByte16) class() class       { return classSigned }
func (SByte16) wrap(x val) SByte16 { return SByte16{val: x} }

// Extract 第 i 个通道
func (x SByte16) Extract(i int) SByte { return extract[SByte](x, i) }

// Insert 替换第 i 个通道
func (x SByte16) Insert(i int, e SByte) SByte16 { return insert(x, i, e) }

func (x SByte16) CmpEQ(y SByte16) SByte16  { return vcmp[SByte16](cmpEQ, x, y) }
func (x SByte16) CmpNEQ(y SByte16) SByte16 { return vcmp[SByte16](cmpNEQ, x, y) }
func (x SByte16) CmpLT(y SByte16) SByte16  { return vcmp[SByte16](cmpLT, x, y) }
func (x SByte16) CmpLE(y SByte16) SByte16  { return vcmp[SByte16](cmpLE, x, y) }
func (x SByte16) CmpNLT(y SByte16) SByte16 { return vcmp[SByte16](cmpNLT, x, y) }
func (x SByte16) CmpNLE(y SByte16) SByte16 { return vcmp[SByte16](cmpNLE, x, y) }

// ============================================================================
// Short8
// ============================================================================

// Short8 8 个有符号 16 位通道
type Short8 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (Short8) Type() ir.Type     { return ir.V8I16 }
func (Short8) class() class      { return classSigned }
func (Short8) wrap(x val) Short8 { return Short8{val: x} }

// Extract 第 i 个通道
func (x Short8) Extract(i int) Short { return extract[Short](x, i) }

// Insert 替换第 i 个通道
func (x Short8) Insert(i int, e Short) Short8 { return insert(x, i, e) }

func (x Short8) CmpEQ(y Short8) Short8  { return vcmp[Short8](cmpEQ, x, y) }
func (x Short8) CmpNEQ(y Short8) Short8 { return vcmp[Short8](cmpNEQ, x, y) }
func (x Short8) CmpLT(y Short8) Short8  { return vcmp[Short8](cmpLT, x, y) }
func (x Short8) CmpLE(y Short8) Short8  { return vcmp[Short8](cmpLE, x, y) }
func (x Short8) CmpNLT(y Short8) Short8 { return vcmp[Short8](cmpNLT, x, y) }
func (x Short8) CmpNLE(y Short8) Short8 { return vcmp[Short8](cmpNLE, x, y) }

// ============================================================================
// UShort8
// ============================================================================

// UShort8 8 个无符号 16 位通道
type UShort8 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (UShort8) Type() ir.Type      { return ir.V8I16 }
func (UShort8) class() class       { return classUnsigned }
func (UShort8) wrap(x val) UShort8 { return UShort8{val: x} }

// Extract 第 i 个通道
func (x UShort8) Extract(i int) UShort { return extract[UShort](x, i) }

// Insert 替换第 i 个通道
func (x UShort8) Insert(i int, e UShort) UShort8 { return insert(x, i, e) }

func (x UShort8) CmpEQ(y UShort8) Short8  { return vcmp[Short8](cmpEQ, x, y) }
func (x UShort8) CmpNEQ(y UShort8) Short8 { return vcmp[Short8](cmpNEQ, x, y) }
func (x UShort8) CmpLT(y UShort8) Short8  { return vcmp[Short8](cmpLT, x, y) }
func (x UShort8) CmpLE(y UShort8) Short8  { return vcmp[Short8](cmpLE, x, y) }
func (x UShort8) CmpNLT(y UShort8) Short8 { return vcmp[Short8](cmpNLT, x, y) }
func (x UShort8) CmpNLE(y UShort8) Short8 { return vcmp[Short8](cmpNLE, x, y) }

// ============================================================================
// Int4
// ============================================================================

// Int4 4 个有符号 32 位通道
type Int4 struct {
	val
	numeric
	integer
	vector
}

func (Int4) Type() ir.Type   { return ir.V4I32 }
func (Int4) class() class    { return classSigned }
func (Int4) wrap(x val) Int4 { return Int4{val: x} }

// Extract 第 i 个通道
func (x Int4) Extract(i int) Int { return extract[Int](x, i) }

// Insert 替换第 i 个通道
func (x Int4) Insert(i int, e Int) Int4 { return insert(x, i, e) }

func (x Int4) CmpEQ(y Int4) Int4  { return vcmp[Int4](cmpEQ, x, y) }
func (x Int4) CmpNEQ(y Int4) Int4 { return vcmp[Int4](cmpNEQ, x, y) }
func (x Int4) CmpLT(y Int4) Int4  { return vcmp[Int4](cmpLT, x, y) }
func (x Int4) CmpLE(y Int4) Int4  { return vcmp[Int4](cmpLE, x, y) }
func (x Int4) CmpNLT(y Int4) Int4 { return vcmp[Int4](cmpNLT, x, y) }
func (x Int4) CmpNLE(y Int4) Int4 { return vcmp[Int4](cmpNLE, x, y) }

// ============================================================================
// UInt4
// ============================================================================

// UInt4 4 个无符号 32 位通道
type UInt4 struct {
	val
	numeric
	integer
	vector
}

func (UInt4) Type() ir.Type    { return ir.V4I32 }
func (UInt4) class() class     { return classUnsigned }
func (UInt4) wrap(x val) UInt4 { return UInt4{val: x} }

// Extract 第 i 个通道
func (x UInt4) Extract(i int) UInt { return extract[UInt](x, i) }

// Insert 替换第 i 个通道
func (x UInt4) Insert(i int, e UInt) UInt4 { return insert(x, i, e) }

func (x UInt4) CmpEQ(y UInt4) Int4  { return vcmp[Int4](cmpEQ, x, y) }
func (x UInt4) CmpNEQ(y UInt4) Int4 { return vcmp[Int4](cmpNEQ, x, y) }
func (x UInt4) CmpLT(y UInt4) Int4  { return vcmp[Int4](cmpLT, x, y) }
func (x UInt4) CmpLE(y UInt4) Int4  { return vcmp[Int4](cmpLE, x, y) }
func (x UInt4) CmpNLT(y UInt4) Int4 { return vcmp[Int4](cmpNLT, x, y) }
func (x UInt4) CmpNLE(y UInt4) Int4 { return vcmp[Int4](cmpNLE, x, y) }

// ============================================================================
// Float4
// ============================================================================

// Float4 4 个单精度通道
type Float4 struct {
	val
	numeric
	floating
	vector
}

func (Float4) Type() ir.Type     { return ir.V4F32 }
func (Float4) class() class      { return classFloat }
func (Float4) wrap(x val) Float4 { return Float4{val: x} }

// Extract 第 i 个通道
func (x Float4) Extract(i int) Float { return extract[Float](x, i) }

// Insert 替换第 i 个通道
func (x Float4) Insert(i int, e Float) Float4 { return insert(x, i, e) }

func (x Float4) CmpEQ(y Float4) Int4  { return vcmp[Int4](cmpEQ, x, y) }
func (x Float4) CmpNEQ(y Float4) Int4 { return vcmp[Int4](cmpNEQ, x, y) }
func (x Float4) CmpLT(y Float4) Int4  { return vcmp[Int4](cmpLT, x, y) }
func (x Float4) CmpLE(y Float4) Int4  { return vcmp[Int4](cmpLE, x, y) }
func (x Float4) CmpNLT(y Float4) Int4 { return vcmp[Int4](cmpNLT, x, y) }
func (x Float4) CmpNLE(y Float4) Int4 { return vcmp[Int4](cmpNLE, x, y) }

// ============================================================================
// Byte8
// ============================================================================

// Byte8 半宽：8 个无符号 8 位通道
type Byte8 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (Byte8) Type() ir.Type    { return v8i8 }
func (Byte8) class() class     { return classUnsigned }
func (Byte8) wrap(x val) Byte8 { return Byte8{val: x} }

// Extract 第 i 个通道
func (x Byte8) Extract(i int) Byte { return extract[Byte](x, i) }

// Insert 替换第 i 个通道
func (x Byte8) Insert(i int, e Byte) Byte8 { return insert(x, i, e) }

func (x Byte8) CmpEQ(y Byte8) SByte8  { return vcmp[SByte8](cmpEQ, x, y) }
func (x Byte8) CmpNEQ(y Byte8) SByte8 { return vcmp[SByte8](cmpNEQ, x, y) }
func (x Byte8) CmpLT(y Byte8) SByte8  { return vcmp[SByte8](cmpLT, x, y) }
func (x Byte8) CmpLE(y Byte8) SByte8  { return vcmp[SByte8](cmpLE, x, y) }
func (x Byte8) CmpNLT(y Byte8) SByte8 { return vcmp[SByte8](cmpNLT, x, y) }
func (x Byte8) CmpNLE(y Byte8) SByte8 { return vcmp[SByte8](cmpNLE, x, y) }

// ============================================================================
// SByte8
// ============================================================================

// SByte8 半宽：8 个有符号 8 位通道
type SByte8 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (SByte8) Type() ir.Type     { return v8i8 }
func (SByte8) class() class      { return classSigned }
func (SByte8) wrap(x val) SByte8 { return SByte8{val: x} }

// Extract 第 i 个通道
func (x SByte8) Extract(i int) SByte { return extract[SByte](x, i) }

// Insert 替换第 i 个通道
func (x SByte8) Insert(i int, e SByte) SByte8 { return insert(x, i, e) }

func (x SByte8) CmpEQ(y SByte8) SByte8  { return vcmp[SByte8](cmpEQ, x, y) }
func (x SByte8) CmpNEQ(y SByte8) SByte8 { return vcmp[SByte8](cmpNEQ, x, y) }
func (x SByte8) CmpLT(y SByte8) SByte8  { return vcmp[SByte8](cmpLT, x, y) }
func (x SByte8) CmpLE(y SByte8) SByte8  { return vcmp[SByte8](cmpLE, x, y) }
func (x SByte8) CmpNLT(y SByte8) SByte8 { return vcmp[SByte8](cmpNLT, x, y) }
func (x SByte8) CmpNLE(y SByte8) SByte8 { return vcmp[SByte8](cmpNLE, x, y) }

// ============================================================================
// Short4
// ============================================================================

// Short4 半宽：4 个有符号 16 位通道
type Short4 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (Short4) Type() ir.Type     { return v4i16 }
func (Short4) class() class      { return classSigned }
func (Short4) wrap(x val) Short4 { return Short4{val: x} }

// Extract 第 i 个通道
func (x Short4) Extract(i int) Short { return extract[Short](x, i) }

// Insert 替换第 i 个通道
func (x Short4) Insert(i int, e Short) Short4 { return insert(x, i, e) }

func (x Short4) CmpEQ(y Short4) Short4  { return vcmp[Short4](cmpEQ, x, y) }
func (x Short4) CmpNEQ(y Short4) Short4 { return vcmp[Short4](cmpNEQ, x, y) }
func (x Short4) CmpLT(y Short4) Short4  { return vcmp[Short4](cmpLT, x, y) }
func (x Short4) CmpLE(y Short4) Short4  { return vcmp[Short4](cmpLE, x, y) }
func (x Short4) CmpNLT(y Short4) Short4 { return vcmp[Short4](cmpNLT, x, y) }
func (x Short4) CmpNLE(y Short4) Short4 { return vcmp[Short4](cmpNLE, x, y) }

// ============================================================================
// UShort4
// ============================================================================

// UShort4 半宽：4 个无符号 16 位通道
type UShort4 struct {
	val
	numeric
	integer
	saturating
	vector
}

func (UShort4) Type() ir.Type      { return v4i16 }
func (UShort4) class() class       { return classUnsigned }
func (UShort4) wrap(x val) UShort4 { return UShort4{val: x} }

// Extract 第 i 个通道
func (x UShort4) Extract(i int) UShort { return extract[UShort](x, i) }

// Insert 替换第 i 个通道
func (x UShort4) Insert(i int, e UShort) UShort4 { return insert(x, i, e) }

func (x UShort4) CmpEQ(y UShort4) Short4  { return vcmp[Short4](cmpEQ, x, y) }
func (x UShort4) CmpNEQ(y UShort4) Short4 { return vcmp[Short4](cmpNEQ, x, y) }
func (x UShort4) CmpLT(y UShort4) Short4  { return vcmp[Short4](cmpLT, x, y) }
func (x UShort4) CmpLE(y UShort4) Short4  { return vcmp[Short4](cmpLE, x, y) }
func (x UShort4) CmpNLT(y UShort4) Short4 { return vcmp[Short4](cmpNLT, x, y) }
func (x UShort4) CmpNLE(y UShort4) Short4 { return vcmp[Short4](cmpNLE, x, y) }

// ============================================================================
// 向量字面量
// ============================================================================

// Int4 常量向量
func (c *Context) Int4(x, y, z, w int32) Int4 {
	return wrap[Int4](c, c.CreateConstVector(ir.V4I32, lanesOf(x, y, z, w)))
}

// UInt4 常量向量
func (c *Context) UInt4(x, y, z, w uint32) UInt4 {
	return wrap[UInt4](c, c.CreateConstVector(ir.V4I32, lanesOf(x, y, z, w)))
}

// Float4 常量向量
func (c *Context) Float4(x, y, z, w float32) Float4 {
	lanes := []uint64{
		uint64(math.Float32bits(x)), uint64(math.Float32bits(y)),
		uint64(math.Float32bits(z)), uint64(math.Float32bits(w)),
	}
	return wrap[Float4](c, c.CreateConstVector(ir.V4F32, lanes))
}

// Short8 常量向量
func (c *Context) Short8(lanes [8]int16) Short8 {
	return wrap[Short8](c, c.CreateConstVector(ir.V8I16, lanesOf(lanes[:]...)))
}

// UShort8 常量向量
func (c *Context) UShort8(lanes [8]uint16) UShort8 {
	return wrap[UShort8](c, c.CreateConstVector(ir.V8I16, lanesOf(lanes[:]...)))
}

// Byte16 常量向量
func (c *Context) Byte16(lanes [16]uint8) Byte16 {
	return wrap[Byte16](c, c.CreateConstVector(ir.V16I8, lanesOf(lanes[:]...)))
}

// SByte16 常量向量
func (c *Context) SByte16(lanes [16]int8) SByte16 {
	return wrap[SByte16](c, c.CreateConstVector(ir.V16I8, lanesOf(lanes[:]...)))
}

// Short4 常量向量
func (c *Context) Short4(x, y, z, w int16) Short4 {
	return wrap[Short4](c, c.CreateConstVector(v4i16, lanesOf(x, y, z, w)))
}

// UShort4 常量向量
func (c *Context) UShort4(x, y, z, w uint16) UShort4 {
	return wrap[UShort4](c, c.CreateConstVector(v4i16, lanesOf(x, y, z, w)))
}

// Byte8 常量向量
func (c *Context) Byte8(lanes [8]uint8) Byte8 {
	return wrap[Byte8](c, c.CreateConstVector(v8i8, lanesOf(lanes[:]...)))
}

// SByte8 常量向量
func (c *Context) SByte8(lanes [8]int8) SByte8 {
	return wrap[SByte8](c, c.CreateConstVector(v8i8, lanesOf(lanes[:]...)))
}

// 标量复制到所有通道

func (c *Context) Int4Splat(x Int) Int4          { return splat[Int4](x) }
func (c *Context) UInt4Splat(x UInt) UInt4       { return splat[UInt4](x) }
func (c *Context) Float4Splat(x Float) Float4    { return splat[Float4](x) }
func (c *Context) Short8Splat(x Short) Short8    { return splat[Short8](x) }
func (c *Context) UShort8Splat(x UShort) UShort8 { return splat[UShort8](x) }
func (c *Context) Byte16Splat(x Byte) Byte16     { return splat[Byte16](x) }
func (c *Context) SByte16Splat(x SByte) SByte16  { return splat[SByte16](x) }
