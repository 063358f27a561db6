// Package ir 定义 JIT 后端的中间表示
//
// 一个编译单元（Module）包含若干函数（Function），函数由基本块（Block）
// 组成，基本块内是 SSA 形式的值（Value）并以唯一的终止指令结束。
package ir

import (
	"fmt"
)

// ============================================================================
// 类型定义
// ============================================================================

// Kind 类型种类
type Kind uint8

const (
	KindVoid Kind = iota
	KindI1
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindPtr
	KindVector
)

// String 返回类型种类名称
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindI1:
		return "i1"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "float"
	case KindPtr:
		return "ptr"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Size 标量种类的字节大小
func (k Kind) Size() int {
	switch k {
	case KindI1, KindI8:
		return 1
	case KindI16:
		return 2
	case KindI32, KindF32:
		return 4
	case KindI64, KindPtr:
		return 8
	default:
		return 0
	}
}

// Bits 标量种类的位宽（i1 为 1）
func (k Kind) Bits() int {
	if k == KindI1 {
		return 1
	}
	return k.Size() * 8
}

// IsInt 是否是整数种类（含 i1）
func (k Kind) IsInt() bool {
	return k >= KindI1 && k <= KindI64
}

// Type IR 类型
// 标量类型只使用 Kind；向量类型的 Elem 和 Lanes 描述元素与通道数。
type Type struct {
	Kind  Kind
	Elem  Kind
	Lanes uint8
}

// 预定义的标量类型
var (
	Void = Type{Kind: KindVoid}
	I1   = Type{Kind: KindI1}
	I8   = Type{Kind: KindI8}
	I16  = Type{Kind: KindI16}
	I32  = Type{Kind: KindI32}
	I64  = Type{Kind: KindI64}
	F32  = Type{Kind: KindF32}
	Ptr  = Type{Kind: KindPtr}
)

// 常用的 128 位向量类型
var (
	V16I8 = Vector(KindI8, 16)
	V8I16 = Vector(KindI16, 8)
	V4I32 = Vector(KindI32, 4)
	V2I64 = Vector(KindI64, 2)
	V4F32 = Vector(KindF32, 4)
)

// MaxVectorBytes 向量类型的最大字节数
const MaxVectorBytes = 16

// Vector 构造向量类型
// 元素必须是 i8/i16/i32/i64/f32，总大小不超过 128 位。
func Vector(elem Kind, lanes int) Type {
	switch elem {
	case KindI8, KindI16, KindI32, KindI64, KindF32:
	default:
		panic(fmt.Sprintf("ir: invalid vector element kind %s", elem))
	}
	if lanes < 2 || lanes*elem.Size() > MaxVectorBytes {
		panic(fmt.Sprintf("ir: invalid vector shape <%d x %s>", lanes, elem))
	}
	return Type{Kind: KindVector, Elem: elem, Lanes: uint8(lanes)}
}

// Scalar 返回与种类对应的标量类型
func Scalar(k Kind) Type {
	return Type{Kind: k}
}

// IsVoid 是否是 void
func (t Type) IsVoid() bool { return t.Kind == KindVoid }

// IsVector 是否是向量类型
func (t Type) IsVector() bool { return t.Kind == KindVector }

// IsPtr 是否是指针类型
func (t Type) IsPtr() bool { return t.Kind == KindPtr }

// IsInt 是否是整数类型（标量或整数向量）
func (t Type) IsInt() bool {
	return t.ElemKind().IsInt()
}

// IsFloat 是否是浮点类型（标量或浮点向量）
func (t Type) IsFloat() bool {
	return t.ElemKind() == KindF32
}

// ElemKind 元素种类：标量返回自身种类
func (t Type) ElemKind() Kind {
	if t.Kind == KindVector {
		return t.Elem
	}
	return t.Kind
}

// ElemType 元素类型：标量返回自身
func (t Type) ElemType() Type {
	return Type{Kind: t.ElemKind()}
}

// NumLanes 通道数：标量为 1
func (t Type) NumLanes() int {
	if t.Kind == KindVector {
		return int(t.Lanes)
	}
	return 1
}

// Size 字节大小
func (t Type) Size() int {
	if t.Kind == KindVector {
		return int(t.Lanes) * t.Elem.Size()
	}
	return t.Kind.Size()
}

// WithLanes 保持元素种类，改变通道数（1 表示标量）
func (t Type) WithLanes(lanes int) Type {
	if lanes == 1 {
		return t.ElemType()
	}
	return Vector(t.ElemKind(), lanes)
}

// MaskType 比较结果的类型
// 标量比较返回 i1；向量比较返回同宽度的整数掩码向量。
func (t Type) MaskType() Type {
	if t.Kind != KindVector {
		return I1
	}
	if t.Elem == KindF32 {
		return Vector(KindI32, int(t.Lanes))
	}
	return t
}

// String 返回 LLVM 风格的类型名
func (t Type) String() string {
	if t.Kind == KindVector {
		return fmt.Sprintf("<%d x %s>", t.Lanes, t.Elem)
	}
	return t.Kind.String()
}

// IntKindOfSize 返回指定字节大小的整数种类
func IntKindOfSize(size int) Kind {
	switch size {
	case 1:
		return KindI8
	case 2:
		return KindI16
	case 4:
		return KindI32
	case 8:
		return KindI64
	}
	panic(fmt.Sprintf("ir: no integer kind of size %d", size))
}
