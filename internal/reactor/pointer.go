package reactor

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// Pointer 指向 T 的指针
// 指针本身不携带元素类型，T 只决定 Load/Store 的类型和 Index 的步长。
type Pointer[T Typed[T]] struct{ val }

func (Pointer[T]) Type() ir.Type         { return ir.Ptr }
func (Pointer[T]) class() class          { return classPointer }
func (Pointer[T]) wrap(x val) Pointer[T] { return Pointer[T]{x} }

// PointerTo 指向进程中已有内存的常量指针
func PointerTo[T Typed[T]](c *Context, addr uintptr) Pointer[T] {
	return wrap[Pointer[T]](c, c.CreateConstPointer(addr))
}

// Load 按自然对齐读取
func (p Pointer[T]) Load() T {
	return p.LoadAligned(0, false)
}

// LoadAligned 按 align 对齐读取；volatile 的访问不会被优化掉
func (p Pointer[T]) LoadAligned(align int, volatile bool) T {
	c := session(p)
	return wrap[T](c, c.CreateLoad(p.IR(), typeOf[T](), align, volatile))
}

// Store 按自然对齐写入
func (p Pointer[T]) Store(v T) {
	p.StoreAligned(v, 0, false)
}

// StoreAligned 按 align 对齐写入
func (p Pointer[T]) StoreAligned(v T, align int, volatile bool) {
	c := session(p, v)
	c.CreateStore(v.IR(), p.IR(), align, volatile)
}

// Index 第 i 个元素的地址（p + i*sizeof(T)）
func (p Pointer[T]) Index(i Int) Pointer[T] {
	c := session(p, i)
	return wrap[Pointer[T]](c, c.CreateGEP(p.IR(), typeOf[T](), i.IR()))
}

// Offset 向后偏移 n 个字节
func (p Pointer[T]) Offset(n int) Pointer[T] {
	c := session(p)
	off := c.CreateConstInt(ir.I64, uint64(int64(n)))
	return wrap[Pointer[T]](c, c.CreateGEP(p.IR(), ir.I8, off))
}

// At 第 i 个元素
func (p Pointer[T]) At(i Int) T {
	return p.Index(i).Load()
}

// IsNull 是否是空指针
func (p Pointer[T]) IsNull() Bool {
	c := session(p)
	addr := c.CreatePtrToInt(p.IR(), ir.I64)
	return wrap[Bool](c, c.CreateICmpEQ(addr, c.CreateNull(ir.I64)))
}

// PointerCast 把指向 T 的指针重新解释为指向 U
func PointerCast[U Typed[U], T Typed[T]](p Pointer[T]) Pointer[U] {
	return Pointer[U]{p.val}
}
