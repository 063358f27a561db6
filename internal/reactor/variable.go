// variable.go - 栈变量
//
// Variable 拥有入口块中的一个 alloca。只通过 Load/Store 访问的变量会被
// sroa 提升为 SSA 值；取过 Address 的变量留在栈上。

package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

// Variable 类型为 T 的栈变量
type Variable[T Typed[T]] struct {
	c    *Context
	addr *ir.Value
}

// NewVariable 分配未初始化的变量（读取到零值）
func NewVariable[T Typed[T]](c *Context) *Variable[T] {
	return &Variable[T]{c: c, addr: c.CreateAlloca(typeOf[T](), 1)}
}

// Local 分配变量并写入初值
func Local[T Typed[T]](c *Context, init T) *Variable[T] {
	v := NewVariable[T](c)
	v.Store(init)
	return v
}

// NewArray 在栈上分配 n 个 T，返回首元素的地址
func NewArray[T Typed[T]](c *Context, n int) Pointer[T] {
	if n < 1 {
		panic(fmt.Sprintf("reactor: array of %d elements", n))
	}
	return wrap[Pointer[T]](c, c.CreateAlloca(typeOf[T](), n))
}

func (v *Variable[T]) Load() T   { return v.LoadAligned(0, false) }
func (v *Variable[T]) Store(x T) { v.StoreAligned(x, 0, false) }

// LoadAligned 按指定对齐读取
func (v *Variable[T]) LoadAligned(align int, volatile bool) T {
	return wrap[T](v.c, v.c.CreateLoad(v.addr, typeOf[T](), align, volatile))
}

// StoreAligned 按指定对齐写入
func (v *Variable[T]) StoreAligned(x T, align int, volatile bool) {
	if session(x) != v.c {
		panic("reactor: storing a value from another context")
	}
	v.c.CreateStore(x.IR(), v.addr, align, volatile)
}

// Address 变量的地址；之后变量不会再被提升到寄存器
func (v *Variable[T]) Address() Pointer[T] {
	return wrap[Pointer[T]](v.c, v.addr)
}
