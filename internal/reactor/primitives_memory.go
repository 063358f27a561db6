package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 内存
// ============================================================================

// CreateAlloca 在入口块分配 count 个 t 的栈空间
// 栈变量全部放在入口块，优化时才能提升为 SSA 值。
func (c *Context) CreateAlloca(t ir.Type, count int) *ir.Value {
	f := c.function()
	if count < 1 {
		count = 1
	}
	entry := f.Entry()
	at := 0
	for at < len(entry.Values) {
		if op := entry.Values[at].Op; op != ir.OpParam && op != ir.OpAlloca {
			break
		}
		at++
	}
	v := entry.NewValueAt(at, ir.OpAlloca, ir.Ptr)
	v.AuxInt = int64(t.Size() * count)
	return v
}

// CreateLoad 从 ptr 读取 t；align 为 0 时按自然对齐
func (c *Context) CreateLoad(ptr *ir.Value, t ir.Type, align int, volatile bool) *ir.Value {
	v := c.emit(ir.OpLoad, t, ptr)
	v.AuxInt = int64(naturalAlign(t, align))
	v.Volatile = volatile
	return v
}

// CreateStore 把 val 写到 ptr
func (c *Context) CreateStore(val, ptr *ir.Value, align int, volatile bool) *ir.Value {
	v := c.emit(ir.OpStore, ir.Void, val, ptr)
	v.AuxInt = int64(naturalAlign(val.Type, align))
	v.Volatile = volatile
	return v
}

func naturalAlign(t ir.Type, align int) int {
	if align > 0 {
		return align
	}
	if t.IsVector() {
		return t.ElemKind().Size()
	}
	return t.Size()
}

// CreateGEP ptr + index * sizeof(elem)
// index 是任意宽度的标量整数，按有符号扩展。
func (c *Context) CreateGEP(ptr *ir.Value, elem ir.Type, index *ir.Value) *ir.Value {
	v := c.emit(ir.OpGEP, ir.Ptr, ptr, index)
	v.AuxInt = int64(elem.Size())
	return v
}

// ============================================================================
// 向量
// ============================================================================

// CreateExtractElement 取出第 i 个通道
func (c *Context) CreateExtractElement(vec *ir.Value, i int) *ir.Value {
	v := c.emit(ir.OpExtract, vec.Type.ElemType(), vec)
	v.AuxInt = int64(i)
	return v
}

// CreateInsertElement 替换第 i 个通道
func (c *Context) CreateInsertElement(vec, elem *ir.Value, i int) *ir.Value {
	v := c.emit(ir.OpInsert, vec.Type, vec, elem)
	v.AuxInt = int64(i)
	return v
}

// CreateShuffleVector 按 sel 从 a‖b 中选择通道，-1 表示零
// 结果的通道数等于 len(sel)。
func (c *Context) CreateShuffleVector(a, b *ir.Value, sel []int) *ir.Value {
	v := c.emit(ir.OpShuffle, a.Type.WithLanes(len(sel)), a, b)
	v.Mask = append([]int(nil), sel...)
	return v
}

// CreateSelect cond ? x : y；cond 为 i1 或与 x 同通道数的整数掩码
func (c *Context) CreateSelect(cond, x, y *ir.Value) *ir.Value {
	return c.emit(ir.OpSelect, x.Type, cond, x, y)
}

// ============================================================================
// 调用与内建函数
// ============================================================================

// CreateCall 调用 callee 指向的原生函数
// 被调函数遵守生成代码的调用约定，并且不能回调进 reactor。
func (c *Context) CreateCall(callee *ir.Value, ret ir.Type, args ...*ir.Value) *ir.Value {
	all := make([]*ir.Value, 0, len(args)+1)
	all = append(all, callee)
	all = append(all, args...)
	return c.emit(ir.OpCall, ret, all...)
}

// CreateIntrinsic 目标相关的内建操作；调用者负责检查 CPU 支持
func (c *Context) CreateIntrinsic(id ir.Intrinsic, t ir.Type, args ...*ir.Value) *ir.Value {
	v := c.emit(ir.OpIntrinsic, t, args...)
	v.AuxInt = int64(id)
	return v
}

// ============================================================================
// 终止指令
// ============================================================================

func (c *Context) open() *ir.Block {
	c.function()
	if c.cursor.Terminated() {
		panic(fmt.Sprintf("reactor: block %s already terminated", c.cursor))
	}
	return c.cursor
}

// CreateBr 无条件跳转
func (c *Context) CreateBr(target *ir.Block) {
	c.open().SetPlain(target)
}

// CreateCondBr 条件跳转
func (c *Context) CreateCondBr(cond *ir.Value, then, els *ir.Block) {
	c.open().SetIf(cond, then, els)
}

// CreateRet 返回 v
func (c *Context) CreateRet(v *ir.Value) {
	c.open().SetRet(v)
}

// CreateRetVoid 无返回值返回
func (c *Context) CreateRetVoid() {
	c.open().SetRet(nil)
}

// CreateUnreachable 标记不可达
func (c *Context) CreateUnreachable() {
	c.open().SetUnreachable()
}
