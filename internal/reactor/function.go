// function.go - 函数构建器
//
// 用法：
//
//	f := reactor.NewFunction(reactor.Int{}, reactor.Int{}, reactor.Int{})
//	a, b := reactor.Arg[reactor.Int](f, 0), reactor.Arg[reactor.Int](f, 1)
//	f.Return(reactor.Add(a, b))
//	r, err := f.Finalize("add")
//
// 签名用各类型的零值表示。NewFunction 打开一个会话，Finalize 结束它；
// 两者之间当前 goroutine 独占后端。

package reactor

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/routine"
)

// Function 正在构建的函数，嵌入它的会话
type Function struct {
	*Context
}

// NewFunction 打开新会话并创建函数 ret(params...)
func NewFunction(ret Value, params ...Value) *Function {
	return NewFunctionIn(NewContext(), ret, params...)
}

// NewFunctionIn 在已有会话中创建函数
func NewFunctionIn(c *Context, ret Value, params ...Value) *Function {
	ps := make([]ir.Type, len(params))
	for i, p := range params {
		ps[i] = p.Type()
	}
	c.CreateFunction("routine", ret.Type(), ps)
	return &Function{Context: c}
}

// Arg 第 i 个参数，T 必须与签名一致
func Arg[T Typed[T]](f *Function, i int) T {
	return wrap[T](f.Context, f.Context.Arg(i))
}

// Return 返回 v，之后的代码进入一个不可达的新块
func (f *Function) Return(v Value) {
	fn := f.function()
	if v.Type() != fn.Ret {
		panic(fmt.Sprintf("reactor: returning %s from a function returning %s", v.Type(), fn.Ret))
	}
	session(v)
	f.CreateRet(v.IR())
	f.SetInsertBlock(f.CreateBasicBlock())
}

// ReturnVoid 无返回值返回
func (f *Function) ReturnVoid() {
	if fn := f.function(); !fn.Ret.IsVoid() {
		panic(fmt.Sprintf("reactor: void return from a function returning %s", fn.Ret))
	}
	f.CreateRetVoid()
	f.SetInsertBlock(f.CreateBasicBlock())
}

// Finalize 生成例程并关闭会话
// 是否优化由配置的 optimize 决定。
func (f *Function) Finalize(name string) (*routine.Routine, error) {
	defer f.Close()
	return f.Acquire(name, f.Config().Optimize)
}
