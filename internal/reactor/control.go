// control.go - 结构化控制流
//
// If/While/Do 都翻译成基本块和跳转。打开的结构记录在会话的作用域栈上，
// 只能按后进先出的顺序关闭；Acquire 时栈必须为空。
//
//	if:    head -> then | end           then -> end
//	else:  head -> then | else          then -> merge, else -> merge
//	loop:  pre -> header -> body | end  body -> header
//	do:    pre -> body -> end | body

package reactor

import (
	"errors"
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

// ErrScopeMismatch 控制流结构没有按嵌套顺序关闭
var ErrScopeMismatch = errors.New("reactor: control-flow scope mismatch")

type scopeKind uint8

const (
	scopeIf scopeKind = iota
	scopeElse
	scopeLoop
	scopeDo
)

func (k scopeKind) String() string {
	switch k {
	case scopeIf:
		return "if"
	case scopeElse:
		return "else"
	case scopeLoop:
		return "loop"
	case scopeDo:
		return "do"
	}
	return fmt.Sprintf("scope(%d)", k)
}

type scope struct {
	kind scopeKind

	head *ir.Block // if: 条件所在块；loop: 循环头；do: 循环体入口
	body *ir.Block
	end  *ir.Block

	cond bool // loop 已经调用过 Cond
}

func (c *Context) push(s *scope) {
	c.scopes = append(c.scopes, s)
}

// pop 关闭 s，s 必须是最内层
func (c *Context) pop(s *scope, want ...scopeKind) {
	c.checkTop(s, want...)
	c.scopes = c.scopes[:len(c.scopes)-1]
}

func (c *Context) checkTop(s *scope, want ...scopeKind) {
	c.live()
	n := len(c.scopes)
	if n == 0 || c.scopes[n-1] != s {
		inner := "none"
		if n > 0 {
			inner = c.scopes[n-1].kind.String()
		}
		panic(fmt.Errorf("%w: closing %s while innermost scope is %s", ErrScopeMismatch, s.kind, inner))
	}
	for _, k := range want {
		if s.kind == k {
			return
		}
	}
	if len(want) > 0 {
		panic(fmt.Errorf("%w: %s scope cannot do this", ErrScopeMismatch, s.kind))
	}
}

// branchTo 插入块还开着时跳转到 target
func (c *Context) branchTo(target *ir.Block) {
	if !c.cursor.Terminated() {
		c.cursor.SetPlain(target)
	}
}

// ============================================================================
// if / else
// ============================================================================

// IfScope 条件结构
type IfScope struct {
	c *Context
	s *scope
}

// BeginIf 条件为真时执行到 Else 或 End 之间的代码
func (c *Context) BeginIf(cond Bool) *IfScope {
	session(cond)
	s := &scope{kind: scopeIf, head: c.cursor, body: c.CreateBasicBlock(), end: c.CreateBasicBlock()}
	c.CreateCondBr(cond.IR(), s.body, s.end)
	c.SetInsertBlock(s.body)
	c.push(s)
	return &IfScope{c: c, s: s}
}

// Else 开始条件为假的分支
func (i *IfScope) Else() {
	c := i.c
	c.checkTop(i.s, scopeIf)
	merge := c.CreateBasicBlock()
	c.branchTo(merge)
	c.SetInsertBlock(i.s.end)
	i.s.end = merge
	i.s.kind = scopeElse
}

// End 结束条件结构，插入位置移到汇合块
func (i *IfScope) End() {
	c := i.c
	c.pop(i.s, scopeIf, scopeElse)
	c.branchTo(i.s.end)
	c.SetInsertBlock(i.s.end)
}

// ============================================================================
// 循环
// ============================================================================

// LoopScope 先判断条件的循环
type LoopScope struct {
	c *Context
	s *scope
}

// BeginLoop 开始循环头；接下来生成条件，然后调用 Cond
func (c *Context) BeginLoop() *LoopScope {
	c.function()
	s := &scope{kind: scopeLoop, head: c.CreateBasicBlock()}
	c.CreateBr(s.head)
	c.SetInsertBlock(s.head)
	c.push(s)
	return &LoopScope{c: c, s: s}
}

// Cond 条件为真时执行循环体
func (l *LoopScope) Cond(cond Bool) {
	c := l.c
	c.checkTop(l.s, scopeLoop)
	if l.s.cond {
		panic(fmt.Errorf("%w: loop condition set twice", ErrScopeMismatch))
	}
	session(cond)
	l.s.cond = true
	l.s.body, l.s.end = c.CreateBasicBlock(), c.CreateBasicBlock()
	c.CreateCondBr(cond.IR(), l.s.body, l.s.end)
	c.SetInsertBlock(l.s.body)
}

// End 回到循环头，插入位置移到循环出口
func (l *LoopScope) End() {
	c := l.c
	if !l.s.cond {
		panic(fmt.Errorf("%w: loop closed without a condition", ErrScopeMismatch))
	}
	c.pop(l.s, scopeLoop)
	c.branchTo(l.s.head)
	c.SetInsertBlock(l.s.end)
}

// DoScope 先执行循环体的循环
type DoScope struct {
	c *Context
	s *scope
}

// BeginDo 开始循环体
func (c *Context) BeginDo() *DoScope {
	c.function()
	s := &scope{kind: scopeDo, head: c.CreateBasicBlock()}
	c.CreateBr(s.head)
	c.SetInsertBlock(s.head)
	c.push(s)
	return &DoScope{c: c, s: s}
}

// Until 条件为真时退出，否则回到循环体开头
func (d *DoScope) Until(cond Bool) {
	c := d.c
	c.pop(d.s, scopeDo)
	session(cond)
	d.s.end = c.CreateBasicBlock()
	c.CreateCondBr(cond.IR(), d.s.end, d.s.head)
	c.SetInsertBlock(d.s.end)
}

// ============================================================================
// 闭包形式
// ============================================================================

// ElseClause If 之后可选的 else 分支
type ElseClause struct {
	f    *Function
	head *ir.Block
	els  *ir.Block
}

// If cond 为真时执行 then
func (f *Function) If(cond Bool, then func()) *ElseClause {
	s := f.BeginIf(cond)
	head, els := s.s.head, s.s.end
	then()
	s.End()
	return &ElseClause{f: f, head: head, els: els}
}

// Else 紧跟在 If 之后，cond 为假时执行 fn
// then 分支的出口原本跳到 els，这里改为跳到新的汇合块。
func (e *ElseClause) Else(fn func()) {
	c := e.f.Context
	if c.cursor != e.els || len(c.cursor.Values) > 0 || c.cursor.Terminated() {
		panic(fmt.Errorf("%w: Else must directly follow its If", ErrScopeMismatch))
	}
	merge := c.CreateBasicBlock()
	var exits []*ir.Block
	for _, p := range e.els.Preds {
		if p != e.head {
			exits = append(exits, p)
		}
	}
	for _, p := range exits {
		p.ReplaceSucc(e.els, merge)
	}
	fn()
	c.branchTo(merge)
	c.SetInsertBlock(merge)
}

// While cond 为真时重复执行 body；cond 在循环头生成
func (f *Function) While(cond func() Bool, body func()) {
	l := f.BeginLoop()
	l.Cond(cond())
	body()
	l.End()
}

// For 同 While，每次循环体之后执行 inc
func (f *Function) For(cond func() Bool, inc func(), body func()) {
	l := f.BeginLoop()
	l.Cond(cond())
	body()
	inc()
	l.End()
}

// DoUntil 执行 body 直到 cond 为真
func (f *Function) DoUntil(body func(), cond func() Bool) {
	d := f.BeginDo()
	body()
	d.Until(cond())
}
