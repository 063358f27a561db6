package ir

import (
	"fmt"
)

// ============================================================================
// 基本块
// ============================================================================

// BlockKind 基本块的终止方式
type BlockKind uint8

const (
	BlockOpen        BlockKind = iota // 尚未终止
	BlockPlain                        // br Succs[0]
	BlockIf                           // br Control, Succs[0], Succs[1]
	BlockRet                          // ret Control（void 时为 nil）
	BlockUnreachable                  // unreachable
)

// String 返回终止方式名称
func (k BlockKind) String() string {
	switch k {
	case BlockOpen:
		return "open"
	case BlockPlain:
		return "br"
	case BlockIf:
		return "condbr"
	case BlockRet:
		return "ret"
	case BlockUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("blockkind(%d)", k)
}

// Block 基本块
type Block struct {
	ID      int
	Func    *Function
	Values  []*Value
	Kind    BlockKind
	Control *Value
	Succs   []*Block
	Preds   []*Block
}

// String 返回块名
func (b *Block) String() string {
	return fmt.Sprintf("b%d", b.ID)
}

// Terminated 是否已经有终止指令
func (b *Block) Terminated() bool {
	return b.Kind != BlockOpen
}

// PredIndex 返回 p 在前驱列表中的位置
func (b *Block) PredIndex(p *Block) int {
	for i, q := range b.Preds {
		if q == p {
			return i
		}
	}
	return -1
}

// addEdge 添加 b -> c 的边
func (b *Block) addEdge(c *Block) {
	b.Succs = append(b.Succs, c)
	c.Preds = append(c.Preds, b)
}

// removePred 删除 c 的第 i 个前驱以及对应的 phi 参数
func removePred(c *Block, i int) {
	c.Preds = append(c.Preds[:i], c.Preds[i+1:]...)
	for _, v := range c.Values {
		if v.Op != OpPhi {
			continue
		}
		v.Args = append(v.Args[:i], v.Args[i+1:]...)
	}
}

// RemovePred 删除第 i 个前驱及对应的 phi 参数（前驱的出边由调用者处理）
func (b *Block) RemovePred(i int) {
	removePred(b, i)
}

// ClearTerminator 删除终止指令和所有出边
func (b *Block) ClearTerminator() {
	for _, s := range b.Succs {
		if i := s.PredIndex(b); i >= 0 {
			removePred(s, i)
		}
	}
	b.Succs = nil
	b.Control = nil
	b.Kind = BlockOpen
}

// SetPlain 终止为无条件跳转
func (b *Block) SetPlain(target *Block) {
	b.ClearTerminator()
	b.Kind = BlockPlain
	b.addEdge(target)
}

// SetIf 终止为条件跳转
func (b *Block) SetIf(cond *Value, then, els *Block) {
	b.ClearTerminator()
	b.Kind = BlockIf
	b.Control = cond
	b.addEdge(then)
	b.addEdge(els)
}

// SetRet 终止为返回（v 为 nil 表示 ret void）
func (b *Block) SetRet(v *Value) {
	b.ClearTerminator()
	b.Kind = BlockRet
	b.Control = v
}

// SetUnreachable 终止为 unreachable
func (b *Block) SetUnreachable() {
	b.ClearTerminator()
	b.Kind = BlockUnreachable
}

// ReplaceSucc 把出边 old 换成 repl，保持 phi 参数一致
func (b *Block) ReplaceSucc(old, repl *Block) {
	for i, s := range b.Succs {
		if s != old {
			continue
		}
		j := old.PredIndex(b)
		var incoming []*Value
		if j >= 0 {
			for _, v := range old.Values {
				if v.Op == OpPhi {
					incoming = append(incoming, v.Args[j])
				}
			}
			removePred(old, j)
		}
		b.Succs[i] = repl
		repl.Preds = append(repl.Preds, b)
		k := 0
		for _, v := range repl.Values {
			if v.Op == OpPhi && k < len(incoming) {
				v.Args = append(v.Args, incoming[k])
				k++
			}
		}
		return
	}
}

// ============================================================================
// 函数
// ============================================================================

// Function 函数
type Function struct {
	Name   string
	Params []Type
	Ret    Type
	Blocks []*Block
	Module *Module

	params  []*Value
	nextVal int
	nextBlk int
}

// NewFunction 创建函数并生成入口块和参数值
func NewFunction(name string, ret Type, params []Type) *Function {
	f := &Function{
		Name:   name,
		Ret:    ret,
		Params: append([]Type(nil), params...),
	}
	entry := f.NewBlock()
	for i, t := range params {
		p := f.newValue(OpParam, t)
		p.AuxInt = int64(i)
		p.Block = entry
		entry.Values = append(entry.Values, p)
		f.params = append(f.params, p)
	}
	return f
}

// Entry 入口块
func (f *Function) Entry() *Block {
	return f.Blocks[0]
}

// Param 第 i 个参数值
func (f *Function) Param(i int) *Value {
	return f.params[i]
}

// NewBlock 创建新基本块并追加到函数末尾
func (f *Function) NewBlock() *Block {
	b := &Block{ID: f.nextBlk, Func: f}
	f.nextBlk++
	f.Blocks = append(f.Blocks, b)
	return b
}

// NumValues 已分配的值编号上界
func (f *Function) NumValues() int {
	return f.nextVal
}

// NumBlocks 已分配的块编号上界
func (f *Function) NumBlocks() int {
	return f.nextBlk
}

func (f *Function) newValue(op Op, t Type) *Value {
	v := &Value{ID: f.nextVal, Op: op, Type: t}
	f.nextVal++
	return v
}

// NewValue 在块末尾追加一个值
func (b *Block) NewValue(op Op, t Type, args ...*Value) *Value {
	v := b.Func.newValue(op, t)
	v.Args = args
	v.Block = b
	b.Values = append(b.Values, v)
	return v
}

// NewValueAt 在块的第 i 个位置插入一个值
func (b *Block) NewValueAt(i int, op Op, t Type, args ...*Value) *Value {
	v := b.Func.newValue(op, t)
	v.Args = args
	v.Block = b
	b.Values = append(b.Values, nil)
	copy(b.Values[i+1:], b.Values[i:])
	b.Values[i] = v
	return v
}

// NewConst 在块中创建标量常量
func (b *Block) NewConst(t Type, bits uint64) *Value {
	v := b.NewValue(OpConst, t)
	v.AuxInt = int64(Canon(t.ElemKind(), bits))
	return v
}

// NewVectorConst 在块中创建向量常量
func (b *Block) NewVectorConst(t Type, lanes []uint64) *Value {
	v := b.NewValue(OpConst, t)
	v.Lanes = make([]uint64, t.NumLanes())
	for i := range v.Lanes {
		v.Lanes[i] = Canon(t.Elem, lanes[i])
	}
	return v
}

// RemoveValue 从块中删除值（不检查使用者）
func (b *Block) RemoveValue(v *Value) {
	for i, w := range b.Values {
		if w == v {
			b.Values = append(b.Values[:i], b.Values[i+1:]...)
			v.Block = nil
			return
		}
	}
}

// FirstNonPhi 第一个非 phi 指令的位置
func (b *Block) FirstNonPhi() int {
	for i, v := range b.Values {
		if v.Op != OpPhi && v.Op != OpParam {
			return i
		}
	}
	return len(b.Values)
}

// RemoveBlock 从函数中删除块（调用者负责先断开所有边）
func (f *Function) RemoveBlock(b *Block) {
	for i, c := range f.Blocks {
		if c == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

// ReplaceUses 把所有对 old 的引用替换为 repl
func (f *Function) ReplaceUses(old, repl *Value) {
	for _, b := range f.Blocks {
		for _, v := range b.Values {
			for i, a := range v.Args {
				if a == old {
					v.Args[i] = repl
				}
			}
		}
		if b.Control == old {
			b.Control = repl
		}
	}
}

// UseCounts 统计每个值被引用的次数
func (f *Function) UseCounts() []int {
	uses := make([]int, f.nextVal)
	for _, b := range f.Blocks {
		for _, v := range b.Values {
			for _, a := range v.Args {
				uses[a.ID]++
			}
		}
		if b.Control != nil {
			uses[b.Control.ID]++
		}
	}
	return uses
}

// NumInstructions 函数中指令的总数（含终止指令）
func (f *Function) NumInstructions() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Values) + 1
	}
	return n
}

// ============================================================================
// 模块与全局数据
// ============================================================================

// Global 只读全局数据
type Global struct {
	Name  string
	Data  []byte
	Align int
}

// Module 编译单元
type Module struct {
	Name      string
	Functions []*Function
	Globals   []*Global
}

// NewModule 创建编译单元
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddFunction 在模块中声明函数
func (m *Module) AddFunction(name string, ret Type, params []Type) *Function {
	f := NewFunction(name, ret, params)
	f.Module = m
	m.Functions = append(m.Functions, f)
	return f
}

// AddGlobal 添加只读全局数据
func (m *Module) AddGlobal(name string, data []byte, align int) *Global {
	if align <= 0 {
		align = 1
	}
	g := &Global{Name: name, Data: append([]byte(nil), data...), Align: align}
	m.Globals = append(m.Globals, g)
	return g
}

// Canon 把位模式截断到种类宽度
func Canon(k Kind, bits uint64) uint64 {
	switch k {
	case KindI1:
		return bits & 1
	case KindI8:
		return bits & 0xFF
	case KindI16:
		return bits & 0xFFFF
	case KindI32, KindF32:
		return bits & 0xFFFFFFFF
	}
	return bits
}
