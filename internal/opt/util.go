package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// replaceValue 用 w 替换 v 的所有使用并删除 v
func replaceValue(f *ir.Function, v, w *ir.Value) {
	f.ReplaceUses(v, w)
	if v.Block != nil {
		v.Block.RemoveValue(v)
	}
}

// indexOf v 在块中的位置
func indexOf(b *ir.Block, v *ir.Value) int {
	for i, w := range b.Values {
		if w == v {
			return i
		}
	}
	return -1
}

// newConstAt 在块的第 i 个位置创建常量
func newConstAt(b *ir.Block, i int, t ir.Type, lanes []uint64) *ir.Value {
	c := b.NewValueAt(i, ir.OpConst, t)
	if t.IsVector() {
		c.Lanes = make([]uint64, t.NumLanes())
		for j := range c.Lanes {
			c.Lanes[j] = ir.Canon(t.Elem, lanes[j])
		}
		return c
	}
	c.AuxInt = int64(ir.Canon(t.Kind, lanes[0]))
	return c
}

// splat 所有通道都是 bits
func splat(t ir.Type, bits uint64) []uint64 {
	lanes := make([]uint64, t.NumLanes())
	for i := range lanes {
		lanes[i] = bits
	}
	return lanes
}

// constLanes 常量的通道位模式，不是常量时返回 nil
func constLanes(v *ir.Value) []uint64 {
	if v.Op != ir.OpConst {
		return nil
	}
	if v.Type.IsVector() {
		return v.Lanes
	}
	return []uint64{uint64(v.AuxInt)}
}

// isSplat v 是否是每个通道都等于 bits 的常量
func isSplat(v *ir.Value, bits uint64) bool {
	lanes := constLanes(v)
	if lanes == nil {
		return false
	}
	want := ir.Canon(v.Type.ElemKind(), bits)
	for _, l := range lanes {
		if l != want {
			return false
		}
	}
	return true
}

// foldIf 把条件跳转改为只走第 k 条出边
func foldIf(b *ir.Block, k int) {
	keep, drop := b.Succs[k], b.Succs[1-k]
	var pos []int
	for i, p := range drop.Preds {
		if p == b {
			pos = append(pos, i)
		}
	}
	switch {
	case drop != keep:
		drop.RemovePred(pos[0])
	case k == 0:
		// 两条边指向同一块时，第一个前驱项对应第 0 条边
		drop.RemovePred(pos[1])
	default:
		drop.RemovePred(pos[0])
	}
	b.Kind = ir.BlockPlain
	b.Control = nil
	b.Succs = []*ir.Block{keep}
}

// removeUnreachable 删除从入口不可达的块
func removeUnreachable(f *ir.Function) bool {
	reach := map[*ir.Block]bool{}
	for _, b := range f.ReversePostOrder() {
		reach[b] = true
	}
	var dead []*ir.Block
	for _, b := range f.Blocks {
		if !reach[b] {
			dead = append(dead, b)
		}
	}
	for _, b := range dead {
		b.ClearTerminator()
	}
	for _, b := range dead {
		for _, v := range b.Values {
			v.Block = nil
		}
		f.RemoveBlock(b)
	}
	return len(dead) > 0
}

// isTrapping 求值可能陷入的运算（不能推测执行）
func isTrapping(v *ir.Value) bool {
	switch v.Op {
	case ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem:
		return true
	}
	return false
}
