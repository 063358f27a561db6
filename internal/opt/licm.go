package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 循环不变量外提
// ============================================================================

// LICMPass 把循环中只依赖循环外值的纯运算移到前置块
// 只处理有唯一前置块（循环外唯一前驱且只跳向循环头）的循环。
type LICMPass struct{}

// NewLICMPass 创建 LICM Pass
func NewLICMPass() *LICMPass {
	return &LICMPass{}
}

// Name 返回 Pass 名称
func (p *LICMPass) Name() string {
	return "licm"
}

// Run 运行 Pass
func (p *LICMPass) Run(fn *ir.Function) bool {
	dom := fn.Dominators()
	loops := fn.Loops(dom)
	rpo := fn.ReversePostOrder()
	changed := false
	// 内层循环在后，先处理内层，外提的值还能继续被外层外提
	for i := len(loops) - 1; i >= 0; i-- {
		if p.hoist(loops[i], rpo) {
			changed = true
		}
	}
	return changed
}

func preheader(l *ir.Loop) *ir.Block {
	var pre *ir.Block
	for _, q := range l.Header.Preds {
		if l.Contains(q) {
			continue
		}
		if pre != nil && pre != q {
			return nil
		}
		pre = q
	}
	if pre == nil || len(pre.Succs) != 1 {
		return nil
	}
	return pre
}

func (p *LICMPass) hoist(l *ir.Loop, rpo []*ir.Block) bool {
	pre := preheader(l)
	if pre == nil {
		return false
	}
	invariant := func(v *ir.Value) bool {
		if !v.IsPure() || isTrapping(v) {
			return false
		}
		for _, a := range v.Args {
			if a.Block != nil && l.Contains(a.Block) {
				return false
			}
		}
		return true
	}

	changed := false
	for moved := true; moved; {
		moved = false
		for _, b := range rpo {
			if !l.Contains(b) {
				continue
			}
			for _, v := range append([]*ir.Value(nil), b.Values...) {
				if !invariant(v) {
					continue
				}
				b.RemoveValue(v)
				v.Block = pre
				pre.Values = append(pre.Values, v)
				moved, changed = true, true
			}
		}
	}
	return changed
}
