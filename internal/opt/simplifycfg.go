package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 控制流化简
// ============================================================================

// SimplifyCFGPass 控制流化简：
// 折叠常量条件跳转，删除不可达块，合并单前驱/单后继的块，化简平凡 phi。
type SimplifyCFGPass struct{}

// NewSimplifyCFGPass 创建控制流化简 Pass
func NewSimplifyCFGPass() *SimplifyCFGPass {
	return &SimplifyCFGPass{}
}

// Name 返回 Pass 名称
func (p *SimplifyCFGPass) Name() string {
	return "simplifycfg"
}

// Run 运行 Pass
func (p *SimplifyCFGPass) Run(fn *ir.Function) bool {
	changed := false
	for {
		step := p.foldBranches(fn)
		step = removeUnreachable(fn) || step
		step = p.simplifyPhis(fn) || step
		step = p.mergeBlocks(fn) || step
		if !step {
			return changed
		}
		changed = true
	}
}

func (p *SimplifyCFGPass) foldBranches(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		if b.Kind != ir.BlockIf {
			continue
		}
		switch c := b.Control; {
		case c.IsConst():
			if c.AuxInt != 0 {
				foldIf(b, 0)
			} else {
				foldIf(b, 1)
			}
			changed = true
		case b.Succs[0] == b.Succs[1] && samePhiArgs(b.Succs[0], b):
			foldIf(b, 0)
			changed = true
		}
	}
	return changed
}

// samePhiArgs 两条指向 s 的边在 s 的 phi 中传入相同的值
func samePhiArgs(s, b *ir.Block) bool {
	var pos []int
	for i, p := range s.Preds {
		if p == b {
			pos = append(pos, i)
		}
	}
	if len(pos) != 2 {
		return false
	}
	for _, v := range s.Values {
		if v.Op == ir.OpPhi && v.Args[pos[0]] != v.Args[pos[1]] {
			return false
		}
	}
	return true
}

// simplifyPhis 删除所有参数相同（或只引用自身）的 phi
func (p *SimplifyCFGPass) simplifyPhis(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.Blocks {
		values := append([]*ir.Value(nil), b.Values...)
		for _, v := range values {
			if v.Op != ir.OpPhi || v.Block == nil {
				continue
			}
			var same *ir.Value
			trivial := true
			for _, a := range v.Args {
				if a == v || a == same {
					continue
				}
				if same != nil {
					trivial = false
					break
				}
				same = a
			}
			if trivial && same != nil {
				replaceValue(fn, v, same)
				changed = true
			}
		}
	}
	return changed
}

// mergeBlocks 把只有一个前驱的块并入前驱（前驱只有这一条出边）
func (p *SimplifyCFGPass) mergeBlocks(fn *ir.Function) bool {
	changed := false
	for _, c := range append([]*ir.Block(nil), fn.Blocks...) {
		if c == fn.Entry() || len(c.Preds) != 1 {
			continue
		}
		b := c.Preds[0]
		if b == c || b.Kind != ir.BlockPlain {
			continue
		}
		// 唯一前驱意味着 phi 只有一个参数
		for _, v := range append([]*ir.Value(nil), c.Values...) {
			if v.Op == ir.OpPhi {
				replaceValue(fn, v, v.Args[0])
			}
		}
		for _, v := range c.Values {
			v.Block = b
		}
		b.Values = append(b.Values, c.Values...)
		c.Values = nil

		b.Kind, b.Control, b.Succs = c.Kind, c.Control, c.Succs
		for _, s := range b.Succs {
			for i, q := range s.Preds {
				if q == c {
					s.Preds[i] = b
				}
			}
		}
		c.Succs, c.Preds, c.Control, c.Kind = nil, nil, nil, ir.BlockOpen
		fn.RemoveBlock(c)
		changed = true
	}
	return changed
}
