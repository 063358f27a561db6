package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 栈变量提升（mem2reg）
// ============================================================================

// SROAPass 把只被整体读写的栈变量提升为 SSA 值
// 可提升的 alloca：所有使用都是以它为地址的非易失 load/store，且读写类型一致。
// 在写入块的迭代支配边界放置 phi，再沿支配树重命名；未写入就读取得到零值。
type SROAPass struct{}

// NewSROAPass 创建 SROA Pass
func NewSROAPass() *SROAPass {
	return &SROAPass{}
}

// Name 返回 Pass 名称
func (p *SROAPass) Name() string {
	return "sroa"
}

// Run 运行 Pass
func (p *SROAPass) Run(fn *ir.Function) bool {
	// 不可达块里的访问不会被重命名访问到，先删掉
	changed := removeUnreachable(fn)

	var allocas []*ir.Value
	for _, v := range fn.Entry().Values {
		if v.Op == ir.OpAlloca {
			allocas = append(allocas, v)
		}
	}
	if len(allocas) == 0 {
		return changed
	}

	dom := fn.Dominators()
	df := dom.Frontiers(fn)
	for _, a := range allocas {
		t, ok := promotable(fn, a)
		if !ok {
			continue
		}
		p.promote(fn, dom, df, a, t)
		changed = true
	}
	return changed
}

// promotable 检查 a 能否提升，返回被读写的类型
func promotable(fn *ir.Function, a *ir.Value) (ir.Type, bool) {
	var t ir.Type
	seen := false
	use := func(ty ir.Type) bool {
		if !seen {
			t, seen = ty, true
			return true
		}
		return ty == t
	}
	for _, b := range fn.Blocks {
		if b.Control == a {
			return t, false
		}
		for _, v := range b.Values {
			for i, arg := range v.Args {
				if arg != a {
					continue
				}
				switch {
				case v.Op == ir.OpLoad && !v.Volatile:
					if !use(v.Type) {
						return t, false
					}
				case v.Op == ir.OpStore && !v.Volatile && i == 1 && v.Args[0] != a:
					if !use(v.Args[0].Type) {
						return t, false
					}
				default:
					return t, false
				}
			}
		}
	}
	if !seen || int64(t.Size()) > a.AuxInt {
		return t, false
	}
	return t, true
}

func (p *SROAPass) promote(fn *ir.Function, dom *ir.DomTree, df [][]*ir.Block, a *ir.Value, t ir.Type) {
	entry := fn.Entry()
	zero := newConstAt(entry, entry.FirstNonPhi(), t, splat(t, 0))

	// 写入块的迭代支配边界
	var work []*ir.Block
	defs := map[*ir.Block]bool{}
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpStore && v.Args[1] == a && !defs[b] {
				defs[b] = true
				work = append(work, b)
			}
		}
	}
	phis := map[*ir.Block]*ir.Value{}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, d := range df[b.ID] {
			if phis[d] != nil || d == entry {
				continue
			}
			phi := d.NewValueAt(0, ir.OpPhi, t)
			phi.Args = make([]*ir.Value, len(d.Preds))
			phis[d] = phi
			if !defs[d] {
				defs[d] = true
				work = append(work, d)
			}
		}
	}

	var dead []*ir.Value
	var rename func(b *ir.Block, cur *ir.Value)
	rename = func(b *ir.Block, cur *ir.Value) {
		if phi := phis[b]; phi != nil {
			cur = phi
		}
		for _, v := range b.Values {
			switch {
			case v.Op == ir.OpLoad && v.Args[0] == a:
				fn.ReplaceUses(v, cur)
				dead = append(dead, v)
			case v.Op == ir.OpStore && v.Args[1] == a:
				cur = v.Args[0]
				dead = append(dead, v)
			}
		}
		for _, s := range b.Succs {
			phi := phis[s]
			if phi == nil {
				continue
			}
			for i, q := range s.Preds {
				if q == b {
					phi.Args[i] = cur
				}
			}
		}
		for _, c := range dom.Children(b) {
			rename(c, cur)
		}
	}
	rename(entry, zero)

	for _, phi := range phis {
		for i, arg := range phi.Args {
			if arg == nil {
				phi.Args[i] = zero
			}
		}
	}
	for _, v := range dead {
		v.Block.RemoveValue(v)
	}
	entry.RemoveValue(a)
}
