package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 稀疏条件常量传播
// ============================================================================

type latticeKind uint8

const (
	latUnknown latticeKind = iota // 尚未求值
	latConst
	latOver // 不是常量
)

type lattice struct {
	kind  latticeKind
	lanes []uint64
}

var overdefined = lattice{kind: latOver}

// meet 两个格值的交汇
func meet(a, b lattice) lattice {
	switch {
	case a.kind == latUnknown:
		return b
	case b.kind == latUnknown:
		return a
	case a.kind == latOver || b.kind == latOver:
		return overdefined
	}
	if len(a.lanes) != len(b.lanes) {
		return overdefined
	}
	for i := range a.lanes {
		if a.lanes[i] != b.lanes[i] {
			return overdefined
		}
	}
	return a
}

// SCCPPass 只沿可执行边传播常量：
// 条件恒定的分支只有一条出边可执行，另一侧的定义不参与 phi 的交汇。
type SCCPPass struct{}

// NewSCCPPass 创建 SCCP Pass
func NewSCCPPass() *SCCPPass {
	return &SCCPPass{}
}

// Name 返回 Pass 名称
func (p *SCCPPass) Name() string {
	return "sccp"
}

type sccpState struct {
	values     []lattice
	executable map[*ir.Block]bool
}

// feasible 在当前格值下 b 可能跳向的后继
func (s *sccpState) feasible(b *ir.Block) []*ir.Block {
	switch b.Kind {
	case ir.BlockPlain:
		return b.Succs
	case ir.BlockIf:
		c := s.values[b.Control.ID]
		switch c.kind {
		case latConst:
			if c.lanes[0] != 0 {
				return b.Succs[:1]
			}
			return b.Succs[1:]
		case latOver:
			return b.Succs
		}
	}
	return nil
}

func (s *sccpState) edgeExecutable(p, b *ir.Block) bool {
	if !s.executable[p] {
		return false
	}
	for _, t := range s.feasible(p) {
		if t == b {
			return true
		}
	}
	return false
}

func (s *sccpState) eval(v *ir.Value) lattice {
	switch v.Op {
	case ir.OpConst:
		return lattice{kind: latConst, lanes: constLanes(v)}
	case ir.OpPhi:
		out := lattice{}
		for i, a := range v.Args {
			if s.edgeExecutable(v.Block.Preds[i], v.Block) {
				out = meet(out, s.values[a.ID])
			}
		}
		return out
	case ir.OpParam, ir.OpLoad, ir.OpStore, ir.OpCall, ir.OpAlloca, ir.OpIntrinsic, ir.OpGlobalAddr:
		return overdefined
	}
	if v.Volatile || v.Type.IsVoid() {
		return overdefined
	}
	args := make([][]uint64, len(v.Args))
	for i, a := range v.Args {
		l := s.values[a.ID]
		switch l.kind {
		case latUnknown:
			return lattice{}
		case latOver:
			return overdefined
		}
		args[i] = l.lanes
	}
	lanes, ok := ir.FoldLanes(v, args)
	if !ok {
		return overdefined
	}
	return lattice{kind: latConst, lanes: lanes}
}

// Run 运行 Pass
func (p *SCCPPass) Run(fn *ir.Function) bool {
	s := &sccpState{
		values:     make([]lattice, fn.NumValues()),
		executable: map[*ir.Block]bool{fn.Entry(): true},
	}
	rpo := fn.ReversePostOrder()

	// 格值单调上升，迭代到不动点
	for changed := true; changed; {
		changed = false
		for _, b := range rpo {
			if !s.executable[b] {
				continue
			}
			for _, v := range b.Values {
				old := s.values[v.ID]
				if old.kind == latOver {
					continue
				}
				nv := meet(old, s.eval(v))
				if nv.kind != old.kind {
					s.values[v.ID] = nv
					changed = true
				}
			}
			for _, t := range s.feasible(b) {
				if !s.executable[t] {
					s.executable[t] = true
					changed = true
				}
			}
		}
	}

	return p.rewrite(fn, s)
}

func (p *SCCPPass) rewrite(fn *ir.Function, s *sccpState) bool {
	// 先记下恒定分支，替换值之后新常量没有格值
	folds := map[*ir.Block]int{}
	for _, b := range fn.Blocks {
		if b.Kind != ir.BlockIf || !s.executable[b] {
			continue
		}
		if c := s.values[b.Control.ID]; c.kind == latConst {
			if c.lanes[0] != 0 {
				folds[b] = 0
			} else {
				folds[b] = 1
			}
		}
	}

	changed := false
	for _, b := range fn.Blocks {
		if !s.executable[b] {
			continue
		}
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			l := s.values[v.ID]
			if l.kind != latConst || v.Op == ir.OpConst {
				continue
			}
			if !v.IsPure() && v.Op != ir.OpPhi {
				continue
			}
			at := indexOf(b, v)
			if v.Op == ir.OpPhi {
				at = b.FirstNonPhi()
			}
			c := newConstAt(b, at, v.Type, l.lanes)
			replaceValue(fn, v, c)
			changed = true
		}
	}
	for _, b := range fn.Blocks {
		if k, ok := folds[b]; ok {
			foldIf(b, k)
			changed = true
		}
	}
	if removeUnreachable(fn) {
		changed = true
	}
	return changed
}
