package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 重结合
// ============================================================================

// ReassociatePass 合并可结合运算链上的常量：
//
//	(x op c1) op c2  =>  x op (c1 op c2)
//	x - c            =>  x + (-c)
//
// 只处理整数运算（浮点不满足结合律）。
type ReassociatePass struct{}

// NewReassociatePass 创建重结合 Pass
func NewReassociatePass() *ReassociatePass {
	return &ReassociatePass{}
}

// Name 返回 Pass 名称
func (p *ReassociatePass) Name() string {
	return "reassociate"
}

func associative(op ir.Op) bool {
	switch op {
	case ir.OpAdd, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor:
		return true
	}
	return false
}

// Run 运行 Pass
func (p *ReassociatePass) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.ReversePostOrder() {
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			if v.Block == nil || !v.Type.IsInt() || v.Volatile {
				continue
			}
			if p.rewrite(v) {
				changed = true
			}
		}
	}
	return changed
}

func (p *ReassociatePass) rewrite(v *ir.Value) bool {
	if len(v.Args) != 2 {
		return false
	}
	// x - c => x + (-c)
	if v.Op == ir.OpSub && v.Args[1].IsConst() {
		c := v.Args[1]
		lanes := make([]uint64, v.Type.NumLanes())
		for i := range lanes {
			lanes[i] = -c.ConstLane(i)
		}
		v.Op = ir.OpAdd
		v.Args[1] = newConstAt(v.Block, indexOf(v.Block, v), v.Type, lanes)
		return true
	}

	if !associative(v.Op) {
		return false
	}
	if v.Args[0].IsConst() && !v.Args[1].IsConst() {
		v.Args[0], v.Args[1] = v.Args[1], v.Args[0]
	}
	inner, c2 := v.Args[0], v.Args[1]
	if inner.Op != v.Op || !c2.IsConst() || inner.Volatile {
		return false
	}
	x, c1 := inner.Args[0], inner.Args[1]
	if !c1.IsConst() {
		if !x.IsConst() {
			return false
		}
		x, c1 = c1, x
	}

	k := v.Type.ElemKind()
	lanes := make([]uint64, v.Type.NumLanes())
	for i := range lanes {
		r, ok := ir.EvalBinary(v.Op, k, c1.ConstLane(i), c2.ConstLane(i))
		if !ok {
			return false
		}
		lanes[i] = r
	}
	v.Args[0] = x
	v.Args[1] = newConstAt(v.Block, indexOf(v.Block, v), v.Type, lanes)
	return true
}
