package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 指令合并：常量折叠 + 代数化简
// ============================================================================

// InstCombinePass 指令合并
type InstCombinePass struct{}

// NewInstCombinePass 创建指令合并 Pass
func NewInstCombinePass() *InstCombinePass {
	return &InstCombinePass{}
}

// Name 返回 Pass 名称
func (p *InstCombinePass) Name() string {
	return "instcombine"
}

// Run 运行 Pass
func (p *InstCombinePass) Run(fn *ir.Function) bool {
	changed := false
	for _, b := range fn.ReversePostOrder() {
		values := append([]*ir.Value(nil), b.Values...)
		for _, v := range values {
			if v.Block == nil || v.Volatile {
				continue
			}
			if p.combine(fn, v) {
				changed = true
			}
		}
	}
	return changed
}

func (p *InstCombinePass) combine(fn *ir.Function, v *ir.Value) bool {
	// 常量操作数放到右边
	if v.Op.IsCommutative() && v.Args[0].IsConst() && !v.Args[1].IsConst() {
		v.Args[0], v.Args[1] = v.Args[1], v.Args[0]
	}

	if v.IsPure() && v.Op != ir.OpConst && v.Op != ir.OpIntrinsic {
		if lanes, ok := ir.Fold(v); ok {
			c := newConstAt(v.Block, indexOf(v.Block, v), v.Type, lanes)
			replaceValue(fn, v, c)
			return true
		}
	}

	if w := p.simplify(v); w != nil {
		replaceValue(fn, v, w)
		return true
	}
	if lanes, ok := p.simplifyToConst(v); ok {
		c := newConstAt(v.Block, indexOf(v.Block, v), v.Type, lanes)
		replaceValue(fn, v, c)
		return true
	}
	return false
}

// simplify 返回与 v 等价的已有值
func (p *InstCombinePass) simplify(v *ir.Value) *ir.Value {
	if len(v.Args) == 0 {
		return nil
	}
	x := v.Args[0]
	var y *ir.Value
	if len(v.Args) > 1 {
		y = v.Args[1]
	}

	switch v.Op {
	case ir.OpAdd, ir.OpSub, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr:
		if isSplat(y, 0) {
			return x
		}
	case ir.OpMul, ir.OpSDiv, ir.OpUDiv:
		if isSplat(y, 1) {
			return x
		}
	case ir.OpAnd:
		if isSplat(y, ^uint64(0)) || x == y {
			return x
		}
		if isSplat(y, 0) {
			return y
		}
	case ir.OpCopy:
		return x
	case ir.OpSelect:
		if v.Args[1] == v.Args[2] {
			return v.Args[1]
		}
		if !x.Type.IsVector() && x.IsConst() {
			if x.AuxInt != 0 {
				return v.Args[1]
			}
			return v.Args[2]
		}
	case ir.OpBitcast:
		if x.Type == v.Type {
			return x
		}
		if x.Op == ir.OpBitcast && x.Args[0].Type == v.Type {
			return x.Args[0]
		}
	case ir.OpTrunc:
		if (x.Op == ir.OpZExt || x.Op == ir.OpSExt) && x.Args[0].Type == v.Type {
			return x.Args[0]
		}
	case ir.OpIntToPtr:
		if x.Op == ir.OpPtrToInt {
			return x.Args[0]
		}
	}

	switch v.Op {
	case ir.OpOr:
		if x == y {
			return x
		}
	case ir.OpMul:
		if isSplat(y, 0) {
			return y
		}
	}
	return nil
}

// simplifyToConst 结果与操作数无关的情况
func (p *InstCombinePass) simplifyToConst(v *ir.Value) ([]uint64, bool) {
	if len(v.Args) != 2 || v.Args[0] != v.Args[1] || v.Volatile {
		return nil, false
	}
	switch v.Op {
	case ir.OpSub, ir.OpXor:
		return splat(v.Type, 0), true
	case ir.OpICmp:
		switch v.Pred() {
		case ir.PredEQ, ir.PredSLE, ir.PredSGE, ir.PredULE, ir.PredUGE:
			return splat(v.Type, ^uint64(0)), true
		case ir.PredNE, ir.PredSLT, ir.PredSGT, ir.PredULT, ir.PredUGT:
			return splat(v.Type, 0), true
		}
	}
	return nil, false
}
