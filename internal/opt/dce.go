package opt

import (
	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 死代码消除
// ============================================================================

// DCEPass 标记-清除式死代码消除
// 根是有副作用的值、易失访问和终止指令的操作数，其余不可达的值全部删除。
type DCEPass struct{}

// NewDCEPass 创建 DCE Pass
func NewDCEPass() *DCEPass {
	return &DCEPass{}
}

// Name 返回 Pass 名称
func (p *DCEPass) Name() string {
	return "dce"
}

func isRoot(v *ir.Value) bool {
	return v.Op.HasSideEffects() || v.Volatile || v.Op == ir.OpParam
}

// Run 运行 Pass
func (p *DCEPass) Run(fn *ir.Function) bool {
	live := make([]bool, fn.NumValues())
	var work []*ir.Value
	mark := func(v *ir.Value) {
		if v != nil && !live[v.ID] {
			live[v.ID] = true
			work = append(work, v)
		}
	}
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if isRoot(v) {
				mark(v)
			}
		}
		mark(b.Control)
	}
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		for _, a := range v.Args {
			mark(a)
		}
	}

	changed := false
	for _, b := range fn.Blocks {
		kept := b.Values[:0]
		for _, v := range b.Values {
			if live[v.ID] {
				kept = append(kept, v)
				continue
			}
			v.Block = nil
			changed = true
		}
		for i := len(kept); i < len(b.Values); i++ {
			b.Values[i] = nil
		}
		b.Values = kept
	}
	return changed
}
