package opt

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 公共子表达式消除
// ============================================================================

// CSEPass 沿支配树做值编号：支配者中已有的等价纯值替换后来的值
type CSEPass struct{}

// NewCSEPass 创建 CSE Pass
func NewCSEPass() *CSEPass {
	return &CSEPass{}
}

// Name 返回 Pass 名称
func (p *CSEPass) Name() string {
	return "cse"
}

// valueKey 纯值的结构键
func valueKey(v *ir.Value) string {
	args := make([]int, len(v.Args))
	for i, a := range v.Args {
		args[i] = a.ID
	}
	if v.Op.IsCommutative() && len(args) == 2 && args[0] > args[1] {
		args[0], args[1] = args[1], args[0]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s|%d|%v", v.Op, v.Type, v.AuxInt, args)
	if v.Lanes != nil {
		fmt.Fprintf(&sb, "|l%v", v.Lanes)
	}
	if v.Mask != nil {
		fmt.Fprintf(&sb, "|m%v", v.Mask)
	}
	if v.Global != nil {
		fmt.Fprintf(&sb, "|g%p", v.Global)
	}
	return sb.String()
}

// Run 运行 Pass
func (p *CSEPass) Run(fn *ir.Function) bool {
	dom := fn.Dominators()
	available := map[string]*ir.Value{}
	changed := false

	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		var added []string
		for _, v := range append([]*ir.Value(nil), b.Values...) {
			if !v.IsPure() {
				continue
			}
			key := valueKey(v)
			if w, ok := available[key]; ok {
				replaceValue(fn, v, w)
				changed = true
				continue
			}
			available[key] = v
			added = append(added, key)
		}
		for _, c := range dom.Children(b) {
			walk(c)
		}
		for _, key := range added {
			delete(available, key)
		}
	}
	walk(fn.Entry())
	return changed
}
