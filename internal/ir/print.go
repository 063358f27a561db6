package ir

import (
	"fmt"
	"strings"
)

// ============================================================================
// IR 打印器
// ============================================================================

// LongString 返回值的完整指令文本
func (v *Value) LongString() string {
	var sb strings.Builder
	if !v.Type.IsVoid() {
		fmt.Fprintf(&sb, "v%d = ", v.ID)
	}
	sb.WriteString(v.Op.String())
	switch v.Op {
	case OpICmp, OpFCmp:
		fmt.Fprintf(&sb, " %s", v.Pred())
	case OpIntrinsic:
		fmt.Fprintf(&sb, " %s", v.Intrinsic())
	}
	fmt.Fprintf(&sb, " %s", v.Type)
	switch v.Op {
	case OpConst:
		if v.Type.IsVector() {
			fmt.Fprintf(&sb, " %#x", v.Lanes)
		} else {
			fmt.Fprintf(&sb, " %#x", uint64(v.AuxInt))
		}
	case OpParam:
		fmt.Fprintf(&sb, " #%d", v.AuxInt)
	case OpAlloca:
		fmt.Fprintf(&sb, " [%d bytes]", v.AuxInt)
	case OpGEP:
		fmt.Fprintf(&sb, " ×%d", v.AuxInt)
	case OpExtract, OpInsert:
		fmt.Fprintf(&sb, " [%d]", v.AuxInt)
	case OpGlobalAddr:
		fmt.Fprintf(&sb, " @%s", v.Global.Name)
	}
	for _, a := range v.Args {
		fmt.Fprintf(&sb, " %s", a)
	}
	if v.Op == OpShuffle {
		fmt.Fprintf(&sb, " %v", v.Mask)
	}
	if v.Op == OpLoad || v.Op == OpStore {
		fmt.Fprintf(&sb, " align %d", v.AuxInt)
		if v.Volatile {
			sb.WriteString(" volatile")
		}
	}
	return sb.String()
}

// LongString 返回块的文本
func (b *Block) LongString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:", b)
	if len(b.Preds) > 0 {
		sb.WriteString(" ; preds")
		for _, p := range b.Preds {
			fmt.Fprintf(&sb, " %s", p)
		}
	}
	sb.WriteByte('\n')
	for _, v := range b.Values {
		fmt.Fprintf(&sb, "    %s\n", v.LongString())
	}
	switch b.Kind {
	case BlockPlain:
		fmt.Fprintf(&sb, "    br %s\n", b.Succs[0])
	case BlockIf:
		fmt.Fprintf(&sb, "    br %s, %s, %s\n", b.Control, b.Succs[0], b.Succs[1])
	case BlockRet:
		if b.Control != nil {
			fmt.Fprintf(&sb, "    ret %s\n", b.Control)
		} else {
			sb.WriteString("    ret void\n")
		}
	case BlockUnreachable:
		sb.WriteString("    unreachable\n")
	default:
		sb.WriteString("    <open>\n")
	}
	return sb.String()
}

// String 返回函数的文本
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	fmt.Fprintf(&sb, ") %s {\n", f.Ret)
	for _, b := range f.Blocks {
		sb.WriteString(b.LongString())
	}
	sb.WriteString("}\n")
	return sb.String()
}
