package jit

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble 把代码反汇编为 GNU 语法文本，每行带地址和机器码
// pc 是 code[0] 的地址，用于显示和相对跳转目标。
func Disassemble(code []byte, pc uint64) string {
	var sb strings.Builder
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		n := inst.Len
		text := ""
		if err != nil || n == 0 {
			n = 1
			text = "(bad)"
		} else {
			text = x86asm.GNUSyntax(inst, pc+uint64(off), nil)
		}
		fmt.Fprintf(&sb, "%8x:\t% x\t%s\n", pc+uint64(off), code[off:off+n], text)
		off += n
	}
	return sb.String()
}

// DecodeAll 把代码解码为 Intel 语法的指令列表，遇到无法解码的字节时返回错误
func DecodeAll(code []byte) ([]string, error) {
	var out []string
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return out, fmt.Errorf("jit: decode at offset %d: %w", off, err)
		}
		out = append(out, x86asm.IntelSyntax(inst, uint64(off), nil))
		off += inst.Len
	}
	return out, nil
}
