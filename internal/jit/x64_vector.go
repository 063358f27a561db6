// x64_vector.go - 完整 128 位向量的 SSE 快速路径与内建函数

package jit

import (
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

type sseKey struct {
	op   ir.Op
	elem ir.Kind
}

type sseInst struct {
	prefix byte
	opcode []byte
	sse41  bool
}

var vectorBinaryInsts = map[sseKey]sseInst{
	{ir.OpAdd, ir.KindI8}:  {0x66, []byte{0x0F, 0xFC}, false},
	{ir.OpAdd, ir.KindI16}: {0x66, []byte{0x0F, 0xFD}, false},
	{ir.OpAdd, ir.KindI32}: {0x66, []byte{0x0F, 0xFE}, false},
	{ir.OpAdd, ir.KindI64}: {0x66, []byte{0x0F, 0xD4}, false},
	{ir.OpSub, ir.KindI8}:  {0x66, []byte{0x0F, 0xF8}, false},
	{ir.OpSub, ir.KindI16}: {0x66, []byte{0x0F, 0xF9}, false},
	{ir.OpSub, ir.KindI32}: {0x66, []byte{0x0F, 0xFA}, false},
	{ir.OpSub, ir.KindI64}: {0x66, []byte{0x0F, 0xFB}, false},
	{ir.OpMul, ir.KindI16}: {0x66, []byte{0x0F, 0xD5}, false},
	{ir.OpMul, ir.KindI32}: {0x66, []byte{0x0F, 0x38, 0x40}, true},

	{ir.OpFAdd, ir.KindF32}: {0, []byte{0x0F, 0x58}, false},
	{ir.OpFMul, ir.KindF32}: {0, []byte{0x0F, 0x59}, false},
	{ir.OpFSub, ir.KindF32}: {0, []byte{0x0F, 0x5C}, false},
	{ir.OpFMin, ir.KindF32}: {0, []byte{0x0F, 0x5D}, false},
	{ir.OpFDiv, ir.KindF32}: {0, []byte{0x0F, 0x5E}, false},
	{ir.OpFMax, ir.KindF32}: {0, []byte{0x0F, 0x5F}, false},
}

// 位运算与元素宽度无关
var bitwiseOpcodes = map[ir.Op]byte{
	ir.OpAnd: 0xDB,
	ir.OpOr:  0xEB,
	ir.OpXor: 0xEF,
}

func (g *codegen) vectorBinary(v *ir.Value) bool {
	if v.Type.Size() != 16 {
		return false
	}
	inst, ok := vectorBinaryInsts[sseKey{v.Op, v.Type.Elem}]
	if opc, bit := bitwiseOpcodes[v.Op]; bit {
		inst, ok = sseInst{0x66, []byte{0x0F, opc}, false}, true
	}
	if !ok || (inst.sse41 && !g.cpu.SSE41) {
		return false
	}
	g.a.MovdquLoad(X0, g.slot(v.Args[0]))
	g.a.MovdquLoad(X1, g.slot(v.Args[1]))
	g.a.SSE(inst.prefix, inst.opcode, X0, X1)
	g.a.MovdquStore(g.slot(v), X0)
	return true
}

// cmpps 的立即数；swap 表示交换操作数
var cmppsPlans = map[ir.Predicate]struct {
	imm  byte
	swap bool
}{
	ir.PredOEQ:  {0, false},
	ir.PredOLT:  {1, false},
	ir.PredOLE:  {2, false},
	ir.PredUNO:  {3, false},
	ir.PredUNE:  {4, false},
	ir.PredUGEF: {5, false},
	ir.PredUGTF: {6, false},
	ir.PredORD:  {7, false},
	ir.PredOGT:  {1, true},
	ir.PredOGE:  {2, true},
	ir.PredULTF: {6, true},
	ir.PredULEF: {5, true},
}

var pcmpOpcodes = map[ir.Kind][2]byte{
	ir.KindI8:  {0x74, 0x64},
	ir.KindI16: {0x75, 0x65},
	ir.KindI32: {0x76, 0x66},
}

func (g *codegen) vectorCompare(v *ir.Value) bool {
	a := g.a
	at := v.Args[0].Type
	if at.Size() != 16 {
		return false
	}
	x, y := g.slot(v.Args[0]), g.slot(v.Args[1])
	p := v.Pred()

	if v.Op == ir.OpFCmp {
		plan, ok := cmppsPlans[p]
		if !ok {
			return false
		}
		if plan.swap {
			x, y = y, x
		}
		a.MovdquLoad(X0, x)
		a.MovdquLoad(X1, y)
		a.SSEImm(0, []byte{0x0F, 0xC2}, X0, X1, plan.imm)
		a.MovdquStore(g.slot(v), X0)
		return true
	}

	ops, ok := pcmpOpcodes[at.Elem]
	if !ok {
		return false
	}
	// SSE2 只有相等和有符号大于，其余谓词通过交换或取反得到
	var opc byte
	invert := false
	switch p {
	case ir.PredEQ:
		opc = ops[0]
	case ir.PredNE:
		opc, invert = ops[0], true
	case ir.PredSGT:
		opc = ops[1]
	case ir.PredSLT:
		opc = ops[1]
		x, y = y, x
	case ir.PredSLE:
		opc, invert = ops[1], true
	case ir.PredSGE:
		opc, invert = ops[1], true
		x, y = y, x
	default:
		return false
	}
	a.MovdquLoad(X0, x)
	a.MovdquLoad(X1, y)
	a.SSE(0x66, []byte{0x0F, opc}, X0, X1)
	if invert {
		a.AllOnes(X1)
		a.Pxor(X0, X1)
	}
	a.MovdquStore(g.slot(v), X0)
	return true
}

func (g *codegen) vectorCast(v *ir.Value) bool {
	from, to := v.Args[0].Type, v.Type
	var prefix byte
	switch {
	case v.Op == ir.OpSIToFP && from == ir.V4I32 && to == ir.V4F32:
		prefix = 0 // cvtdq2ps
	case v.Op == ir.OpFPToSI && from == ir.V4F32 && to == ir.V4I32:
		prefix = 0xF3 // cvttps2dq
	default:
		return false
	}
	g.a.MovdquLoad(X0, g.slot(v.Args[0]))
	g.a.SSE(prefix, []byte{0x0F, 0x5B}, X0, X0)
	g.a.MovdquStore(g.slot(v), X0)
	return true
}

// ============================================================================
// 内建函数
// ============================================================================

type intrinsicInst struct {
	prefix byte
	opcode []byte
	imm    int // <0 表示没有立即数
	sse41  bool
}

type intrinsicKey struct {
	id   ir.Intrinsic
	elem ir.Kind
	vec  bool
}

func pd(op byte) []byte { return []byte{0x0F, op} }

var intrinsicInsts = map[intrinsicKey]intrinsicInst{
	{ir.IntrAddSatS, ir.KindI8, true}:   {0x66, pd(0xEC), -1, false},
	{ir.IntrAddSatS, ir.KindI16, true}:  {0x66, pd(0xED), -1, false},
	{ir.IntrAddSatU, ir.KindI8, true}:   {0x66, pd(0xDC), -1, false},
	{ir.IntrAddSatU, ir.KindI16, true}:  {0x66, pd(0xDD), -1, false},
	{ir.IntrSubSatS, ir.KindI8, true}:   {0x66, pd(0xE8), -1, false},
	{ir.IntrSubSatS, ir.KindI16, true}:  {0x66, pd(0xE9), -1, false},
	{ir.IntrSubSatU, ir.KindI8, true}:   {0x66, pd(0xD8), -1, false},
	{ir.IntrSubSatU, ir.KindI16, true}:  {0x66, pd(0xD9), -1, false},
	{ir.IntrMulHighS, ir.KindI16, true}: {0x66, pd(0xE5), -1, false},
	{ir.IntrMulHighU, ir.KindI16, true}: {0x66, pd(0xE4), -1, false},
	{ir.IntrAvgU, ir.KindI8, true}:      {0x66, pd(0xE0), -1, false},
	{ir.IntrAvgU, ir.KindI16, true}:     {0x66, pd(0xE3), -1, false},

	{ir.IntrRcp, ir.KindF32, true}:    {0, pd(0x53), -1, false},
	{ir.IntrRcp, ir.KindF32, false}:   {0xF3, pd(0x53), -1, false},
	{ir.IntrRsqrt, ir.KindF32, true}:  {0, pd(0x52), -1, false},
	{ir.IntrRsqrt, ir.KindF32, false}: {0xF3, pd(0x52), -1, false},
	// 最近偶数舍入，屏蔽不精确异常
	{ir.IntrRound, ir.KindF32, true}:  {0x66, []byte{0x0F, 0x3A, 0x08}, 0x08, true},
	{ir.IntrRound, ir.KindF32, false}: {0x66, []byte{0x0F, 0x3A, 0x0A}, 0x08, true},

	// 打包指令以操作数的元素种类为键
	{ir.IntrPackSS, ir.KindI16, true}: {0x66, pd(0x63), -1, false},
	{ir.IntrPackSS, ir.KindI32, true}: {0x66, pd(0x6B), -1, false},
	{ir.IntrPackUS, ir.KindI16, true}: {0x66, pd(0x67), -1, false},
	{ir.IntrPackUS, ir.KindI32, true}: {0x66, []byte{0x0F, 0x38, 0x2B}, -1, true},
}

// IntrinsicSupported 报告 cpu 能否直接执行该内建函数
// t 是内建函数第一个操作数的类型。
func IntrinsicSupported(cpu Features, id ir.Intrinsic, t ir.Type) bool {
	inst, ok := intrinsicInsts[intrinsicKey{id, t.ElemKind(), t.IsVector()}]
	if !ok || (t.IsVector() && t.Size() != 16) {
		return false
	}
	return !inst.sse41 || cpu.SSE41
}

func (g *codegen) intrinsicOp(v *ir.Value) (intrinsicInst, error) {
	if len(v.Args) == 0 {
		return intrinsicInst{}, fmt.Errorf("%w: intrinsic %s without operands", ErrUnsupported, v.Intrinsic())
	}
	t := v.Args[0].Type
	if !IntrinsicSupported(g.cpu, v.Intrinsic(), t) {
		return intrinsicInst{}, fmt.Errorf("%w: intrinsic %s on %s", ErrUnsupported, v.Intrinsic(), t)
	}
	return intrinsicInsts[intrinsicKey{v.Intrinsic(), t.ElemKind(), t.IsVector()}], nil
}
