// x64_codegen.go - 把 ir.Function 降低为 x86-64 机器码
//
// 降低策略：
//   - 每个值在栈帧中有自己的槽（标量 8 字节，向量 16 字节，rbp 相对寻址）
//   - 指令从槽加载到暂存寄存器（rax/rcx/rdx/r11, xmm0-xmm2），计算后写回
//   - 写回只写类型宽度，加载时按需要做零扩展或符号扩展；i1 总是 0/1
//   - 完整的 128 位向量在有对应 SSE 指令时直接用 SSE，其余按通道展开
//   - phi 通过暂存槽实现并行复制：前驱写暂存槽，块入口再复制到 phi 槽
//   - 只读全局数据放在代码之后，用 rip 相对 lea 取地址
//
// 调用约定在所有宿主上都使用 SysV 的寄存器分配：
// 整数/指针参数 rdi, rsi, rdx, rcx, r8, r9；浮点/向量参数 xmm0-xmm7；
// 返回值在 rax 或 xmm0。

package jit

import (
	"encoding/binary"
	"fmt"

	"github.com/tangzhangming/reactor/internal/ir"
)

var intArgRegs = [...]X64Reg{RDI, RSI, RDX, RCX, R8, R9}

const maxFloatArgs = 8

// Output 一次代码生成的结果
type Output struct {
	Code      []byte // 代码 + 只读数据，入口在偏移 0
	CodeSize  int    // 指令部分的长度
	FrameSize int
}

type codegen struct {
	f   *ir.Function
	a   *X64Assembler
	cpu Features

	slots   map[*ir.Value]int32 // 值 -> rbp 偏移
	staging map[*ir.Value]int32 // phi -> 暂存槽偏移
	allocas map[*ir.Value]int32 // alloca -> 存储区偏移
	frame   int32

	blocks     map[*ir.Block]Label
	globals    map[*ir.Global]Label
	globalList []*ir.Global
}

// Generate 为函数生成机器码
func Generate(f *ir.Function, cpu Features, maxFrame int) (*Output, error) {
	g := &codegen{
		f:       f,
		a:       NewX64Assembler(),
		cpu:     cpu,
		slots:   map[*ir.Value]int32{},
		staging: map[*ir.Value]int32{},
		allocas: map[*ir.Value]int32{},
		blocks:  map[*ir.Block]Label{},
		globals: map[*ir.Global]Label{},
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	g.layoutFrame()
	if maxFrame > 0 && int(g.frame) > maxFrame {
		return nil, fmt.Errorf("%w: %s needs a %d byte frame, native stack frame limit is %d", ErrUnsupported, f.Name, g.frame, maxFrame)
	}

	if err := g.emitFunction(); err != nil {
		return nil, err
	}
	codeSize := g.a.Len()
	for _, gl := range g.globalList {
		align := gl.Align
		if align < 1 {
			align = 1
		}
		g.a.Align(align, 0)
		g.a.Bind(g.globals[gl])
		g.a.Data(gl.Data)
	}
	code, err := g.a.Finish()
	if err != nil {
		return nil, err
	}
	return &Output{Code: code, CodeSize: codeSize, FrameSize: int(g.frame)}, nil
}

// check 拒绝调用约定或目标不支持的构造
func (g *codegen) check() error {
	if ni, nf := classify(g.f.Params); ni > len(intArgRegs) || nf > maxFloatArgs {
		return fmt.Errorf("%w: %s has %d integer and %d float parameters", ErrUnsupported, g.f.Name, ni, nf)
	}
	for _, b := range g.f.Blocks {
		for _, v := range b.Values {
			switch v.Op {
			case ir.OpCall:
				types := make([]ir.Type, 0, len(v.Args)-1)
				for _, a := range v.Args[1:] {
					types = append(types, a.Type)
				}
				if ni, nf := classify(types); ni > len(intArgRegs) || nf > maxFloatArgs {
					return fmt.Errorf("%w: call with %d integer and %d float arguments", ErrUnsupported, ni, nf)
				}
			case ir.OpIntrinsic:
				if _, err := g.intrinsicOp(v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// classify 统计整数类和 SSE 类参数的个数
func classify(types []ir.Type) (ni, nf int) {
	for _, t := range types {
		if isSSEClass(t) {
			nf++
		} else {
			ni++
		}
	}
	return
}

func isSSEClass(t ir.Type) bool {
	return t.IsFloat() || t.IsVector()
}

// ============================================================================
// 栈帧布局
// ============================================================================

func (g *codegen) alloc(size, align int) int32 {
	off := int(-g.frame) + size
	off = (off + align - 1) &^ (align - 1)
	g.frame = int32(-off)
	return g.frame
}

func (g *codegen) layoutFrame() {
	for _, b := range g.f.Blocks {
		for _, v := range b.Values {
			if v.Type.IsVoid() {
				continue
			}
			size, align := 8, 8
			if v.Type.IsVector() {
				size, align = 16, 16
			}
			g.slots[v] = g.alloc(size, align)
			if v.Op == ir.OpPhi {
				g.staging[v] = g.alloc(size, align)
			}
			if v.Op == ir.OpAlloca {
				g.allocas[v] = g.alloc(int(v.AuxInt), 16)
			}
		}
	}
	// g.frame 此时是最低的偏移（负数），转成正的帧大小
	size := (-int(g.frame) + 15) &^ 15
	g.frame = int32(size)
}

func (g *codegen) slot(v *ir.Value) Mem {
	return At(RBP, g.slots[v])
}

// ============================================================================
// 函数、块与终止指令
// ============================================================================

func (g *codegen) emitFunction() error {
	a := g.a
	order := g.f.ReversePostOrder()
	for _, b := range order {
		g.blocks[b] = a.NewLabel()
	}

	// 序言
	a.Push(RBP)
	a.MovRegReg(RBP, RSP)
	if g.frame > 0 {
		a.SubRegImm32(RSP, g.frame)
	}
	g.storeParams()

	for i, b := range order {
		var next *ir.Block
		if i+1 < len(order) {
			next = order[i+1]
		}
		a.Bind(g.blocks[b])
		for _, v := range b.Values {
			if v.Op == ir.OpPhi {
				g.copy(g.slot(v), At(RBP, g.staging[v]), v.Type.Size())
			}
		}
		for _, v := range b.Values {
			if v.Op == ir.OpPhi || v.Op == ir.OpParam {
				continue
			}
			if err := g.value(v); err != nil {
				return fmt.Errorf("%s: %s: %w", g.f.Name, v.LongString(), err)
			}
		}
		if err := g.terminator(b, next); err != nil {
			return err
		}
	}
	return nil
}

func (g *codegen) storeParams() {
	ni, nf := 0, 0
	for i, t := range g.f.Params {
		dst := g.slot(g.f.Param(i))
		if isSSEClass(t) {
			g.storeX(dst, XReg(nf), t.Size())
			nf++
			continue
		}
		g.storeInt(dst, intArgRegs[ni], t.Kind)
		ni++
	}
}

// phiMoves 为 b -> s 这条边写入 s 中 phi 的暂存槽
func (g *codegen) phiMoves(b, s *ir.Block) {
	j := s.PredIndex(b)
	if j < 0 {
		return
	}
	for _, v := range s.Values {
		if v.Op != ir.OpPhi {
			continue
		}
		g.copy(At(RBP, g.staging[v]), g.slot(v.Args[j]), v.Type.Size())
	}
}

func (g *codegen) terminator(b, next *ir.Block) error {
	a := g.a
	switch b.Kind {
	case ir.BlockPlain:
		s := b.Succs[0]
		g.phiMoves(b, s)
		if s != next {
			a.Jmp(g.blocks[s])
		}
	case ir.BlockIf:
		t, f := b.Succs[0], b.Succs[1]
		g.phiMoves(b, t)
		if f != t {
			g.phiMoves(b, f)
		}
		g.loadInt(RAX, g.slot(b.Control), ir.KindI1, false)
		a.TestRegReg(RAX, RAX)
		switch {
		case f == next:
			a.Jcc(CondNE, g.blocks[t])
		case t == next:
			a.Jcc(CondE, g.blocks[f])
		default:
			a.Jcc(CondNE, g.blocks[t])
			a.Jmp(g.blocks[f])
		}
	case ir.BlockRet:
		if v := b.Control; v != nil {
			if isSSEClass(v.Type) {
				g.loadX(X0, g.slot(v), v.Type.Size())
			} else {
				g.loadInt(RAX, g.slot(v), v.Type.Kind, false)
			}
		}
		a.Leave()
		a.Ret()
	case ir.BlockUnreachable:
		a.Ud2()
	default:
		return fmt.Errorf("%w: %s: %s is not terminated", ErrUnsupported, g.f.Name, b)
	}
	return nil
}

// ============================================================================
// 加载/存储辅助
// ============================================================================

// loadInt 把 k 类型的整数加载到 r（64 位），按 signed 扩展
func (g *codegen) loadInt(r X64Reg, m Mem, k ir.Kind, signed bool) {
	g.a.Load(r, m, k.Size(), signed)
	if k == ir.KindI1 && signed {
		g.a.Neg(r) // 0/1 -> 0/-1
	}
}

// storeInt 写回 k 宽度；i1 先规整为 0/1（会修改 r）
func (g *codegen) storeInt(m Mem, r X64Reg, k ir.Kind) {
	if k == ir.KindI1 {
		g.a.AndRegImm32(r, 1)
	}
	g.a.Store(m, r, k.Size())
}

// loadX 把 size 字节加载到 XMM 寄存器低位（小于 8 字节时经过 rax）
func (g *codegen) loadX(x XReg, m Mem, size int) {
	switch size {
	case 16:
		g.a.MovdquLoad(x, m)
	case 4:
		g.a.MovssLoad(x, m)
	default:
		g.a.Load(RAX, m, size, false)
		g.a.MovqToX(x, RAX)
	}
}

// storeX 把 XMM 寄存器低 size 字节写入内存
func (g *codegen) storeX(m Mem, x XReg, size int) {
	switch size {
	case 16:
		g.a.MovdquStore(m, x)
	case 4:
		g.a.MovssStore(m, x)
	default:
		g.a.MovqFromX(RAX, x)
		g.a.Store(m, RAX, size)
	}
}

// chunks 把 size 按 16/8/4/2/1 拆分
func chunks(size int, fn func(off, n int)) {
	for off := 0; off < size; {
		n := 1
		switch rest := size - off; {
		case rest >= 16:
			n = 16
		case rest >= 8:
			n = 8
		case rest >= 4:
			n = 4
		case rest >= 2:
			n = 2
		}
		fn(off, n)
		off += n
	}
}

// copy 复制 size 字节（使用 rcx / xmm0）
func (g *codegen) copy(dst, src Mem, size int) {
	chunks(size, func(off, n int) {
		if n == 16 {
			g.a.MovdquLoad(X0, src.Offset(off))
			g.a.MovdquStore(dst.Offset(off), X0)
			return
		}
		g.a.Load(RCX, src.Offset(off), n, false)
		g.a.Store(dst.Offset(off), RCX, n)
	})
}

// ============================================================================
// 指令降低
// ============================================================================

func (g *codegen) value(v *ir.Value) error {
	a := g.a
	t := v.Type
	dst := g.slot(v)
	arg := func(i int) Mem { return g.slot(v.Args[i]) }

	switch {
	case v.Op == ir.OpConst:
		g.constant(v)

	case v.Op == ir.OpGlobalAddr:
		l, ok := g.globals[v.Global]
		if !ok {
			l = a.NewLabel()
			g.globals[v.Global] = l
			g.globalList = append(g.globalList, v.Global)
		}
		a.Lea(RAX, Mem{RIP: true, Label: l})
		a.Store(dst, RAX, 8)

	case v.Op == ir.OpAlloca:
		a.Lea(RAX, At(RBP, g.allocas[v]))
		a.Store(dst, RAX, 8)

	case v.Op.IsBinary():
		if t.IsVector() {
			if g.vectorBinary(v) {
				return nil
			}
			es := t.ElemKind().Size()
			for i := 0; i < t.NumLanes(); i++ {
				g.scalarBinary(v.Op, t.ElemKind(), dst.Offset(i*es), arg(0).Offset(i*es), arg(1).Offset(i*es))
			}
			return nil
		}
		g.scalarBinary(v.Op, t.Kind, dst, arg(0), arg(1))

	case v.Op == ir.OpFNeg || v.Op == ir.OpFSqrt:
		if v.Op == ir.OpFSqrt && t.Size() == 16 {
			a.MovdquLoad(X0, arg(0))
			a.SSE(0, []byte{0x0F, 0x51}, X0, X0) // sqrtps
			a.MovdquStore(dst, X0)
			return nil
		}
		for i := 0; i < t.NumLanes(); i++ {
			g.scalarUnary(v.Op, dst.Offset(i*4), arg(0).Offset(i*4))
		}

	case v.Op == ir.OpICmp || v.Op == ir.OpFCmp:
		at := v.Args[0].Type
		if !at.IsVector() {
			g.compare(v.Pred(), at.Kind, arg(0), arg(1))
			g.storeInt(dst, RAX, ir.KindI1)
			return nil
		}
		if g.vectorCompare(v) {
			return nil
		}
		es := at.ElemKind().Size()
		for i := 0; i < at.NumLanes(); i++ {
			g.compare(v.Pred(), at.ElemKind(), arg(0).Offset(i*es), arg(1).Offset(i*es))
			a.Neg(RAX)
			a.Store(dst.Offset(i*es), RAX, es)
		}

	case v.Op == ir.OpBitcast:
		g.copy(dst, arg(0), t.Size())

	case v.Op.IsCast():
		from := v.Args[0].Type
		if g.vectorCast(v) {
			return nil
		}
		fs, ts := from.ElemKind().Size(), t.ElemKind().Size()
		for i := 0; i < t.NumLanes(); i++ {
			g.cast(v.Op, from.ElemKind(), t.ElemKind(), dst.Offset(i*ts), arg(0).Offset(i*fs))
		}

	case v.Op == ir.OpLoad:
		g.loadInt(RAX, arg(0), ir.KindPtr, false)
		if t.Kind == ir.KindI1 {
			a.Load(RCX, At(RAX, 0), 1, false)
			g.storeInt(dst, RCX, ir.KindI1)
			return nil
		}
		g.copy(dst, At(RAX, 0), t.Size())

	case v.Op == ir.OpStore:
		g.loadInt(RAX, arg(1), ir.KindPtr, false)
		g.copy(At(RAX, 0), arg(0), v.Args[0].Type.Size())

	case v.Op == ir.OpGEP:
		g.loadInt(RAX, arg(0), ir.KindPtr, false)
		g.loadInt(RCX, arg(1), v.Args[1].Type.Kind, true)
		if v.AuxInt != 1 {
			a.IMulRegImm32(RCX, RCX, int32(v.AuxInt))
		}
		a.AddRegReg(RAX, RCX)
		a.Store(dst, RAX, 8)

	case v.Op == ir.OpExtract:
		es := t.Size()
		g.copy(dst, arg(0).Offset(int(v.AuxInt)*es), es)

	case v.Op == ir.OpInsert:
		es := t.ElemKind().Size()
		g.copy(dst, arg(0), t.Size())
		g.copy(dst.Offset(int(v.AuxInt)*es), arg(1), es)

	case v.Op == ir.OpShuffle:
		es := t.ElemKind().Size()
		na := v.Args[0].Type.NumLanes()
		for i, m := range v.Mask {
			switch {
			case m < 0:
				a.XorRegReg(RCX, RCX)
				a.Store(dst.Offset(i*es), RCX, es)
			case m < na:
				g.copy(dst.Offset(i*es), arg(0).Offset(m*es), es)
			default:
				g.copy(dst.Offset(i*es), arg(1).Offset((m-na)*es), es)
			}
		}

	case v.Op == ir.OpSelect:
		g.selectValue(v)

	case v.Op == ir.OpCall:
		g.call(v)

	case v.Op == ir.OpIntrinsic:
		op, err := g.intrinsicOp(v)
		if err != nil {
			return err
		}
		size := v.Args[0].Type.Size()
		g.loadX(X0, arg(0), size)
		src := X0
		if len(v.Args) > 1 {
			g.loadX(X1, arg(1), size)
			src = X1
		}
		if op.imm >= 0 {
			a.SSEImm(op.prefix, op.opcode, X0, src, byte(op.imm))
		} else {
			a.SSE(op.prefix, op.opcode, X0, src)
		}
		g.storeX(dst, X0, t.Size())

	case v.Op == ir.OpCopy:
		g.copy(dst, arg(0), t.Size())

	default:
		return fmt.Errorf("%w: op %s", ErrUnsupported, v.Op)
	}
	return nil
}

func (g *codegen) constant(v *ir.Value) {
	dst := g.slot(v)
	if !v.Type.IsVector() {
		g.a.MovRegImm(RAX, uint64(v.AuxInt))
		g.a.Store(dst, RAX, v.Type.Size())
		return
	}
	data := ir.Bytes(v.Type, v.Lanes)
	chunks(len(data), func(off, n int) {
		if n == 16 {
			g.constChunk(dst.Offset(off), data[off:off+8], 8)
			g.constChunk(dst.Offset(off+8), data[off+8:off+16], 8)
			return
		}
		g.constChunk(dst.Offset(off), data[off:off+n], n)
	})
}

func (g *codegen) constChunk(m Mem, b []byte, n int) {
	var buf [8]byte
	copy(buf[:], b)
	g.a.MovRegImm(RAX, binary.LittleEndian.Uint64(buf[:]))
	g.a.Store(m, RAX, n)
}

// ============================================================================
// 标量运算（结果写回 dst）
// ============================================================================

var floatOpcodes = map[ir.Op]byte{
	ir.OpFAdd: 0x58,
	ir.OpFMul: 0x59,
	ir.OpFSub: 0x5C,
	ir.OpFMin: 0x5D,
	ir.OpFDiv: 0x5E,
	ir.OpFMax: 0x5F,
}

func (g *codegen) scalarBinary(op ir.Op, k ir.Kind, dst, x, y Mem) {
	a := g.a
	if opc, ok := floatOpcodes[op]; ok {
		a.MovssLoad(X0, x)
		a.MovssLoad(X1, y)
		a.SSE(0xF3, []byte{0x0F, opc}, X0, X1)
		a.MovssStore(dst, X0)
		return
	}

	signed := op == ir.OpAShr || op == ir.OpSDiv || op == ir.OpSRem
	g.loadInt(RAX, x, k, signed)
	g.loadInt(RCX, y, k, signed && op != ir.OpAShr)
	switch op {
	case ir.OpAdd:
		a.AddRegReg(RAX, RCX)
	case ir.OpSub:
		a.SubRegReg(RAX, RCX)
	case ir.OpMul:
		a.IMulRegReg(RAX, RCX)
	case ir.OpAnd:
		a.AndRegReg(RAX, RCX)
	case ir.OpOr:
		a.OrRegReg(RAX, RCX)
	case ir.OpXor:
		a.XorRegReg(RAX, RCX)
	case ir.OpShl:
		a.ShlRegCL(RAX)
	case ir.OpLShr:
		a.ShrRegCL(RAX)
	case ir.OpAShr:
		a.SarRegCL(RAX)
	case ir.OpSDiv, ir.OpSRem:
		a.CQO()
		a.IDivReg(RCX)
		if op == ir.OpSRem {
			a.MovRegReg(RAX, RDX)
		}
	case ir.OpUDiv, ir.OpURem:
		a.XorRegReg(RDX, RDX)
		a.DivReg(RCX)
		if op == ir.OpURem {
			a.MovRegReg(RAX, RDX)
		}
	}
	g.storeInt(dst, RAX, k)
}

func (g *codegen) scalarUnary(op ir.Op, dst, x Mem) {
	a := g.a
	if op == ir.OpFSqrt {
		a.MovssLoad(X0, x)
		a.SSE(0xF3, []byte{0x0F, 0x51}, X0, X0) // sqrtss
		a.MovssStore(dst, X0)
		return
	}
	// fneg: 翻转符号位
	a.Load(RAX, x, 4, false)
	a.MovRegImm(RCX, 0x80000000)
	a.XorRegReg(RAX, RCX)
	a.Store(dst, RAX, 4)
}

// fcmpPlan 浮点谓词到 ucomiss 标志位的映射
// swap 表示比较 (y, x)；combine 为 0 时只用 cc1，1 为与，2 为或。
type fcmpPlan struct {
	swap    bool
	cc1     Cond
	cc2     Cond
	combine int
}

var fcmpPlans = map[ir.Predicate]fcmpPlan{
	ir.PredOEQ:  {cc1: CondE, cc2: CondNP, combine: 1},
	ir.PredONE:  {cc1: CondNE, cc2: CondNP, combine: 1},
	ir.PredOGT:  {cc1: CondA},
	ir.PredOGE:  {cc1: CondAE},
	ir.PredOLT:  {swap: true, cc1: CondA},
	ir.PredOLE:  {swap: true, cc1: CondAE},
	ir.PredORD:  {cc1: CondNP},
	ir.PredUNO:  {cc1: CondP},
	ir.PredUEQ:  {cc1: CondE},
	ir.PredUNE:  {cc1: CondNE, cc2: CondP, combine: 2},
	ir.PredUGTF: {swap: true, cc1: CondB},
	ir.PredUGEF: {swap: true, cc1: CondBE},
	ir.PredULTF: {cc1: CondB},
	ir.PredULEF: {cc1: CondBE},
}

var icmpConds = map[ir.Predicate]Cond{
	ir.PredEQ:  CondE,
	ir.PredNE:  CondNE,
	ir.PredSLT: CondL,
	ir.PredSLE: CondLE,
	ir.PredSGT: CondG,
	ir.PredSGE: CondGE,
	ir.PredULT: CondB,
	ir.PredULE: CondBE,
	ir.PredUGT: CondA,
	ir.PredUGE: CondAE,
}

// compare 计算一个通道的比较，结果 0/1 在 rax
func (g *codegen) compare(p ir.Predicate, k ir.Kind, x, y Mem) {
	a := g.a
	if !p.IsFloat() {
		g.loadInt(RAX, x, k, p.IsSigned())
		g.loadInt(RCX, y, k, p.IsSigned())
		a.CmpRegReg(RAX, RCX)
		a.SetCC(icmpConds[p], RAX)
		a.MovzxReg8(RAX, RAX)
		return
	}

	plan := fcmpPlans[p]
	a.MovssLoad(X0, x)
	a.MovssLoad(X1, y)
	if plan.swap {
		a.Ucomiss(X1, X0)
	} else {
		a.Ucomiss(X0, X1)
	}
	a.SetCC(plan.cc1, RAX)
	a.MovzxReg8(RAX, RAX)
	if plan.combine == 0 {
		return
	}
	a.SetCC(plan.cc2, RCX)
	a.MovzxReg8(RCX, RCX)
	if plan.combine == 1 {
		a.AndRegReg(RAX, RCX)
	} else {
		a.OrRegReg(RAX, RCX)
	}
}

// cast 转换一个通道
func (g *codegen) cast(op ir.Op, from, to ir.Kind, dst, x Mem) {
	a := g.a
	switch op {
	case ir.OpTrunc, ir.OpZExt, ir.OpPtrToInt, ir.OpIntToPtr:
		g.loadInt(RAX, x, from, false)
		g.storeInt(dst, RAX, to)
	case ir.OpSExt:
		g.loadInt(RAX, x, from, true)
		g.storeInt(dst, RAX, to)
	case ir.OpFPToSI, ir.OpFPToUI:
		a.MovssLoad(X0, x)
		a.Cvttss2si(RAX, X0)
		g.storeInt(dst, RAX, to)
	case ir.OpSIToFP:
		g.loadInt(RAX, x, from, true)
		a.Cvtsi2ss(X0, RAX)
		a.MovssStore(dst, X0)
	case ir.OpUIToFP:
		g.loadInt(RAX, x, from, false)
		if from != ir.KindI64 {
			a.Cvtsi2ss(X0, RAX)
			a.MovssStore(dst, X0)
			return
		}
		// 最高位为 1 时先右移一位（保留最低位用于舍入），转换后再乘 2
		big, done := a.NewLabel(), a.NewLabel()
		a.TestRegReg(RAX, RAX)
		a.Jcc(CondS, big)
		a.Cvtsi2ss(X0, RAX)
		a.Jmp(done)
		a.Bind(big)
		a.MovRegReg(RCX, RAX)
		a.ShrRegImm(RCX, 1)
		a.AndRegImm32(RAX, 1)
		a.OrRegReg(RCX, RAX)
		a.Cvtsi2ss(X0, RCX)
		a.SSE(0xF3, []byte{0x0F, 0x58}, X0, X0) // addss
		a.Bind(done)
		a.MovssStore(dst, X0)
	}
}

// ============================================================================
// 选择与调用
// ============================================================================

// isLaneMask 值的每个通道一定是全 0 或全 1
func isLaneMask(v *ir.Value) bool {
	return (v.Op == ir.OpICmp || v.Op == ir.OpFCmp) && v.Type.IsVector()
}

func (g *codegen) selectValue(v *ir.Value) {
	a := g.a
	t := v.Type
	dst := g.slot(v)
	cond, x, y := v.Args[0], g.slot(v.Args[1]), g.slot(v.Args[2])

	if !cond.Type.IsVector() {
		g.loadInt(RAX, g.slot(cond), ir.KindI1, false)
		a.TestRegReg(RAX, RAX)
		chunks(t.Size(), func(off, n int) {
			if n == 16 {
				// 16 字节按两个 8 字节处理
				for _, o := range []int{off, off + 8} {
					g.cmovChunk(dst.Offset(o), x.Offset(o), y.Offset(o), 8)
				}
				return
			}
			g.cmovChunk(dst.Offset(off), x.Offset(off), y.Offset(off), n)
		})
		return
	}

	es := t.ElemKind().Size()
	if isLaneMask(cond) && t.Size() == 16 && cond.Type.ElemKind().Size() == es {
		a.MovdquLoad(X0, g.slot(cond))
		a.MovdquLoad(X1, x)
		a.MovdquLoad(X2, y)
		a.SSE(0x66, []byte{0x0F, 0xDB}, X1, X0) // pand
		a.SSE(0x66, []byte{0x0F, 0xDF}, X0, X2) // pandn
		a.SSE(0x66, []byte{0x0F, 0xEB}, X0, X1) // por
		a.MovdquStore(dst, X0)
		return
	}

	ces := cond.Type.ElemKind().Size()
	for i := 0; i < t.NumLanes(); i++ {
		a.Load(RAX, g.slot(cond).Offset(i*ces), ces, false)
		a.TestRegReg(RAX, RAX)
		g.cmovChunk(dst.Offset(i*es), x.Offset(i*es), y.Offset(i*es), es)
	}
}

// cmovChunk 依据当前 ZF 选择：ZF=0 取 x，ZF=1 取 y
func (g *codegen) cmovChunk(dst, x, y Mem, n int) {
	g.a.Load(RCX, x, n, false)
	g.a.Load(RDX, y, n, false)
	g.a.CMovCC(CondE, RCX, RDX)
	g.a.Store(dst, RCX, n)
}

func (g *codegen) call(v *ir.Value) {
	a := g.a
	ni, nf := 0, 0
	for _, arg := range v.Args[1:] {
		if isSSEClass(arg.Type) {
			g.loadX(XReg(nf), g.slot(arg), arg.Type.Size())
			nf++
			continue
		}
		g.loadInt(intArgRegs[ni], g.slot(arg), arg.Type.Kind, false)
		ni++
	}
	g.loadInt(R11, g.slot(v.Args[0]), ir.KindPtr, false)
	a.Call(R11)

	t := v.Type
	switch {
	case t.IsVoid():
	case isSSEClass(t):
		g.storeX(g.slot(v), X0, t.Size())
	default:
		g.storeInt(g.slot(v), RAX, t.Kind)
	}
}
