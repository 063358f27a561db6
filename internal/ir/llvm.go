package ir

import (
	"fmt"
	"math"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// ============================================================================
// LLVM 汇编导出（调试用）
//
// 把函数翻译成等价的 LLVM IR 文本，方便用 opt/llc 对照检查。
// 向量比较在本 IR 中直接产生掩码，导出时展开为 icmp/fcmp + sext。
// ============================================================================

// DumpLLVM 把模块导出为 LLVM 汇编文本
func DumpLLVM(m *Module) (string, error) {
	x := &llvmExporter{
		mod:     llir.NewModule(),
		globals: map[*Global]*llir.Global{},
		decls:   map[string]*llir.Func{},
	}
	x.mod.SourceFilename = m.Name
	for _, g := range m.Globals {
		gl := x.mod.NewGlobalDef(g.Name, constant.NewCharArray(append([]byte(nil), g.Data...)))
		gl.Immutable = true
		gl.Align = llir.Align(g.Align)
		x.globals[g] = gl
	}
	for _, f := range m.Functions {
		if err := x.function(f); err != nil {
			return "", err
		}
	}
	return x.mod.String(), nil
}

// DumpFunctionLLVM 导出单个函数（连同它所在模块的全局数据）
func DumpFunctionLLVM(f *Function) (string, error) {
	m := &Module{Name: f.Name, Functions: []*Function{f}}
	if f.Module != nil {
		m.Globals = f.Module.Globals
	}
	return DumpLLVM(m)
}

type llvmExporter struct {
	mod     *llir.Module
	globals map[*Global]*llir.Global
	decls   map[string]*llir.Func

	fn     *llir.Func
	blocks map[*Block]*llir.Block
	values map[*Value]value.Value
	phis   []*Value
}

func llType(t Type) lltypes.Type {
	switch t.Kind {
	case KindVoid:
		return lltypes.Void
	case KindI1:
		return lltypes.I1
	case KindI8:
		return lltypes.I8
	case KindI16:
		return lltypes.I16
	case KindI32:
		return lltypes.I32
	case KindI64:
		return lltypes.I64
	case KindF32:
		return lltypes.Float
	case KindPtr:
		return lltypes.I8Ptr
	case KindVector:
		return lltypes.NewVector(uint64(t.Lanes), llType(t.ElemType()))
	}
	panic(fmt.Sprintf("ir: no LLVM type for %s", t))
}

func llScalarConst(k Kind, bits uint64) constant.Constant {
	switch k {
	case KindI1:
		return constant.NewBool(bits&1 != 0)
	case KindF32:
		return constant.NewFloat(lltypes.Float, float64(math.Float32frombits(uint32(bits))))
	case KindPtr:
		if bits == 0 {
			return constant.NewNull(lltypes.I8Ptr)
		}
		return constant.NewIntToPtr(constant.NewInt(lltypes.I64, int64(bits)), lltypes.I8Ptr)
	}
	return constant.NewInt(llType(Scalar(k)).(*lltypes.IntType), SignExtend(k, bits))
}

func llVectorConst(t Type, lanes []uint64) constant.Constant {
	elems := make([]constant.Constant, len(lanes))
	for i, l := range lanes {
		elems[i] = llScalarConst(t.Elem, l)
	}
	return &constant.Vector{Typ: llType(t).(*lltypes.VectorType), Elems: elems}
}

var llIPred = map[Predicate]enum.IPred{
	PredEQ: enum.IPredEQ, PredNE: enum.IPredNE,
	PredSLT: enum.IPredSLT, PredSLE: enum.IPredSLE, PredSGT: enum.IPredSGT, PredSGE: enum.IPredSGE,
	PredULT: enum.IPredULT, PredULE: enum.IPredULE, PredUGT: enum.IPredUGT, PredUGE: enum.IPredUGE,
}

var llFPred = map[Predicate]enum.FPred{
	PredOEQ: enum.FPredOEQ, PredONE: enum.FPredONE, PredOLT: enum.FPredOLT, PredOLE: enum.FPredOLE,
	PredOGT: enum.FPredOGT, PredOGE: enum.FPredOGE, PredORD: enum.FPredORD, PredUNO: enum.FPredUNO,
	PredUEQ: enum.FPredUEQ, PredUNE: enum.FPredUNE, PredULTF: enum.FPredULT, PredULEF: enum.FPredULE,
	PredUGTF: enum.FPredUGT, PredUGEF: enum.FPredUGE,
}

// declare 声明一个外部函数（用于 sqrt 和内建函数）
func (x *llvmExporter) declare(name string, ret Type, params ...Type) *llir.Func {
	if f, ok := x.decls[name]; ok {
		return f
	}
	ps := make([]*llir.Param, len(params))
	for i, p := range params {
		ps[i] = llir.NewParam("", llType(p))
	}
	f := x.mod.NewFunc(name, llType(ret), ps...)
	x.decls[name] = f
	return f
}

func (x *llvmExporter) function(f *Function) error {
	params := make([]*llir.Param, len(f.Params))
	for i, p := range f.Params {
		params[i] = llir.NewParam(fmt.Sprintf("p%d", i), llType(p))
	}
	x.fn = x.mod.NewFunc(f.Name, llType(f.Ret), params...)
	x.blocks = map[*Block]*llir.Block{}
	x.values = map[*Value]value.Value{}
	x.phis = nil

	rpo := f.ReversePostOrder()
	for _, b := range rpo {
		x.blocks[b] = x.fn.NewBlock(b.String())
	}
	for _, b := range rpo {
		lb := x.blocks[b]
		for _, v := range b.Values {
			if err := x.value(lb, v); err != nil {
				return err
			}
		}
		if err := x.terminator(lb, b); err != nil {
			return err
		}
	}
	// phi 的参数可能是后定义的值，最后统一回填
	for _, v := range x.phis {
		phi := x.values[v].(*llir.InstPhi)
		phi.Incs = phi.Incs[:0]
		for i, a := range v.Args {
			pred, ok := x.blocks[v.Block.Preds[i]]
			if !ok {
				continue
			}
			phi.Incs = append(phi.Incs, llir.NewIncoming(x.use(a), pred))
		}
	}
	return nil
}

func (x *llvmExporter) use(v *Value) value.Value {
	if lv, ok := x.values[v]; ok {
		return lv
	}
	if v.Op == OpParam {
		return x.fn.Params[v.AuxInt]
	}
	return constant.NewUndef(llType(v.Type))
}

// typedPtr 把 i8* 转成指向 t 的指针
func (x *llvmExporter) typedPtr(lb *llir.Block, p value.Value, t Type) value.Value {
	if t == I8 {
		return p
	}
	return lb.NewBitCast(p, lltypes.NewPointer(llType(t)))
}

func (x *llvmExporter) value(lb *llir.Block, v *Value) error {
	a := func(i int) value.Value { return x.use(v.Args[i]) }
	var r value.Value

	switch v.Op {
	case OpParam:
		r = x.fn.Params[v.AuxInt]
	case OpConst:
		if v.Type.IsVector() {
			r = llVectorConst(v.Type, v.Lanes)
		} else {
			r = llScalarConst(v.Type.Kind, uint64(v.AuxInt))
		}
	case OpGlobalAddr:
		g := x.globals[v.Global]
		if g == nil {
			return fmt.Errorf("%w: global %s not in module", ErrInvalid, v.Global.Name)
		}
		r = lb.NewBitCast(g, lltypes.I8Ptr)
	case OpAdd:
		r = lb.NewAdd(a(0), a(1))
	case OpSub:
		r = lb.NewSub(a(0), a(1))
	case OpMul:
		r = lb.NewMul(a(0), a(1))
	case OpSDiv:
		r = lb.NewSDiv(a(0), a(1))
	case OpUDiv:
		r = lb.NewUDiv(a(0), a(1))
	case OpSRem:
		r = lb.NewSRem(a(0), a(1))
	case OpURem:
		r = lb.NewURem(a(0), a(1))
	case OpFAdd:
		r = lb.NewFAdd(a(0), a(1))
	case OpFSub:
		r = lb.NewFSub(a(0), a(1))
	case OpFMul:
		r = lb.NewFMul(a(0), a(1))
	case OpFDiv:
		r = lb.NewFDiv(a(0), a(1))
	case OpFMin, OpFMax:
		pred := enum.FPredOLT
		if v.Op == OpFMax {
			pred = enum.FPredOGT
		}
		r = lb.NewSelect(lb.NewFCmp(pred, a(0), a(1)), a(0), a(1))
	case OpFSqrt:
		name := "llvm.sqrt.f32"
		if v.Type.IsVector() {
			name = fmt.Sprintf("llvm.sqrt.v%df32", v.Type.Lanes)
		}
		r = lb.NewCall(x.declare(name, v.Type, v.Type), a(0))
	case OpFNeg:
		r = lb.NewFNeg(a(0))
	case OpAnd:
		r = lb.NewAnd(a(0), a(1))
	case OpOr:
		r = lb.NewOr(a(0), a(1))
	case OpXor:
		r = lb.NewXor(a(0), a(1))
	case OpShl:
		r = lb.NewShl(a(0), a(1))
	case OpLShr:
		r = lb.NewLShr(a(0), a(1))
	case OpAShr:
		r = lb.NewAShr(a(0), a(1))
	case OpICmp, OpFCmp:
		var c value.Value
		if v.Op == OpICmp {
			c = lb.NewICmp(llIPred[v.Pred()], a(0), a(1))
		} else {
			c = lb.NewFCmp(llFPred[v.Pred()], a(0), a(1))
		}
		if v.Type.IsVector() {
			c = lb.NewSExt(c, llType(v.Type))
		}
		r = c
	case OpTrunc:
		r = lb.NewTrunc(a(0), llType(v.Type))
	case OpZExt:
		r = lb.NewZExt(a(0), llType(v.Type))
	case OpSExt:
		r = lb.NewSExt(a(0), llType(v.Type))
	case OpFPToSI:
		r = lb.NewFPToSI(a(0), llType(v.Type))
	case OpFPToUI:
		r = lb.NewFPToUI(a(0), llType(v.Type))
	case OpSIToFP:
		r = lb.NewSIToFP(a(0), llType(v.Type))
	case OpUIToFP:
		r = lb.NewUIToFP(a(0), llType(v.Type))
	case OpBitcast:
		r = lb.NewBitCast(a(0), llType(v.Type))
	case OpPtrToInt:
		r = lb.NewPtrToInt(a(0), llType(v.Type))
	case OpIntToPtr:
		r = lb.NewIntToPtr(a(0), llType(v.Type))
	case OpAlloca:
		alloca := lb.NewAlloca(lltypes.NewArray(uint64(v.AuxInt), lltypes.I8))
		alloca.Align = llir.Align(16)
		r = lb.NewBitCast(alloca, lltypes.I8Ptr)
	case OpLoad:
		ld := lb.NewLoad(llType(v.Type), x.typedPtr(lb, a(0), v.Type))
		ld.Align = llir.Align(v.AuxInt)
		ld.Volatile = v.Volatile
		r = ld
	case OpStore:
		st := lb.NewStore(a(0), x.typedPtr(lb, a(1), v.Args[0].Type))
		st.Align = llir.Align(v.AuxInt)
		st.Volatile = v.Volatile
	case OpGEP:
		elem := lltypes.NewArray(uint64(v.AuxInt), lltypes.I8)
		base := lb.NewBitCast(a(0), lltypes.NewPointer(elem))
		r = lb.NewBitCast(lb.NewGetElementPtr(elem, base, a(1)), lltypes.I8Ptr)
	case OpExtract:
		r = lb.NewExtractElement(a(0), constant.NewInt(lltypes.I32, v.AuxInt))
	case OpInsert:
		r = lb.NewInsertElement(a(0), a(1), constant.NewInt(lltypes.I32, v.AuxInt))
	case OpShuffle:
		r = x.shuffle(lb, v)
	case OpSelect:
		cond := a(0)
		if v.Args[0].Type.IsVector() {
			zero := make([]uint64, v.Args[0].Type.NumLanes())
			cond = lb.NewICmp(enum.IPredNE, cond, llVectorConst(v.Args[0].Type, zero))
		}
		r = lb.NewSelect(cond, a(1), a(2))
	case OpCall:
		params := make([]lltypes.Type, len(v.Args)-1)
		args := make([]value.Value, len(v.Args)-1)
		for i, arg := range v.Args[1:] {
			params[i] = llType(arg.Type)
			args[i] = x.use(arg)
		}
		sig := lltypes.NewPointer(lltypes.NewFunc(llType(v.Type), params...))
		r = lb.NewCall(lb.NewBitCast(a(0), sig), args...)
	case OpIntrinsic:
		types := make([]Type, len(v.Args))
		args := make([]value.Value, len(v.Args))
		for i, arg := range v.Args {
			types[i] = arg.Type
			args[i] = x.use(arg)
		}
		name := fmt.Sprintf("reactor.%s.%s", v.Intrinsic(), mangle(v.Type))
		r = lb.NewCall(x.declare(name, v.Type, types...), args...)
	case OpPhi:
		phi := lb.NewPhi(llir.NewIncoming(constant.NewUndef(llType(v.Type)), lb))
		x.phis = append(x.phis, v)
		r = phi
	case OpCopy:
		// 用 select true 表达一次复制
		r = lb.NewSelect(constant.NewBool(true), a(0), a(0))
	default:
		return fmt.Errorf("%w: no LLVM form for %s", ErrInvalid, v.Op)
	}

	if r != nil {
		if n, ok := r.(value.Named); ok && !isConstant(r) && !v.Type.IsVoid() {
			n.SetName(v.String())
		}
		x.values[v] = r
	}
	return nil
}

func isConstant(v value.Value) bool {
	_, ok := v.(constant.Constant)
	return ok
}

func (x *llvmExporter) shuffle(lb *llir.Block, v *Value) value.Value {
	mask := make([]constant.Constant, len(v.Mask))
	zeroLane := false
	for i, m := range v.Mask {
		if m < 0 {
			zeroLane = true
			m = 0
		}
		mask[i] = constant.NewInt(lltypes.I32, int64(m))
	}
	masks := &constant.Vector{Typ: lltypes.NewVector(uint64(len(mask)), lltypes.I32), Elems: mask}
	r := value.Value(lb.NewShuffleVector(x.use(v.Args[0]), x.use(v.Args[1]), masks))
	if zeroLane {
		keep := make([]uint64, len(v.Mask))
		for i, m := range v.Mask {
			if m >= 0 {
				keep[i] = ^uint64(0)
			}
		}
		it := v.Type.MaskType()
		bits := lb.NewBitCast(r, llType(it))
		r = lb.NewBitCast(lb.NewAnd(bits, llVectorConst(it, keep)), llType(v.Type))
	}
	return r
}

func (x *llvmExporter) terminator(lb *llir.Block, b *Block) error {
	switch b.Kind {
	case BlockPlain:
		lb.NewBr(x.blocks[b.Succs[0]])
	case BlockIf:
		lb.NewCondBr(x.use(b.Control), x.blocks[b.Succs[0]], x.blocks[b.Succs[1]])
	case BlockRet:
		if b.Control == nil {
			lb.NewRet(nil)
		} else {
			lb.NewRet(x.use(b.Control))
		}
	case BlockUnreachable:
		lb.NewUnreachable()
	default:
		return fmt.Errorf("%w: %s has no terminator", ErrInvalid, b)
	}
	return nil
}

func mangle(t Type) string {
	if t.IsVector() {
		return fmt.Sprintf("v%d%s", t.Lanes, t.Elem)
	}
	return t.Kind.String()
}
