package ir

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrInvalid IR 校验失败
var ErrInvalid = errors.New("invalid IR")

type verifier struct {
	f    *Function
	dom  *DomTree
	pos  map[*Value]int
	errs error
}

func (vf *verifier) fail(format string, args ...interface{}) {
	vf.errs = multierr.Append(vf.errs, fmt.Errorf("%w: %s: %s", ErrInvalid, vf.f.Name, fmt.Sprintf(format, args...)))
}

// Verify 检查函数的结构与类型一致性，返回所有发现的问题
func Verify(f *Function) error {
	vf := &verifier{f: f, dom: f.Dominators(), pos: map[*Value]int{}}
	for _, b := range f.Blocks {
		for i, v := range b.Values {
			vf.pos[v] = i
		}
	}
	for _, b := range f.Blocks {
		vf.checkBlock(b)
	}
	return vf.errs
}

func (vf *verifier) checkBlock(b *Block) {
	f := vf.f
	if b.Func != f {
		vf.fail("%s belongs to another function", b)
	}
	for _, s := range b.Succs {
		if s.PredIndex(b) < 0 {
			vf.fail("%s -> %s missing from preds", b, s)
		}
	}
	for _, p := range b.Preds {
		found := false
		for _, s := range p.Succs {
			if s == b {
				found = true
			}
		}
		if !found {
			vf.fail("%s lists pred %s without edge", b, p)
		}
	}

	switch b.Kind {
	case BlockOpen:
		vf.fail("%s has no terminator", b)
	case BlockPlain:
		if len(b.Succs) != 1 {
			vf.fail("%s: br needs 1 successor", b)
		}
	case BlockIf:
		if len(b.Succs) != 2 {
			vf.fail("%s: condbr needs 2 successors", b)
		}
		if b.Control == nil || b.Control.Type != I1 {
			vf.fail("%s: condbr condition must be i1", b)
		} else {
			vf.checkUse(b, len(b.Values), b.Control)
		}
	case BlockRet:
		switch {
		case f.Ret.IsVoid() && b.Control != nil:
			vf.fail("%s: ret value in void function", b)
		case !f.Ret.IsVoid() && (b.Control == nil || b.Control.Type != f.Ret):
			vf.fail("%s: ret type mismatch, want %s", b, f.Ret)
		case b.Control != nil:
			vf.checkUse(b, len(b.Values), b.Control)
		}
	}

	seenNonPhi := false
	for i, v := range b.Values {
		if v.Block != b {
			vf.fail("%s: %s has wrong block", b, v)
		}
		if v.Op == OpPhi {
			if seenNonPhi {
				vf.fail("%s: phi %s after non-phi", b, v)
			}
			if len(v.Args) != len(b.Preds) {
				vf.fail("%s: phi %s has %d args for %d preds", b, v, len(v.Args), len(b.Preds))
				continue
			}
			for j, a := range v.Args {
				if a.Type != v.Type {
					vf.fail("%s: phi %s arg type %s", b, v, a.Type)
				}
				vf.checkUse(b.Preds[j], len(b.Preds[j].Values), a)
			}
			continue
		}
		if v.Op != OpParam {
			seenNonPhi = true
		}
		for _, a := range v.Args {
			vf.checkUse(b, i, a)
		}
		vf.checkTypes(v)
	}
}

// checkUse 检查 a 的定义支配 b 中第 pos 个位置的使用
func (vf *verifier) checkUse(b *Block, pos int, a *Value) {
	if a == nil {
		vf.fail("%s: nil operand", b)
		return
	}
	if a.Block == nil || a.Block.Func != vf.f {
		vf.fail("%s: operand %s is not defined in function", b, a)
		return
	}
	if !vf.dom.Reachable(b) {
		return
	}
	if a.Block == b {
		if vf.pos[a] >= pos {
			vf.fail("%s: %s used before definition", b, a)
		}
		return
	}
	if !vf.dom.Dominates(a.Block, b) {
		vf.fail("%s: definition of %s does not dominate use", b, a)
	}
}

func (vf *verifier) checkTypes(v *Value) {
	want := func(cond bool, what string) {
		if !cond {
			vf.fail("%s: %s", v.LongString(), what)
		}
	}
	nargs := func(n int) bool {
		if len(v.Args) != n {
			vf.fail("%s: want %d operands", v.LongString(), n)
			return false
		}
		return true
	}

	switch {
	case v.Op.IsBinary():
		if !nargs(2) {
			return
		}
		want(v.Args[0].Type == v.Type && v.Args[1].Type == v.Type, "operand types differ from result")
		switch v.Op {
		case OpFAdd, OpFSub, OpFMul, OpFDiv, OpFMin, OpFMax:
			want(v.Type.IsFloat(), "float op on non-float")
		default:
			want(v.Type.IsInt(), "integer op on non-integer")
		}
	case v.Op == OpFNeg || v.Op == OpFSqrt:
		if nargs(1) {
			want(v.Type.IsFloat() && v.Args[0].Type == v.Type, "float unary type")
		}
	case v.Op == OpICmp || v.Op == OpFCmp:
		if !nargs(2) {
			return
		}
		a := v.Args[0].Type
		want(a == v.Args[1].Type, "compare operand types differ")
		want(v.Type == a.MaskType(), "compare result must be the mask type")
		want(v.Pred().IsFloat() == (v.Op == OpFCmp), "predicate class")
		if v.Op == OpICmp {
			want(a.IsInt() || a.IsPtr(), "icmp on non-integer")
		} else {
			want(a.IsFloat(), "fcmp on non-float")
		}
	case v.Op.IsCast():
		if !nargs(1) {
			return
		}
		vf.checkCast(v)
	case v.Op == OpAlloca:
		want(v.Block == vf.f.Entry(), "alloca outside entry block")
		want(v.Type == Ptr && v.AuxInt > 0, "alloca must produce a pointer to a positive size")
	case v.Op == OpLoad:
		if nargs(1) {
			want(v.Args[0].Type == Ptr, "load from non-pointer")
		}
	case v.Op == OpStore:
		if nargs(2) {
			want(v.Args[1].Type == Ptr && v.Type == Void, "store shape")
		}
	case v.Op == OpGEP:
		if nargs(2) {
			want(v.Args[0].Type == Ptr && v.Args[1].Type.IsInt() && !v.Args[1].Type.IsVector() && v.Type == Ptr, "gep shape")
		}
	case v.Op == OpExtract:
		if nargs(1) {
			a := v.Args[0].Type
			want(a.IsVector() && v.AuxInt >= 0 && int(v.AuxInt) < a.NumLanes() && v.Type == a.ElemType(), "extractelement shape")
		}
	case v.Op == OpInsert:
		if nargs(2) {
			a := v.Args[0].Type
			want(a.IsVector() && v.Type == a && v.Args[1].Type == a.ElemType() && v.AuxInt >= 0 && int(v.AuxInt) < a.NumLanes(), "insertelement shape")
		}
	case v.Op == OpShuffle:
		if nargs(2) {
			a := v.Args[0].Type
			want(a.IsVector() && v.Args[1].Type == a, "shufflevector operands")
			want(v.Type.IsVector() && v.Type.ElemKind() == a.ElemKind() && len(v.Mask) == v.Type.NumLanes(), "shufflevector result")
			for _, m := range v.Mask {
				want(m < 2*a.NumLanes(), "shufflevector selector out of range")
			}
		}
	case v.Op == OpSelect:
		if nargs(3) {
			c := v.Args[0].Type
			want(v.Args[1].Type == v.Type && v.Args[2].Type == v.Type, "select arm types")
			want(c == I1 || (c.IsVector() && c.IsInt() && c.NumLanes() == v.Type.NumLanes()), "select condition")
		}
	case v.Op == OpCall:
		want(len(v.Args) >= 1 && v.Args[0].Type == Ptr, "call target must be a pointer")
	case v.Op == OpCopy:
		if nargs(1) {
			want(v.Args[0].Type == v.Type, "copy type")
		}
	case v.Op == OpConst:
		want(!v.Type.IsVector() || len(v.Lanes) == v.Type.NumLanes(), "vector constant lanes")
	case v.Op == OpGlobalAddr:
		want(v.Global != nil && v.Type == Ptr, "global address")
	}
}

func (vf *verifier) checkCast(v *Value) {
	from, to := v.Args[0].Type, v.Type
	bad := func(what string) {
		vf.fail("%s: %s from %s to %s", v.LongString(), what, from, to)
	}
	if v.Op == OpBitcast {
		if from.Size() != to.Size() || from.Kind == KindI1 {
			bad("bitcast size")
		}
		return
	}
	if from.NumLanes() != to.NumLanes() {
		bad("lane count")
		return
	}
	fk, tk := from.ElemKind(), to.ElemKind()
	switch v.Op {
	case OpTrunc:
		if !fk.IsInt() || !tk.IsInt() || tk.Bits() >= fk.Bits() {
			bad("trunc")
		}
	case OpZExt, OpSExt:
		if !fk.IsInt() || !tk.IsInt() || tk.Bits() <= fk.Bits() {
			bad("extension")
		}
	case OpFPToSI, OpFPToUI:
		if fk != KindF32 || !tk.IsInt() || tk == KindI1 {
			bad("float to int")
		}
	case OpSIToFP, OpUIToFP:
		if !fk.IsInt() || tk != KindF32 {
			bad("int to float")
		}
	case OpPtrToInt:
		if fk != KindPtr || !tk.IsInt() {
			bad("ptrtoint")
		}
	case OpIntToPtr:
		if !fk.IsInt() || tk != KindPtr {
			bad("inttoptr")
		}
	}
}
