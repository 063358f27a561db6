package ir

import (
	"encoding/binary"
	"math"
)

// ============================================================================
// 常量求值
//
// 这里的求值规则与 jit 包生成的机器码逐位一致：
// - 整数运算在 64 位上进行后截断（二进制补码回绕）
// - 移位次数取 64 位扩展值的低 6 位
// - 除零、i64 的 MIN/-1 不折叠（机器码会陷入）
// - 浮点运算按 float32 舍入到最近偶数
// ============================================================================

// SignExtend 按种类宽度做符号扩展
func SignExtend(k Kind, bits uint64) int64 {
	switch k {
	case KindI1:
		if bits&1 != 0 {
			return -1
		}
		return 0
	case KindI8:
		return int64(int8(bits))
	case KindI16:
		return int64(int16(bits))
	case KindI32:
		return int64(int32(bits))
	}
	return int64(bits)
}

// MinSigned 种类的最小有符号值（截断后的位模式）
func MinSigned(k Kind) uint64 {
	return Canon(k, uint64(1)<<(uint(k.Bits())-1))
}

func f32(bits uint64) float32 {
	return math.Float32frombits(uint32(bits))
}

func f32bits(f float32) uint64 {
	return uint64(math.Float32bits(f))
}

// EvalBinary 计算一个通道的二元运算
func EvalBinary(op Op, k Kind, a, b uint64) (uint64, bool) {
	var r uint64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpAnd:
		r = a & b
	case OpOr:
		r = a | b
	case OpXor:
		r = a ^ b
	case OpShl:
		r = a << (b & 63)
	case OpLShr:
		r = a >> (b & 63)
	case OpAShr:
		r = uint64(SignExtend(k, a) >> (b & 63))
	case OpSDiv, OpSRem:
		if b == 0 || (k == KindI64 && a == MinSigned(KindI64) && Canon(k, b) == Canon(k, ^uint64(0))) {
			return 0, false
		}
		x, y := SignExtend(k, a), SignExtend(k, b)
		if op == OpSDiv {
			r = uint64(x / y)
		} else {
			r = uint64(x % y)
		}
	case OpUDiv, OpURem:
		if b == 0 {
			return 0, false
		}
		if op == OpUDiv {
			r = a / b
		} else {
			r = a % b
		}
	case OpFAdd:
		r = f32bits(f32(a) + f32(b))
	case OpFSub:
		r = f32bits(f32(a) - f32(b))
	case OpFMul:
		r = f32bits(f32(a) * f32(b))
	case OpFDiv:
		r = f32bits(f32(a) / f32(b))
	case OpFMin:
		// 与 MINSS 一致：a < b ? a : b
		if f32(a) < f32(b) {
			r = a
		} else {
			r = b
		}
	case OpFMax:
		if f32(a) > f32(b) {
			r = a
		} else {
			r = b
		}
	default:
		return 0, false
	}
	return Canon(k, r), true
}

// EvalCompare 计算一个通道的比较
func EvalCompare(p Predicate, k Kind, a, b uint64) bool {
	if p.IsFloat() {
		x, y := f32(a), f32(b)
		unordered := x != x || y != y
		switch p {
		case PredOEQ:
			return !unordered && x == y
		case PredONE:
			return !unordered && x != y
		case PredOLT:
			return !unordered && x < y
		case PredOLE:
			return !unordered && x <= y
		case PredOGT:
			return !unordered && x > y
		case PredOGE:
			return !unordered && x >= y
		case PredORD:
			return !unordered
		case PredUNO:
			return unordered
		case PredUEQ:
			return unordered || x == y
		case PredUNE:
			return unordered || x != y
		case PredULTF:
			return unordered || x < y
		case PredULEF:
			return unordered || x <= y
		case PredUGTF:
			return unordered || x > y
		case PredUGEF:
			return unordered || x >= y
		}
		return false
	}
	sa, sb := SignExtend(k, a), SignExtend(k, b)
	switch p {
	case PredEQ:
		return a == b
	case PredNE:
		return a != b
	case PredSLT:
		return sa < sb
	case PredSLE:
		return sa <= sb
	case PredSGT:
		return sa > sb
	case PredSGE:
		return sa >= sb
	case PredULT:
		return a < b
	case PredULE:
		return a <= b
	case PredUGT:
		return a > b
	case PredUGE:
		return a >= b
	}
	return false
}

// EvalCast 计算一个通道的类型转换
func EvalCast(op Op, from, to Kind, bits uint64) (uint64, bool) {
	switch op {
	case OpTrunc, OpZExt, OpPtrToInt, OpIntToPtr:
		return Canon(to, bits), true
	case OpSExt:
		return Canon(to, uint64(SignExtend(from, bits))), true
	case OpFPToSI, OpFPToUI:
		f := f32(bits)
		if f != f || f >= 9.223372e18 || f <= -9.223372e18 {
			return 0, false
		}
		return Canon(to, uint64(int64(f))), true
	case OpSIToFP:
		return f32bits(float32(SignExtend(from, bits))), true
	case OpUIToFP:
		return f32bits(float32(bits)), true
	}
	return 0, false
}

// Bytes 把常量的通道位模式按内存布局展开
func Bytes(t Type, lanes []uint64) []byte {
	es := t.ElemKind().Size()
	buf := make([]byte, t.NumLanes()*es)
	var tmp [8]byte
	for i := 0; i < t.NumLanes(); i++ {
		binary.LittleEndian.PutUint64(tmp[:], lanes[i])
		copy(buf[i*es:], tmp[:es])
	}
	return buf
}

// FromBytes 从内存布局恢复通道位模式
func FromBytes(t Type, buf []byte) []uint64 {
	es := t.ElemKind().Size()
	lanes := make([]uint64, t.NumLanes())
	var tmp [8]byte
	for i := range lanes {
		tmp = [8]byte{}
		copy(tmp[:es], buf[i*es:])
		lanes[i] = Canon(t.ElemKind(), binary.LittleEndian.Uint64(tmp[:]))
	}
	return lanes
}

// constLanes 返回常量值的通道，不是常量时返回 nil
func constLanes(v *Value) []uint64 {
	if v.Op != OpConst {
		return nil
	}
	if v.Type.IsVector() {
		return v.Lanes
	}
	return []uint64{uint64(v.AuxInt)}
}

// Fold 尝试用常量参数计算 v，结果按通道返回
func Fold(v *Value) ([]uint64, bool) {
	args := make([][]uint64, len(v.Args))
	for i, a := range v.Args {
		if args[i] = constLanes(a); args[i] == nil {
			return nil, false
		}
	}
	return FoldLanes(v, args)
}

// FoldLanes 用给定的常量参数通道计算 v
func FoldLanes(v *Value, args [][]uint64) ([]uint64, bool) {
	n := v.Type.NumLanes()
	out := make([]uint64, n)
	switch {
	case v.Op.IsBinary():
		k := v.Type.ElemKind()
		for i := 0; i < n; i++ {
			r, ok := EvalBinary(v.Op, k, args[0][i], args[1][i])
			if !ok {
				return nil, false
			}
			out[i] = r
		}
	case v.Op == OpFNeg:
		for i := 0; i < n; i++ {
			out[i] = args[0][i] ^ 0x80000000
		}
	case v.Op == OpFSqrt:
		for i := 0; i < n; i++ {
			out[i] = f32bits(float32(math.Sqrt(float64(f32(args[0][i])))))
		}
	case v.Op == OpICmp || v.Op == OpFCmp:
		k := v.Args[0].Type.ElemKind()
		for i := 0; i < n; i++ {
			if EvalCompare(v.Pred(), k, args[0][i], args[1][i]) {
				out[i] = Canon(v.Type.ElemKind(), ^uint64(0))
			}
		}
	case v.Op == OpBitcast:
		return FromBytes(v.Type, Bytes(v.Args[0].Type, args[0])), true
	case v.Op.IsCast():
		from := v.Args[0].Type.ElemKind()
		for i := 0; i < n; i++ {
			r, ok := EvalCast(v.Op, from, v.Type.ElemKind(), args[0][i])
			if !ok {
				return nil, false
			}
			out[i] = r
		}
	case v.Op == OpSelect:
		if !v.Args[0].Type.IsVector() {
			if args[0][0] != 0 {
				return append(out[:0], args[1]...), true
			}
			return append(out[:0], args[2]...), true
		}
		for i := 0; i < n; i++ {
			if args[0][i] != 0 {
				out[i] = args[1][i]
			} else {
				out[i] = args[2][i]
			}
		}
	case v.Op == OpExtract:
		out[0] = args[0][v.AuxInt]
	case v.Op == OpInsert:
		copy(out, args[0])
		out[v.AuxInt] = args[1][0]
	case v.Op == OpShuffle:
		na := v.Args[0].Type.NumLanes()
		for i, m := range v.Mask {
			switch {
			case m < 0:
				out[i] = 0
			case m < na:
				out[i] = args[0][m]
			default:
				out[i] = args[1][m-na]
			}
		}
	case v.Op == OpCopy:
		copy(out, args[0])
	default:
		return nil, false
	}
	return out, true
}
