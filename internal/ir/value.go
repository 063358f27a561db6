package ir

import (
	"fmt"
)

// ============================================================================
// 操作码
// ============================================================================

// Op IR 操作码
type Op uint8

const (
	OpInvalid Op = iota

	// 参数与常量
	OpParam
	OpConst
	OpGlobalAddr

	// 整数算术
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem

	// 浮点算术
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFMin
	OpFMax
	OpFSqrt
	OpFNeg

	// 位运算
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	// 比较
	OpICmp
	OpFCmp

	// 类型转换
	OpTrunc
	OpZExt
	OpSExt
	OpFPToSI
	OpFPToUI
	OpSIToFP
	OpUIToFP
	OpBitcast
	OpPtrToInt
	OpIntToPtr

	// 内存
	OpAlloca
	OpLoad
	OpStore
	OpGEP

	// 向量
	OpExtract
	OpInsert
	OpShuffle
	OpSelect

	// 调用
	OpCall
	OpIntrinsic

	// SSA
	OpPhi
	OpCopy
)

var opNames = [...]string{
	OpInvalid:    "invalid",
	OpParam:      "param",
	OpConst:      "const",
	OpGlobalAddr: "globaladdr",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpSDiv:       "sdiv",
	OpUDiv:       "udiv",
	OpSRem:       "srem",
	OpURem:       "urem",
	OpFAdd:       "fadd",
	OpFSub:       "fsub",
	OpFMul:       "fmul",
	OpFDiv:       "fdiv",
	OpFMin:       "fmin",
	OpFMax:       "fmax",
	OpFSqrt:      "fsqrt",
	OpFNeg:       "fneg",
	OpAnd:        "and",
	OpOr:         "or",
	OpXor:        "xor",
	OpShl:        "shl",
	OpLShr:       "lshr",
	OpAShr:       "ashr",
	OpICmp:       "icmp",
	OpFCmp:       "fcmp",
	OpTrunc:      "trunc",
	OpZExt:       "zext",
	OpSExt:       "sext",
	OpFPToSI:     "fptosi",
	OpFPToUI:     "fptoui",
	OpSIToFP:     "sitofp",
	OpUIToFP:     "uitofp",
	OpBitcast:    "bitcast",
	OpPtrToInt:   "ptrtoint",
	OpIntToPtr:   "inttoptr",
	OpAlloca:     "alloca",
	OpLoad:       "load",
	OpStore:      "store",
	OpGEP:        "gep",
	OpExtract:    "extractelement",
	OpInsert:     "insertelement",
	OpShuffle:    "shufflevector",
	OpSelect:     "select",
	OpCall:       "call",
	OpIntrinsic:  "intrinsic",
	OpPhi:        "phi",
	OpCopy:       "copy",
}

// String 返回操作码名称
func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// IsBinary 是否是二元算术/位运算
func (op Op) IsBinary() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpFAdd, OpFSub, OpFMul, OpFDiv, OpFMin, OpFMax,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr:
		return true
	}
	return false
}

// IsCommutative 是否满足交换律
func (op Op) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpXor, OpFAdd, OpFMul:
		return true
	}
	return false
}

// IsCast 是否是类型转换
func (op Op) IsCast() bool {
	return op >= OpTrunc && op <= OpIntToPtr
}

// HasSideEffects 是否有副作用（不能被删除或移动）
func (op Op) HasSideEffects() bool {
	switch op {
	case OpStore, OpCall:
		return true
	}
	return false
}

// ============================================================================
// 比较谓词
// ============================================================================

// Predicate 比较谓词
type Predicate uint8

const (
	// 整数谓词
	PredEQ Predicate = iota
	PredNE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
	PredULT
	PredULE
	PredUGT
	PredUGE

	// 浮点谓词（O = 有序，U = 无序）
	PredOEQ
	PredONE
	PredOLT
	PredOLE
	PredOGT
	PredOGE
	PredORD
	PredUNO
	PredUEQ
	PredUNE
	PredULTF
	PredULEF
	PredUGTF
	PredUGEF
)

var predNames = [...]string{
	"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "ule", "ugt", "uge",
	"oeq", "one", "olt", "ole", "ogt", "oge", "ord", "uno", "ueq", "une",
	"ult", "ule", "ugt", "uge",
}

// String 返回谓词名称
func (p Predicate) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("pred(%d)", p)
}

// IsFloat 是否是浮点谓词
func (p Predicate) IsFloat() bool {
	return p >= PredOEQ
}

// IsSigned 是否是有符号整数谓词
func (p Predicate) IsSigned() bool {
	return p >= PredSLT && p <= PredSGE
}

// Swapped 交换操作数后的等价谓词
func (p Predicate) Swapped() Predicate {
	switch p {
	case PredSLT:
		return PredSGT
	case PredSLE:
		return PredSGE
	case PredSGT:
		return PredSLT
	case PredSGE:
		return PredSLE
	case PredULT:
		return PredUGT
	case PredULE:
		return PredUGE
	case PredUGT:
		return PredULT
	case PredUGE:
		return PredULE
	case PredOLT:
		return PredOGT
	case PredOLE:
		return PredOGE
	case PredOGT:
		return PredOLT
	case PredOGE:
		return PredOLE
	case PredULTF:
		return PredUGTF
	case PredULEF:
		return PredUGEF
	case PredUGTF:
		return PredULTF
	case PredUGEF:
		return PredULEF
	}
	return p
}

// ============================================================================
// 内建函数
// ============================================================================

// Intrinsic 目标相关的内建操作
// 只有宿主 CPU 支持时才能使用，否则由上层用普通操作组合出等价实现。
type Intrinsic uint8

const (
	IntrNone Intrinsic = iota
	IntrAddSatS
	IntrAddSatU
	IntrSubSatS
	IntrSubSatU
	IntrMulHighS
	IntrMulHighU
	IntrAvgU
	IntrRcp
	IntrRsqrt
	IntrRound
	IntrPackSS
	IntrPackUS
)

var intrNames = [...]string{
	"none", "addsat.s", "addsat.u", "subsat.s", "subsat.u",
	"mulhigh.s", "mulhigh.u", "avg.u", "rcp", "rsqrt", "round",
	"packss", "packus",
}

// String 返回内建函数名称
func (i Intrinsic) String() string {
	if int(i) < len(intrNames) {
		return intrNames[i]
	}
	return fmt.Sprintf("intr(%d)", i)
}

// ============================================================================
// 值
// ============================================================================

// Value SSA 值（同时也是产生它的指令）
type Value struct {
	ID    int
	Op    Op
	Type  Type
	Args  []*Value
	Block *Block

	// AuxInt 按操作码解释：
	//   OpParam: 参数序号；OpConst: 标量常量的位模式
	//   OpICmp/OpFCmp: Predicate；OpExtract/OpInsert: 通道号
	//   OpLoad/OpStore: 对齐；OpAlloca: 字节数；OpGEP: 元素大小
	//   OpIntrinsic: Intrinsic
	AuxInt int64

	// Lanes 向量常量的逐通道位模式
	Lanes []uint64

	// Mask 洗牌选择子，-1 表示该通道为零
	Mask []int

	// Global OpGlobalAddr 引用的全局数据
	Global *Global

	// Volatile 易失访问（优化器不得删除或合并）
	Volatile bool
}

// String 返回值的引用名
func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("v%d", v.ID)
}

// IsConst 是否是常量
func (v *Value) IsConst() bool {
	return v.Op == OpConst
}

// ConstLane 返回常量的第 i 个通道位模式
func (v *Value) ConstLane(i int) uint64 {
	if v.Type.IsVector() {
		return v.Lanes[i]
	}
	return uint64(v.AuxInt)
}

// Pred 比较谓词
func (v *Value) Pred() Predicate {
	return Predicate(v.AuxInt)
}

// Intrinsic 内建函数编号
func (v *Value) Intrinsic() Intrinsic {
	return Intrinsic(v.AuxInt)
}

// IsPure 无副作用、只依赖操作数的值（可被 CSE/LICM/DCE 处理）
func (v *Value) IsPure() bool {
	switch v.Op {
	case OpStore, OpCall, OpLoad, OpAlloca, OpPhi, OpParam, OpInvalid:
		return false
	}
	return !v.Volatile
}

// SameConst 判断两个常量是否位相同
func SameConst(a, b *Value) bool {
	if a.Op != OpConst || b.Op != OpConst || a.Type != b.Type {
		return false
	}
	for i := 0; i < a.Type.NumLanes(); i++ {
		if a.ConstLane(i) != b.ConstLane(i) {
			return false
		}
	}
	return true
}
