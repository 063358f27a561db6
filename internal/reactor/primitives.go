package reactor

import (
	"math"

	"github.com/tangzhangming/reactor/internal/ir"
)

// ============================================================================
// 算术
// ============================================================================
//
// 每个原语只在插入块追加一个 IR 值，不附加任何语义。
// 类型检查交给 DSL 层和 ir.Verify。

func (c *Context) binary(op ir.Op, x, y *ir.Value) *ir.Value {
	return c.emit(op, x.Type, x, y)
}

// CreateAdd 整数加法（二进制补码回绕）
func (c *Context) CreateAdd(x, y *ir.Value) *ir.Value { return c.binary(ir.OpAdd, x, y) }

// CreateSub 整数减法
func (c *Context) CreateSub(x, y *ir.Value) *ir.Value { return c.binary(ir.OpSub, x, y) }

// CreateMul 整数乘法
func (c *Context) CreateMul(x, y *ir.Value) *ir.Value { return c.binary(ir.OpMul, x, y) }

// CreateSDiv 有符号除法（除数为零或 MIN/-1 时行为未定义）
func (c *Context) CreateSDiv(x, y *ir.Value) *ir.Value { return c.binary(ir.OpSDiv, x, y) }

// CreateUDiv 无符号除法
func (c *Context) CreateUDiv(x, y *ir.Value) *ir.Value { return c.binary(ir.OpUDiv, x, y) }

// CreateSRem 有符号取余
func (c *Context) CreateSRem(x, y *ir.Value) *ir.Value { return c.binary(ir.OpSRem, x, y) }

// CreateURem 无符号取余
func (c *Context) CreateURem(x, y *ir.Value) *ir.Value { return c.binary(ir.OpURem, x, y) }

// CreateFAdd 浮点加法
func (c *Context) CreateFAdd(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFAdd, x, y) }

// CreateFSub 浮点减法
func (c *Context) CreateFSub(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFSub, x, y) }

// CreateFMul 浮点乘法
func (c *Context) CreateFMul(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFMul, x, y) }

// CreateFDiv 浮点除法
func (c *Context) CreateFDiv(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFDiv, x, y) }

// CreateFMin 浮点最小值（minps 语义：有 NaN 时返回第二个操作数）
func (c *Context) CreateFMin(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFMin, x, y) }

// CreateFMax 浮点最大值
func (c *Context) CreateFMax(x, y *ir.Value) *ir.Value { return c.binary(ir.OpFMax, x, y) }

// CreateFSqrt 平方根
func (c *Context) CreateFSqrt(x *ir.Value) *ir.Value { return c.emit(ir.OpFSqrt, x.Type, x) }

// CreateFNeg 浮点取负（翻转符号位）
func (c *Context) CreateFNeg(x *ir.Value) *ir.Value { return c.emit(ir.OpFNeg, x.Type, x) }

// ============================================================================
// 位运算
// ============================================================================

// CreateAnd 按位与
func (c *Context) CreateAnd(x, y *ir.Value) *ir.Value { return c.binary(ir.OpAnd, x, y) }

// CreateOr 按位或
func (c *Context) CreateOr(x, y *ir.Value) *ir.Value { return c.binary(ir.OpOr, x, y) }

// CreateXor 按位异或
func (c *Context) CreateXor(x, y *ir.Value) *ir.Value { return c.binary(ir.OpXor, x, y) }

// CreateShl 左移
func (c *Context) CreateShl(x, y *ir.Value) *ir.Value { return c.binary(ir.OpShl, x, y) }

// CreateLShr 逻辑右移
func (c *Context) CreateLShr(x, y *ir.Value) *ir.Value { return c.binary(ir.OpLShr, x, y) }

// CreateAShr 算术右移
func (c *Context) CreateAShr(x, y *ir.Value) *ir.Value { return c.binary(ir.OpAShr, x, y) }

// CreateNeg 整数取负：0 - x
func (c *Context) CreateNeg(x *ir.Value) *ir.Value {
	return c.CreateSub(c.CreateNull(x.Type), x)
}

// CreateNot 按位取反：x ^ -1
func (c *Context) CreateNot(x *ir.Value) *ir.Value {
	return c.CreateXor(x, c.CreateAllOnes(x.Type))
}

// ============================================================================
// 比较
// ============================================================================

// CreateICmp 整数/指针比较，结果是掩码类型（标量为 i1）
func (c *Context) CreateICmp(p ir.Predicate, x, y *ir.Value) *ir.Value {
	v := c.emit(ir.OpICmp, x.Type.MaskType(), x, y)
	v.AuxInt = int64(p)
	return v
}

// CreateFCmp 浮点比较
func (c *Context) CreateFCmp(p ir.Predicate, x, y *ir.Value) *ir.Value {
	v := c.emit(ir.OpFCmp, x.Type.MaskType(), x, y)
	v.AuxInt = int64(p)
	return v
}

func (c *Context) CreateICmpEQ(x, y *ir.Value) *ir.Value  { return c.CreateICmp(ir.PredEQ, x, y) }
func (c *Context) CreateICmpNE(x, y *ir.Value) *ir.Value  { return c.CreateICmp(ir.PredNE, x, y) }
func (c *Context) CreateICmpSLT(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredSLT, x, y) }
func (c *Context) CreateICmpSLE(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredSLE, x, y) }
func (c *Context) CreateICmpSGT(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredSGT, x, y) }
func (c *Context) CreateICmpSGE(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredSGE, x, y) }
func (c *Context) CreateICmpULT(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredULT, x, y) }
func (c *Context) CreateICmpULE(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredULE, x, y) }
func (c *Context) CreateICmpUGT(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredUGT, x, y) }
func (c *Context) CreateICmpUGE(x, y *ir.Value) *ir.Value { return c.CreateICmp(ir.PredUGE, x, y) }

func (c *Context) CreateFCmpOEQ(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredOEQ, x, y) }
func (c *Context) CreateFCmpONE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredONE, x, y) }
func (c *Context) CreateFCmpOLT(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredOLT, x, y) }
func (c *Context) CreateFCmpOLE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredOLE, x, y) }
func (c *Context) CreateFCmpOGT(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredOGT, x, y) }
func (c *Context) CreateFCmpOGE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredOGE, x, y) }
func (c *Context) CreateFCmpORD(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredORD, x, y) }
func (c *Context) CreateFCmpUNO(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredUNO, x, y) }
func (c *Context) CreateFCmpUEQ(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredUEQ, x, y) }
func (c *Context) CreateFCmpUNE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredUNE, x, y) }
func (c *Context) CreateFCmpULT(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredULTF, x, y) }
func (c *Context) CreateFCmpULE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredULEF, x, y) }
func (c *Context) CreateFCmpUGT(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredUGTF, x, y) }
func (c *Context) CreateFCmpUGE(x, y *ir.Value) *ir.Value { return c.CreateFCmp(ir.PredUGEF, x, y) }

// ============================================================================
// 类型转换
// ============================================================================

func (c *Context) cast(op ir.Op, x *ir.Value, to ir.Type) *ir.Value {
	return c.emit(op, to, x)
}

// CreateTrunc 截断到更窄的整数
func (c *Context) CreateTrunc(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpTrunc, x, to) }

// CreateZExt 零扩展
func (c *Context) CreateZExt(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpZExt, x, to) }

// CreateSExt 符号扩展
func (c *Context) CreateSExt(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpSExt, x, to) }

// CreateFPToSI 浮点转有符号整数（向零截断）
func (c *Context) CreateFPToSI(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpFPToSI, x, to) }

// CreateFPToUI 浮点转无符号整数
func (c *Context) CreateFPToUI(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpFPToUI, x, to) }

// CreateSIToFP 有符号整数转浮点
func (c *Context) CreateSIToFP(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpSIToFP, x, to) }

// CreateUIToFP 无符号整数转浮点
func (c *Context) CreateUIToFP(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpUIToFP, x, to) }

// CreateBitCast 按位重新解释（大小必须相同）
func (c *Context) CreateBitCast(x *ir.Value, to ir.Type) *ir.Value { return c.cast(ir.OpBitcast, x, to) }

// CreatePtrToInt 指针转整数
func (c *Context) CreatePtrToInt(x *ir.Value, to ir.Type) *ir.Value {
	return c.cast(ir.OpPtrToInt, x, to)
}

// CreateIntToPtr 整数转指针
func (c *Context) CreateIntToPtr(x *ir.Value) *ir.Value { return c.cast(ir.OpIntToPtr, x, ir.Ptr) }

// ============================================================================
// 常量
// ============================================================================

// CreateConstInt 整数常量（位模式截断到类型宽度）
func (c *Context) CreateConstInt(t ir.Type, bits uint64) *ir.Value {
	v := c.emit(ir.OpConst, t)
	v.AuxInt = int64(ir.Canon(t.Kind, bits))
	return v
}

// CreateConstFloat 单精度浮点常量
func (c *Context) CreateConstFloat(f float32) *ir.Value {
	return c.CreateConstInt(ir.F32, uint64(math.Float32bits(f)))
}

// CreateConstBool 布尔常量
func (c *Context) CreateConstBool(b bool) *ir.Value {
	if b {
		return c.CreateConstInt(ir.I1, 1)
	}
	return c.CreateConstInt(ir.I1, 0)
}

// CreateConstPointer 指针常量（指向进程中已有的内存）
func (c *Context) CreateConstPointer(addr uintptr) *ir.Value {
	return c.CreateConstInt(ir.Ptr, uint64(addr))
}

// CreateConstVector 向量常量，lanes 为每个通道的位模式
func (c *Context) CreateConstVector(t ir.Type, lanes []uint64) *ir.Value {
	v := c.emit(ir.OpConst, t)
	v.Lanes = make([]uint64, t.NumLanes())
	for i := range v.Lanes {
		v.Lanes[i] = ir.Canon(t.Elem, lanes[i])
	}
	return v
}

// CreateSplat 每个通道都是 bits 的常量（标量类型时就是普通常量）
func (c *Context) CreateSplat(t ir.Type, bits uint64) *ir.Value {
	if !t.IsVector() {
		return c.CreateConstInt(t, bits)
	}
	lanes := make([]uint64, t.NumLanes())
	for i := range lanes {
		lanes[i] = bits
	}
	return c.CreateConstVector(t, lanes)
}

// CreateNull 类型的零值
func (c *Context) CreateNull(t ir.Type) *ir.Value {
	return c.CreateSplat(t, 0)
}

// CreateAllOnes 所有位为 1 的值
func (c *Context) CreateAllOnes(t ir.Type) *ir.Value {
	return c.CreateSplat(t, math.MaxUint64)
}

// CreateGlobal 添加只读全局数据并返回它的地址
func (c *Context) CreateGlobal(name string, data []byte, align int) *ir.Value {
	g := c.module.AddGlobal(name, data, align)
	v := c.emit(ir.OpGlobalAddr, ir.Ptr)
	v.Global = g
	return v
}
