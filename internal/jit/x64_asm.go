// x64_asm.go - x86-64 汇编器
//
// 提供代码生成用到的通用寄存器和 SSE 指令编码。
//
// x86-64 指令编码格式：
// [前缀] [REX] [操作码] [ModR/M] [SIB] [位移] [立即数]
//
// REX 前缀：用于扩展寄存器和操作数大小
// - REX.W: 64 位操作数
// - REX.R: 扩展 ModR/M.reg 字段
// - REX.X: 扩展 SIB.index 字段
// - REX.B: 扩展 ModR/M.r/m 或 SIB.base 字段
//
// 强制前缀（66/F3/F2）必须出现在 REX 之前。

package jit

import (
	"encoding/binary"
	"fmt"
)

// ============================================================================
// 寄存器定义
// ============================================================================

// X64Reg x86-64 通用寄存器
type X64Reg int

const (
	RAX X64Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	RegNone X64Reg = -1 // 无寄存器
)

var gprNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// String 返回寄存器名称
func (r X64Reg) String() string {
	if r >= 0 && int(r) < len(gprNames) {
		return gprNames[r]
	}
	return "???"
}

// IsExtended 检查是否是扩展寄存器（需要 REX 前缀）
func (r X64Reg) IsExtended() bool {
	return r >= R8 && r <= R15
}

// LowBits 获取寄存器编码的低 3 位
func (r X64Reg) LowBits() byte {
	return byte(r) & 0x7
}

// XReg SSE 寄存器
type XReg int

const (
	X0 XReg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
)

// String 返回寄存器名称
func (x XReg) String() string {
	return fmt.Sprintf("xmm%d", int(x))
}

// Cond 条件码（Jcc / SETcc / CMOVcc 的低 4 位）
type Cond byte

const (
	CondO  Cond = 0x0
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // 无符号 <，CF=1
	CondAE Cond = 0x3
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6
	CondA  Cond = 0x7
	CondS  Cond = 0x8
	CondNS Cond = 0x9
	CondP  Cond = 0xA
	CondNP Cond = 0xB
	CondL  Cond = 0xC
	CondGE Cond = 0xD
	CondLE Cond = 0xE
	CondG  Cond = 0xF
)

// Mem 内存操作数 [Base + Disp]，RIP 为 true 时表示 [rip + label]
type Mem struct {
	Base X64Reg
	Disp int32

	RIP   bool
	Label Label
}

// At 返回 [base + disp]
func At(base X64Reg, disp int32) Mem {
	return Mem{Base: base, Disp: disp}
}

// Offset 返回偏移 n 字节后的操作数
func (m Mem) Offset(n int) Mem {
	m.Disp += int32(n)
	return m
}

// Label 代码位置标签
type Label int

// ============================================================================
// x86-64 汇编器
// ============================================================================

// X64Assembler x86-64 汇编器
type X64Assembler struct {
	code      []byte        // 生成的机器码
	labels    map[Label]int // 标签位置（标签 -> 代码偏移）
	relocs    []x64Reloc    // 重定位表
	nextLabel Label
}

// x64Reloc 重定位条目
type x64Reloc struct {
	offset int   // 在代码中的偏移
	target Label // 目标标签
	size   int   // 偏移字段大小
	tail   int   // 位移字段之后属于同一条指令的字节数
}

// NewX64Assembler 创建 x86-64 汇编器
func NewX64Assembler() *X64Assembler {
	return &X64Assembler{
		code:   make([]byte, 0, 1024),
		labels: make(map[Label]int),
	}
}

// Reset 重置汇编器状态
func (a *X64Assembler) Reset() {
	a.code = a.code[:0]
	a.labels = make(map[Label]int)
	a.relocs = nil
	a.nextLabel = 0
}

// Finish 解析重定位并返回机器码
func (a *X64Assembler) Finish() ([]byte, error) {
	if err := a.resolveRelocations(); err != nil {
		return nil, err
	}
	return a.code, nil
}

// Len 返回当前代码长度
func (a *X64Assembler) Len() int {
	return len(a.code)
}

// NewLabel 分配新标签
func (a *X64Assembler) NewLabel() Label {
	l := a.nextLabel
	a.nextLabel++
	return l
}

// Bind 把标签绑定到当前位置
func (a *X64Assembler) Bind(l Label) {
	a.labels[l] = len(a.code)
}

// Align 用 fill 填充到 n 字节对齐
func (a *X64Assembler) Align(n int, fill byte) {
	for len(a.code)%n != 0 {
		a.code = append(a.code, fill)
	}
}

// Data 写入原始数据
func (a *X64Assembler) Data(b []byte) {
	a.code = append(a.code, b...)
}

// ============================================================================
// 底层编码方法
// ============================================================================

// emit 写入字节
func (a *X64Assembler) emit(bytes ...byte) {
	a.code = append(a.code, bytes...)
}

// emitU32 写入 32 位值（小端序）
func (a *X64Assembler) emitU32(v uint32) {
	a.code = binary.LittleEndian.AppendUint32(a.code, v)
}

// emitU64 写入 64 位值（小端序）
func (a *X64Assembler) emitU64(v uint64) {
	a.code = binary.LittleEndian.AppendUint64(a.code, v)
}

// rex 构造 REX 前缀
func rex(w, r, x, b bool) byte {
	var v byte = 0x40
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

// modrm 构造 ModR/M 字节
func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}

// emitPrefixRex 写入强制前缀和（需要时的）REX
// force 用于 8 位寄存器 spl/bpl/sil/dil，它们没有 REX 时会被解释成 ah..bh。
func (a *X64Assembler) emitPrefixRex(prefix byte, w, force bool, reg, index, base int) {
	if prefix != 0 {
		a.emit(prefix)
	}
	r, x, b := reg >= 8, index >= 8, base >= 8
	if w || r || x || b || force {
		a.emit(rex(w, r, x, b))
	}
}

// instRR 寄存器直接寻址：opcode /r，reg 与 rm 都是寄存器编号
func (a *X64Assembler) instRR(prefix byte, w, force bool, opcode []byte, reg, rm int) {
	a.emitPrefixRex(prefix, w, force, reg, 0, rm)
	a.emit(opcode...)
	a.emit(modrm(3, byte(reg), byte(rm)))
}

// instRM 内存寻址：opcode /r，reg 是寄存器编号或操作码扩展
func (a *X64Assembler) instRM(prefix byte, w, force bool, opcode []byte, reg int, m Mem) {
	base := 0
	if !m.RIP {
		base = int(m.Base)
	}
	a.emitPrefixRex(prefix, w, force, reg, 0, base)
	a.emit(opcode...)
	a.emitMemOperand(byte(reg), m)
}

// emitMemOperand 生成内存操作数编码
func (a *X64Assembler) emitMemOperand(reg byte, m Mem) {
	if m.RIP {
		a.emit(modrm(0, reg, 5))
		a.relocs = append(a.relocs, x64Reloc{offset: len(a.code), target: m.Label, size: 4})
		a.emitU32(0)
		return
	}

	base, offset := m.Base, m.Disp
	baseCode := base.LowBits()

	// RSP/R12 需要 SIB 字节
	needSIB := base == RSP || base == R12

	switch {
	case offset == 0 && base != RBP && base != R13:
		// [base]
		if needSIB {
			a.emit(modrm(0, reg, 4), 0x24)
		} else {
			a.emit(modrm(0, reg, baseCode))
		}
	case offset >= -128 && offset <= 127:
		// [base+disp8]
		if needSIB {
			a.emit(modrm(1, reg, 4), 0x24)
		} else {
			a.emit(modrm(1, reg, baseCode))
		}
		a.emit(byte(offset))
	default:
		// [base+disp32]
		if needSIB {
			a.emit(modrm(2, reg, 4), 0x24)
		} else {
			a.emit(modrm(2, reg, baseCode))
		}
		a.emitU32(uint32(offset))
	}
}

// ============================================================================
// 数据移动指令
// ============================================================================

// MovRegReg 寄存器到寄存器: mov dst, src
func (a *X64Assembler) MovRegReg(dst, src X64Reg) {
	a.instRR(0, true, false, []byte{0x89}, int(src), int(dst))
}

// MovRegImm64 加载 64 位立即数: mov reg, imm64
func (a *X64Assembler) MovRegImm64(reg X64Reg, imm uint64) {
	a.emit(rex(true, false, false, reg.IsExtended()))
	a.emit(0xB8 + reg.LowBits())
	a.emitU64(imm)
}

// MovRegImm32 加载 32 位立即数（符号扩展）: mov reg, imm32
func (a *X64Assembler) MovRegImm32(reg X64Reg, imm int32) {
	a.instRR(0, true, false, []byte{0xC7}, 0, int(reg))
	a.emitU32(uint32(imm))
}

// MovRegImm 选择最短的编码加载立即数
func (a *X64Assembler) MovRegImm(reg X64Reg, imm uint64) {
	if int64(imm) >= -1<<31 && int64(imm) < 1<<31 {
		a.MovRegImm32(reg, int32(imm))
		return
	}
	a.MovRegImm64(reg, imm)
}

// Load 从内存加载 size 字节并扩展到 64 位
// signed 为 true 时符号扩展，否则零扩展。
func (a *X64Assembler) Load(dst X64Reg, m Mem, size int, signed bool) {
	switch size {
	case 1:
		op := []byte{0x0F, 0xB6}
		if signed {
			op = []byte{0x0F, 0xBE}
		}
		a.instRM(0, true, false, op, int(dst), m)
	case 2:
		op := []byte{0x0F, 0xB7}
		if signed {
			op = []byte{0x0F, 0xBF}
		}
		a.instRM(0, true, false, op, int(dst), m)
	case 4:
		if signed {
			a.instRM(0, true, false, []byte{0x63}, int(dst), m) // movsxd
		} else {
			a.instRM(0, false, false, []byte{0x8B}, int(dst), m) // mov r32 清零高 32 位
		}
	case 8:
		a.instRM(0, true, false, []byte{0x8B}, int(dst), m)
	default:
		panic(fmt.Sprintf("jit: load of %d bytes", size))
	}
}

// Store 把寄存器低 size 字节写入内存
func (a *X64Assembler) Store(m Mem, src X64Reg, size int) {
	switch size {
	case 1:
		a.instRM(0, false, src >= RSP, []byte{0x88}, int(src), m)
	case 2:
		a.instRM(0x66, false, false, []byte{0x89}, int(src), m)
	case 4:
		a.instRM(0, false, false, []byte{0x89}, int(src), m)
	case 8:
		a.instRM(0, true, false, []byte{0x89}, int(src), m)
	default:
		panic(fmt.Sprintf("jit: store of %d bytes", size))
	}
}

// Lea 取地址: lea dst, m
func (a *X64Assembler) Lea(dst X64Reg, m Mem) {
	a.instRM(0, true, false, []byte{0x8D}, int(dst), m)
}

// ============================================================================
// 算术与位运算指令
// ============================================================================

// aluRR 双操作数运算: op dst, src（opcode 形如 01 /r）
func (a *X64Assembler) aluRR(opcode byte, dst, src X64Reg) {
	a.instRR(0, true, false, []byte{opcode}, int(src), int(dst))
}

// AddRegReg 寄存器加法: add dst, src
func (a *X64Assembler) AddRegReg(dst, src X64Reg) { a.aluRR(0x01, dst, src) }

// OrRegReg 位或: or dst, src
func (a *X64Assembler) OrRegReg(dst, src X64Reg) { a.aluRR(0x09, dst, src) }

// AndRegReg 位与: and dst, src
func (a *X64Assembler) AndRegReg(dst, src X64Reg) { a.aluRR(0x21, dst, src) }

// SubRegReg 寄存器减法: sub dst, src
func (a *X64Assembler) SubRegReg(dst, src X64Reg) { a.aluRR(0x29, dst, src) }

// XorRegReg 位异或: xor dst, src
func (a *X64Assembler) XorRegReg(dst, src X64Reg) { a.aluRR(0x31, dst, src) }

// CmpRegReg 比较: cmp left, right
func (a *X64Assembler) CmpRegReg(left, right X64Reg) { a.aluRR(0x39, left, right) }

// TestRegReg 测试: test reg1, reg2
func (a *X64Assembler) TestRegReg(reg1, reg2 X64Reg) { a.aluRR(0x85, reg1, reg2) }

// aluImm 立即数运算（ext 是 /digit）
func (a *X64Assembler) aluImm(ext int, reg X64Reg, imm int32) {
	if imm >= -128 && imm <= 127 {
		a.instRR(0, true, false, []byte{0x83}, ext, int(reg))
		a.emit(byte(imm))
		return
	}
	a.instRR(0, true, false, []byte{0x81}, ext, int(reg))
	a.emitU32(uint32(imm))
}

// AddRegImm32 立即数加法: add reg, imm32
func (a *X64Assembler) AddRegImm32(reg X64Reg, imm int32) { a.aluImm(0, reg, imm) }

// SubRegImm32 立即数减法: sub reg, imm32
func (a *X64Assembler) SubRegImm32(reg X64Reg, imm int32) { a.aluImm(5, reg, imm) }

// AndRegImm32 立即数位与: and reg, imm32
func (a *X64Assembler) AndRegImm32(reg X64Reg, imm int32) { a.aluImm(4, reg, imm) }

// IMulRegReg 有符号乘法: imul dst, src
func (a *X64Assembler) IMulRegReg(dst, src X64Reg) {
	a.instRR(0, true, false, []byte{0x0F, 0xAF}, int(dst), int(src))
}

// IMulRegImm32 立即数乘法: imul dst, src, imm32
func (a *X64Assembler) IMulRegImm32(dst, src X64Reg, imm int32) {
	if imm >= -128 && imm <= 127 {
		a.instRR(0, true, false, []byte{0x6B}, int(dst), int(src))
		a.emit(byte(imm))
		return
	}
	a.instRR(0, true, false, []byte{0x69}, int(dst), int(src))
	a.emitU32(uint32(imm))
}

// unary F7 组
func (a *X64Assembler) groupF7(ext int, reg X64Reg) {
	a.instRR(0, true, false, []byte{0xF7}, ext, int(reg))
}

// NotReg 位非: not reg
func (a *X64Assembler) NotReg(reg X64Reg) { a.groupF7(2, reg) }

// Neg 取负: neg reg
func (a *X64Assembler) Neg(reg X64Reg) { a.groupF7(3, reg) }

// DivReg 无符号除法: div reg (RDX:RAX / reg -> RAX, 余数 -> RDX)
func (a *X64Assembler) DivReg(reg X64Reg) { a.groupF7(6, reg) }

// IDivReg 有符号除法: idiv reg (RDX:RAX / reg -> RAX, 余数 -> RDX)
func (a *X64Assembler) IDivReg(reg X64Reg) { a.groupF7(7, reg) }

// CQO 符号扩展 RAX -> RDX:RAX
func (a *X64Assembler) CQO() {
	a.emit(0x48, 0x99)
}

// ShlRegCL 左移: shl reg, cl
func (a *X64Assembler) ShlRegCL(reg X64Reg) {
	a.instRR(0, true, false, []byte{0xD3}, 4, int(reg))
}

// ShrRegCL 逻辑右移: shr reg, cl
func (a *X64Assembler) ShrRegCL(reg X64Reg) {
	a.instRR(0, true, false, []byte{0xD3}, 5, int(reg))
}

// SarRegCL 算术右移: sar reg, cl
func (a *X64Assembler) SarRegCL(reg X64Reg) {
	a.instRR(0, true, false, []byte{0xD3}, 7, int(reg))
}

// ShrRegImm 逻辑右移立即数: shr reg, imm
func (a *X64Assembler) ShrRegImm(reg X64Reg, imm byte) {
	a.instRR(0, true, false, []byte{0xC1}, 5, int(reg))
	a.emit(imm)
}

// SetCC 条件设置: setcc reg8
func (a *X64Assembler) SetCC(cc Cond, reg X64Reg) {
	a.instRR(0, false, reg >= RSP, []byte{0x0F, 0x90 + byte(cc)}, 0, int(reg))
}

// MovzxReg8 零扩展 8 位到 64 位: movzx dst, src (8-bit)
func (a *X64Assembler) MovzxReg8(dst, src X64Reg) {
	a.instRR(0, true, false, []byte{0x0F, 0xB6}, int(dst), int(src))
}

// CMovCC 条件传送: cmovcc dst, src
func (a *X64Assembler) CMovCC(cc Cond, dst, src X64Reg) {
	a.instRR(0, true, false, []byte{0x0F, 0x40 + byte(cc)}, int(dst), int(src))
}

// ============================================================================
// 栈操作与控制转移
// ============================================================================

// Push 压栈: push reg
func (a *X64Assembler) Push(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.LowBits())
}

// Pop 出栈: pop reg
func (a *X64Assembler) Pop(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.LowBits())
}

// Jmp 无条件跳转（相对）
func (a *X64Assembler) Jmp(l Label) {
	a.emit(0xE9)
	a.relocs = append(a.relocs, x64Reloc{offset: len(a.code), target: l, size: 4})
	a.emitU32(0) // 占位符
}

// Jcc 条件跳转（相对）
func (a *X64Assembler) Jcc(cc Cond, l Label) {
	a.emit(0x0F, 0x80+byte(cc))
	a.relocs = append(a.relocs, x64Reloc{offset: len(a.code), target: l, size: 4})
	a.emitU32(0)
}

// Call 间接调用: call reg
func (a *X64Assembler) Call(reg X64Reg) {
	if reg.IsExtended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF)
	a.emit(modrm(3, 2, reg.LowBits()))
}

// Leave 恢复栈帧: mov rsp, rbp; pop rbp
func (a *X64Assembler) Leave() {
	a.emit(0xC9)
}

// Ret 返回
func (a *X64Assembler) Ret() {
	a.emit(0xC3)
}

// Ud2 未定义指令（不可达代码）
func (a *X64Assembler) Ud2() {
	a.emit(0x0F, 0x0B)
}

// ============================================================================
// SSE 指令
// ============================================================================

// SSE 操作码（不含 0F 转义字节）
var (
	opMovdquLoad  = []byte{0x0F, 0x6F}
	opMovdquStore = []byte{0x0F, 0x7F}
	opMovssLoad   = []byte{0x0F, 0x10}
	opMovssStore  = []byte{0x0F, 0x11}
)

// SSE 对两个 XMM 寄存器执行指令: op dst, src
// prefix 为 0、0x66、0xF3 或 0xF2；opcode 包含 0F 转义。
func (a *X64Assembler) SSE(prefix byte, opcode []byte, dst, src XReg) {
	a.instRR(prefix, false, false, opcode, int(dst), int(src))
}

// SSEImm 带 8 位立即数的 SSE 指令（cmpps/roundps）
func (a *X64Assembler) SSEImm(prefix byte, opcode []byte, dst, src XReg, imm byte) {
	a.SSE(prefix, opcode, dst, src)
	a.emit(imm)
}

// MovdquLoad 非对齐加载 128 位: movdqu x, m
func (a *X64Assembler) MovdquLoad(x XReg, m Mem) {
	a.instRM(0xF3, false, false, opMovdquLoad, int(x), m)
}

// MovdquStore 非对齐存储 128 位: movdqu m, x
func (a *X64Assembler) MovdquStore(m Mem, x XReg) {
	a.instRM(0xF3, false, false, opMovdquStore, int(x), m)
}

// MovssLoad 加载单精度: movss x, m
func (a *X64Assembler) MovssLoad(x XReg, m Mem) {
	a.instRM(0xF3, false, false, opMovssLoad, int(x), m)
}

// MovssStore 存储单精度: movss m, x
func (a *X64Assembler) MovssStore(m Mem, x XReg) {
	a.instRM(0xF3, false, false, opMovssStore, int(x), m)
}

// MovqToX 通用寄存器到 XMM: movq x, r64
func (a *X64Assembler) MovqToX(x XReg, r X64Reg) {
	a.instRR(0x66, true, false, []byte{0x0F, 0x6E}, int(x), int(r))
}

// MovqFromX XMM 到通用寄存器: movq r64, x
func (a *X64Assembler) MovqFromX(r X64Reg, x XReg) {
	a.instRR(0x66, true, false, []byte{0x0F, 0x7E}, int(x), int(r))
}

// Cvtsi2ss 64 位整数转单精度: cvtsi2ss x, r64
func (a *X64Assembler) Cvtsi2ss(x XReg, r X64Reg) {
	a.instRR(0xF3, true, false, []byte{0x0F, 0x2A}, int(x), int(r))
}

// Cvttss2si 单精度截断为 64 位整数: cvttss2si r64, x
func (a *X64Assembler) Cvttss2si(r X64Reg, x XReg) {
	a.instRR(0xF3, true, false, []byte{0x0F, 0x2C}, int(r), int(x))
}

// Ucomiss 无序比较: ucomiss a, b
func (a *X64Assembler) Ucomiss(x, y XReg) {
	a.SSE(0, []byte{0x0F, 0x2E}, x, y)
}

// Pxor 按位异或: pxor dst, src
func (a *X64Assembler) Pxor(dst, src XReg) {
	a.SSE(0x66, []byte{0x0F, 0xEF}, dst, src)
}

// AllOnes 把寄存器置为全 1: pcmpeqd x, x
func (a *X64Assembler) AllOnes(x XReg) {
	a.SSE(0x66, []byte{0x0F, 0x76}, x, x)
}

// ============================================================================
// 重定位解析
// ============================================================================

// resolveRelocations 解析所有重定位
func (a *X64Assembler) resolveRelocations() error {
	for _, reloc := range a.relocs {
		target, ok := a.labels[reloc.target]
		if !ok {
			return fmt.Errorf("jit: unbound label %d", reloc.target)
		}
		// 相对偏移从指令结束位置开始计算
		offset := int32(target - (reloc.offset + reloc.size + reloc.tail))
		binary.LittleEndian.PutUint32(a.code[reloc.offset:], uint32(offset))
	}
	return nil
}
