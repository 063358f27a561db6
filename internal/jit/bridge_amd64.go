//go:build amd64

package jit

// callNative 切换到 stack 指向的原生栈，按 frame 装载参数后调用 fn
// 实现在 bridge_amd64.s。
//
//go:noescape
func callNative(fn, stack uintptr, frame *Frame)

func invoke(entry, stackTop uintptr, frame *Frame) {
	callNative(entry, stackTop, frame)
}
