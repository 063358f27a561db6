//go:build !amd64

package jit

func invoke(entry, stackTop uintptr, frame *Frame) {
	panic(ErrUnsupportedHost)
}
