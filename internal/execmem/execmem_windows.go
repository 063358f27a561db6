//go:build windows

package execmem

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func pageSize() int {
	return os.Getpagesize()
}

// mapPages 用 VirtualAlloc 提交 n 字节读写内存
func mapPages(n int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(n), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

func unmapPages(mem []byte) error {
	// MEM_RELEASE 时大小必须为 0
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}

func protect(mem []byte, exec bool) error {
	prot := uint32(windows.PAGE_READWRITE)
	if exec {
		prot = windows.PAGE_EXECUTE_READ
	}
	var old uint32
	return windows.VirtualProtect(uintptr(unsafe.Pointer(&mem[0])), uintptr(len(mem)), prot, &old)
}
