//go:build linux || darwin || freebsd || netbsd || openbsd

package execmem

import (
	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

// mapPages 映射 n 字节匿名读写内存
func mapPages(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func unmapPages(mem []byte) error {
	return unix.Munmap(mem)
}

// protect 在读写与读执行之间切换（不同时开放写和执行）
func protect(mem []byte, exec bool) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if exec {
		prot = unix.PROT_READ | unix.PROT_EXEC
	}
	return unix.Mprotect(mem, prot)
}
