//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package execmem

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("no page mapping on this host")

func pageSize() int {
	return os.Getpagesize()
}

func mapPages(n int) ([]byte, error) {
	return nil, errNoMmap
}

func unmapPages(mem []byte) error {
	return errNoMmap
}

func protect(mem []byte, exec bool) error {
	return errNoMmap
}
