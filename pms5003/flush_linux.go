//go:build linux

package pms5003

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// https://github.com/tarm/serial/blob/master/serial_linux.go
func flush(rw io.ReadWriteCloser) error {
	f, ok := rw.(*os.File)
	if !ok {
		return nil
	}

	const TCFLSH = 0x540B
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		f.Fd(),
		uintptr(TCFLSH),
		uintptr(unix.TCIOFLUSH),
	)

	if errno == 0 {
		return nil
	}
	return errno
}
