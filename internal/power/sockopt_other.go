//go:build !unix

package power

import "syscall"

func broadcastControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
