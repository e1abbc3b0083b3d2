//go:build unix

package compose

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func killGroupOnCancel(ec *exec.Cmd) {
	ec.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	ec.Cancel = func() error {
		err := unix.Kill(-ec.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
}
