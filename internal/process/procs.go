package process

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcessTable is the slice of the OS process table the manager needs.
type ProcessTable interface {
	Alive(pid int) bool
	Signal(pid int, sig syscall.Signal) error
}

// OSProcessTable talks to the real kernel.
type OSProcessTable struct{}

// Alive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else, which still counts as alive.
func (OSProcessTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func (OSProcessTable) Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// livePIDs filters pids down to those still alive.
func livePIDs(table ProcessTable, pids []int) []int {
	var live []int
	for _, pid := range pids {
		if table.Alive(pid) {
			live = append(live, pid)
		}
	}
	return live
}
