//go:build !unix

package compose

import "os/exec"

// Without process groups, WaitDelay alone unblocks Wait.
func killGroupOnCancel(ec *exec.Cmd) {}
