package cluster

import (
	"fmt"
	"os"
	"os/exec"
)

// Launch spawns world-1 worker copies of the current binary and returns a
// root Comm once all ranks have joined. Workers inherit the parent's
// arguments plus the process-group environment, re-enter main, and detect
// their role through FromEnv. Wait on the returned commands after closing
// the group.
func Launch(addr string, world int) (*Comm, []*exec.Cmd, error) {
	if world < 1 {
		return nil, nil, fmt.Errorf("world size %d must be at least 1", world)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, fmt.Errorf("locating executable: %w", err)
	}
	workers := make([]*exec.Cmd, 0, world-1)
	for rank := 1; rank < world; rank++ {
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("%s=%d", EnvRank, rank),
			fmt.Sprintf("%s=%d", EnvWorld, world),
			fmt.Sprintf("%s=%s", EnvAddr, addr),
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			for _, w := range workers {
				w.Process.Kill()
			}
			return nil, nil, fmt.Errorf("starting worker rank %d: %w", rank, err)
		}
		workers = append(workers, cmd)
	}
	comm, err := NewRootComm(addr, world)
	if err != nil {
		for _, w := range workers {
			w.Process.Kill()
		}
		return nil, nil, err
	}
	return comm, workers, nil
}
