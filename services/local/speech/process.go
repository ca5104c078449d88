// Package speech runs the on-device synthesis engine and audio player as
// external processes.
package speech

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"chatkit/core"
)

// reapTimeout bounds how long Stop waits for a killed process to exit.
var reapTimeout = 5 * time.Second

// Process is a running engine or player. It satisfies core.PlaybackHandle.
type Process struct {
	pid  int
	kill func() error
	once sync.Once
	done chan struct{}
	err  error
}

func startProcess(command string, args ...string) (*Process, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%q not available: %w", command, err)
	}
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	p := &Process{pid: cmd.Process.Pid, kill: cmd.Process.Kill, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the exit error once Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Stop kills the process and waits, bounded by reapTimeout, for it to be
// reaped. A failed kill is logged and Stop returns without waiting.
func (p *Process) Stop() {
	killed := true
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if err := p.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			core.GetLogger().With(map[string]interface{}{"error": err, "pid": p.pid}).Warn("failed to kill speech process")
			killed = false
		}
	})
	if !killed {
		return
	}
	timer := time.NewTimer(reapTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		core.GetLogger().With(map[string]interface{}{"pid": p.pid}).Warn("speech process not reaped after kill")
	}
}
