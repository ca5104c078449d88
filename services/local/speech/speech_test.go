package speech

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/core"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestEngine_CancelAllStopsRunning(t *testing.T) {
	requirePOSIX(t)
	// sh -c 'exec sleep 30' <utterance>: the utterance lands in $0
	e := NewEngine(EngineConfig{Command: "sh", Args: []string{"-c", "exec sleep 30"}}, core.NewDiscardLogger())

	h, err := e.Say(context.Background(), "hello")
	require.NoError(t, err)

	e.CancelAll()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("utterance still running")
	}
	h.Stop()
}

func TestEngine_NaturalExit(t *testing.T) {
	requirePOSIX(t)
	e := NewEngine(EngineConfig{Command: "sh", Args: []string{"-c", "exit 0"}}, core.NewDiscardLogger())

	h, err := e.Say(context.Background(), "hello")
	require.NoError(t, err)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("utterance never finished")
	}
	assert.NoError(t, h.(*Process).Err())
	assert.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.active) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPlayer_StopIsIdempotent(t *testing.T) {
	requirePOSIX(t)
	p := NewPlayer(PlayerConfig{Command: "sh", Args: []string{"-c", "exec sleep 30"}})

	h, err := p.Play(context.Background(), "/tmp/none.mp3")
	require.NoError(t, err)
	h.Stop()
	h.Stop()
	<-h.Done()
}

func TestPlayer_MissingBinary(t *testing.T) {
	p := NewPlayer(PlayerConfig{Command: "definitely-not-a-player"})
	_, err := p.Play(context.Background(), "x.mp3")
	assert.Error(t, err)
}

func TestProcess_StopReturnsWhenKillFails(t *testing.T) {
	p := &Process{kill: func() error { return errors.New("operation not permitted") }, done: make(chan struct{})}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after a failed kill")
	}
}

func TestProcess_StopBoundsReapWait(t *testing.T) {
	orig := reapTimeout
	reapTimeout = 20 * time.Millisecond
	t.Cleanup(func() { reapTimeout = orig })

	kills := 0
	p := &Process{kill: func() error { kills++; return nil }, done: make(chan struct{})}

	start := time.Now()
	p.Stop()
	p.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, kills)
}
