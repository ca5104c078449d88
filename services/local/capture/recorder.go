// Package capture records the microphone through an external recorder
// process that writes raw audio to stdout.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"chatkit/core"
)

// Config holds configuration for the recorder process
type Config struct {
	Command    string                   `json:"command"`     // Recorder binary; must write raw audio to stdout until interrupted.
	Args       []string                 `json:"args"`        // Full argument list; empty derives one from the format fields.
	SampleRate int                      `json:"sample_rate"` // Capture sample rate in Hz.
	Channels   int                      `json:"channels"`    // Capture channel count.
	Encoding   core.AudioEncodingFormat `json:"encoding"`    // Encoding the recorder emits.
	ChunkSize  int                      `json:"chunk_size"`  // Bytes read from the recorder per chunk.
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	cmd := "arecord"
	if runtime.GOOS == "darwin" {
		cmd = "rec"
	}
	return Config{
		Command:    cmd,
		SampleRate: 16000,
		Channels:   1,
		Encoding:   core.PCM,
		ChunkSize:  3200,
	}
}

func (c Config) args() []string {
	if len(c.Args) > 0 {
		return c.Args
	}
	rate, channels := strconv.Itoa(c.SampleRate), strconv.Itoa(c.Channels)
	switch c.Command {
	case "arecord":
		format := "S16_LE"
		switch c.Encoding {
		case core.ULAW:
			format = "MU_LAW"
		case core.ALAW:
			format = "A_LAW"
		}
		return []string{"-q", "-t", "raw", "-f", format, "-r", rate, "-c", channels}
	case "rec", "sox":
		enc, bits := "signed-integer", "16"
		switch c.Encoding {
		case core.ULAW:
			enc, bits = "mu-law", "8"
		case core.ALAW:
			enc, bits = "a-law", "8"
		}
		args := []string{"-q", "-t", "raw", "-b", bits, "-e", enc, "-r", rate, "-c", channels, "-"}
		if c.Command == "sox" {
			args = append([]string{"-d"}, args...)
		}
		return args
	default:
		return nil
	}
}

// Recorder opens microphone tracks backed by the recorder process.
type Recorder struct {
	config Config
	logger *core.Logger
}

func NewRecorder(config Config, logger *core.Logger) *Recorder {
	if logger == nil {
		logger = core.GetLogger()
	}
	def := DefaultConfig()
	if config.Command == "" {
		config.Command = def.Command
	}
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	return &Recorder{
		config: config,
		logger: logger.With(map[string]interface{}{"component": "recorder", "command": config.Command}),
	}
}

// Open starts the recorder. A missing binary or a recorder that cannot start
// is reported as an error and leaves nothing running.
func (r *Recorder) Open(ctx context.Context) (core.CaptureTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := exec.LookPath(r.config.Command)
	if err != nil {
		return nil, fmt.Errorf("recorder %q not available: %w", r.config.Command, err)
	}

	// not CommandContext: the track outlives the ctx that opened it
	cmd := exec.Command(path, r.config.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	t := &track{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		config: r.config,
		chunks: make(chan core.AudioChunk, 64),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
		logger: r.logger,
	}
	go t.read()
	r.logger.With(map[string]interface{}{"pid": cmd.Process.Pid}).Debug("recorder started")
	return t, nil
}

type track struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	config Config
	chunks chan core.AudioChunk

	closeOnce sync.Once
	closed    chan struct{}
	exited    chan struct{}
	waitErr   error
	logger    *core.Logger
}

func (t *track) Chunks() <-chan core.AudioChunk { return t.chunks }

// read forwards stdout in arrival order, then reaps the process.
func (t *track) read() {
	defer close(t.exited)
	defer close(t.chunks)

	buf := make([]byte, t.config.ChunkSize)
	for {
		n, err := t.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunk := core.AudioChunk{
				Data:       data,
				SampleRate: t.config.SampleRate,
				Channels:   t.config.Channels,
				Format:     t.config.Encoding,
				Timestamp:  time.Now(),
			}
			select {
			case t.chunks <- chunk:
			case <-t.closed:
				// released: the rest is discarded by the owner's choice
				io.Copy(io.Discard, t.stdout)
				t.waitErr = t.cmd.Wait()
				return
			}
		}
		if err != nil {
			break
		}
	}
	t.waitErr = t.cmd.Wait()
	if t.waitErr != nil && t.stderr.Len() > 0 {
		t.logger.With(map[string]interface{}{"error": t.waitErr, "stderr": t.stderr.String()}).Debug("recorder exited")
	}
}

// Stop interrupts the recorder so it flushes and exits.
func (t *track) Stop(ctx context.Context) error {
	select {
	case <-t.exited:
		return nil
	default:
	}
	if err := t.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.cmd.Process.Kill()
	}
	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
		t.cmd.Process.Kill()
		return ctx.Err()
	}
}

// Close kills the recorder if it is still running and waits for it to exit.
func (t *track) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		select {
		case <-t.exited:
		default:
			if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				t.logger.With(map[string]interface{}{"error": err}).Debug("killing recorder")
			}
		}
	})
	<-t.exited
	return nil
}
