package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatkit/core"
	"chatkit/utils/audio"
)

var (
	ErrAlreadyRecording = errors.New("stt: already recording")
	ErrNotRecording     = errors.New("stt: not recording")
	ErrTranscribing     = errors.New("stt: transcription in progress")
	ErrCaptureClosed    = errors.New("stt: capture closed while opening the microphone")
)

// CaptureDevice grants access to the microphone.
type CaptureDevice interface {
	Open(ctx context.Context) (core.CaptureTrack, error)
}

type Track = core.CaptureTrack

// Transcriber turns a packaged recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename, mimeType string, audio []byte) (string, error)
}

// CapturePipeline runs Idle -> Recording -> Transcribing -> Idle. It owns the
// microphone track from Start until Stop and never leaves it open on any exit
// path.
type CapturePipeline struct {
	mu      sync.Mutex
	status  core.RecordingStatus
	track   Track
	drained chan struct{}
	opening bool   // device.Open in flight, mu released
	gen     uint64 // bumped by Close to abandon an in-flight open

	bufMu  sync.Mutex
	chunks []core.AudioChunk

	config      CaptureConfig
	device      CaptureDevice
	transcriber Transcriber
	input       *core.PendingInput
	renderer    core.Renderer
	logger      *core.Logger
}

func NewCapturePipeline(
	device CaptureDevice,
	transcriber Transcriber,
	input *core.PendingInput,
	renderer core.Renderer,
	config CaptureConfig,
	logger *core.Logger,
) *CapturePipeline {
	if logger == nil {
		logger = core.GetLogger()
	}
	if renderer == nil {
		renderer = core.NopRenderer{}
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultConfig().StopTimeout
	}
	return &CapturePipeline{
		status:      core.RecordingIdle,
		config:      config,
		device:      device,
		transcriber: transcriber,
		input:       input,
		renderer:    renderer,
		logger:      logger.With(map[string]interface{}{"component": "capture"}),
	}
}

func (p *CapturePipeline) State() core.RecordingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *CapturePipeline) setStatus(status core.RecordingStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	p.renderer.ShowRecording(status)
}

// Start opens the microphone and begins buffering chunks. A device failure
// leaves the pipeline Idle and is surfaced as a notification.
func (p *CapturePipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.status {
	case core.RecordingActive:
		p.mu.Unlock()
		return ErrAlreadyRecording
	case core.RecordingTranscribing:
		p.mu.Unlock()
		return ErrTranscribing
	}
	if p.opening {
		p.mu.Unlock()
		return ErrAlreadyRecording
	}
	p.opening = true
	gen := p.gen
	p.mu.Unlock()

	// may wait on a permission prompt or a slow recorder
	track, err := p.device.Open(ctx)

	p.mu.Lock()
	p.opening = false
	if err == nil && p.gen != gen {
		p.mu.Unlock()
		p.release(track)
		return ErrCaptureClosed
	}
	if err != nil {
		p.mu.Unlock()
		p.logger.With(map[string]interface{}{"error": err}).Warn("microphone unavailable")
		p.renderer.Notify(fmt.Sprintf("Microphone unavailable: %v", err))
		return fmt.Errorf("stt: open microphone: %w", err)
	}

	p.bufMu.Lock()
	p.chunks = nil
	p.bufMu.Unlock()

	p.track = track
	p.drained = make(chan struct{})
	p.status = core.RecordingActive
	go p.drain(track.Chunks(), p.drained)
	p.mu.Unlock()

	p.logger.Info("recording started")
	p.renderer.ShowRecording(core.RecordingActive)
	return nil
}

func (p *CapturePipeline) drain(in <-chan core.AudioChunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range in {
		p.bufMu.Lock()
		p.chunks = append(p.chunks, chunk)
		p.bufMu.Unlock()
	}
}

// Stop halts capture, releases the track and transcribes the buffered audio.
// The transcript is space-joined onto the pending input and returned. On any
// failure the user is notified and the pending input is left untouched. The
// pipeline is Idle again when Stop returns.
func (p *CapturePipeline) Stop(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.status != core.RecordingActive {
		p.mu.Unlock()
		return "", ErrNotRecording
	}
	track, drained := p.track, p.drained
	p.track = nil
	p.status = core.RecordingTranscribing
	p.mu.Unlock()
	p.renderer.ShowRecording(core.RecordingTranscribing)
	defer p.setStatus(core.RecordingIdle)

	if err := p.halt(ctx, track, drained); err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Warn("failed to stop recording")
		p.renderer.Notify(fmt.Sprintf("Recording failed: %v", err))
		return "", err
	}

	p.bufMu.Lock()
	chunks := p.chunks
	p.chunks = nil
	p.bufMu.Unlock()

	rec, err := audio.PackageRecording(chunks)
	if err != nil {
		p.logger.With(map[string]interface{}{"error": err, "chunks": len(chunks)}).Warn("nothing to transcribe")
		p.renderer.Notify("Nothing was recorded.")
		return "", err
	}
	p.logger.With(map[string]interface{}{
		"chunks":   len(chunks),
		"bytes":    len(rec.Data),
		"file":     rec.Filename,
		"duration": rec.Duration,
	}).Info("recording captured")

	text, err := p.transcriber.Transcribe(ctx, rec.Filename, rec.MimeType, rec.Data)
	if err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Warn("transcription failed")
		p.renderer.Notify(fmt.Sprintf("Transcription failed: %v", err))
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}
	if text != "" {
		p.renderer.SetInput(p.input.Append(text))
	}
	return text, nil
}

// halt stops the device, waits for the last chunks and always releases the
// track.
func (p *CapturePipeline) halt(ctx context.Context, track Track, drained <-chan struct{}) error {
	defer p.release(track)

	if err := track.Stop(ctx); err != nil {
		return err
	}
	timer := time.NewTimer(p.config.StopTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		return nil
	case <-timer.C:
		return errors.New("stt: device did not flush in time")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *CapturePipeline) release(track Track) {
	if err := track.Close(); err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Debug("releasing microphone track")
	}
}

// Toggle starts recording when idle and stops it when recording.
func (p *CapturePipeline) Toggle(ctx context.Context) error {
	switch p.State() {
	case core.RecordingIdle:
		return p.Start(ctx)
	case core.RecordingActive:
		_, err := p.Stop(ctx)
		return err
	default:
		return ErrTranscribing
	}
}

// Close abandons an in-progress recording and releases the track.
func (p *CapturePipeline) Close() error {
	p.mu.Lock()
	p.gen++
	track := p.track
	p.track = nil
	wasRecording := p.status == core.RecordingActive
	if wasRecording {
		p.status = core.RecordingIdle
	}
	p.mu.Unlock()
	if track == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.config.StopTimeout)
	defer cancel()
	defer p.release(track)
	if err := track.Stop(ctx); err != nil {
		p.logger.With(map[string]interface{}{"error": err}).Debug("stopping abandoned recording")
	}
	if wasRecording {
		p.renderer.ShowRecording(core.RecordingIdle)
	}
	return nil
}
