package core

import "context"

// PlaybackHandle is one live audio playback. Done is closed once playback has
// finished and its resources are released. Stop is idempotent.
type PlaybackHandle interface {
	Done() <-chan struct{}
	Stop()
}

// CaptureTrack is an open microphone. Chunks is closed once capture has
// stopped and every captured chunk was delivered, or once the track is
// closed. Close releases the hardware and is safe to call more than once.
type CaptureTrack interface {
	Chunks() <-chan AudioChunk
	Stop(ctx context.Context) error
	Close() error
}
