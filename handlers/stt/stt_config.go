package stt

import "time"

type CaptureConfig struct {
	SampleRate  int           `json:"sample_rate"`  // Capture sample rate in Hz requested from the device.
	Channels    int           `json:"channels"`     // Capture channel count requested from the device.
	Encoding    string        `json:"encoding"`     // Negotiated encoding label: pcm, ulaw, alaw, opus or webm.
	StopTimeout time.Duration `json:"stop_timeout"` // Upper bound on waiting for the device to flush its last chunks.
}

// DefaultConfig returns a CaptureConfig with sensible defaults
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:  16000,
		Channels:    1,
		Encoding:    "pcm",
		StopTimeout: 3 * time.Second,
	}
}
