package audio

import (
	"bytes"
	"errors"
	"fmt"

	"chatkit/core"
)

var ErrEmptyRecording = errors.New("audio: recording is empty")

// Recording is a captured utterance packaged for upload.
type Recording struct {
	Data     []byte
	Filename string
	MimeType string
	Duration float64 // seconds; zero when the container is not decoded
}

// PackageRecording joins chunks into one payload whose filename and MIME type
// match the negotiated encoding. G.711 and PCM captures are wrapped as WAV;
// Ogg and WebM containers are forwarded as recorded.
func PackageRecording(chunks []core.AudioChunk) (Recording, error) {
	var joined bytes.Buffer
	for _, c := range chunks {
		joined.Write(c.Data)
	}
	if joined.Len() == 0 {
		return Recording{}, ErrEmptyRecording
	}

	first := chunks[0]
	switch first.Format {
	case core.OPUS:
		return Recording{Data: joined.Bytes(), Filename: "recording.ogg", MimeType: "audio/ogg"}, nil
	case core.WEBM:
		return Recording{Data: joined.Bytes(), Filename: "recording.webm", MimeType: "audio/webm"}, nil
	}

	var pcm []byte
	switch first.Format {
	case core.ULAW:
		pcm = ULawBytesToPCM(joined.Bytes())
	case core.ALAW:
		pcm = ALawBytesToPCM(joined.Bytes())
	case core.PCM:
		stripped, err := StripWAVHeaderIfPresent(joined.Bytes())
		if err != nil {
			return Recording{}, err
		}
		pcm = stripped
	default:
		return Recording{}, fmt.Errorf("audio: unsupported capture format %s", first.Format)
	}

	channels, rate := first.Channels, first.SampleRate
	if channels <= 0 {
		channels = 1
	}
	// drop a trailing partial frame rather than reject the whole take
	pcm = pcm[:len(pcm)-len(pcm)%(2*channels)]
	if len(pcm) == 0 {
		return Recording{}, ErrEmptyRecording
	}
	wav, err := PCMBytesToWavBytes(pcm, channels, rate)
	if err != nil {
		return Recording{}, fmt.Errorf("audio: package recording: %w", err)
	}
	duration, _ := GetPCMDurationSeconds(pcm, channels, rate)
	return Recording{Data: wav, Filename: "recording.wav", MimeType: "audio/wav", Duration: duration}, nil
}
