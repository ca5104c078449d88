package core

import "time"

type AudioEncodingFormat int

const (
	PCM  AudioEncodingFormat = iota // 16-bit little-endian pulse-code modulation.
	ULAW                            // μ-law encoding format.
	ALAW                            // A-law encoding format.
	OPUS                            // Opus frames in an Ogg container.
	WEBM                            // Opus frames in a WebM container.
)

func (f AudioEncodingFormat) String() string {
	switch f {
	case PCM:
		return "pcm"
	case ULAW:
		return "ulaw"
	case ALAW:
		return "alaw"
	case OPUS:
		return "opus"
	case WEBM:
		return "webm"
	default:
		return "unknown"
	}
}

// ParseAudioEncoding maps a configuration label to a format. Unknown labels
// fall back to PCM.
func ParseAudioEncoding(label string) AudioEncodingFormat {
	switch label {
	case "ulaw", "mulaw", "pcmu":
		return ULAW
	case "alaw", "pcma":
		return ALAW
	case "opus", "ogg":
		return OPUS
	case "webm":
		return WEBM
	default:
		return PCM
	}
}

type AudioChunk struct {
	Data       []byte              // Raw audio data.
	SampleRate int                 // Sample rate of the audio data.
	Channels   int                 // Number of audio channels.
	Format     AudioEncodingFormat // Encoding format of the audio data.
	Timestamp  time.Time           // Capture time of the chunk.
}
