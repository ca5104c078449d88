package factories

import (
	"fmt"
	"os/exec"

	"chatkit/core"
	"chatkit/handlers/tts"
	"chatkit/services/local/capture"
	"chatkit/services/local/speech"
)

// BuildSpeaker constructs the speaker for kind. The provider is chosen here
// once; callers only see the tts.Speaker capability.
func BuildSpeaker(kind tts.ProviderKind, settings Settings, synth tts.Synthesizer, logger *core.Logger) (tts.Speaker, error) {
	switch kind {
	case tts.ProviderRemote:
		if _, err := exec.LookPath(settings.SpeechPlayer.Command); err != nil {
			return nil, fmt.Errorf("tts: audio player %q: %w", settings.SpeechPlayer.Command, err)
		}
		player := speech.NewPlayer(settings.SpeechPlayer)
		return tts.NewRemoteSpeaker(synth, player, settings.Playback.TempDir, logger), nil
	default:
		if _, err := exec.LookPath(settings.SpeechEngine.Command); err != nil {
			return nil, fmt.Errorf("tts: speech engine %q: %w", settings.SpeechEngine.Command, err)
		}
		return tts.NewLocalSpeaker(speech.NewEngine(settings.SpeechEngine, logger)), nil
	}
}

// BuildCaptureDevice returns the microphone recorder, requesting the format
// the capture pipeline was configured for.
func BuildCaptureDevice(settings Settings, logger *core.Logger) *capture.Recorder {
	cfg := settings.Recorder
	cfg.SampleRate = settings.Capture.SampleRate
	cfg.Channels = settings.Capture.Channels
	cfg.Encoding = core.ParseAudioEncoding(settings.Capture.Encoding)
	return capture.NewRecorder(cfg, logger)
}
