package tts

type PlaybackConfig struct {
	Provider      string `json:"provider"`        // Synthesis provider: "local" (alias "webspeech") or "remote" (alias "custom").
	MaxTextLength int    `json:"max_text_length"` // Upper bound on characters sent for synthesis; zero means unbounded.
	TempDir       string `json:"temp_dir"`        // Directory for transient audio files from the remote endpoint; empty uses the OS default.
}

// DefaultConfig returns a PlaybackConfig with sensible defaults
func DefaultConfig() PlaybackConfig {
	return PlaybackConfig{
		Provider:      ProviderLocal.String(),
		MaxTextLength: 4000,
	}
}
