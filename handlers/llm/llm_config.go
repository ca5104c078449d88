package llm

type DispatcherConfig struct {
	AutoSpeak      bool `json:"auto_speak"`       // Speak each committed reply through the playback pipeline.
	ErrorBodyLimit int  `json:"error_body_limit"` // Characters of a failed response body shown in the error turn.
}

// DefaultConfig returns a DispatcherConfig with sensible defaults
func DefaultConfig() DispatcherConfig {
	return DispatcherConfig{
		AutoSpeak:      false,
		ErrorBodyLimit: 300,
	}
}
