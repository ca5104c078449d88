package image

type ImageConfig struct {
	Size string `json:"size"` // Requested image size; unsupported values fall back to DefaultSize.
}

// DefaultConfig returns an ImageConfig with sensible defaults
func DefaultConfig() ImageConfig {
	return ImageConfig{Size: DefaultSize}
}
