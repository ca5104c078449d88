package tts

import "strings"

// ProviderKind selects where speech is synthesized.
type ProviderKind int

const (
	ProviderLocal ProviderKind = iota
	ProviderRemote
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderRemote:
		return "remote"
	default:
		return "local"
	}
}

// ParseProviderKind maps a stored setting onto a provider. Unknown labels
// select the local engine.
func ParseProviderKind(label string) ProviderKind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "remote", "custom", "http":
		return ProviderRemote
	default:
		return ProviderLocal
	}
}
