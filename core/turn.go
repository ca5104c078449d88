package core

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is one role-tagged message in a conversation log. Its index in the log
// is its only ordering key.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
