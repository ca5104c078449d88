package core

// IEvent is implemented by everything the engine publishes to a remote UI.
type IEvent interface {
	GetId() string // Returns the stable identifier of the event kind.
}
