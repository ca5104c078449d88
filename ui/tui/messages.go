package tui

import (
	"chatkit/core"
)

// Messages delivered to the bubbletea program by Renderer.

type turnRenderedMsg struct {
	id      int
	role    core.Role
	content string
}

type turnUpdatedMsg struct {
	id      int
	content string
}

type noticeMsg struct{ text string }

type finalizedMsg struct{}

type resetMsg struct{}

type sessionsMsg struct{ sessions []sessionEntry }

type healthMsg struct{ status core.HealthStatus }

type recordingMsg struct{ status core.RecordingStatus }

type inputMsg struct{ text string }

// imageMsg reports where a generated image was saved, or its remote URL.
type imageMsg struct {
	location string
	err      error
}

// intentDoneMsg closes an intent dispatched from the input box.
type intentDoneMsg struct {
	err error
}

// startedMsg follows the initial render of the restored session.
type startedMsg struct{}
