package tui

import (
	"github.com/charmbracelet/lipgloss"

	"chatkit/core"
)

type theme struct {
	header       lipgloss.Style
	sidebar      lipgloss.Style
	sidebarTitle lipgloss.Style
	notice       lipgloss.Style
	help         lipgloss.Style
	recording    lipgloss.Style
	user         lipgloss.Style
	assistant    lipgloss.Style
	ok           lipgloss.Style
	warn         lipgloss.Style
	bad          lipgloss.Style
}

func newTheme() theme {
	gold := lipgloss.Color("#ffd166")
	teal := lipgloss.Color("#06d6a0")
	red := lipgloss.Color("#ef476f")
	blue := lipgloss.Color("#118ab2")
	muted := lipgloss.Color("#8d99ae")

	return theme{
		header: lipgloss.NewStyle().Foreground(gold).Bold(true),
		sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		sidebarTitle: lipgloss.NewStyle().Foreground(gold).Bold(true),
		notice:       lipgloss.NewStyle().Foreground(gold),
		help:         lipgloss.NewStyle().Foreground(muted),
		recording:    lipgloss.NewStyle().Foreground(red).Bold(true),
		user:         lipgloss.NewStyle().Foreground(blue).Bold(true),
		assistant:    lipgloss.NewStyle().Foreground(teal).Bold(true),
		ok:           lipgloss.NewStyle().Foreground(teal),
		warn:         lipgloss.NewStyle().Foreground(gold),
		bad:          lipgloss.NewStyle().Foreground(red),
	}
}

func (t theme) role(role core.Role) lipgloss.Style {
	if role == core.RoleUser {
		return t.user
	}
	return t.assistant
}

func (t theme) healthStyle(status core.HealthStatus) lipgloss.Style {
	switch status {
	case core.HealthConnected:
		return t.ok
	case core.HealthUnavailable:
		return t.warn
	case core.HealthOffline:
		return t.bad
	default:
		return t.help
	}
}
