package ui

import "github.com/charmbracelet/lipgloss"

// Styles defines the lipgloss styles shared by the CLI renderers.
var Styles = struct {
	Bold    lipgloss.Style
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Muted   lipgloss.Style
	Value   lipgloss.Style
	Border  lipgloss.Style
	Summary lipgloss.Style
}{
	Bold: lipgloss.NewStyle().Bold(true),

	Title: lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")).
		Bold(true).
		MarginTop(1),

	Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
	Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	Value:  lipgloss.NewStyle().Foreground(lipgloss.Color("229")),
	Border: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),

	Summary: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("42")).
		Padding(0, 1),
}
