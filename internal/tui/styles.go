package tui

import "github.com/charmbracelet/lipgloss"

var (
	authorColor = lipgloss.Color("75")
	ownColor    = lipgloss.Color("114")
	metaColor   = lipgloss.Color("242")
	alertColor  = lipgloss.Color("203")
	bannerBg    = lipgloss.Color("52")
	accentColor = lipgloss.Color("220")
)

var (
	authorStyle   = lipgloss.NewStyle().Foreground(authorColor).Bold(true)
	ownStyle      = lipgloss.NewStyle().Foreground(ownColor).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(metaColor)
	quoteStyle    = lipgloss.NewStyle().Foreground(metaColor).Italic(true)
	alertStyle    = lipgloss.NewStyle().Foreground(alertColor).Bold(true)
	bannerStyle   = lipgloss.NewStyle().Background(bannerBg).Foreground(lipgloss.Color("231")).Padding(0, 1)
	jumpStyle     = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	barStyle      = lipgloss.NewStyle().Foreground(accentColor)
	selectedStyle = lipgloss.NewStyle().Foreground(accentColor)
	placeholder   = lipgloss.NewStyle().Foreground(metaColor).Italic(true)
)
