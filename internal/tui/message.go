package tui

import (
	"strings"
	"time"

	"discuss/internal/content"
	"discuss/internal/models"

	"github.com/charmbracelet/lipgloss"
)

const previewLength = 60

// renderMessage draws one chat message: the byline, an optional reply quote
// and the rendered content wrapped to width.
func renderMessage(r *content.Renderer, m models.Message, own, selected bool, width int, now time.Time) string {
	style := authorStyle
	if own {
		style = ownStyle
	}
	byline := style.Render(displayName(m.User)) + " " + metaStyle.Render(formatTime(m.CreatedAt, now))
	if m.Edited() {
		byline += " " + metaStyle.Render("(edited)")
	}

	lines := []string{byline}
	if m.ReplyTo != nil {
		quote := "↪ " + displayName(m.ReplyTo.User) + ": " + preview(m.ReplyTo.Content, previewLength)
		lines = append(lines, quoteStyle.Render(quote))
	}

	body := r.Render(m.Content)
	if width > 2 {
		body = lipgloss.NewStyle().Width(width - 2).Render(body)
	}
	lines = append(lines, body)

	gutter := "  "
	if selected {
		gutter = selectedStyle.Render("▌ ")
	}
	out := strings.Split(strings.Join(lines, "\n"), "\n")
	for i, l := range out {
		out[i] = gutter + l
	}
	return strings.Join(out, "\n")
}

// displayName is the author name as safe terminal text.
func displayName(a models.Author) string {
	return content.Sanitize(a.DisplayName())
}

func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	y, m, d := t.Date()
	ny, nm, nd := now.Local().Date()
	if y == ny && m == nm && d == nd {
		return t.Format("15:04")
	}
	return t.Format("Jan 2 15:04")
}

// preview flattens s to one line and cuts it to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(content.Sanitize(s)), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
