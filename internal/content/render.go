package content

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Styles used when rendering Markdown into terminal text.
type Styles struct {
	Strong   lipgloss.Style
	Emphasis lipgloss.Style
	Code     lipgloss.Style
	Link     lipgloss.Style
	Heading  lipgloss.Style
	Quote    lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Strong:   lipgloss.NewStyle().Bold(true),
		Emphasis: lipgloss.NewStyle().Italic(true),
		Code:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Link:     lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39")),
		Heading:  lipgloss.NewStyle().Bold(true).Underline(true),
		Quote:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Renderer turns message Markdown into styled terminal text.
type Renderer struct {
	md     goldmark.Markdown
	styles Styles
}

func NewRenderer(styles Styles) *Renderer {
	return &Renderer{
		md:     goldmark.New(),
		styles: styles,
	}
}

// Render sanitizes input and renders its Markdown. Block elements are
// separated by a single newline.
func (r *Renderer) Render(input string) string {
	src := []byte(Sanitize(input))
	doc := r.md.Parser().Parse(text.NewReader(src))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if b := r.block(n, src); b != "" {
			blocks = append(blocks, b)
		}
	}
	return strings.Join(blocks, "\n")
}

func (r *Renderer) block(n ast.Node, src []byte) string {
	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return r.inline(n, src)
	case *ast.Heading:
		return r.styles.Heading.Render(r.inline(n, src))
	case *ast.FencedCodeBlock:
		return r.styles.Code.Render(codeLines(n, src))
	case *ast.CodeBlock:
		return r.styles.Code.Render(codeLines(n, src))
	case *ast.Blockquote:
		var lines []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			for _, l := range strings.Split(r.block(c, src), "\n") {
				lines = append(lines, r.styles.Quote.Render("│ "+l))
			}
		}
		return strings.Join(lines, "\n")
	case *ast.List:
		var items []string
		i := n.Start
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			marker := "• "
			if n.IsOrdered() {
				marker = strconv.Itoa(i) + ". "
				i++
			}
			var parts []string
			for b := c.FirstChild(); b != nil; b = b.NextSibling() {
				parts = append(parts, r.block(b, src))
			}
			items = append(items, marker+strings.Join(parts, " "))
		}
		return strings.Join(items, "\n")
	case *ast.ThematicBreak:
		return "───"
	case *ast.HTMLBlock:
		return strings.TrimRight(codeLines(n, src), "\n")
	}
	return r.inline(n, src)
}

func (r *Renderer) inline(parent ast.Node, src []byte) string {
	var sb strings.Builder
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Text:
			sb.Write(n.Segment.Value(src))
			if n.HardLineBreak() || n.SoftLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(n.Value)
		case *ast.CodeSpan:
			sb.WriteString(r.styles.Code.Render(r.inline(n, src)))
		case *ast.Emphasis:
			if n.Level >= 2 {
				sb.WriteString(r.styles.Strong.Render(r.inline(n, src)))
			} else {
				sb.WriteString(r.styles.Emphasis.Render(r.inline(n, src)))
			}
		case *ast.Link:
			label := r.inline(n, src)
			dest := string(n.Destination)
			if label == "" || label == dest {
				sb.WriteString(r.styles.Link.Render(dest))
			} else {
				sb.WriteString(label + " (" + r.styles.Link.Render(dest) + ")")
			}
		case *ast.AutoLink:
			sb.WriteString(r.styles.Link.Render(string(n.URL(src))))
		case *ast.Image:
			sb.WriteString("[image: " + string(n.Destination) + "]")
		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				sb.Write(seg.Value(src))
			}
		default:
			sb.WriteString(r.inline(n, src))
		}
	}
	return sb.String()
}

func codeLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}
