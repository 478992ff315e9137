// Package tui is the terminal interface of the chat.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"discuss/internal/content"
	"discuss/internal/feed"
	"discuss/internal/models"
	"discuss/internal/session"
	"discuss/internal/transport"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Session is what the interface drives.
type Session interface {
	Start(ctx context.Context) error
	Retry(ctx context.Context) error
	LoadMore(ctx context.Context) error
	Send(text string) error
	Typing(text string)
	Blur()
	SetReplyTo(id int64) error
	ClearReply()
	Edit(ctx context.Context, id int64, text string) error
	Delete(ctx context.Context, id int64) error
	Reconnect(ctx context.Context) error
	CanModify(m models.Message) bool
	View() session.View
	OnChange(fn func())
}

type changedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

type loadMoreDoneMsg struct {
	err error
}

type Options struct {
	// NearBottom is the near-bottom threshold in lines.
	NearBottom int
	Draft      string
	Logger     *zap.SugaredLogger
	// Now is the clock used for timestamps.
	Now func() time.Time
}

type Model struct {
	ctx    context.Context
	sess   Session
	logger *zap.SugaredLogger
	now    func() time.Time

	viewport viewport.Model
	input    textarea.Model
	coord    *feed.Viewport
	renderer *content.Renderer
	changes  chan struct{}

	view      session.View
	width     int
	height    int
	selected  int64
	editing   int64
	alert     string
	status    string
	lastValue string

	firstID int64
	starts  map[int64]int
	ends    map[int64]int
}

func New(ctx context.Context, sess Session, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	input := textarea.New()
	input.Placeholder = "Write a message..."
	input.ShowLineNumbers = false
	input.CharLimit = content.MaxContentLength
	input.SetHeight(2)
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.SetValue(opts.Draft)
	input.Focus()

	m := &Model{
		ctx:       ctx,
		sess:      sess,
		logger:    opts.Logger,
		now:       opts.Now,
		viewport:  viewport.New(0, 0),
		input:     input,
		coord:     feed.NewViewport(opts.NearBottom),
		renderer:  content.NewRenderer(content.DefaultStyles()),
		changes:   make(chan struct{}, 1),
		lastValue: opts.Draft,
		starts:    make(map[int64]int),
		ends:      make(map[int64]int),
	}
	sess.OnChange(func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	m.view = sess.View()
	return m
}

// Draft is the unsent compose text.
func (m *Model) Draft() string {
	if m.editing != 0 {
		return ""
	}
	return m.input.Value()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), m.waitForChange(), textarea.Blink)
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "load", err: m.sess.Start(m.ctx)}
	}
}

func (m *Model) opCmd(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(m.ctx)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case opDoneMsg:
		if msg.err != nil {
			m.logger.Debugw("Operation failed", "op", msg.op, "error", msg.err)
			switch msg.op {
			case "edit", "delete":
				m.alert = fmt.Sprintf("Failed to %s message: %v", msg.op, msg.err)
			case "load":
				// shown from the session view with a retry hint
			default:
				m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
			}
		}
		return m, m.refresh()

	case loadMoreDoneMsg:
		if msg.err != nil {
			m.coord.LoadFailed()
			m.status = "Failed to load older messages"
			return m, nil
		}
		m.coord.OnOlderLoaded(len(m.view.Feed.Messages))
		return m, nil

	case tea.BlurMsg:
		m.sess.Blur()
		return m, nil

	case tea.FocusMsg:
		return m, nil

	case tea.MouseMsg:
		if msg.Button != tea.MouseButtonWheelUp && msg.Button != tea.MouseButtonWheelDown {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.onScroll())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.alert != "" {
		m.alert = ""
		return m, nil
	}
	m.status = ""

	switch key {
	case "enter":
		return m, m.submit()

	case "up":
		m.moveSelection(-1)
		return m, nil
	case "down":
		m.moveSelection(1)
		return m, nil

	case "ctrl+r":
		return m, m.opCmd("reconnect", m.sess.Reconnect)

	case "ctrl+t":
		if m.selected == 0 {
			return m, nil
		}
		if err := m.sess.SetReplyTo(m.selected); err != nil {
			m.status = err.Error()
		}
		return m, nil

	case "ctrl+x":
		sel, ok := m.selectedMessage()
		if !ok || !m.sess.CanModify(sel) {
			return m, nil
		}
		m.selected = 0
		id := sel.ID
		return m, m.opCmd("delete", func(ctx context.Context) error { return m.sess.Delete(ctx, id) })

	case "ctrl+e":
		sel, ok := m.selectedMessage()
		if !ok || !m.sess.CanModify(sel) {
			return m, nil
		}
		m.editing = sel.ID
		m.input.SetValue(sel.Content)
		m.input.CursorEnd()
		m.lastValue = m.input.Value()
		return m, nil

	case "esc":
		switch {
		case m.editing != 0:
			m.editing = 0
			m.input.Reset()
			m.lastValue = ""
		case m.view.ReplyTo != nil:
			m.sess.ClearReply()
		default:
			m.selected = 0
			m.rebuild()
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.onScroll())
	case "home":
		m.viewport.GotoTop()
		return m, m.onScroll()
	case "end":
		m.viewport.GotoBottom()
		m.coord.JumpToBottom()
		return m, m.onScroll()

	case "ctrl+l":
		if m.view.FetchErr != nil && !m.view.Loading {
			return m, m.opCmd("load", m.sess.Retry)
		}
		return m, nil
	case "r":
		if m.showingFetchError() && m.input.Value() == "" {
			return m, m.opCmd("load", m.sess.Retry)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != m.lastValue {
		m.lastValue = v
		if m.editing == 0 {
			m.sess.Typing(v)
		}
	}
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())

	if m.editing != 0 {
		id := m.editing
		m.editing = 0
		m.input.Reset()
		m.lastValue = ""
		return m.opCmd("edit", func(ctx context.Context) error { return m.sess.Edit(ctx, id, text) })
	}

	if err := m.sess.Send(text); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			m.status = "Not connected. Press ctrl+r to reconnect."
		} else {
			m.status = err.Error()
		}
		return nil
	}
	m.input.Reset()
	m.lastValue = ""
	return nil
}

func (m *Model) onScroll() tea.Cmd {
	metrics := feed.Metrics{
		ScrollHeight: m.viewport.TotalLineCount(),
		ScrollTop:    m.viewport.YOffset,
		ClientHeight: m.viewport.Height,
	}
	if !m.coord.OnScroll(metrics) {
		return nil
	}
	return func() tea.Msg {
		return loadMoreDoneMsg{err: m.sess.LoadMore(m.ctx)}
	}
}

func (m *Model) showingFetchError() bool {
	return m.view.FetchErr != nil && len(m.view.Feed.Messages) == 0
}

func (m *Model) selectedMessage() (models.Message, bool) {
	if m.selected == 0 {
		return models.Message{}, false
	}
	return m.view.Feed.Find(m.selected)
}

func (m *Model) moveSelection(delta int) {
	msgs := m.view.Feed.Messages
	if len(msgs) == 0 {
		return
	}

	idx := -1
	for i, msg := range msgs {
		if msg.ID == m.selected {
			idx = i
			break
		}
	}
	switch {
	case idx == -1 && delta < 0:
		idx = len(msgs) - 1
	case idx == -1:
		return
	default:
		idx += delta
	}
	if idx >= len(msgs) {
		m.selected = 0
		m.rebuild()
		m.viewport.GotoBottom()
		return
	}
	if idx < 0 {
		idx = 0
	}
	m.selected = msgs[idx].ID
	m.rebuild()
	m.scrollToSelection()
}

func (m *Model) scrollToSelection() {
	start, ok := m.starts[m.selected]
	if !ok {
		return
	}
	end := m.ends[m.selected]
	if start < m.viewport.YOffset {
		m.viewport.SetYOffset(start)
	} else if end >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(end - m.viewport.Height + 1)
	}
}

// refresh pulls the session view and applies the scroll rules.
func (m *Model) refresh() tea.Cmd {
	m.view = m.sess.View()
	m.coord.SetHasMore(m.view.Feed.HasMore)

	if m.selected != 0 {
		if _, ok := m.view.Feed.Find(m.selected); !ok {
			m.selected = 0
		}
	}

	msgs := m.view.Feed.Messages
	prevFirst := m.firstID
	prevLines := m.viewport.TotalLineCount()
	prevOffset := m.viewport.YOffset

	prepended := false
	if prevFirst != 0 && len(msgs) > 0 && msgs[0].ID != prevFirst {
		_, prepended = m.view.Feed.Find(prevFirst)
	}
	if len(msgs) > 0 {
		m.firstID = msgs[0].ID
	} else {
		m.firstID = 0
	}

	m.rebuild()
	m.resize()

	if prepended {
		m.coord.OnOlderLoaded(len(msgs))
		m.viewport.SetYOffset(prevOffset + m.viewport.TotalLineCount() - prevLines)
		return nil
	}
	switch m.coord.OnCountChange(len(msgs)) {
	case feed.ScrollInstant, feed.ScrollSmooth:
		m.viewport.GotoBottom()
	}
	return nil
}

// rebuild renders the feed into the viewport, keeping the scroll offset.
func (m *Model) rebuild() {
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderFeed())
	m.viewport.SetYOffset(offset)
}

func (m *Model) renderFeed() string {
	v := m.view
	clear(m.starts)
	clear(m.ends)

	if m.showingFetchError() {
		return alertStyle.Render("Failed to load messages: "+v.FetchErr.Error()) + "\n" +
			placeholder.Render("Press r or ctrl+l to retry.")
	}
	count := len(v.Feed.Messages)
	if count == 0 && (v.Loading || !v.Feed.Loaded) {
		return placeholder.Render("Loading messages...")
	}
	if feed.ShowEmptyState(count, v.Loading) {
		return placeholder.Render("No messages yet. Start the conversation!")
	}

	now := m.now()
	var blocks []string
	line := 0
	if v.LoadingMore {
		blocks = append(blocks, placeholder.Render("Loading older messages..."))
		line++
	}
	for _, msg := range v.Feed.Messages {
		block := renderMessage(m.renderer, msg, m.sess.CanModify(msg), msg.ID == m.selected, m.width, now)
		n := strings.Count(block, "\n") + 1
		m.starts[msg.ID] = line
		m.ends[msg.ID] = line + n - 1
		blocks = append(blocks, block)
		line += n
	}
	return strings.Join(blocks, "\n")
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.input.SetWidth(m.width)
	chrome := lipgloss.Height(m.footer()) + lipgloss.Height(m.header())
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
}

func (m *Model) header() string {
	switch m.view.Conn {
	case transport.StateConnected:
		return ""
	case transport.StateConnecting:
		return bannerStyle.Render("Connecting...")
	case transport.StateFailed:
		text := "Connection failed"
		if m.view.ConnErr != nil {
			text += ": " + m.view.ConnErr.Error()
		}
		return bannerStyle.Render(text + " · ctrl+r to reconnect")
	}
	return bannerStyle.Render("Disconnected · ctrl+r to reconnect")
}

func (m *Model) footer() string {
	var lines []string
	if m.coord.ShowJump() {
		lines = append(lines, jumpStyle.Render("↓ New messages · end to jump"))
	}
	names := make([]string, len(m.view.Typing))
	for i, n := range m.view.Typing {
		names[i] = content.Sanitize(n)
	}
	lines = append(lines, metaStyle.Render(feed.TypingLabel(names)))

	switch {
	case m.editing != 0:
		lines = append(lines, barStyle.Render("Editing message · enter to save, esc to cancel"))
	case m.view.ReplyTo != nil:
		r := m.view.ReplyTo
		lines = append(lines, barStyle.Render("Replying to "+displayName(r.User)+": "+preview(r.Content, previewLength)+" · esc to cancel"))
	}
	if m.view.FetchErr != nil && !m.showingFetchError() {
		lines = append(lines, alertStyle.Render("Failed to load messages: "+m.view.FetchErr.Error()+" · ctrl+l to retry"))
	}
	if m.alert != "" {
		lines = append(lines, alertStyle.Render(m.alert+" (press any key)"))
	} else if m.status != "" {
		lines = append(lines, alertStyle.Render(m.status))
	}

	if m.view.Conn != transport.StateConnected && m.editing == 0 {
		lines = append(lines, placeholder.Render("Messages can be sent once connected."))
	}
	lines = append(lines, m.input.View())
	lines = append(lines, metaStyle.Render("enter send · ↑/↓ select · ctrl+t reply · ctrl+e edit · ctrl+x delete · ctrl+r reconnect · ctrl+l reload · ctrl+c quit"))
	return strings.Join(lines, "\n")
}

func (m *Model) View() string {
	parts := []string{}
	if h := m.header(); h != "" {
		parts = append(parts, h)
	}
	parts = append(parts, m.viewport.View(), m.footer())
	return strings.Join(parts, "\n")
}
