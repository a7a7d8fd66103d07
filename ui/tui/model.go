package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"

	"supportdesk/ui/api"
	"supportdesk/ui/desk"
)

type screen int

const (
	screenWelcome screen = iota
	screenChat
)

func (s screen) String() string {
	switch s {
	case screenWelcome:
		return "welcome"
	case screenChat:
		return "chat"
	default:
		return "unknown"
	}
}

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayQuitConfirm
	overlayAlert
)

func (o overlay) String() string {
	switch o {
	case overlayNone:
		return "none"
	case overlayHelp:
		return "help"
	case overlayQuitConfirm:
		return "quit_confirm"
	case overlayAlert:
		return "alert"
	default:
		return "unknown"
	}
}

type focusArea int

const (
	focusList focusArea = iota
	focusReply
	focusComposer
)

func (f focusArea) String() string {
	switch f {
	case focusList:
		return "list"
	case focusReply:
		return "reply"
	case focusComposer:
		return "composer"
	default:
		return "unknown"
	}
}

const (
	replyHeight   = 3
	maxAlerts     = 50
	maxRecentCmds = 20
)

type appConfig struct {
	ctx          context.Context
	stateDir     string
	sessionID    string
	commandsPath string
	apiURL       string
	version      string
	staticCursor bool
}

// opDoneMsg reports the end of a controller operation started from a key
// or bus command.
type opDoneMsg struct {
	Op  string
	Err error
}

type appModel struct {
	cfg  appConfig
	th   theme
	keys keyMap
	ctrl *desk.Controller
	log  *slog.Logger

	width  int
	height int
	now    time.Time

	sessionID string
	screens   []screen
	overlays  []overlay
	focus     focusArea

	stats    api.Stats
	hasStats bool

	items      []desk.ChatItem
	cursor     int
	activeUser int64
	hasActive  bool
	filter     textinput.Model
	filtering  bool

	header       desk.ThreadHeader
	thread       desk.Thread
	viewport     viewport.Model
	reply        textarea.Model
	composer     textinput.Model
	composerOpen bool

	toasts    []desk.Toast
	alertText string
	alerts    []systemAlert
	help      help.Model
	busy      int

	recentCommands []string

	commandBusPath   string
	commandBusOffset int64
	actionSource     string // tui|cli
	quitRequested    bool
}

func newAppModel(cfg appConfig, ctrl *desk.Controller, logger *slog.Logger) appModel {
	if cfg.ctx == nil {
		cfg.ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}

	keys := defaultKeyMap()

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "filter chats"
	filter.CharLimit = 64

	reply := textarea.New()
	reply.Placeholder = "Type a reply (Enter to send, Alt+Enter for a new line)"
	reply.ShowLineNumbers = false
	reply.Prompt = ""
	reply.SetHeight(replyHeight)
	reply.KeyMap.InsertNewline = keys.Newline

	composer := textinput.New()
	composer.Prompt = "✉ "
	composer.Placeholder = "New message to this user"

	// Blinking cursors schedule timer commands that headless runs never drain.
	if cfg.staticCursor {
		_ = filter.Cursor.SetMode(cursor.CursorStatic)
		_ = reply.Cursor.SetMode(cursor.CursorStatic)
		_ = composer.Cursor.SetMode(cursor.CursorStatic)
	}

	m := appModel{
		cfg:            cfg,
		th:             defaultTheme(),
		keys:           keys,
		ctrl:           ctrl,
		log:            logger,
		sessionID:      cfg.sessionID,
		screens:        []screen{screenWelcome},
		filter:         filter,
		viewport:       viewport.New(40, 10),
		reply:          reply,
		composer:       composer,
		help:           help.New(),
		alerts:         []systemAlert{},
		recentCommands: []string{},
		commandBusPath: cfg.commandsPath,
		actionSource:   "tui",
	}
	m.commandBusOffset = initCommandBus(cfg.commandsPath)
	m = m.layout()
	m.systemAlert(alertInfo, "supportdesk.started", "Support desk started", map[string]any{"api": cfg.apiURL})
	return m
}

func (m appModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return t })
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = t.Width
		m.height = t.Height
		m = m.layout()
		return m, nil
	case time.Time:
		return m.onTick(t)
	case tea.KeyMsg:
		return m.handleKey(t)
	case statsMsg:
		m.stats = t.Stats
		m.hasStats = true
		return m, nil
	case chatListMsg:
		m = m.setItems(t.Items)
		return m, nil
	case activeChatMsg:
		m.activeUser = t.UserID
		m.hasActive = true
		for i := range m.items {
			m.items[i].Active = m.items[i].UserID == t.UserID
		}
		return m, nil
	case showChatMsg:
		m.header = t.Header
		if m.currentScreen() != screenChat {
			m = m.pushScreen(screenChat)
		}
		m = m.layout()
		return m, nil
	case threadMsg:
		m.thread = t.Thread
		m.header = t.Thread.Header
		m = m.refreshThread()
		return m, nil
	case composerMsg:
		return m.setComposer(t.Open)
	case clearComposerMsg:
		m.composer.Reset()
		return m, nil
	case clearReplyMsg:
		m.reply.Reset()
		return m, nil
	case toastsMsg:
		m.toasts = t.Toasts
		m = m.layout()
		return m, nil
	case alertMsg:
		m.alertText = t.Text
		m.systemAlert(alertWarn, "ui.alert", t.Text, nil)
		if m.currentOverlay() != overlayAlert {
			m = m.openOverlay(overlayAlert)
		}
		return m, nil
	case opDoneMsg:
		return m.onOpDone(t), nil
	}
	return m.forwardToFocused(msg)
}

func (m appModel) forwardToFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.filtering:
		m.filter, cmd = m.filter.Update(msg)
	case m.focus == focusReply:
		m.reply, cmd = m.reply.Update(msg)
	case m.focus == focusComposer:
		m.composer, cmd = m.composer.Update(msg)
	}
	return m, cmd
}

// runOp runs a controller operation off the update loop. Its renders come
// back through the view; the returned message only closes the bookkeeping.
func (m appModel) runOp(op string, fn func(context.Context) error) (appModel, tea.Cmd) {
	m.busy++
	m.emitEvent("command.submitted", m.actionSource, map[string]any{"op": op}, "")
	ctx := m.cfg.ctx
	return m, func() tea.Msg {
		return opDoneMsg{Op: op, Err: fn(ctx)}
	}
}

func (m appModel) onOpDone(t opDoneMsg) appModel {
	if m.busy > 0 {
		m.busy--
	}
	m.recentCommands = append(m.recentCommands, t.Op)
	if len(m.recentCommands) > maxRecentCmds {
		m.recentCommands = m.recentCommands[len(m.recentCommands)-maxRecentCmds:]
	}
	if t.Err != nil && !isInputError(t.Err) {
		m.emitEvent("command.failed", "system", map[string]any{"op": t.Op, "error": t.Err.Error()}, "")
		return m
	}
	m.emitEvent("command.done", "system", map[string]any{"op": t.Op}, "")
	return m
}

// isInputError reports errors the controller already surfaced as an alert.
func isInputError(err error) bool {
	return errors.Is(err, desk.ErrEmptyText) ||
		errors.Is(err, desk.ErrNoChatSelected) ||
		errors.Is(err, desk.ErrNoReplyTarget)
}

func (m appModel) openChatCmd(userID int64) (appModel, tea.Cmd) {
	return m.runOp("chat.open", func(ctx context.Context) error {
		return m.ctrl.OpenChat(ctx, userID)
	})
}

func (m appModel) refreshCmd() (appModel, tea.Cmd) {
	return m.runOp("refresh", m.ctrl.Refresh)
}

func (m appModel) toggleComposerCmd() (appModel, tea.Cmd) {
	return m.runOp("composer.toggle", func(context.Context) error {
		m.ctrl.ToggleComposer()
		return nil
	})
}

func (m appModel) sendReplyCmd(text string) (appModel, tea.Cmd) {
	return m.runOp("reply.send", func(ctx context.Context) error {
		return m.ctrl.SendReply(ctx, text)
	})
}

func (m appModel) sendMessageCmd(text string) (appModel, tea.Cmd) {
	return m.runOp("message.send", func(ctx context.Context) error {
		return m.ctrl.SendMessage(ctx, text)
	})
}

func (m appModel) onTick(now time.Time) (appModel, tea.Cmd) {
	m.now = now

	var busCmd tea.Cmd
	m, busCmd = m.consumeCommandBus()
	if m.quitRequested {
		return m, tea.Quit
	}
	if busCmd == nil {
		return m, tickCmd()
	}
	return m, tea.Batch(tickCmd(), busCmd)
}

func (m appModel) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if k.Type == tea.KeyCtrlC {
		m.emitEvent("command.submitted", m.actionSource, map[string]any{"namespace": "ui", "text": "quit.ctrl_c"}, "")
		return m, tea.Quit
	}

	switch m.currentOverlay() {
	case overlayQuitConfirm:
		return m.updateQuitConfirm(k)
	case overlayHelp:
		if key.Matches(k, m.keys.Help, m.keys.Back, m.keys.Quit) {
			m = m.closeOverlay()
		}
		return m, nil
	case overlayAlert:
		if k.Type == tea.KeyEnter || key.Matches(k, m.keys.Back) {
			m = m.closeOverlay()
			m.alertText = ""
		}
		return m, nil
	}

	if m.filtering {
		return m.updateFilter(k)
	}
	if key.Matches(k, m.keys.Back) {
		return m.handleEsc()
	}
	if key.Matches(k, m.keys.Focus) {
		return m.cycleFocus()
	}

	switch m.focus {
	case focusReply:
		return m.updateReply(k)
	case focusComposer:
		return m.updateComposer(k)
	}
	return m.updateList(k)
}

func (m appModel) handleEsc() (tea.Model, tea.Cmd) {
	// Priority:
	// 1) Leave an input pane
	// 2) Clear an applied filter
	// 3) Quit confirmation
	if m.focus != focusList {
		m = m.setFocus(focusList)
		return m, nil
	}
	if m.filter.Value() != "" {
		m.filter.Reset()
		m = m.clampCursor()
		m.emitEvent("chat.filter.cleared", m.actionSource, nil, "")
		return m, nil
	}
	m = m.openOverlay(overlayQuitConfirm)
	return m, nil
}

func (m appModel) updateList(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visibleItems()
	switch {
	case key.Matches(k, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(k, m.keys.Down):
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	case key.Matches(k, m.keys.Open):
		if len(visible) == 0 {
			return m, nil
		}
		return m.openChatCmd(visible[m.cursor].UserID)
	case key.Matches(k, m.keys.Compose):
		if m.currentScreen() != screenChat {
			return m, nil
		}
		return m.toggleComposerCmd()
	case key.Matches(k, m.keys.Refresh):
		return m.refreshCmd()
	case key.Matches(k, m.keys.Filter):
		m.filtering = true
		cmd := m.filter.Focus()
		return m, cmd
	case key.Matches(k, m.keys.Help):
		m.help.ShowAll = true
		m = m.openOverlay(overlayHelp)
	case key.Matches(k, m.keys.Quit):
		m = m.openOverlay(overlayQuitConfirm)
	case key.Matches(k, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	}
	return m, nil
}

func (m appModel) updateFilter(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEscape:
		m.filtering = false
		m.filter.Blur()
		m.filter.Reset()
		m = m.clampCursor()
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		m.emitEvent("chat.filter", m.actionSource, map[string]any{"query": m.filter.Value(), "matches": len(m.visibleItems())}, "")
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(k)
	m.cursor = 0
	return m, cmd
}

func (m appModel) updateReply(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(k, m.keys.Send):
		return m.sendReplyCmd(m.reply.Value())
	case key.Matches(k, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	}
	var cmd tea.Cmd
	m.reply, cmd = m.reply.Update(k)
	return m, cmd
}

func (m appModel) updateComposer(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(k, m.keys.Send) {
		return m.sendMessageCmd(m.composer.Value())
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(k)
	return m, cmd
}

func (m appModel) updateQuitConfirm(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEnter:
		m.emitEvent("command.submitted", m.actionSource, map[string]any{"namespace": "ui", "text": "quit.confirm"}, "")
		m.recentCommands = append(m.recentCommands, "quit.confirm")
		return m, tea.Quit
	case tea.KeyEscape:
		m = m.closeOverlay()
		return m, nil
	case tea.KeyRunes:
		if string(k.Runes) == "y" || string(k.Runes) == "Y" {
			m.emitEvent("command.submitted", m.actionSource, map[string]any{"namespace": "ui", "text": "quit.y"}, "")
			m.recentCommands = append(m.recentCommands, "quit.y")
			return m, tea.Quit
		}
		if string(k.Runes) == "n" || string(k.Runes) == "N" {
			m.emitEvent("command.submitted", m.actionSource, map[string]any{"namespace": "ui", "text": "quit.n"}, "")
			m.recentCommands = append(m.recentCommands, "quit.n")
			m = m.closeOverlay()
			return m, nil
		}
	}
	return m, nil
}

func (m appModel) cycleFocus() (tea.Model, tea.Cmd) {
	order := []focusArea{focusList}
	if m.currentScreen() == screenChat {
		order = append(order, focusReply)
	}
	if m.composerOpen {
		order = append(order, focusComposer)
	}
	next := order[0]
	for i, f := range order {
		if f == m.focus {
			next = order[(i+1)%len(order)]
			break
		}
	}
	m = m.setFocus(next)
	cmd := m.focusCmd()
	return m, cmd
}

func (m appModel) setFocus(f focusArea) appModel {
	if f == m.focus {
		return m
	}
	m.reply.Blur()
	m.composer.Blur()
	m.focus = f
	m.emitEvent("ui.focus", m.actionSource, map[string]any{"focus": f.String()}, "")
	return m
}

func (m *appModel) focusCmd() tea.Cmd {
	switch m.focus {
	case focusReply:
		return m.reply.Focus()
	case focusComposer:
		return m.composer.Focus()
	}
	return nil
}

func (m appModel) setComposer(open bool) (tea.Model, tea.Cmd) {
	m.composerOpen = open
	if open {
		m = m.setFocus(focusComposer)
	} else {
		// Hiding the form discards the draft.
		m.composer.Reset()
		if m.focus == focusComposer {
			m = m.setFocus(focusList)
		}
	}
	m = m.layout()
	cmd := m.focusCmd()
	return m, cmd
}

// setItems swaps in a fresh chat list and keeps the cursor on the same user
// when that user is still visible.
func (m appModel) setItems(items []desk.ChatItem) appModel {
	var selected int64
	hasSelected := false
	if visible := m.visibleItems(); m.cursor < len(visible) {
		selected = visible[m.cursor].UserID
		hasSelected = true
	}
	m.items = items
	if hasSelected {
		for i, it := range m.visibleItems() {
			if it.UserID == selected {
				m.cursor = i
				return m
			}
		}
	}
	return m.clampCursor()
}

func (m appModel) clampCursor() appModel {
	n := len(m.visibleItems())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

// visibleItems narrows the list by the fuzzy filter without reordering it.
func (m appModel) visibleItems() []desk.ChatItem {
	q := strings.TrimSpace(m.filter.Value())
	if q == "" {
		return m.items
	}
	sources := make([]string, len(m.items))
	for i, it := range m.items {
		sources[i] = it.Name + " " + it.Preview
	}
	matches := fuzzy.Find(q, sources)
	idx := make([]int, 0, len(matches))
	for _, match := range matches {
		idx = append(idx, match.Index)
	}
	sort.Ints(idx)
	out := make([]desk.ChatItem, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.items[i])
	}
	return out
}

func (m appModel) currentScreen() screen {
	if len(m.screens) == 0 {
		return screenWelcome
	}
	return m.screens[len(m.screens)-1]
}

func (m appModel) pushScreen(s screen) appModel {
	m.screens = append(m.screens, s)
	m.emitEvent("ui.nav.push", m.actionSource, map[string]any{"screen": s.String(), "depth": len(m.screens)}, "")
	return m
}

func (m appModel) currentOverlay() overlay {
	if len(m.overlays) == 0 {
		return overlayNone
	}
	return m.overlays[len(m.overlays)-1]
}

func (m appModel) openOverlay(o overlay) appModel {
	m.overlays = append(m.overlays, o)
	m.emitEvent("ui.overlay.open", m.actionSource, map[string]any{"overlay": o.String(), "depth": len(m.overlays)}, "")
	return m
}

func (m appModel) closeOverlay() appModel {
	if len(m.overlays) == 0 {
		return m
	}
	popped := m.overlays[len(m.overlays)-1]
	m.overlays = m.overlays[:len(m.overlays)-1]
	m.emitEvent("ui.overlay.close", m.actionSource, map[string]any{"overlay": popped.String(), "depth": len(m.overlays)}, "")
	if popped == overlayHelp {
		m.help.ShowAll = false
	}
	return m
}

func (m appModel) closeAllOverlays() appModel {
	for len(m.overlays) > 0 {
		m = m.closeOverlay()
	}
	return m
}

func (m appModel) emitEvent(eventType string, source string, payload any, correlationID string) {
	if m.log == nil {
		return
	}
	attrs := []any{"source", source}
	if payload != nil {
		attrs = append(attrs, "payload", payload)
	}
	if correlationID != "" {
		attrs = append(attrs, "correlation_id", correlationID)
	}
	m.log.Info(eventType, attrs...)
}

func (m *appModel) systemAlert(sev alertSeverity, code string, message string, context map[string]any) {
	cid := newCorrelationID()
	a := systemAlert{
		At:            time.Now().UTC().Format(time.RFC3339Nano),
		Severity:      sev,
		Code:          code,
		Message:       message,
		Context:       context,
		CorrelationID: cid,
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
	}
	if m.log != nil {
		m.log.Log(m.cfg.ctx, sev.level(), "system.alert",
			"source", "system",
			"code", code,
			"message", message,
			"context", context,
			"correlation_id", cid,
		)
	}
}

// layout sizes the thread viewport and inputs for the current terminal.
func (m appModel) layout() appModel {
	_, chatW := m.panelWidths()
	innerW := max(10, chatW-4)
	m.viewport.Width = innerW
	m.viewport.Height = m.viewportHeight()
	m.reply.SetWidth(innerW)
	m.composer.Width = max(4, innerW-3)
	m.filter.Width = max(4, m.listWidth()-8)
	m.help.Width = max(20, m.effectiveWidth())
	return m.refreshThread()
}

func (m appModel) bodyHeight() int {
	_, h := m.effectiveSize()
	// header (2) + footer (1) + one line per toast
	return max(6, h-3-len(m.toasts))
}

func (m appModel) viewportHeight() int {
	// panel border (2), chat header (2), reply label and box
	used := 2 + 2 + 1 + replyHeight
	if m.composerOpen {
		used += 2
	}
	return max(1, m.bodyHeight()-used)
}

func (m appModel) panelWidths() (int, int) {
	w := m.effectiveWidth()
	left := clamp(w*35/100, 24, 44)
	if left > w-20 {
		left = max(10, w-20)
	}
	return left, w - left
}

func (m appModel) listWidth() int {
	left, _ := m.panelWidths()
	return left
}

func (m appModel) refreshThread() appModel {
	m.viewport.SetContent(m.renderThread(m.viewport.Width))
	m.viewport.GotoBottom()
	return m
}

func (m appModel) renderThread(width int) string {
	if m.thread.Placeholder != "" {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, m.th.Muted.Render(wordwrap.String(m.thread.Placeholder, max(10, width-2))))
	}
	bubbleW := max(12, width*3/4)
	var blocks []string
	for _, b := range m.thread.Bubbles {
		meta := b.Label
		if b.Time != "" {
			meta += " · " + b.Time
		}
		body := wordwrap.String(b.Text, bubbleW-4)
		style := m.th.UserBubble
		align := lipgloss.Left
		if b.Kind == desk.BubbleAdmin {
			style = m.th.AdminBubble
			align = lipgloss.Right
		}
		box := style.Render(m.th.Muted.Render(meta) + "\n" + body)
		blocks = append(blocks, lipgloss.PlaceHorizontal(width, align, box))
	}
	return strings.Join(blocks, "\n")
}

func (m appModel) View() string {
	w, h := m.effectiveSize()
	// If the terminal is extremely small, render a stable hint instead of a broken layout.
	if w < 40 || h < 12 {
		return m.viewTooSmall(w, h)
	}

	base := m.viewDashboard()
	switch m.currentOverlay() {
	case overlayHelp:
		return renderOverlay(m.th, base, m.viewHelp())
	case overlayQuitConfirm:
		return renderOverlay(m.th, base, m.viewQuitConfirm())
	case overlayAlert:
		return renderOverlay(m.th, base, m.viewAlert())
	}
	return base
}

func (m appModel) viewDashboard() string {
	header := renderHeader(m.th, m.cfg.version, m.stats, m.hasStats, m.sessionID, m.busy > 0, m.now)

	left, right := m.panelWidths()
	row := lipgloss.JoinHorizontal(lipgloss.Top, m.viewChatList(left), m.viewChatPane(right))

	parts := []string{header, row}
	if t := m.viewToasts(); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, m.help.ShortHelpView(m.keys.ShortHelp()))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m appModel) viewChatList(width int) string {
	inner := max(8, width-4)
	height := m.bodyHeight() - 2

	lines := []string{m.th.Header.Render("💬 Chats")}
	if m.filtering || m.filter.Value() != "" {
		lines = append(lines, m.filter.View())
	}

	visible := m.visibleItems()
	if len(visible) == 0 {
		placeholder := desk.ChatListPlaceholder
		if m.filter.Value() != "" {
			placeholder = "No matches"
		}
		lines = append(lines, m.th.Muted.Render(placeholder))
	}

	// Each row takes two lines; scroll so the cursor stays in view.
	rows := max(1, (height-len(lines))/2)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(visible) && i < start+rows; i++ {
		lines = append(lines, m.renderChatRow(visible[i], inner, i == m.cursor && m.focus == focusList)...)
	}

	style := m.th.Panel
	if m.focus == focusList && !m.filtering {
		style = m.th.PanelFocused
	}
	return style.Width(width - 2).Height(height).Render(strings.Join(lines, "\n"))
}

func (m appModel) renderChatRow(it desk.ChatItem, width int, selected bool) []string {
	prefix := "  "
	if selected {
		prefix = m.th.Accent.Render("> ")
	}
	right := it.Time
	badge := ""
	if it.Badge != "" {
		badge = " " + m.th.Badge.Render(it.Badge)
	}
	nameW := max(4, width-2-runewidth.StringWidth(right)-lipgloss.Width(badge)-1)
	name := runewidth.FillRight(runewidth.Truncate(desk.Sanitize(it.Name), nameW, "…"), nameW)
	if it.Active {
		name = m.th.ActiveRow.Render(name)
	}
	first := prefix + name + badge + " " + m.th.Muted.Render(right)
	preview := runewidth.Truncate(strings.ReplaceAll(it.Preview, "\n", " "), max(4, width-2), "…")
	return []string{first, "  " + m.th.Muted.Render(preview)}
}

func (m appModel) viewChatPane(width int) string {
	height := m.bodyHeight() - 2
	if m.currentScreen() == screenWelcome {
		welcome := lipgloss.JoinVertical(lipgloss.Center,
			m.th.Header.Render("👋 Support desk"),
			"",
			m.th.Muted.Render("Select a chat on the left and press Enter."),
		)
		return m.th.Panel.Width(width-2).Height(height).Render(
			lipgloss.Place(max(10, width-4), max(1, height), lipgloss.Center, lipgloss.Center, welcome),
		)
	}

	lines := []string{
		m.th.Header.Render(desk.Sanitize(m.header.Name)),
		m.th.Muted.Render(m.header.Subtitle + "    [n] new message"),
		m.viewport.View(),
	}
	if m.composerOpen {
		lines = append(lines, m.th.Accent.Render("New message"), m.composer.View())
	}
	label := m.th.Muted.Render("Reply")
	if m.focus == focusReply {
		label = m.th.Accent.Render("Reply")
	}
	lines = append(lines, label, m.reply.View())

	style := m.th.Panel
	if m.focus != focusList {
		style = m.th.PanelFocused
	}
	return style.Width(width - 2).Height(height).Render(strings.Join(lines, "\n"))
}

func (m appModel) viewToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		style := m.th.Success
		if t.Kind == desk.ToastError {
			style = m.th.Danger
		}
		if t.Phase == desk.ToastFading {
			style = m.th.Muted
		}
		lines = append(lines, style.Render(t.Text))
	}
	return lipgloss.PlaceHorizontal(m.effectiveWidth(), lipgloss.Right, strings.Join(lines, "\n"))
}

func (m appModel) viewHelp() string {
	return m.th.OverlayBox.Render(m.th.Accent.Render("KEYS") + "\n" + m.help.FullHelpView(m.keys.FullHelp()))
}

func (m appModel) viewQuitConfirm() string {
	lines := []string{
		m.th.Danger.Render("QUIT SUPPORT DESK?"),
		m.th.Muted.Render("Enter/y: quit    Esc/n: cancel"),
	}
	return m.th.OverlayBox.Render(strings.Join(lines, "\n"))
}

func (m appModel) viewAlert() string {
	lines := []string{
		m.th.Alert.Render("⚠ " + m.alertText),
		m.th.Muted.Render("Enter/Esc: dismiss"),
	}
	return m.th.OverlayBox.Render(strings.Join(lines, "\n"))
}

func renderHeader(th theme, version string, stats api.Stats, hasStats bool, sessionID string, busy bool, now time.Time) string {
	left := fmt.Sprintf("SUPPORT DESK %s", version)
	right := "[ stats loading ]"
	if hasStats {
		right = fmt.Sprintf("[ total: %d  unanswered: %d  users: %d ]", stats.TotalMessages, stats.UnansweredMessages, stats.UniqueUsers)
	}
	line := fmt.Sprintf("%s %s", left, right)
	if busy {
		line += " " + spinner(now)
	}
	return th.Header.Render(line) + "\n" + th.Muted.Render(fmt.Sprintf("Session: %s", sessionID))
}

func renderOverlay(th theme, base string, overlay string) string {
	dim := th.Overlay.Render(base)
	return dim + "\n\n" + overlay
}

func spinner(now time.Time) string {
	frames := []string{"|", "/", "-", "\\"}
	i := int((now.UnixMilli() / 100) % int64(len(frames)))
	if i < 0 {
		i = -i
	}
	return frames[i]
}

func (m appModel) effectiveSize() (int, int) {
	w := m.width
	h := m.height
	// Headless runs and tests may not deliver a WindowSizeMsg; assume a sane default.
	if w <= 0 {
		w = 100
	}
	if h <= 0 {
		h = 30
	}
	return w, h
}

func (m appModel) effectiveWidth() int {
	w, _ := m.effectiveSize()
	return w
}

func (m appModel) viewTooSmall(w, h int) string {
	lines := []string{
		m.th.Header.Render("SUPPORT DESK"),
		m.th.Alert.Render("Terminal too small"),
		m.th.Muted.Render(fmt.Sprintf("Minimum: 40x12. Current: %dx%d", w, h)),
		m.th.Muted.Render("Tip: resize the terminal window."),
	}
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
