package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// busCommand is one line of <state>/<session>/commands.jsonl.
type busCommand struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Keys    string `json:"keys,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
	Source  string `json:"source,omitempty"` // cli|tui|system
}

func initCommandBus(path string) int64 {
	if strings.TrimSpace(path) == "" {
		return 0
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	if _, err := os.Stat(path); err != nil {
		_ = os.WriteFile(path, []byte{}, 0o644)
	}
	return 0
}

func (m appModel) consumeCommandBus() (appModel, tea.Cmd) {
	if strings.TrimSpace(m.commandBusPath) == "" {
		return m, nil
	}
	cmds, newOffset := readBusCommands(m.commandBusPath, m.commandBusOffset)
	m.commandBusOffset = newOffset
	var outCmds []tea.Cmd
	for _, c := range cmds {
		var cmd tea.Cmd
		m, cmd = m.applyBusCommand(c)
		if cmd != nil {
			outCmds = append(outCmds, cmd)
		}
		if m.quitRequested {
			break
		}
	}
	if len(outCmds) == 0 {
		return m, nil
	}
	return m, tea.Batch(outCmds...)
}

func readBusCommands(path string, offset int64) ([]busCommand, int64) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset
	}
	defer f.Close()

	st, err := f.Stat()
	if err == nil && offset > st.Size() {
		offset = st.Size()
	}

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, offset
		}
	}

	var cmds []busCommand
	reader := bufio.NewReader(f)
	cur := offset
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// A partial last line is left for the next tick.
			break
		}
		cur += int64(len(line))
		txt := strings.TrimSpace(line)
		if txt == "" {
			continue
		}
		var c busCommand
		if json.Unmarshal([]byte(txt), &c) == nil && c.Version == 1 && strings.TrimSpace(c.Type) != "" {
			cmds = append(cmds, c)
		}
	}
	return cmds, cur
}

func appendBusCommand(path string, c busCommand) error {
	if c.Version == 0 {
		c.Version = 1
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

func (m appModel) applyBusCommand(c busCommand) (appModel, tea.Cmd) {
	src := strings.TrimSpace(c.Source)
	if src == "" {
		src = "cli"
	}
	prevSource := m.actionSource
	m.actionSource = src
	m.emitEvent("bus.command", src, map[string]any{"type": c.Type, "user_id": c.UserID}, "")

	next, cmd := m.dispatchBusCommand(c, src)
	next.actionSource = prevSource
	return next, cmd
}

func (m appModel) dispatchBusCommand(c busCommand, src string) (appModel, tea.Cmd) {
	switch strings.TrimSpace(strings.ToLower(c.Type)) {
	case "stop":
		m.systemAlert(alertInfo, "session.stop", "Stop requested", map[string]any{"source": src})
		m = m.closeAllOverlays()
		m.quitRequested = true
		return m, tea.Quit
	case "open":
		if c.UserID == 0 {
			m.systemAlert(alertWarn, "command.invalid", "open requires user_id", nil)
			return m, nil
		}
		return m.openChatCmd(c.UserID)
	case "reply":
		text := c.Text
		return m.runOp("reply.send", func(ctx context.Context) error {
			return m.ctrl.SendReply(ctx, text)
		})
	case "send":
		text := c.Text
		return m.runOp("message.send", func(ctx context.Context) error {
			return m.ctrl.SendMessage(ctx, text)
		})
	case "compose":
		return m.toggleComposerCmd()
	case "refresh":
		return m.refreshCmd()
	case "key":
		keys := splitKeys(c.Keys)
		var cmds []tea.Cmd
		for _, k := range keys {
			if m.quitRequested {
				break
			}
			var cmd tea.Cmd
			m, cmd = m.applySyntheticKey(k)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		if len(cmds) == 0 {
			return m, nil
		}
		return m, tea.Batch(cmds...)
	default:
		m.systemAlert(alertWarn, "command.unknown", "Unknown bus command type", map[string]any{"type": c.Type})
		return m, nil
	}
}

func splitKeys(keys string) []string {
	raw := strings.FieldsFunc(keys, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		s := strings.TrimSpace(t)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func syntheticKey(token string) (tea.KeyMsg, bool) {
	t := strings.TrimSpace(token)
	if t == "" {
		return tea.KeyMsg{}, false
	}
	switch strings.ToLower(t) {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}, true
	case "alt+enter":
		return tea.KeyMsg{Type: tea.KeyEnter, Alt: true}, true
	case "ctrl+j":
		return tea.KeyMsg{Type: tea.KeyCtrlJ}, true
	case "esc", "escape":
		return tea.KeyMsg{Type: tea.KeyEscape}, true
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}, true
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}, true
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}, true
	case "pgup":
		return tea.KeyMsg{Type: tea.KeyPgUp}, true
	case "pgdown", "pgdn":
		return tea.KeyMsg{Type: tea.KeyPgDown}, true
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, true
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}, true
	default:
		// Anything else is typed as runes.
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(t)}, true
	}
}

func (m appModel) applySyntheticKey(token string) (appModel, tea.Cmd) {
	msg, ok := syntheticKey(token)
	if !ok {
		return m, nil
	}
	next, cmd := m.Update(msg)
	if am, ok := next.(appModel); ok {
		m = am
	}
	return m, cmd
}
