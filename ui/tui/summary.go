package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

func sessionSummary(m appModel) map[string]any {
	dir := filepath.Join(m.cfg.stateDir, m.sessionID)

	alerts := m.alerts
	if len(alerts) > 10 {
		alerts = alerts[len(alerts)-10:]
	}
	cmds := m.recentCommands
	if len(cmds) > 10 {
		cmds = cmds[len(cmds)-10:]
	}
	toasts := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		toasts = append(toasts, t.Text)
	}

	out := map[string]any{
		"version":        1,
		"updatedAt":      time.Now().UTC().Format(time.RFC3339Nano),
		"sessionId":      m.sessionID,
		"apiUrl":         m.cfg.apiURL,
		"screen":         m.currentScreen().String(),
		"overlay":        m.currentOverlay().String(),
		"focus":          m.focus.String(),
		"stats":          m.stats,
		"visibleChats":   len(m.visibleItems()),
		"lastToasts":     toasts,
		"recentAlerts":   alerts,
		"recentCommands": cmds,
		"eventsPath":     filepath.Join(dir, "events.jsonl"),
	}
	if m.ctrl != nil {
		out["session"] = m.ctrl.Snapshot()
	}
	return out
}

func writeSessionSummary(m appModel) {
	if m.cfg.stateDir == "" || m.sessionID == "" {
		return
	}
	dir := filepath.Join(m.cfg.stateDir, m.sessionID)
	_ = os.MkdirAll(dir, 0o755)

	b, err := json.MarshalIndent(sessionSummary(m), "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "summary.json"), append(b, '\n'), 0o644)
}
