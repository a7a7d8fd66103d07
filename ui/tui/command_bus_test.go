package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestReadBusCommandsKeepsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	content := `{"version":1,"type":"open","user_id":102}
not json
{"version":2,"type":"refresh"}

{"version":1,"type":"rep`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cmds, off := readBusCommands(path, 0)
	if len(cmds) != 1 || cmds[0].Type != "open" || cmds[0].UserID != 102 {
		t.Fatalf("unexpected commands %+v", cmds)
	}
	complete := int64(len(content) - len(`{"version":1,"type":"rep`))
	if off != complete {
		t.Fatalf("expected offset %d, got %d", complete, off)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`ly","text":"hi"}` + "\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cmds, _ = readBusCommands(path, off)
	if len(cmds) != 1 || cmds[0].Type != "reply" || cmds[0].Text != "hi" {
		t.Fatalf("expected completed reply command, got %+v", cmds)
	}
}

func TestReadBusCommandsMissingFile(t *testing.T) {
	cmds, off := readBusCommands(filepath.Join(t.TempDir(), "nope.jsonl"), 7)
	if cmds != nil || off != 7 {
		t.Fatalf("expected no commands and unchanged offset, got %v %d", cmds, off)
	}
}

func TestAppendBusCommandDefaultsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess", "commands.jsonl")
	if err := appendBusCommand(path, busCommand{Type: "refresh", Source: "cli"}); err != nil {
		t.Fatal(err)
	}
	if err := appendBusCommand(path, busCommand{Type: "send", Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	cmds, _ := readBusCommands(path, 0)
	if len(cmds) != 2 || cmds[0].Version != 1 || cmds[1].Text != "hello" {
		t.Fatalf("unexpected round trip %+v", cmds)
	}
}

func consumeBus(d *driver) {
	next, cmd := d.m.consumeCommandBus()
	d.m = next
	d.run(cmd)
	d.flush()
}

func TestCommandBusDrivesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.jsonl")
	d, b := newTestDriver(t, appConfig{commandsPath: path})

	if err := appendBusCommand(path, busCommand{Type: "refresh"}); err != nil {
		t.Fatal(err)
	}
	if err := appendBusCommand(path, busCommand{Type: "open", UserID: 102}); err != nil {
		t.Fatal(err)
	}
	consumeBus(d)
	if d.m.header.UserID != 102 || len(d.m.items) != 3 {
		t.Fatalf("expected chat 102 open, got %d with %d items", d.m.header.UserID, len(d.m.items))
	}
	if d.m.actionSource != "tui" {
		t.Fatalf("expected action source restored, got %q", d.m.actionSource)
	}

	if err := appendBusCommand(path, busCommand{Type: "reply", Text: "Fixed"}); err != nil {
		t.Fatal(err)
	}
	consumeBus(d)
	msgs, _ := b.Messages(context.Background(), 102)
	if !msgs[1].Answered() {
		t.Fatalf("expected bus reply to answer b2")
	}

	if err := appendBusCommand(path, busCommand{Type: "key", Keys: "tab,o,k"}); err != nil {
		t.Fatal(err)
	}
	consumeBus(d)
	if d.m.focus != focusReply || d.m.reply.Value() != "ok" {
		t.Fatalf("expected typed reply, got focus %s value %q", d.m.focus, d.m.reply.Value())
	}

	if err := appendBusCommand(path, busCommand{Type: "stop"}); err != nil {
		t.Fatal(err)
	}
	next, cmd := d.m.consumeCommandBus()
	if !next.quitRequested || cmd == nil {
		t.Fatalf("expected stop to request quit")
	}
}

func TestUnknownBusCommandRaisesSystemAlert(t *testing.T) {
	d, _ := newTestDriver(t, appConfig{})
	before := len(d.m.alerts)
	next, cmd := d.m.applyBusCommand(busCommand{Version: 1, Type: "dance"})
	if cmd != nil {
		t.Fatalf("expected no command")
	}
	if len(next.alerts) != before+1 || next.alerts[len(next.alerts)-1].Code != "command.unknown" {
		t.Fatalf("expected command.unknown alert, got %+v", next.alerts)
	}

	next, _ = next.applyBusCommand(busCommand{Version: 1, Type: "open"})
	if next.alerts[len(next.alerts)-1].Code != "command.invalid" {
		t.Fatalf("expected command.invalid for open without user id")
	}
}

func TestSyntheticKey(t *testing.T) {
	cases := map[string]string{
		"enter":     "enter",
		"alt+enter": "alt+enter",
		"ESC":       "esc",
		"pgdn":      "pgdown",
		"tab":       "tab",
		"x":         "x",
	}
	for token, want := range cases {
		msg, ok := syntheticKey(token)
		if !ok {
			t.Fatalf("%q: not recognised", token)
		}
		if got := msg.String(); got != want {
			t.Fatalf("%q: got %q, want %q", token, got, want)
		}
	}
	if _, ok := syntheticKey("  "); ok {
		t.Fatalf("blank token must be rejected")
	}
	if msg, _ := syntheticKey("space"); msg.Type != tea.KeySpace {
		t.Fatalf("expected space key")
	}
}

func TestSplitKeys(t *testing.T) {
	got := splitKeys("down, enter\ttab  x")
	want := []string{"down", "enter", "tab", "x"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseBusArgs(t *testing.T) {
	c, err := parseBusArgs([]string{"open", "42"})
	if err != nil || c.Type != "open" || c.UserID != 42 || c.Source != "cli" || c.Version != 1 {
		t.Fatalf("unexpected open command %+v err=%v", c, err)
	}
	c, err = parseBusArgs([]string{"Reply", "thanks"})
	if err != nil || c.Type != "reply" || c.Text != "thanks" {
		t.Fatalf("unexpected reply command %+v err=%v", c, err)
	}
	if _, err := parseBusArgs([]string{"refresh"}); err != nil {
		t.Fatalf("refresh takes no argument: %v", err)
	}

	for _, args := range [][]string{
		{},
		{"open", "abc"},
		{"send", "  "},
		{"key"},
		{"launch"},
	} {
		if _, err := parseBusArgs(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
