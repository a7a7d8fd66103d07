package desk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"supportdesk/ui/api"
)

func seededBackend() *fakeBackend {
	b := newFakeBackend()
	b.stats = api.Stats{TotalMessages: 3, UnansweredMessages: 1, UniqueUsers: 2}
	b.chats = []api.ChatSummary{
		{UserID: 1, UserInfo: api.UserInfo{FullName: "Anna"}, UnreadCount: 1},
		{UserID: 2, UserInfo: api.UserInfo{FullName: "N/A"}},
	}
	b.messages[1] = []api.Message{
		{MessageID: "m1", Text: "hello", AdminReply: strPtr("hi")},
		{MessageID: "m2", Text: "anyone?"},
	}
	b.messages[2] = []api.Message{
		{MessageID: "n1", Text: "done", AdminReply: strPtr("ok")},
	}
	return b
}

func TestRefreshChatsRendersListAndStats(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)

	if err := c.RefreshChats(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(v.lists) != 1 || len(v.lists[0]) != 2 {
		t.Fatalf("expected one list render with 2 items, got %+v", v.lists)
	}
	if len(v.stats) != 1 || v.stats[0].UniqueUsers != 2 {
		t.Fatalf("expected stats refresh after chat list, got %+v", v.stats)
	}
	if got := c.Snapshot().ChatCount; got != 2 {
		t.Fatalf("expected snapshot of 2 chats, got %d", got)
	}
}

func TestRefreshChatsFailureKeepsStaleState(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.RefreshChats(context.Background())

	b.mu.Lock()
	b.chatsErr = errors.New("boom")
	b.mu.Unlock()
	if err := c.RefreshChats(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(v.lists) != 1 || c.Snapshot().ChatCount != 2 {
		t.Fatalf("failed poll must leave previous render in place")
	}
	if len(v.toasts) != 0 || len(v.alerts) != 0 {
		t.Fatalf("poll failures must not surface to the operator")
	}
}

func TestOpenChatSetsReplyTarget(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.RefreshChats(context.Background())

	if err := c.OpenChat(context.Background(), 1); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap := c.Snapshot()
	if !snap.HasUser || snap.CurrentUserID != 1 {
		t.Fatalf("expected user 1 open, got %+v", snap)
	}
	if !snap.HasReplyTarget || snap.CurrentMessageID != "m2" {
		t.Fatalf("expected reply target m2, got %+v", snap)
	}
	if len(v.shown) != 1 || v.shown[0].Name != "Anna" {
		t.Fatalf("expected chat view shown with snapshot name, got %+v", v.shown)
	}
	if len(v.active) != 1 || v.active[0] != 1 {
		t.Fatalf("expected active highlight for 1, got %v", v.active)
	}

	// All answered: target becomes null.
	if err := c.OpenChat(context.Background(), 2); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap = c.Snapshot()
	if snap.HasReplyTarget {
		t.Fatalf("expected no reply target for fully answered thread, got %+v", snap)
	}
	th, _ := v.lastThread()
	if th.Header.Name != "User 2" {
		t.Fatalf("expected fallback header, got %+v", th.Header)
	}
}

func TestOpenUnknownChatKeepsShownHeader(t *testing.T) {
	b := seededBackend()
	b.messages[7] = []api.Message{
		{MessageID: "x1", Text: "new here", UserInfo: api.UserInfo{FullName: "Petra"}},
	}
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.RefreshChats(context.Background())
	_ = c.OpenChat(context.Background(), 1)

	// 9 is neither in the list snapshot nor has messages.
	if err := c.OpenChat(context.Background(), 9); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := v.shown[len(v.shown)-1]; got.Name != "Anna" {
		t.Fatalf("expected previous header to stay, got %+v", got)
	}

	// 7 is missing from the snapshot; its header arrives with the thread.
	if err := c.OpenChat(context.Background(), 7); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := v.shown[len(v.shown)-1]; got.Name != "Anna" {
		t.Fatalf("expected no fallback flicker before the thread loads, got %+v", got)
	}
	th, _ := v.lastThread()
	if th.Header.Name != "Petra" || th.Header.Subtitle != "ID: 7" {
		t.Fatalf("expected header from the thread, got %+v", th.Header)
	}
}

func TestFirstOpenOfUnknownChatUsesFallback(t *testing.T) {
	b := newFakeBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 5)
	if len(v.shown) != 1 || v.shown[0].Name != "User 5" {
		t.Fatalf("expected fallback header, got %+v", v.shown)
	}
}

func TestOpenChatTwiceReplacesThread(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)

	_ = c.OpenChat(context.Background(), 1)
	_ = c.OpenChat(context.Background(), 1)
	_, n := v.lastThread()
	if n != 2 {
		t.Fatalf("expected two full renders, got %d", n)
	}
	th, _ := v.lastThread()
	if len(th.Bubbles) != 3 {
		t.Fatalf("expected 3 bubbles (no duplication), got %d", len(th.Bubbles))
	}
	_, _, calls := b.counts()
	if calls[1] != 2 {
		t.Fatalf("expected re-fetch on reopen, got %d", calls[1])
	}
}

func TestEmptyThreadKeepsReplyTarget(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)

	b.mu.Lock()
	b.messages[1] = nil
	b.mu.Unlock()
	_ = c.LoadThread(context.Background(), 1)

	th, _ := v.lastThread()
	if th.Placeholder == "" {
		t.Fatalf("expected placeholder render")
	}
	if snap := c.Snapshot(); snap.CurrentMessageID != "m2" {
		t.Fatalf("empty render must not touch reply target, got %+v", snap)
	}
}

func TestSendReplyWithoutTargetIssuesNoRequest(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)

	err := c.SendReply(context.Background(), "hello")
	if !errors.Is(err, ErrNoReplyTarget) {
		t.Fatalf("expected ErrNoReplyTarget, got %v", err)
	}
	_ = c.OpenChat(context.Background(), 2)
	if err := c.SendReply(context.Background(), "hello"); !errors.Is(err, ErrNoReplyTarget) {
		t.Fatalf("expected ErrNoReplyTarget for answered thread, got %v", err)
	}
	if _, replies := b.sends(); len(replies) != 0 {
		t.Fatalf("no request expected, got %v", replies)
	}
	if _, _, alerts := v.counters(); alerts != 2 {
		t.Fatalf("expected 2 alerts, got %d", alerts)
	}
}

func TestSendBlankMessageIssuesNoRequest(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)

	for _, text := range []string{"", "   ", "\n\t "} {
		if err := c.SendMessage(context.Background(), text); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("expected ErrEmptyText for %q, got %v", text, err)
		}
	}
	if msgs, _ := b.sends(); len(msgs) != 0 {
		t.Fatalf("no request expected, got %v", msgs)
	}
}

func TestSendMessageRequiresSelection(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)

	if err := c.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNoChatSelected) {
		t.Fatalf("expected ErrNoChatSelected, got %v", err)
	}
	if msgs, _ := b.sends(); len(msgs) != 0 {
		t.Fatalf("no request expected")
	}
}

func TestSendMessageSuccessClosesComposer(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)
	if !c.ToggleComposer() {
		t.Fatalf("expected composer to open")
	}

	if err := c.SendMessage(context.Background(), "  new text  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, _ := b.sends()
	if len(msgs) != 1 || msgs[0] != "new text" {
		t.Fatalf("expected trimmed text sent, got %v", msgs)
	}
	if c.Snapshot().ComposerOpen {
		t.Fatalf("composer should be hidden after send")
	}
	if _, cleared, _ := v.counters(); cleared != 1 {
		t.Fatalf("expected composer cleared once, got %d", cleared)
	}
	toasts := v.lastToasts()
	if len(toasts) != 1 || toasts[0].Kind != ToastSuccess {
		t.Fatalf("expected success toast, got %+v", toasts)
	}
}

func TestSendMessageRejectedShowsBackendError(t *testing.T) {
	b := seededBackend()
	b.sendRes = api.SendResult{Success: false, Error: "bot blocked"}
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)

	var rej *RejectedError
	if err := c.SendMessage(context.Background(), "hi"); !errors.As(err, &rej) || rej.Reason != "bot blocked" {
		t.Fatalf("expected rejection, got %v", err)
	}
	toasts := v.lastToasts()
	if len(toasts) != 1 || toasts[0].Kind != ToastError || !strings.Contains(toasts[0].Text, "bot blocked") {
		t.Fatalf("expected error toast with reason, got %+v", toasts)
	}

	b.mu.Lock()
	b.sendRes = api.SendResult{Success: false}
	b.mu.Unlock()
	_ = c.SendMessage(context.Background(), "hi")
	toasts = v.lastToasts()
	if !strings.Contains(toasts[len(toasts)-1].Text, unknownError) {
		t.Fatalf("expected generic fallback, got %+v", toasts)
	}
}

func TestSendMessageTransportFailure(t *testing.T) {
	b := seededBackend()
	b.sendErr = errors.New("connection refused")
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)

	if err := c.SendMessage(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error")
	}
	toasts := v.lastToasts()
	if len(toasts) != 1 || toasts[0].Text != toastMessageFailed {
		t.Fatalf("expected generic failure toast, got %+v", toasts)
	}
}

func TestSendReplySuccessRefreshesAndToasts(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.RefreshChats(context.Background())
	_ = c.OpenChat(context.Background(), 1)
	stats0, chats0, msgs0 := b.counts()

	if err := c.SendReply(context.Background(), "on it"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	_, replies := b.sends()
	if len(replies) != 1 || replies[0] != "m2:on it" {
		t.Fatalf("unexpected reply request %v", replies)
	}
	if clear, _, _ := v.counters(); clear != 1 {
		t.Fatalf("expected reply input cleared")
	}
	stats1, chats1, msgs1 := b.counts()
	if msgs1[1] != msgs0[1]+1 || chats1 != chats0+1 || stats1 != stats0+1 {
		t.Fatalf("expected thread, chats and stats re-fetched: %d/%d %d/%d %d/%d", msgs0[1], msgs1[1], chats0, chats1, stats0, stats1)
	}

	toasts := v.lastToasts()
	if len(toasts) != 1 || toasts[0].Kind != ToastSuccess || toasts[0].Text != toastReplySent {
		t.Fatalf("expected success toast, got %+v", toasts)
	}
	waitFor(t, 2*time.Second, func() bool { return len(v.lastToasts()) == 0 })
}

func TestSendReplyRejectedKeepsInput(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)
	_, chats0, msgs0 := b.counts()

	b.mu.Lock()
	b.sendRes = api.SendResult{Success: false, Error: "blocked"}
	b.mu.Unlock()

	if err := c.SendReply(context.Background(), "hey"); err == nil {
		t.Fatalf("expected rejection")
	}
	toasts := v.lastToasts()
	if len(toasts) != 1 || toasts[0].Kind != ToastError || !strings.Contains(toasts[0].Text, "blocked") {
		t.Fatalf("expected error toast containing reason, got %+v", toasts)
	}
	if clear, _, _ := v.counters(); clear != 0 {
		t.Fatalf("reply input must not be cleared on failure")
	}
	_, chats1, msgs1 := b.counts()
	if chats1 != chats0 || msgs1[1] != msgs0[1] {
		t.Fatalf("no re-fetch expected on failure")
	}
}

func TestStaleThreadIsDroppedAfterChatSwitch(t *testing.T) {
	b := seededBackend()
	gate := make(chan struct{})
	b.gates[1] = gate
	v := &fakeView{}
	c := newTestController(b, v)

	done := make(chan error, 1)
	go func() { done <- c.OpenChat(context.Background(), 1) }()
	waitFor(t, time.Second, func() bool {
		_, _, calls := b.counts()
		return calls[1] == 1
	})

	if err := c.OpenChat(context.Background(), 2); err != nil {
		t.Fatalf("open 2: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("open 1: %v", err)
	}

	th, n := v.lastThread()
	if n != 1 || th.Header.UserID != 2 {
		t.Fatalf("expected only user 2's thread rendered, got %d renders, last %+v", n, th.Header)
	}
	if snap := c.Snapshot(); snap.CurrentUserID != 2 || snap.HasReplyTarget {
		t.Fatalf("stale thread leaked into session: %+v", snap)
	}
}

func TestOlderThreadLoadLosesToNewer(t *testing.T) {
	b := seededBackend()
	v := &fakeView{}
	c := newTestController(b, v)
	_ = c.OpenChat(context.Background(), 1)

	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[1] = gate
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.LoadThread(context.Background(), 1) }()
	waitFor(t, time.Second, func() bool {
		_, _, calls := b.counts()
		return calls[1] == 2
	})

	// A newer load for the same chat completes first with fresh data.
	b.mu.Lock()
	delete(b.gates, 1)
	b.messages[1] = append(b.messages[1], api.Message{MessageID: "m3", Text: "newer"})
	b.mu.Unlock()
	if err := c.LoadThread(context.Background(), 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	close(gate)
	<-done

	if snap := c.Snapshot(); snap.CurrentMessageID != "m3" {
		t.Fatalf("older completion overwrote newer render: %+v", snap)
	}
	th, _ := v.lastThread()
	if len(th.Bubbles) != 4 {
		t.Fatalf("expected newest thread to stay rendered, got %d bubbles", len(th.Bubbles))
	}
}

func TestToggleComposer(t *testing.T) {
	v := &fakeView{}
	c := newTestController(newFakeBackend(), v)
	if !c.ToggleComposer() || c.ToggleComposer() {
		t.Fatalf("expected open then closed")
	}
	if len(v.composer) != 2 || !v.composer[0] || v.composer[1] {
		t.Fatalf("unexpected composer calls %v", v.composer)
	}
}
