package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"supportdesk/ui/api"
	"supportdesk/ui/desk"
)

// smokeClock pins relative timestamps so smoke output is reproducible.
var smokeClock = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// fixtureBackend is an in-memory stand-in for the support API.
type fixtureBackend struct {
	mu    sync.Mutex
	order []int64
	users map[int64]api.UserInfo
	msgs  map[int64][]api.Message
}

var _ desk.Backend = (*fixtureBackend)(nil)

func newFixtureBackend() *fixtureBackend {
	b := &fixtureBackend{
		users: map[int64]api.UserInfo{},
		msgs:  map[int64][]api.Message{},
	}
	b.addUser(api.UserInfo{UserID: 101, Username: "anna_k", FirstName: "Anna", LastName: "Kowalska", FullName: "Anna Kowalska"},
		api.Message{MessageID: "a1", Text: "Hi! My order has not arrived yet.", Timestamp: "2024-05-10 09:15:00"},
	)
	b.addUser(api.UserInfo{UserID: 102, Username: "mark", FirstName: "Mark", LastName: api.NameUnknown, FullName: "Mark"},
		api.Message{MessageID: "b1", Text: "How do I reset my password?", Timestamp: "2024-05-09 18:40:00", AdminReply: strRef("Use the link on the login page."), AdminReplyTimestamp: "2024-05-09 18:45:00"},
		api.Message{MessageID: "b2", Text: "The link says it expired.", Timestamp: "2024-05-10 08:02:00"},
	)
	b.addUser(api.UserInfo{UserID: 103, FullName: api.NameUnknown},
		api.Message{MessageID: "c1", Text: "/start", Timestamp: "2024-05-01 10:00:00"},
	)
	return b
}

func strRef(s string) *string { return &s }

func (b *fixtureBackend) addUser(u api.UserInfo, msgs ...api.Message) {
	b.order = append(b.order, u.UserID)
	b.users[u.UserID] = u
	for i := range msgs {
		msgs[i].UserInfo = u
	}
	b.msgs[u.UserID] = msgs
}

func (b *fixtureBackend) Stats(ctx context.Context) (api.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var st api.Stats
	st.UniqueUsers = len(b.users)
	for _, msgs := range b.msgs {
		for _, m := range msgs {
			if m.IsFromAdmin {
				continue
			}
			st.TotalMessages++
			if !m.Answered() {
				st.UnansweredMessages++
			}
		}
	}
	return st, nil
}

func (b *fixtureBackend) Chats(ctx context.Context) ([]api.ChatSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]api.ChatSummary, 0, len(b.order))
	for _, uid := range b.order {
		msgs := b.msgs[uid]
		c := api.ChatSummary{
			UserID:   uid,
			UserInfo: b.users[uid],
			Messages: append([]api.Message(nil), msgs...),
		}
		for _, m := range msgs {
			if !m.IsFromAdmin && !m.Answered() {
				c.UnreadCount++
			}
		}
		if n := len(msgs); n > 0 {
			c.LastMessageTime = msgs[n-1].Timestamp
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *fixtureBackend) Messages(ctx context.Context, userID int64) ([]api.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Message(nil), b.msgs[userID]...), nil
}

func (b *fixtureBackend) SendMessage(ctx context.Context, userID int64, text string) (api.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[userID]; !ok {
		return api.SendResult{Success: false, Error: "user not found"}, nil
	}
	b.msgs[userID] = append(b.msgs[userID], api.Message{
		MessageID:   uuid.NewString()[:8],
		Text:        text,
		Timestamp:   smokeClock.Format(desk.TimestampLayout),
		IsFromAdmin: true,
		UserInfo:    b.users[userID],
	})
	return api.SendResult{Success: true, Message: "Message sent"}, nil
}

func (b *fixtureBackend) SendReply(ctx context.Context, messageID string, text string) (api.SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for uid, msgs := range b.msgs {
		for i := range msgs {
			if msgs[i].MessageID != messageID {
				continue
			}
			reply := text
			msgs[i].AdminReply = &reply
			msgs[i].AdminReplyTimestamp = smokeClock.Format(desk.TimestampLayout)
			b.msgs[uid] = msgs
			return api.SendResult{Success: true, Message: "Reply sent"}, nil
		}
	}
	return api.SendResult{Success: false, Error: "message not found"}, nil
}

// driver steps an appModel without a tea.Program: it runs returned commands
// inline and feeds view messages back until the model settles.
type driver struct {
	m     appModel
	queue *msgQueue
}

func (d *driver) send(msg tea.Msg) {
	next, cmd := d.m.Update(msg)
	if am, ok := next.(appModel); ok {
		d.m = am
	}
	d.run(cmd)
	d.flush()
}

func (d *driver) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			d.run(c)
		}
	case opDoneMsg:
		d.send(msg)
	}
}

func (d *driver) flush() {
	for {
		msgs := d.queue.drain()
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			next, cmd := d.m.Update(msg)
			if am, ok := next.(appModel); ok {
				d.m = am
			}
			d.run(cmd)
		}
	}
}

func (d *driver) keys(tokens ...string) {
	for _, t := range tokens {
		if msg, ok := syntheticKey(t); ok {
			d.send(msg)
		}
	}
}

func (d *driver) typeText(text string) {
	d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// newHeadless wires a model to backend with a queue-backed view.
func newHeadless(ctx context.Context, cfg appConfig, backend desk.Backend, logger *slog.Logger) (*driver, *desk.Controller) {
	queue := &msgQueue{}
	view := newTeaView()
	view.attach(queue.push)
	ctrl := desk.New(backend, view, desk.Config{
		Logger: logger,
		Now:    func() time.Time { return smokeClock },
	})
	cfg.ctx = ctx
	cfg.staticCursor = true
	return &driver{m: newAppModel(cfg, ctrl, logger), queue: queue}, ctrl
}

type smokeReport struct {
	ok    bool
	view  string
	json  string
	final appModel
}

func runSmoke(ctx context.Context, cfg appConfig, logger *slog.Logger) smokeReport {
	backend := newFixtureBackend()
	d, ctrl := newHeadless(ctx, cfg, backend, logger)
	defer ctrl.Close()

	d.send(tea.WindowSizeMsg{Width: 100, Height: 30})

	d.keys("r")
	chatsLoaded := len(d.m.items) == 3 && d.m.hasStats

	d.keys("down", "enter")
	threadOpened := d.m.currentScreen() == screenChat && d.m.header.UserID == 102 && len(d.m.thread.Bubbles) == 3

	d.keys("tab")
	d.typeText("Sent you a fresh link.")
	d.keys("enter")
	msgs, _ := backend.Messages(ctx, 102)
	replySent := len(msgs) == 2 && msgs[1].Answered() && d.m.reply.Value() == ""

	d.keys("esc", "n")
	composerOpened := d.m.composerOpen && d.m.focus == focusComposer
	d.typeText("Is the new link working?")
	d.keys("enter")
	msgs, _ = backend.Messages(ctx, 102)
	messageSent := len(msgs) == 3 && msgs[2].IsFromAdmin && !d.m.composerOpen

	d.keys("/")
	d.typeText("anna")
	d.keys("enter")
	filterMatches := len(d.m.visibleItems())
	d.keys("esc")
	filterCleared := len(d.m.visibleItems()) == 3

	d.keys("q")
	quitConfirmOpened := d.m.currentOverlay() == overlayQuitConfirm
	d.keys("esc")

	snap := ctrl.Snapshot()
	ok := chatsLoaded && threadOpened && replySent && composerOpened && messageSent &&
		filterMatches == 1 && filterCleared && quitConfirmOpened
	summary := map[string]any{
		"version":           1,
		"ok":                ok,
		"sessionId":         d.m.sessionID,
		"screen":            d.m.currentScreen().String(),
		"overlay":           d.m.currentOverlay().String(),
		"chatsLoaded":       chatsLoaded,
		"threadOpened":      threadOpened,
		"replySent":         replySent,
		"composerOpened":    composerOpened,
		"messageSent":       messageSent,
		"filterMatches":     filterMatches,
		"filterCleared":     filterCleared,
		"quitConfirmOpened": quitConfirmOpened,
		"openUser":          snap.CurrentUserID,
		"replyTarget":       snap.CurrentMessageID,
	}
	b, _ := json.Marshal(summary)

	return smokeReport{ok: ok, view: d.m.View(), json: string(b), final: d.m}
}

func (r smokeReport) err() error {
	if r.ok {
		return nil
	}
	return fmt.Errorf("smoke checks failed: %s", r.json)
}
