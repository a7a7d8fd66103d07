package desk

import (
	"context"
	"sync"
	"testing"
	"time"

	"supportdesk/ui/api"
)

type fakeBackend struct {
	mu sync.Mutex

	stats    api.Stats
	chats    []api.ChatSummary
	messages map[int64][]api.Message
	sendRes  api.SendResult
	sendErr  error
	chatsErr error

	// gates block Messages(userID) until the channel is closed.
	gates map[int64]chan struct{}

	statsCalls    int
	chatsCalls    int
	messagesCalls map[int64]int
	sentMessages  []string
	sentReplies   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages:      map[int64][]api.Message{},
		gates:         map[int64]chan struct{}{},
		messagesCalls: map[int64]int{},
		sendRes:       api.SendResult{Success: true},
	}
}

func (f *fakeBackend) Stats(ctx context.Context) (api.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return f.stats, nil
}

func (f *fakeBackend) Chats(ctx context.Context) ([]api.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatsCalls++
	if f.chatsErr != nil {
		return nil, f.chatsErr
	}
	return append([]api.ChatSummary(nil), f.chats...), nil
}

func (f *fakeBackend) Messages(ctx context.Context, userID int64) ([]api.Message, error) {
	f.mu.Lock()
	f.messagesCalls[userID]++
	gate := f.gates[userID]
	msgs := append([]api.Message(nil), f.messages[userID]...)
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return msgs, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, userID int64, text string) (api.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentMessages = append(f.sentMessages, text)
	return f.sendRes, f.sendErr
}

func (f *fakeBackend) SendReply(ctx context.Context, messageID string, text string) (api.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentReplies = append(f.sentReplies, messageID+":"+text)
	return f.sendRes, f.sendErr
}

func (f *fakeBackend) counts() (stats, chats int, messages map[int64]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := map[int64]int{}
	for k, v := range f.messagesCalls {
		m[k] = v
	}
	return f.statsCalls, f.chatsCalls, m
}

func (f *fakeBackend) sends() (messages, replies []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentMessages...), append([]string(nil), f.sentReplies...)
}

type fakeView struct {
	mu sync.Mutex

	stats         []api.Stats
	lists         [][]ChatItem
	active        []int64
	shown         []ThreadHeader
	threads       []Thread
	composer      []bool
	composerClear int
	replyClear    int
	toasts        [][]Toast
	alerts        []string
}

func (v *fakeView) RenderStats(s api.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = append(v.stats, s)
}

func (v *fakeView) RenderChatList(items []ChatItem) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lists = append(v.lists, items)
}

func (v *fakeView) SetActiveChat(userID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = append(v.active, userID)
}

func (v *fakeView) ShowChat(h ThreadHeader) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown = append(v.shown, h)
}

func (v *fakeView) RenderThread(th Thread) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.threads = append(v.threads, th)
}

func (v *fakeView) SetComposer(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.composer = append(v.composer, open)
}

func (v *fakeView) ClearComposer() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.composerClear++
}

func (v *fakeView) ClearReply() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.replyClear++
}

func (v *fakeView) ShowToasts(ts []Toast) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.toasts = append(v.toasts, ts)
}

func (v *fakeView) Alert(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, text)
}

func (v *fakeView) lastThread() (Thread, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.threads) == 0 {
		return Thread{}, 0
	}
	return v.threads[len(v.threads)-1], len(v.threads)
}

func (v *fakeView) lastToasts() []Toast {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.toasts) == 0 {
		return nil
	}
	return v.toasts[len(v.toasts)-1]
}

func (v *fakeView) counters() (replyClear, composerClear, alerts int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.replyClear, v.composerClear, len(v.alerts)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func newTestController(b Backend, v View) *Controller {
	return New(b, v, Config{
		Now:          func() time.Time { return renderNow },
		ToastVisible: 200 * time.Millisecond,
		ToastFade:    20 * time.Millisecond,
	})
}
