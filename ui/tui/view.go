package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"supportdesk/ui/api"
	"supportdesk/ui/desk"
)

type statsMsg struct{ Stats api.Stats }

type chatListMsg struct{ Items []desk.ChatItem }

type activeChatMsg struct{ UserID int64 }

type showChatMsg struct{ Header desk.ThreadHeader }

type threadMsg struct{ Thread desk.Thread }

type composerMsg struct{ Open bool }

type clearComposerMsg struct{}

type clearReplyMsg struct{}

type toastsMsg struct{ Toasts []desk.Toast }

type alertMsg struct{ Text string }

// teaView adapts the controller's render calls to Bubble Tea messages.
// Messages posted before a sink is attached are held and flushed in order.
type teaView struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []tea.Msg
}

var _ desk.View = (*teaView)(nil)

func newTeaView() *teaView {
	return &teaView{}
}

func (v *teaView) attach(send func(tea.Msg)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.send = send
	for _, msg := range v.pending {
		send(msg)
	}
	v.pending = nil
}

func (v *teaView) post(msg tea.Msg) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.send == nil {
		v.pending = append(v.pending, msg)
		return
	}
	v.send(msg)
}

func (v *teaView) RenderStats(s api.Stats)              { v.post(statsMsg{Stats: s}) }
func (v *teaView) RenderChatList(items []desk.ChatItem) { v.post(chatListMsg{Items: items}) }
func (v *teaView) SetActiveChat(userID int64)           { v.post(activeChatMsg{UserID: userID}) }
func (v *teaView) ShowChat(h desk.ThreadHeader)         { v.post(showChatMsg{Header: h}) }
func (v *teaView) RenderThread(th desk.Thread)          { v.post(threadMsg{Thread: th}) }
func (v *teaView) SetComposer(open bool)                { v.post(composerMsg{Open: open}) }
func (v *teaView) ClearComposer()                       { v.post(clearComposerMsg{}) }
func (v *teaView) ClearReply()                          { v.post(clearReplyMsg{}) }
func (v *teaView) ShowToasts(ts []desk.Toast)           { v.post(toastsMsg{Toasts: ts}) }
func (v *teaView) Alert(text string)                    { v.post(alertMsg{Text: text}) }

// msgQueue is a send sink for runs without a tea.Program: smoke runs and
// tests drain it and feed the messages to Update themselves.
type msgQueue struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (q *msgQueue) push(msg tea.Msg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
}

func (q *msgQueue) drain() []tea.Msg {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = nil
	return out
}
