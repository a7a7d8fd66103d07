package desk

import "supportdesk/ui/api"

// ChatItem is one rendered row of the chat list.
type ChatItem struct {
	UserID  int64
	Name    string
	Badge   string // unread count, empty when there is nothing unread
	Preview string
	Time    string
	Active  bool
}

type ThreadHeader struct {
	UserID   int64
	Name     string
	Subtitle string
}

type BubbleKind int

const (
	BubbleUser BubbleKind = iota
	BubbleAdmin
)

func (k BubbleKind) String() string {
	switch k {
	case BubbleUser:
		return "user"
	case BubbleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

type Bubble struct {
	Kind      BubbleKind
	Label     string
	MessageID string
	Text      string
	Time      string
}

// Thread replaces the whole thread pane. Empty threads carry a placeholder
// instead of bubbles.
type Thread struct {
	Header      ThreadHeader
	Bubbles     []Bubble
	Placeholder string
}

// View is the display surface driven by the Controller. Calls arrive from
// whichever goroutine completed the work; implementations must not call back
// into the Controller synchronously.
type View interface {
	RenderStats(api.Stats)
	RenderChatList([]ChatItem)
	SetActiveChat(userID int64)
	ShowChat(ThreadHeader)
	RenderThread(Thread)
	SetComposer(open bool)
	ClearComposer()
	ClearReply()
	ShowToasts([]Toast)
	Alert(text string)
}
