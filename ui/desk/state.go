package desk

import "supportdesk/ui/api"

// Session is the dashboard's client-side state. It lives for one run and is
// never persisted. Session is not safe for concurrent use; the Controller
// serializes access.
type Session struct {
	currentUserID    int64
	hasUser          bool
	currentMessageID string
	hasMessage       bool
	chats            []api.ChatSummary
	composerOpen     bool
}

// SessionSnapshot is a read-only copy handed out for display and summaries.
type SessionSnapshot struct {
	CurrentUserID    int64  `json:"currentUserId,omitempty"`
	HasUser          bool   `json:"hasUser"`
	CurrentMessageID string `json:"currentMessageId,omitempty"`
	HasReplyTarget   bool   `json:"hasReplyTarget"`
	ChatCount        int    `json:"chatCount"`
	ComposerOpen     bool   `json:"composerOpen"`
}

func (s *Session) CurrentUser() (int64, bool) {
	return s.currentUserID, s.hasUser
}

func (s *Session) ReplyTarget() (string, bool) {
	return s.currentMessageID, s.hasMessage
}

func (s *Session) Chats() []api.ChatSummary {
	return s.chats
}

// open selects a chat. Switching to another user drops the reply target
// until that user's thread has rendered.
func (s *Session) open(userID int64) bool {
	changed := !s.hasUser || s.currentUserID != userID
	s.currentUserID = userID
	s.hasUser = true
	if changed {
		s.currentMessageID = ""
		s.hasMessage = false
	}
	return changed
}

func (s *Session) setChats(chats []api.ChatSummary) {
	s.chats = chats
}

// setReplyTarget records the outcome of a non-empty thread render.
func (s *Session) setReplyTarget(id string, ok bool) {
	if !ok {
		id = ""
	}
	s.currentMessageID = id
	s.hasMessage = ok
}

func (s *Session) toggleComposer() bool {
	s.composerOpen = !s.composerOpen
	return s.composerOpen
}

func (s *Session) closeComposer() {
	s.composerOpen = false
}

func (s *Session) snapshot() SessionSnapshot {
	return SessionSnapshot{
		CurrentUserID:    s.currentUserID,
		HasUser:          s.hasUser,
		CurrentMessageID: s.currentMessageID,
		HasReplyTarget:   s.hasMessage,
		ChatCount:        len(s.chats),
		ComposerOpen:     s.composerOpen,
	}
}
