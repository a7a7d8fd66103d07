package api

import "encoding/json"

// NameUnknown is the backend's placeholder for a missing user name part.
const NameUnknown = "N/A"

type Stats struct {
	TotalMessages      int `json:"total_messages"`
	UnansweredMessages int `json:"unanswered_messages"`
	UniqueUsers        int `json:"unique_users"`
}

type UserInfo struct {
	UserID    int64  `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	FullName  string `json:"full_name,omitempty"`
}

type Reply struct {
	ReplyText string `json:"reply_text"`
	Timestamp string `json:"timestamp"`
	AdminID   int64  `json:"admin_id"`
}

// Message is one inbound message of a thread. It counts as answered iff
// AdminReply is set.
type Message struct {
	MessageID           string   `json:"message_id"`
	Text                string   `json:"text"`
	Timestamp           string   `json:"timestamp"`
	AdminReply          *string  `json:"admin_reply,omitempty"`
	AdminReplyTimestamp string   `json:"admin_reply_timestamp,omitempty"`
	IsFromAdmin         bool     `json:"is_from_admin,omitempty"`
	Replies             []Reply  `json:"replies,omitempty"`
	UserInfo            UserInfo `json:"user_info"`
}

// UnmarshalJSON accepts both payload shapes the backend has served: a flat
// admin_reply, or a replies list whose last entry is the effective reply.
func (m *Message) UnmarshalJSON(data []byte) error {
	type wire Message
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.AdminReply == nil && len(w.Replies) > 0 {
		last := w.Replies[len(w.Replies)-1]
		text := last.ReplyText
		w.AdminReply = &text
		if w.AdminReplyTimestamp == "" {
			w.AdminReplyTimestamp = last.Timestamp
		}
	}
	*m = Message(w)
	return nil
}

func (m Message) Answered() bool {
	return m.AdminReply != nil
}

type ChatSummary struct {
	UserID          int64     `json:"user_id"`
	UserInfo        UserInfo  `json:"user_info"`
	Messages        []Message `json:"messages"`
	UnreadCount     int       `json:"unread_count"`
	LastMessageTime string    `json:"last_message_time"`
	LastSeen        string    `json:"last_seen"`
}

type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type sendMessageRequest struct {
	UserID      int64  `json:"user_id"`
	MessageText string `json:"message_text"`
}

type sendReplyRequest struct {
	MessageID string `json:"message_id"`
	ReplyText string `json:"reply_text"`
}
