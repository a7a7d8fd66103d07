package desk

import (
	"strconv"
	"time"

	"supportdesk/ui/api"
)

const (
	ChatListPlaceholder = "No messages"
	ThreadPlaceholder   = "📭 This user has not sent any messages yet. Press [n] to write the first one."

	labelUser      = "👤 User"
	labelAdminSent = "👨‍💼 Admin (sent)"
	labelAdmin     = "👨‍💼 Admin"
)

// RenderChatList maps a chat snapshot to list rows in the order received.
func RenderChatList(chats []api.ChatSummary, current int64, hasCurrent bool, now time.Time) []ChatItem {
	items := make([]ChatItem, 0, len(chats))
	for _, c := range chats {
		it := ChatItem{
			UserID:  c.UserID,
			Name:    DisplayName(c.UserID, c.UserInfo),
			Preview: Sanitize(Preview(c.Messages)),
			Time:    FormatTime(chatTime(c), now),
			Active:  hasCurrent && c.UserID == current,
		}
		if c.UnreadCount > 0 {
			it.Badge = strconv.Itoa(c.UnreadCount)
		}
		items = append(items, it)
	}
	return items
}

func chatTime(c api.ChatSummary) string {
	if c.LastMessageTime != "" {
		return c.LastMessageTime
	}
	return c.LastSeen
}

// ResolveHeader prefers the chat-list snapshot, then the first message's
// embedded user info, then the "User {id}" fallback.
func ResolveHeader(userID int64, chats []api.ChatSummary, messages []api.Message) ThreadHeader {
	if h, ok := LookupHeader(userID, chats, messages); ok {
		return h
	}
	return ThreadHeader{UserID: userID, Name: FallbackName(userID), Subtitle: headerSubtitle(userID)}
}

// LookupHeader reports false when neither the snapshot nor the messages say
// anything about userID.
func LookupHeader(userID int64, chats []api.ChatSummary, messages []api.Message) (ThreadHeader, bool) {
	h := ThreadHeader{UserID: userID, Subtitle: headerSubtitle(userID)}
	if c, ok := findChat(chats, userID); ok {
		h.Name = DisplayName(userID, c.UserInfo)
		return h, true
	}
	if len(messages) > 0 {
		h.Name = DisplayName(userID, messages[0].UserInfo)
		return h, true
	}
	return ThreadHeader{}, false
}

func headerSubtitle(userID int64) string {
	return "ID: " + strconv.FormatInt(userID, 10)
}

func findChat(chats []api.ChatSummary, userID int64) (api.ChatSummary, bool) {
	for _, c := range chats {
		if c.UserID == userID {
			return c, true
		}
	}
	return api.ChatSummary{}, false
}

// RenderThread builds the thread pane and reports the id of the last
// unanswered message, which becomes the reply target.
func RenderThread(header ThreadHeader, messages []api.Message, now time.Time) (Thread, string, bool) {
	th := Thread{Header: header}
	if len(messages) == 0 {
		th.Placeholder = ThreadPlaceholder
		return th, "", false
	}

	var target string
	var hasTarget bool
	th.Bubbles = make([]Bubble, 0, len(messages)*2)
	for _, msg := range messages {
		label := labelUser
		if msg.IsFromAdmin {
			label = labelAdminSent
		}
		th.Bubbles = append(th.Bubbles, Bubble{
			Kind:      BubbleUser,
			Label:     label,
			MessageID: msg.MessageID,
			Text:      Sanitize(msg.Text),
			Time:      FormatTime(msg.Timestamp, now),
		})
		if msg.AdminReply != nil {
			th.Bubbles = append(th.Bubbles, Bubble{
				Kind:      BubbleAdmin,
				Label:     labelAdmin,
				MessageID: msg.MessageID,
				Text:      Sanitize(*msg.AdminReply),
				Time:      FormatTime(msg.AdminReplyTimestamp, now),
			})
			continue
		}
		target = msg.MessageID
		hasTarget = true
	}
	return th, target, hasTarget
}
