// Package desk keeps the dashboard's session state in sync with the
// support-chat backend and drives a View with the rendered result.
package desk

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"supportdesk/ui/api"
)

var (
	ErrEmptyText      = errors.New("text is empty")
	ErrNoChatSelected = errors.New("no chat selected")
	ErrNoReplyTarget  = errors.New("no message to reply to")
)

const (
	alertEmptyMessage = "Enter a message text"
	alertEmptyReply   = "Enter a reply text"
	alertNoUser       = "No user selected"
	alertNoTarget     = "No message selected to reply to"

	toastMessageSent   = "✅ Message sent!"
	toastReplySent     = "✅ Reply sent!"
	toastMessageFailed = "❌ Failed to send message"
	toastReplyFailed   = "❌ Failed to send reply"
	toastErrorPrefix   = "❌ Error: "
	unknownError       = "unknown error"
)

// RejectedError is returned when the backend answered success=false.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "rejected by backend: " + e.Reason
}

// Backend is the slice of the REST API the dashboard consumes.
type Backend interface {
	Stats(ctx context.Context) (api.Stats, error)
	Chats(ctx context.Context) ([]api.ChatSummary, error)
	Messages(ctx context.Context, userID int64) ([]api.Message, error)
	SendMessage(ctx context.Context, userID int64, text string) (api.SendResult, error)
	SendReply(ctx context.Context, messageID string, text string) (api.SendResult, error)
}

type Config struct {
	Logger       *slog.Logger
	Now          func() time.Time
	ToastVisible time.Duration
	ToastFade    time.Duration
}

type Controller struct {
	backend  Backend
	view     View
	log      *slog.Logger
	now      func() time.Time
	tokens   *inflight
	notifier *Notifier

	// mu serializes session mutation with the render that reflects it.
	mu      sync.Mutex
	session Session
	header  ThreadHeader
	shown   bool
}

func New(backend Backend, view View, cfg Config) *Controller {
	c := &Controller{
		backend: backend,
		view:    view,
		log:     cfg.Logger,
		now:     cfg.Now,
		tokens:  newInflight(),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	fade := cfg.ToastFade
	if fade == 0 {
		fade = DefaultToastFade
	}
	c.notifier = NewNotifier(cfg.ToastVisible, fade, view.ShowToasts)
	return c
}

func (c *Controller) Notifier() *Notifier { return c.notifier }

func (c *Controller) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

func (c *Controller) Close() {
	c.notifier.Close()
}

// RefreshStats re-fetches the counters shown in the header.
func (c *Controller) RefreshStats(ctx context.Context) error {
	tok := c.tokens.begin(resourceStats)
	st, err := c.backend.Stats(ctx)
	if err != nil {
		c.log.Error("stats.load_failed", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokens.current(resourceStats, tok) {
		c.log.Debug("stats.stale_dropped", "token", tok)
		return nil
	}
	c.view.RenderStats(st)
	return nil
}

// RefreshChats replaces the chat snapshot and list, then refreshes stats.
func (c *Controller) RefreshChats(ctx context.Context) error {
	tok := c.tokens.begin(resourceChats)
	chats, err := c.backend.Chats(ctx)
	if err != nil {
		c.log.Error("chats.load_failed", "error", err)
		return err
	}

	c.mu.Lock()
	if !c.tokens.current(resourceChats, tok) {
		c.mu.Unlock()
		c.log.Debug("chats.stale_dropped", "token", tok)
		return nil
	}
	c.session.setChats(chats)
	uid, ok := c.session.CurrentUser()
	c.view.RenderChatList(RenderChatList(chats, uid, ok, c.now()))
	c.mu.Unlock()

	return c.RefreshStats(ctx)
}

// LoadThread fetches and renders userID's thread. The result is dropped if a
// newer thread load started or another chat was opened meanwhile.
func (c *Controller) LoadThread(ctx context.Context, userID int64) error {
	tok := c.tokens.begin(resourceThread)
	msgs, err := c.backend.Messages(ctx, userID)
	if err != nil {
		c.log.Error("thread.load_failed", "user_id", userID, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokens.current(resourceThread, tok) {
		c.log.Debug("thread.stale_dropped", "user_id", userID, "token", tok)
		return nil
	}
	if uid, ok := c.session.CurrentUser(); !ok || uid != userID {
		c.log.Debug("thread.stale_dropped", "user_id", userID, "reason", "chat_switched")
		return nil
	}

	header := c.headerFor(userID, msgs)
	thread, target, hasTarget := RenderThread(header, msgs, c.now())
	if len(msgs) > 0 {
		c.session.setReplyTarget(target, hasTarget)
	}
	c.view.RenderThread(thread)
	return nil
}

// OpenChat selects userID, switches the view to the chat pane and loads
// its thread. Reopening the same chat re-renders it in place.
func (c *Controller) OpenChat(ctx context.Context, userID int64) error {
	c.mu.Lock()
	changed := c.session.open(userID)
	c.view.SetActiveChat(userID)
	c.view.ShowChat(c.headerFor(userID, nil))
	c.mu.Unlock()

	c.log.Info("chat.open", "user_id", userID, "changed", changed)
	return c.LoadThread(ctx, userID)
}

// headerFor resolves userID's header. When nothing is known about the user
// yet, the header already on screen stays. Callers hold c.mu.
func (c *Controller) headerFor(userID int64, msgs []api.Message) ThreadHeader {
	h, ok := LookupHeader(userID, c.session.Chats(), msgs)
	if !ok {
		if c.shown {
			return c.header
		}
		h = ResolveHeader(userID, nil, nil)
	}
	c.header, c.shown = h, true
	return h
}

// ToggleComposer shows or hides the new-message form and reports the new
// visibility.
func (c *Controller) ToggleComposer() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := c.session.toggleComposer()
	c.view.SetComposer(open)
	return open
}

// SendMessage starts a new admin-originated message to the open chat.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		c.view.Alert(alertEmptyMessage)
		return ErrEmptyText
	}
	c.mu.Lock()
	uid, ok := c.session.CurrentUser()
	c.mu.Unlock()
	if !ok {
		c.view.Alert(alertNoUser)
		return ErrNoChatSelected
	}

	res, err := c.backend.SendMessage(ctx, uid, text)
	if err != nil {
		c.log.Error("message.send_failed", "user_id", uid, "error", err)
		c.notifier.Show(ToastError, toastMessageFailed)
		return err
	}
	if !res.Success {
		reason := rejectionReason(res)
		c.log.Warn("message.rejected", "user_id", uid, "reason", reason)
		c.notifier.Show(ToastError, toastErrorPrefix+reason)
		return &RejectedError{Reason: reason}
	}

	c.mu.Lock()
	c.view.ClearComposer()
	c.session.closeComposer()
	c.view.SetComposer(false)
	c.mu.Unlock()

	c.log.Info("message.sent", "user_id", uid)
	c.notifier.Show(ToastSuccess, toastMessageSent)
	return nil
}

// SendReply answers the open thread's last unanswered message, then
// refreshes the thread and the chat list.
func (c *Controller) SendReply(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		c.view.Alert(alertEmptyReply)
		return ErrEmptyText
	}
	c.mu.Lock()
	target, ok := c.session.ReplyTarget()
	uid, hasUser := c.session.CurrentUser()
	c.mu.Unlock()
	if !ok {
		c.view.Alert(alertNoTarget)
		return ErrNoReplyTarget
	}

	res, err := c.backend.SendReply(ctx, target, text)
	if err != nil {
		c.log.Error("reply.send_failed", "message_id", target, "error", err)
		c.notifier.Show(ToastError, toastReplyFailed)
		return err
	}
	if !res.Success {
		reason := rejectionReason(res)
		c.log.Warn("reply.rejected", "message_id", target, "reason", reason)
		c.notifier.Show(ToastError, toastErrorPrefix+reason)
		return &RejectedError{Reason: reason}
	}

	c.mu.Lock()
	c.view.ClearReply()
	c.mu.Unlock()
	c.log.Info("reply.sent", "message_id", target, "user_id", uid)

	if hasUser {
		_ = c.LoadThread(ctx, uid)
	}
	_ = c.RefreshChats(ctx)
	c.notifier.Show(ToastSuccess, toastReplySent)
	return nil
}

func rejectionReason(res api.SendResult) string {
	if s := strings.TrimSpace(res.Error); s != "" {
		return s
	}
	return unknownError
}
