package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

const (
	DefaultNoticeTitle = "NutriTrack"
	NoticeIcon         = "/assets/logo.png"
	NoticeBadge        = "/assets/badge.png"
)

var noticeVibrate = []int{100, 50, 100}

// PushMessage is the payload of a push event.
type PushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Notification is what a push turns into.
type Notification struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon"`
	Badge   string    `json:"badge"`
	Vibrate []int     `json:"vibrate"`
	URL     string    `json:"url,omitempty"`
	Sender  string    `json:"sender,omitempty"`
	ShownAt time.Time `json:"shownAt"`
}

// Notifier displays notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	// Close dismisses a notification, returning ErrUnknownNotice when id
	// is not showing.
	Close(ctx context.Context, id string) (Notification, error)
}

// ParsePush decodes a push payload. A missing title becomes
// DefaultNoticeTitle and a missing url becomes "/".
func ParsePush(payload []byte) (PushMessage, error) {
	var m PushMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return PushMessage{}, fmt.Errorf("%w: %v", ErrInvalidPush, err)
	}
	if strings.TrimSpace(m.Title) == "" {
		m.Title = DefaultNoticeTitle
	}
	if m.URL == "" {
		m.URL = "/"
	}
	return m, nil
}

// HandlePush shows a notification for payload.
func (c *Controller) HandlePush(ctx context.Context, sender string, payload []byte) (Notification, error) {
	m, err := ParsePush(payload)
	if err != nil {
		return Notification{}, err
	}
	if c.notifier == nil {
		return Notification{}, fmt.Errorf("%w: no notifier", ErrInvalidState)
	}

	n := Notification{
		ID:      uuid.NewString(),
		Title:   m.Title,
		Body:    m.Body,
		Icon:    NoticeIcon,
		Badge:   NoticeBadge,
		Vibrate: append([]int(nil), noticeVibrate...),
		URL:     m.URL,
		Sender:  sender,
		ShownAt: c.now().UTC(),
	}
	if err := c.notifier.Show(ctx, n); err != nil {
		return Notification{}, err
	}
	c.log.Info(ctx, "notification shown", "id", n.ID, "sender", sender)
	return n, nil
}

// HandleNotificationClick dismisses the notification and returns the URL
// the app should open.
func (c *Controller) HandleNotificationClick(ctx context.Context, id string) (string, error) {
	if c.notifier == nil {
		return "", fmt.Errorf("%w: no notifier", ErrInvalidState)
	}
	n, err := c.notifier.Close(ctx, id)
	if err != nil {
		return "", err
	}
	return n.URL, nil
}

// Inbox is a Notifier that keeps shown notifications in memory until they
// are clicked.
type Inbox struct {
	mu    sync.Mutex
	items map[string]Notification
	order []string
	log   logging.Logger
}

// NewInbox returns an empty inbox.
func NewInbox(log logging.Logger) *Inbox {
	return &Inbox{items: make(map[string]Notification), log: log.With("module", "inbox")}
}

// Show records n as displayed.
func (b *Inbox) Show(ctx context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[n.ID]; !ok {
		b.order = append(b.order, n.ID)
	}
	b.items[n.ID] = n
	b.log.Debug(ctx, "show", "id", n.ID, "title", n.Title)
	return nil
}

// Close removes the notification and returns it, or ErrUnknownNotice.
func (b *Inbox) Close(_ context.Context, id string) (Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.items[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: %s", ErrUnknownNotice, id)
	}
	delete(b.items, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return n, nil
}

// List returns showing notifications, oldest first.
func (b *Inbox) List() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.items[id])
	}
	return out
}
