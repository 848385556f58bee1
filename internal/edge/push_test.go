package edge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutritrack/internal/logging"
)

func TestParsePush(t *testing.T) {
	m, err := ParsePush([]byte(`{"title":"Lunch","body":"Log your meal","url":"/meals"}`))
	require.NoError(t, err)
	assert.Equal(t, PushMessage{Title: "Lunch", Body: "Log your meal", URL: "/meals"}, m)

	m, err = ParsePush([]byte(`{"body":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultNoticeTitle, m.Title)
	assert.Equal(t, "/", m.URL)

	_, err = ParsePush([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPush)
}

func TestController_PushAndClick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inbox := NewInbox(logging.Discard())

	c, err := NewController(Options{Version: "v1", Origin: f.origin.url(t)}, Deps{
		Storage:  f.storage,
		Notifier: inbox,
	})
	require.NoError(t, err)

	n, err := c.HandlePush(ctx, "coach", []byte(`{"title":"Water","body":"Drink","url":"/water"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, NoticeIcon, n.Icon)
	assert.Equal(t, NoticeBadge, n.Badge)
	assert.Equal(t, []int{100, 50, 100}, n.Vibrate)
	assert.Equal(t, "coach", n.Sender)

	_, err = c.HandlePush(ctx, "coach", []byte(`{"title":"Walk"}`))
	require.NoError(t, err)

	list := inbox.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Water", list[0].Title)
	assert.Equal(t, "Walk", list[1].Title)

	target, err := c.HandleNotificationClick(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "/water", target)
	assert.Len(t, inbox.List(), 1)

	_, err = c.HandleNotificationClick(ctx, n.ID)
	assert.ErrorIs(t, err, ErrUnknownNotice)

	_, err = c.HandlePush(ctx, "coach", []byte(`[`))
	assert.ErrorIs(t, err, ErrInvalidPush)
	assert.Len(t, inbox.List(), 1)
}

func TestController_PushWithoutNotifier(t *testing.T) {
	f := newFixture(t)
	c := f.controller(t, "v1")

	_, err := c.HandlePush(context.Background(), "", []byte(`{"title":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.HandleNotificationClick(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidState)
}
