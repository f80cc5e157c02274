package stream_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/arialive/memcore/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCountsEveryMessage(t *testing.T) {
	c := stream.NewContext(stream.Config{})

	c.Update("alice", "hello", stream.TypeChat, nil)
	c.Update("bob", "hi", stream.TypeChat, nil)
	c.Update("alice", "thanks!", stream.TypeSuperchat, map[string]string{"amount": "$5"})

	assert.Equal(t, 3, c.MessageCount())
}

func TestOnlyNotableEventsAreKept(t *testing.T) {
	c := stream.NewContext(stream.Config{})

	for i := 0; i < 10; i++ {
		c.Update("alice", "plain chat", stream.TypeChat, nil)
	}
	c.Update("bob", "subscribed!", stream.TypeSubscription, nil)

	got := c.FormatForContext()
	assert.Contains(t, got, "subscription from bob", "notable events appear")
	assert.NotContains(t, got, "plain chat", "ordinary chat never enters the event window")
}

func TestSuperchatAmountRendered(t *testing.T) {
	c := stream.NewContext(stream.Config{})
	c.Update("alice", "great stream", stream.TypeSuperchat, map[string]string{"amount": "$20"})

	assert.Contains(t, c.FormatForContext(), "great stream ($20)")
}

func TestEventWindowBounded(t *testing.T) {
	c := stream.NewContext(stream.Config{MaxEvents: 3})

	for i := 0; i < 6; i++ {
		c.Update("alice", fmt.Sprintf("event %d", i), stream.TypeSuperchat, nil)
	}

	ep := c.ToEpisode("s1")
	require.Len(t, ep.KeyEvents, 3, "rolling window keeps only the newest events")
	assert.Contains(t, ep.KeyEvents[0], "event 3")
	assert.Contains(t, ep.KeyEvents[2], "event 5")
}

func TestViewerPruning(t *testing.T) {
	c := stream.NewContext(stream.Config{ViewerTimeout: 10 * time.Millisecond})

	c.Update("ghost", "hello", stream.TypeChat, nil)
	time.Sleep(25 * time.Millisecond)

	// The sweep runs on every 50th update.
	for i := 0; i < 49; i++ {
		c.Update("active", "still here", stream.TypeChat, nil)
	}

	got := c.FormatForContext()
	assert.Contains(t, got, "active")
	assert.NotContains(t, got, "ghost", "inactive viewers are swept on the prune interval")
}

func TestSetTopicHistory(t *testing.T) {
	c := stream.NewContext(stream.Config{})

	c.SetTopic("speedrunning")
	c.SetTopic("speedrunning") // repeated topic is ignored
	c.SetTopic("cooking")
	c.SetTopic("") // empty is ignored

	ep := c.ToEpisode("s1")
	assert.Equal(t, []string{"speedrunning", "cooking"}, ep.Topics)
	assert.Contains(t, ep.Summary, "Talked about cooking")
}

func TestFormatForContextHeader(t *testing.T) {
	c := stream.NewContext(stream.Config{})
	c.SetTopic("chatting")
	c.SetMood("cozy")
	c.Update("alice", "hi", stream.TypeChat, nil)

	got := c.FormatForContext()
	assert.True(t, strings.HasPrefix(got, "[Current Stream Status]\n"), "fixed leading header")
	assert.Contains(t, got, "Topic: chatting")
	assert.Contains(t, got, "Mood: cozy")
	assert.Contains(t, got, "Messages this session: 1")
}

func TestToEpisodeSnapshot(t *testing.T) {
	c := stream.NewContext(stream.Config{})
	c.SetTopic("karaoke")
	c.SetMood("hype")
	c.Update("alice", "hi", stream.TypeChat, nil)
	c.Update("bob", "membership!", stream.TypeMembership, nil)

	ep := c.ToEpisode("session_1")
	assert.NotEmpty(t, ep.ID)
	assert.Equal(t, "session_1", ep.SessionID)
	assert.Equal(t, 2, ep.ParticipantCount)
	assert.Equal(t, "hype", ep.Sentiment)
	assert.False(t, ep.EndedAt.Before(ep.StartedAt))
}

func TestClearResets(t *testing.T) {
	c := stream.NewContext(stream.Config{})
	c.SetTopic("karaoke")
	c.Update("alice", "hi", stream.TypeSuperchat, nil)
	require.Equal(t, 1, c.MessageCount())

	c.Clear()

	assert.Equal(t, 0, c.MessageCount(), "message count resets per session")
	ep := c.ToEpisode("s2")
	assert.Empty(t, ep.Topics)
	assert.Empty(t, ep.KeyEvents)
	assert.Zero(t, ep.ParticipantCount)
}
