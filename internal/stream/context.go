// Package stream tracks live session state: topic, mood, notable
// events and active viewers. Update runs on every chat message
// including high-frequency viewer chat, so it must stay synchronous,
// non-suspending and sub-millisecond; state is purely in-process.
package stream

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arialive/memcore/internal/models"
	"github.com/google/uuid"
)

// Message types whose events are worth keeping in the rolling window.
const (
	TypeChat         = "chat"
	TypeSuperchat    = "superchat"
	TypeSubscription = "subscription"
	TypeMembership   = "membership"
)

// pruneInterval is the update cadence at which inactive viewers are
// swept.
const pruneInterval = 50

// Limits for the rendered context block.
const (
	maxRenderedEvents  = 5
	maxRenderedViewers = 10
)

type event struct {
	at      time.Time
	author  string
	msgType string
	content string
}

// Config bounds the in-memory state.
type Config struct {
	// MaxEvents bounds the rolling notable-event window.
	MaxEvents int
	// ViewerTimeout is the inactivity window after which a viewer is
	// pruned.
	ViewerTimeout time.Duration
}

// Context is the live session state tracker.
type Context struct {
	mu sync.Mutex

	cfg  Config
	now  func() time.Time

	topic        string
	mood         string
	topics       []string
	events       []event
	viewers      map[string]time.Time
	messageCount int
	updateCount  int
	startedAt    time.Time
}

// NewContext creates a cleared stream context.
func NewContext(cfg Config) *Context {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 20
	}
	if cfg.ViewerTimeout <= 0 {
		cfg.ViewerTimeout = 10 * time.Minute
	}
	c := &Context{cfg: cfg, now: time.Now}
	c.reset()
	return c
}

// Update records one chat message. Always marks the author active;
// appends a rolling event only for notable message types; prunes
// inactive viewers every 50th update.
func (c *Context) Update(author, content, msgType string, metadata map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.messageCount++
	c.updateCount++
	if author != "" {
		c.viewers[author] = now
	}

	switch msgType {
	case TypeSuperchat, TypeSubscription, TypeMembership:
		ev := event{at: now, author: author, msgType: msgType, content: content}
		if amount, ok := metadata["amount"]; ok {
			ev.content = fmt.Sprintf("%s (%s)", content, amount)
		}
		c.events = append(c.events, ev)
		if len(c.events) > c.cfg.MaxEvents {
			c.events = c.events[len(c.events)-c.cfg.MaxEvents:]
		}
	}

	if c.updateCount%pruneInterval == 0 {
		cutoff := now.Add(-c.cfg.ViewerTimeout)
		for viewer, seen := range c.viewers {
			if seen.Before(cutoff) {
				delete(c.viewers, viewer)
			}
		}
	}
}

// SetTopic sets the current topic and appends it to the topic history.
func (c *Context) SetTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == "" || topic == c.topic {
		return
	}
	c.topic = topic
	c.topics = append(c.topics, topic)
}

// SetMood sets the current mood tag.
func (c *Context) SetMood(mood string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mood = mood
}

// MessageCount returns the running message count.
func (c *Context) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount
}

// FormatForContext renders the current state as a prompt section with
// a fixed leading header.
func (c *Context) FormatForContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("[Current Stream Status]\n")
	if c.topic != "" {
		fmt.Fprintf(&sb, "Topic: %s\n", c.topic)
	}
	if c.mood != "" {
		fmt.Fprintf(&sb, "Mood: %s\n", c.mood)
	}

	if len(c.events) > 0 {
		sb.WriteString("Recent events:\n")
		start := len(c.events) - maxRenderedEvents
		if start < 0 {
			start = 0
		}
		now := c.now()
		for _, ev := range c.events[start:] {
			fmt.Fprintf(&sb, "- %s %s from %s: %s\n",
				relativeTime(now.Sub(ev.at)), ev.msgType, ev.author, ev.content)
		}
	}

	if len(c.viewers) > 0 {
		fmt.Fprintf(&sb, "Active viewers: %s\n", strings.Join(c.recentViewers(maxRenderedViewers), ", "))
	}

	fmt.Fprintf(&sb, "Messages this session: %d", c.messageCount)
	return sb.String()
}

// ToEpisode snapshots the current state into a persistable episode
// record for the given session.
func (c *Context) ToEpisode(sessionID string) models.StreamEpisode {
	c.mu.Lock()
	defer c.mu.Unlock()

	keyEvents := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		keyEvents = append(keyEvents, fmt.Sprintf("%s from %s: %s", ev.msgType, ev.author, ev.content))
	}

	summary := fmt.Sprintf("%d messages, %d viewers", c.messageCount, len(c.viewers))
	if c.topic != "" {
		summary = fmt.Sprintf("Talked about %s. %s", c.topic, summary)
	}

	return models.StreamEpisode{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Summary:          summary,
		Topics:           append([]string(nil), c.topics...),
		KeyEvents:        keyEvents,
		ParticipantCount: len(c.viewers),
		Sentiment:        c.mood,
		StartedAt:        c.startedAt,
		EndedAt:          c.now(),
	}
}

// Clear resets all fields and timestamps.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// reset expects the lock held (or exclusive access in NewContext).
func (c *Context) reset() {
	c.topic = ""
	c.mood = ""
	c.topics = nil
	c.events = nil
	c.viewers = make(map[string]time.Time)
	c.messageCount = 0
	c.updateCount = 0
	if c.now != nil {
		c.startedAt = c.now()
	}
}

// recentViewers returns up to n viewer names ordered by recency.
// Lock must be held.
func (c *Context) recentViewers(n int) []string {
	type seen struct {
		name string
		at   time.Time
	}
	all := make([]seen, 0, len(c.viewers))
	for name, at := range c.viewers {
		all = append(all, seen{name, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })

	if len(all) > n {
		all = all[:n]
	}
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.name
	}
	return names
}

func relativeTime(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
