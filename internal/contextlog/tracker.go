// Package contextlog tracks the recent resolutions of every channel in a
// bounded window. Consecutive resolved meanings feed the distance graph.
package contextlog

import (
	"sync"
	"time"

	"codeberg.org/snonux/meaningbot/internal/emotion"
)

// DefaultCapacity is the number of messages kept per channel
const DefaultCapacity = 20

// UsagePruneThreshold removes decayed usage counters below it
const UsagePruneThreshold = 0.5

// LogEntry is one inbound message and how it was resolved
type LogEntry struct {
	Timestamp time.Time
	Content   string
	MeaningID string // empty when the message was not resolved from cache
	Emotion   emotion.Tag
	Author    string
}

// AdjacencyObserver receives consecutive meaning pairs
type AdjacencyObserver interface {
	ObserveAdjacency(a, b string)
}

type channel struct {
	mu     sync.Mutex
	window []LogEntry
	usage  map[string]float64
}

// Tracker owns the per-channel windows. Channels are independent; only the
// lookup of a channel takes the tracker-wide lock.
type Tracker struct {
	mu       sync.Mutex
	capacity int
	channels map[string]*channel
	observer AdjacencyObserver
}

// NewTracker creates a tracker keeping capacity messages per channel and
// reporting adjacencies to observer (which may be nil)
func NewTracker(capacity int, observer AdjacencyObserver) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		channels: make(map[string]*channel),
		observer: observer,
	}
}

func (t *Tracker) channel(id string, create bool) *channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.channels[id]
	if !ok && create {
		c = &channel{usage: make(map[string]float64)}
		t.channels[id] = c
	}
	return c
}

// Append pushes e onto the channel window, evicting the oldest message when
// full. A resolved message also counts toward the channel usage of its
// meaning and is reported as adjacent to the message right before it.
func (t *Tracker) Append(channelID string, e LogEntry) {
	c := t.channel(channelID, true)

	c.mu.Lock()
	var prev string
	if n := len(c.window); n > 0 {
		prev = c.window[n-1].MeaningID
	}
	c.window = append(c.window, e)
	if over := len(c.window) - t.capacity; over > 0 {
		c.window = append([]LogEntry(nil), c.window[over:]...)
	}
	if e.MeaningID != "" {
		c.usage[e.MeaningID]++
	}
	c.mu.Unlock()

	if e.MeaningID != "" && prev != "" && t.observer != nil {
		t.observer.ObserveAdjacency(prev, e.MeaningID)
	}
}

// RecentWindow returns the channel window, most recent last
func (t *Tracker) RecentWindow(channelID string) []LogEntry {
	c := t.channel(channelID, false)
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.window...)
}

// UsageCounts returns how often each meaning was resolved in the channel
func (t *Tracker) UsageCounts(channelID string) map[string]float64 {
	out := make(map[string]float64)
	c := t.channel(channelID, false)
	if c == nil {
		return out
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, n := range c.usage {
		out[id] = n
	}
	return out
}

// Decay scales every usage counter by factor, dropping the ones that fall
// below UsagePruneThreshold. Windows are left alone.
func (t *Tracker) Decay(factor float64) {
	t.mu.Lock()
	channels := make([]*channel, 0, len(t.channels))
	for _, c := range t.channels {
		channels = append(channels, c)
	}
	t.mu.Unlock()

	for _, c := range channels {
		c.mu.Lock()
		for id, n := range c.usage {
			n *= factor
			if n < UsagePruneThreshold {
				delete(c.usage, id)
				continue
			}
			c.usage[id] = n
		}
		c.mu.Unlock()
	}
}

// Channels returns the number of channels seen so far
func (t *Tracker) Channels() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

// MostRecentMeaning returns the meaning id of the newest resolved message in
// window, or "" when there is none
func MostRecentMeaning(window []LogEntry) string {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].MeaningID != "" {
			return window[i].MeaningID
		}
	}
	return ""
}
