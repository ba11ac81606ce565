package persist

import (
	"time"

	"go.uber.org/zap"

	"codeberg.org/snonux/meaningbot/internal/entry"
)

// SchemaVersion is the current dictionary schema
const SchemaVersion = 1

// State is everything the engine persists
type State struct {
	Entries          map[string]*entry.Entry
	LastDecayCheck   time.Time
	Distances        map[string]map[string]float64
	DistancesUpdated time.Time

	// Migrated is set by Load when the stored data used an older schema
	Migrated bool
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Entries:   make(map[string]*entry.Entry),
		Distances: make(map[string]map[string]float64),
	}
}

// Backend loads and saves full snapshots
type Backend interface {
	Load() (*State, error)
	Save(state *State) error
	Close() error
}

// LoadOrEmpty loads the backend state. Whatever part of the storage is
// unreadable starts out empty instead of failing.
func LoadOrEmpty(b Backend, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	state, err := b.Load()
	if err != nil {
		logger.Warn("stored state partly unreadable, using empty defaults", zap.Error(err))
	}
	if state == nil {
		state = NewState()
	}
	if state.Entries == nil {
		state.Entries = make(map[string]*entry.Entry)
	}
	if state.Distances == nil {
		state.Distances = make(map[string]map[string]float64)
	}
	return state
}

func toUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func latestModification(entries map[string]*entry.Entry) time.Time {
	var latest time.Time
	for _, e := range entries {
		if e.LastModified.After(latest) {
			latest = e.LastModified
		}
	}
	return latest
}
