// Package confidence adjusts and decays the confidence of learned entries.
package confidence

import (
	"math"
	"sync"
	"time"

	"codeberg.org/snonux/meaningbot/internal/entry"
)

// Adjustment deltas applied on feedback events
const (
	HitBonus        = 0.02
	ExactHitBonus   = 0.05
	CorrectionBonus = 0.12
	DisputePenalty  = -0.05
)

// Decay parameters
const (
	DefaultHalfLife = 7 * 24 * time.Hour

	// CheckInterval is the minimum wall-clock time between two decay passes
	CheckInterval = time.Hour

	// Floor is the lowest confidence decay can push an entry to
	Floor = 0.05

	// EmotionPruneThreshold drops emotion weights that decayed below it
	EmotionPruneThreshold = 0.05
)

// Clamp limits v to [0,1]
func Clamp(v float64) float64 {
	return math.Max(0.0, math.Min(v, 1.0))
}

// Adjust moves the confidence of e by delta, clamped to [0,1]
func Adjust(e *entry.Entry, delta float64) {
	e.Confidence = Clamp(e.Confidence + delta)
}

// HitBonusFor returns the confidence bonus of a cache hit with the given
// best similarity; near-exact matches earn more
func HitBonusFor(similarity float64) float64 {
	if similarity > 0.97 {
		return ExactHitBonus
	}
	return HitBonus
}

// Factor returns 0.5^(elapsed/halfLife)
func Factor(elapsed, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1.0
	}
	return math.Pow(0.5, float64(elapsed)/float64(halfLife))
}

// ApplyDecay scales the confidence and every emotion weight of e by the same
// factor. Confidence does not fall below Floor; emotion weights falling below
// EmotionPruneThreshold are removed.
func ApplyDecay(e *entry.Entry, factor float64) {
	e.Confidence = math.Max(Floor, e.Confidence*factor)
	for tag, w := range e.Context.Emotion {
		w *= factor
		if w < EmotionPruneThreshold {
			delete(e.Context.Emotion, tag)
			continue
		}
		e.Context.Emotion[tag] = w
	}
}

// Decayer is learned state that fades with the same factor as confidence
type Decayer interface {
	Decay(factor float64)
}

// Controller rate-limits decay passes to one per CheckInterval
type Controller struct {
	mu             sync.Mutex
	halfLife       time.Duration
	lastDecayCheck time.Time
}

// NewController creates a controller whose previous pass ran at last. A zero
// last means no pass ran yet; the first DecayAll then only starts the clock.
func NewController(halfLife time.Duration, last time.Time) *Controller {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Controller{halfLife: halfLife, lastDecayCheck: last}
}

// HalfLife returns the configured half-life
func (c *Controller) HalfLife() time.Duration {
	return c.halfLife
}

// LastDecayCheck returns the time of the previous pass
func (c *Controller) LastDecayCheck() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDecayCheck
}

// DecayAll decays every entry of store, and every extra decayer, when at
// least CheckInterval passed since the previous pass. The factor is computed
// once from the elapsed time and applied uniformly. It returns the factor
// and whether a pass ran.
func (c *Controller) DecayAll(now time.Time, store *entry.Store, extra ...Decayer) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastDecayCheck.IsZero() {
		c.lastDecayCheck = now
		return 1.0, false
	}
	elapsed := now.Sub(c.lastDecayCheck)
	if elapsed < CheckInterval {
		return 1.0, false
	}

	factor := Factor(elapsed, c.halfLife)
	store.ForEach(func(e *entry.Entry) {
		ApplyDecay(e, factor)
	})
	for _, d := range extra {
		d.Decay(factor)
	}
	c.lastDecayCheck = now
	return factor, true
}
