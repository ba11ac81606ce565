package scorer

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"codeberg.org/snonux/meaningbot/internal/contextlog"
	"codeberg.org/snonux/meaningbot/internal/emotion"
	"codeberg.org/snonux/meaningbot/internal/entry"
	"codeberg.org/snonux/meaningbot/internal/textsim"
)

// ErrNoMatch is returned when no cached meaning can serve the message
var ErrNoMatch = errors.New("no matching meaning")

// Score weights
const (
	SimilarityThreshold = 0.8
	SimilarityWeight    = 0.4
	UsageWeight         = 0.05
	EmotionWeight       = 0.4
	RecencyBonus        = 0.3
	ReplyBonus          = 0.3
	DistanceWeight      = 0.3
	MinScore            = 0.01
)

// Query describes the message being resolved
type Query struct {
	Text        string
	SourceLang  string
	ChannelID   string
	ReplyAuthor string
	Emotion     emotion.Tag
}

// Weighter returns the learned distance weight a->b
type Weighter interface {
	Weight(a, b string) float64
}

// Signals is the channel state a query is scored against
type Signals struct {
	Window   []contextlog.LogEntry
	Usage    map[string]float64
	Distance Weighter
}

// Candidate is a scored entry
type Candidate struct {
	Entry      *entry.Entry
	Score      float64
	Similarity float64
}

// Scorer computes candidate scores. MinSimilarity gates which entries are
// candidates at all: an entry whose best variant is not more similar than
// MinSimilarity is left out. Zero disables the gate.
type Scorer struct {
	MinSimilarity float64
}

// Score scores every entry having q.SourceLang, in the given order
func (s Scorer) Score(q Query, entries []*entry.Entry, sig Signals) []Candidate {
	latest := contextlog.MostRecentMeaning(sig.Window)

	var out []Candidate
	for _, e := range entries {
		variants := e.Languages[q.SourceLang]
		if len(variants) == 0 {
			continue
		}

		best := 0.0
		for _, v := range variants {
			best = math.Max(best, textsim.Ratio(q.Text, v))
		}
		if s.MinSimilarity > 0 && best <= s.MinSimilarity {
			continue
		}

		score := e.Confidence
		if best > SimilarityThreshold {
			score += best * SimilarityWeight
		}
		score += sig.Usage[e.ID] * UsageWeight
		if w, ok := e.Context.Emotion[string(q.Emotion)]; ok {
			score += w * EmotionWeight
		}
		score += windowBonus(e.ID, q.ReplyAuthor, sig.Window)
		if latest != "" && sig.Distance != nil {
			score += sig.Distance.Weight(latest, e.ID) * DistanceWeight
		}

		out = append(out, Candidate{
			Entry:      e,
			Score:      math.Max(score, MinScore),
			Similarity: best,
		})
	}
	return out
}

// windowBonus rewards a meaning present in the recent window, and more when
// the message replies to the author who used it
func windowBonus(id, replyAuthor string, window []contextlog.LogEntry) float64 {
	bonus := 0.0
	for _, w := range window {
		if w.MeaningID != id {
			continue
		}
		if bonus == 0 {
			bonus = RecencyBonus
		}
		if replyAuthor != "" && w.Author == replyAuthor {
			return RecencyBonus + ReplyBonus
		}
	}
	return bonus
}

// Selector draws candidates by roulette-wheel sampling. It is safe for
// concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector drawing from rng
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// Select draws r uniformly in [0, total) and returns the first candidate,
// in order, whose cumulative score reaches r
func (s *Selector) Select(candidates []Candidate) (Candidate, error) {
	total := 0.0
	for _, c := range candidates {
		total += c.Score
	}
	if len(candidates) == 0 || !(total > 0) || math.IsInf(total, 0) {
		return Candidate{}, ErrNoMatch
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	cumulative := 0.0
	for _, c := range candidates {
		cumulative += c.Score
		if cumulative >= r {
			return c, nil
		}
	}
	return candidates[len(candidates)-1], nil
}
