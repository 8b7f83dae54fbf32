package votes

import (
	"sort"
	"time"

	"transientbot/internal/config"
)

// Category is a vote class.
type Category string

const (
	AGN          Category = "AGN"
	Interesting  Category = "Interesting"
	Star         Category = "Star"
	Junk         Category = "Junk"
	Unclassified Category = "Unclassified"
)

// Categories lists the votable classes in tie-break order.
var Categories = []Category{AGN, Interesting, Star, Junk}

// ReactionCategory maps reaction names to categories.
var ReactionCategory = map[string]Category{
	"milky_way":   AGN,
	"fire":        Interesting,
	"star":        Star,
	"wastebasket": Junk,
}

var priorityWeights = map[Category]int{AGN: 4, Interesting: 3, Star: 2, Junk: 1}

// Tally is the latest vote count for one posted transient.
type Tally struct {
	TransientID string    `json:"transient_id"`
	Channel     string    `json:"channel"`
	MessageTS   string    `json:"message_ts"`
	AGN         int       `json:"agn"`
	Interesting int       `json:"interesting"`
	Star        int       `json:"star"`
	Junk        int       `json:"junk"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TallyFromReactions converts raw reaction counts; unrelated reactions are ignored.
func TallyFromReactions(id, channel, ts string, counts map[string]int) Tally {
	t := Tally{TransientID: id, Channel: channel, MessageTS: ts}
	for name, n := range counts {
		if n <= 0 {
			continue
		}
		switch ReactionCategory[name] {
		case AGN:
			t.AGN += n
		case Interesting:
			t.Interesting += n
		case Star:
			t.Star += n
		case Junk:
			t.Junk += n
		}
	}
	return t
}

// Count returns the votes for c.
func (t Tally) Count(c Category) int {
	switch c {
	case AGN:
		return t.AGN
	case Interesting:
		return t.Interesting
	case Star:
		return t.Star
	case Junk:
		return t.Junk
	}
	return 0
}

// Total returns the number of votes across categories.
func (t Tally) Total() int {
	return t.AGN + t.Interesting + t.Star + t.Junk
}

// SameCounts reports whether both tallies carry identical votes.
func (t Tally) SameCounts(o Tally) bool {
	return t.AGN == o.AGN && t.Interesting == o.Interesting && t.Star == o.Star && t.Junk == o.Junk
}

// Thresholds is the minimum vote count each category needs.
type Thresholds map[Category]int

// ThresholdsFromConfig reads the voting section.
func ThresholdsFromConfig(cfg config.Voting) Thresholds {
	return Thresholds{
		AGN:         cfg.AGNThreshold,
		Interesting: cfg.InterestingThreshold,
		Star:        cfg.StarThreshold,
		Junk:        cfg.JunkThreshold,
	}
}

// Classification is the outcome of Classify.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Votes      int      `json:"votes"`
}

// Classify picks the category with the most votes when it meets its
// threshold. Confidence is the winning share of all votes.
func Classify(t Tally, th Thresholds) Classification {
	total := t.Total()
	if total == 0 {
		return Classification{Category: Unclassified}
	}
	best := Categories[0]
	for _, c := range Categories[1:] {
		if t.Count(c) > t.Count(best) {
			best = c
		}
	}
	votes := t.Count(best)
	result := Classification{Category: Unclassified, Confidence: float64(votes) / float64(total), Votes: votes}
	if need, ok := th[best]; ok && votes >= need {
		result.Category = best
	}
	return result
}

// Priority is the weighted follow-up score: 4 per AGN vote, 3 per
// interesting, 2 per star and 1 per junk vote.
func Priority(t Tally) int {
	score := 0
	for _, c := range Categories {
		score += priorityWeights[c] * t.Count(c)
	}
	return score
}

// Rank orders tallies by descending priority, then by transient ID.
func Rank(tallies []Tally) []Tally {
	out := append([]Tally(nil), tallies...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := Priority(out[i]), Priority(out[j])
		if pi != pj {
			return pi > pj
		}
		return out[i].TransientID < out[j].TransientID
	})
	return out
}
