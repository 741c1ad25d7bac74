// Package ranking provides the pure scoring functions behind the four
// feed sort modes: hot, new, top and controversial.
package ranking

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/banter-collective/banter/internal/content"
)

// ErrInvalidMode is returned for an unrecognized sort mode. Callers
// must not default silently.
var ErrInvalidMode = errors.New("invalid sort mode")

// Mode selects the feed ordering.
type Mode string

// Sort modes.
const (
	ModeHot           Mode = "hot"
	ModeNew           Mode = "new"
	ModeTop           Mode = "top"
	ModeControversial Mode = "controversial"
)

// ParseMode validates a caller-supplied sort string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeHot, ModeNew, ModeTop, ModeControversial:
		return Mode(s), nil
	}
	return "", ErrInvalidMode
}

// Scored reports whether the mode requires a computed score. New is
// served by creation timestamp alone.
func (m Mode) Scored() bool {
	return m != ModeNew
}

// hotGravity controls how fast age suppresses the hot score.
const hotGravity = 1.5

// HotScore computes the time-decayed popularity score:
//
//	score / (age_hours + 2) ^ 1.5
//
// Age is clamped to a minimum of 0 so the denominator never drops
// below 2^1.5. Negative net scores yield negative hot scores and sink
// by magnitude; there is no floor at zero.
func HotScore(score int, ageHours float64) float64 {
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(score) / math.Pow(ageHours+2, hotGravity)
}

// ControversyScore rewards items with both high vote volume and a
// near-even split. With t = up + down and balance = |0.5 - up/t|:
//
//	(1 - 2*balance) * min(up, down)
//
// Zero-volume items return the minimum possible value so they sort
// last. One-sided items contribute min(up, down) == 0 and sink
// regardless of volume.
func ControversyScore(up, down int) float64 {
	total := up + down
	if total == 0 {
		return math.Inf(-1)
	}
	balance := math.Abs(0.5 - float64(up)/float64(total))
	lesser := up
	if down < lesser {
		lesser = down
	}
	return (1 - 2*balance) * float64(lesser)
}

// AgeHours returns the wall-clock age of an item in hours, clamped to
// a minimum of 0.
func AgeHours(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt).Hours()
	if age < 0 {
		age = 0
	}
	return age
}

// Score computes the numeric rank score for one item under the given
// mode. ModeNew has no numeric score and returns 0; its ordering key is
// the creation timestamp.
func Score(mode Mode, agg content.VoteAggregate, ageHours float64) float64 {
	switch mode {
	case ModeHot:
		return HotScore(agg.Score, ageHours)
	case ModeTop:
		return float64(agg.Score)
	case ModeControversial:
		return ControversyScore(agg.Upvotes, agg.Downvotes)
	}
	return 0
}

// ScoredItem pairs a feed item with its computed rank score.
type ScoredItem struct {
	content.FeedItem
	RankScore float64
}

// Less implements the total order used by every scored mode: rank
// score descending, then creation timestamp descending, then item id
// ascending. The tertiary key guarantees determinism for stable
// pagination across repeated requests.
func Less(a, b ScoredItem) bool {
	if a.RankScore != b.RankScore {
		return a.RankScore > b.RankScore
	}
	if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
		return a.Item.CreatedAt.After(b.Item.CreatedAt)
	}
	return a.Item.ID < b.Item.ID
}

// Sort orders scored items in place by Less.
func Sort(items []ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}
