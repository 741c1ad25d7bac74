package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/banter-collective/banter/internal/content"
	"github.com/banter-collective/banter/internal/ranking"
)

// Pagination describes the page window of a feed response.
type Pagination struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
	Records int `json:"records"`
	Pages   int `json:"pages"`
}

// Summary is the projection of one ranked item returned in a page.
type Summary struct {
	ID          string           `json:"id"`
	Kind        content.Kind     `json:"kind"`
	Type        content.PostType `json:"type,omitempty"`
	CommunityID string           `json:"community_id"`
	PostID      string           `json:"post_id,omitempty"`
	ParentID    *string          `json:"parent_id,omitempty"`
	Depth       int              `json:"depth,omitempty"`
	AuthorID    string           `json:"author_id"`
	Title       string           `json:"title,omitempty"`
	Body        string           `json:"body,omitempty"`
	Score       int              `json:"score"`
	Upvotes     int              `json:"upvotes"`
	Downvotes   int              `json:"downvotes"`
	Comments    int              `json:"comments,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Page is one assembled feed page. Ephemeral; owns no persistent
// state.
type Page struct {
	Pagination Pagination `json:"pagination"`
	Data       []Summary  `json:"data"`
}

// Assembler orchestrates the query builder, the feed source and the
// score calculator to produce ranked pages. Stateless per request;
// safe for concurrent use.
type Assembler struct {
	source content.FeedSource
	logger *slog.Logger

	// hotWindow, when positive, restricts hot feeds to items created
	// within the window. Zero means no restriction.
	hotWindow time.Duration

	// now is the clock used for age computation; overridable in tests.
	now func() time.Time
}

// NewAssembler creates a feed assembler over the given source.
func NewAssembler(source content.FeedSource, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// WithHotWindow restricts hot feeds to items created within the given
// window. A non-positive duration disables the restriction.
func (a *Assembler) WithHotWindow(d time.Duration) *Assembler {
	a.hotWindow = d
	return a
}

// Page produces one ranked page of posts for the query, plus
// pagination metadata. An out-of-range page number yields an empty
// data list, not an error. Either the whole page is produced or an
// error is returned; never a partial result.
func (a *Assembler) Page(ctx context.Context, q Query) (*Page, error) {
	now := a.now()
	plan, err := Build(q, now)
	if err != nil {
		return nil, err
	}

	if a.hotWindow > 0 && plan.Mode == ranking.ModeHot && plan.Predicate.CreatedAfter == nil {
		cutoff := now.Add(-a.hotWindow)
		plan.Predicate.CreatedAfter = &cutoff
	}

	total, err := a.source.CountPosts(ctx, plan.Predicate)
	if err != nil {
		return nil, fmt.Errorf("counting feed candidates: %w", err)
	}

	var data []Summary
	if plan.Mode == ranking.ModeNew {
		// New is served in target order directly from the source with
		// an offset/limit pushdown; no scoring pass needed.
		items, err := a.source.ListPostsByNew(ctx, plan.Predicate, (plan.Page-1)*plan.Limit, plan.Limit)
		if err != nil {
			return nil, fmt.Errorf("listing feed page: %w", err)
		}
		data = summarize(items)
	} else {
		candidates, err := a.source.ListPosts(ctx, plan.Predicate)
		if err != nil {
			return nil, fmt.Errorf("listing feed candidates: %w", err)
		}
		data = summarize(rankSlice(candidates, plan.Mode, now, plan.Page, plan.Limit))
	}

	a.logger.Debug("assembled feed page",
		"sort", string(plan.Mode),
		"page", plan.Page,
		"limit", plan.Limit,
		"records", total,
		"returned", len(data),
	)

	return &Page{
		Pagination: paginate(plan.Page, plan.Limit, total),
		Data:       data,
	}, nil
}

// Comments produces one ranked page of a post's comments under the
// same four sort modes and tie-break policy as post feeds.
func (a *Assembler) Comments(ctx context.Context, postID, sort string, page, limit int) (*Page, error) {
	mode, err := ranking.ParseMode(sort)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page <= 0 {
		page = 1
	}

	candidates, err := a.source.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}

	data := summarize(rankSlice(candidates, mode, a.now(), page, limit))
	return &Page{
		Pagination: paginate(page, limit, len(candidates)),
		Data:       data,
	}, nil
}

// rankSlice scores and orders the full candidate set, then slices the
// requested window. Works for every mode: new has a zero score for all
// items, leaving the timestamp tie-break as the effective order.
func rankSlice(candidates []content.FeedItem, mode ranking.Mode, now time.Time, page, limit int) []content.FeedItem {
	scored := make([]ranking.ScoredItem, len(candidates))
	for i, c := range candidates {
		scored[i] = ranking.ScoredItem{
			FeedItem:  c,
			RankScore: ranking.Score(mode, c.Aggregate, ranking.AgeHours(c.Item.CreatedAt, now)),
		}
	}
	ranking.Sort(scored)

	start := (page - 1) * limit
	if start >= len(scored) {
		return nil
	}
	end := start + limit
	if end > len(scored) {
		end = len(scored)
	}

	out := make([]content.FeedItem, 0, end-start)
	for _, s := range scored[start:end] {
		out = append(out, s.FeedItem)
	}
	return out
}

// paginate computes the pagination block. Pages is the ceiling of
// records/limit; the record count is independent of slicing.
func paginate(page, limit, records int) Pagination {
	pages := 0
	if records > 0 {
		pages = (records + limit - 1) / limit
	}
	return Pagination{
		Current: page,
		Limit:   limit,
		Records: records,
		Pages:   pages,
	}
}

// summarize projects feed items into the response shape. Always
// returns a non-nil slice so empty pages encode as [] rather than
// null.
func summarize(items []content.FeedItem) []Summary {
	out := make([]Summary, 0, len(items))
	for _, fi := range items {
		out = append(out, Summary{
			ID:          fi.Item.ID,
			Kind:        fi.Item.Kind,
			Type:        fi.Item.Type,
			CommunityID: fi.Item.CommunityID,
			PostID:      fi.Item.PostID,
			ParentID:    fi.Item.ParentID,
			Depth:       fi.Item.Depth,
			AuthorID:    fi.Item.AuthorID,
			Title:       fi.Item.Title,
			Body:        fi.Item.Body,
			Score:       fi.Aggregate.Score,
			Upvotes:     fi.Aggregate.Upvotes,
			Downvotes:   fi.Aggregate.Downvotes,
			Comments:    fi.Aggregate.Comments,
			CreatedAt:   fi.Item.CreatedAt,
		})
	}
	return out
}
