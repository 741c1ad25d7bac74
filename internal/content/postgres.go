package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/banter-collective/banter/internal/tracing"
)

// PostgresStore implements Store using PostgreSQL with full
// transaction support. Vote mutations run in a single transaction so
// the vote row, the aggregate counters and the author karma move
// together or not at all.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// storeErr maps driver errors to the engine's error taxonomy.
func storeErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// CreateCommunity registers a community.
func (s *PostgresStore) CreateCommunity(ctx context.Context, c *Community) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO communities (id, name, archived, created_at)
		 VALUES ($1, $2, $3, now())`,
		c.ID, c.Name, c.Archived)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// CreatePost inserts a post with a zero aggregate in one transaction.
func (s *PostgresStore) CreatePost(ctx context.Context, item *Item) error {
	if !ValidPostType(item.Type) {
		return ErrInvalidPostType
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Kind = KindPost

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var archived bool
	err = tx.QueryRowContext(ctx,
		`SELECT archived FROM communities WHERE id = $1`, item.CommunityID).Scan(&archived)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCommunityNotFound
	}
	if err != nil {
		return storeErr(err)
	}
	if archived {
		return ErrCommunityArchived
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO items (id, kind, post_type, community_id, author_id, title, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 RETURNING created_at, updated_at`,
		item.ID, item.Kind, item.Type, item.CommunityID, item.AuthorID, item.Title, item.Body).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return storeErr(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_aggregates (item_id) VALUES ($1)`, item.ID); err != nil {
		return storeErr(err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	return nil
}

// CreateComment inserts a comment, derives its depth from the parent
// and bumps the owning post's comment count in one transaction.
func (s *PostgresStore) CreateComment(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Kind = KindComment

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var communityID string
	err = tx.QueryRowContext(ctx,
		`SELECT community_id FROM items
		 WHERE id = $1 AND kind = 'post' AND deleted_at IS NULL`,
		item.PostID).Scan(&communityID)
	if err != nil {
		return storeErr(err)
	}
	item.CommunityID = communityID

	depth := 0
	if item.ParentID != nil {
		var parentDepth int
		err = tx.QueryRowContext(ctx,
			`SELECT depth FROM items
			 WHERE id = $1 AND kind = 'comment' AND post_id = $2 AND deleted_at IS NULL`,
			*item.ParentID, item.PostID).Scan(&parentDepth)
		if err != nil {
			return storeErr(err)
		}
		depth = parentDepth + 1
	}
	if depth > MaxCommentDepth {
		return ErrMaxDepth
	}
	item.Depth = depth

	err = tx.QueryRowContext(ctx,
		`INSERT INTO items (id, kind, community_id, post_id, parent_id, depth, author_id, body, created_at, updated_at)
		 VALUES ($1, 'comment', $2, $3, $4, $5, $6, $7, now(), now())
		 RETURNING created_at, updated_at`,
		item.ID, item.CommunityID, item.PostID, item.ParentID, item.Depth, item.AuthorID, item.Body).
		Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return storeErr(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_aggregates (item_id) VALUES ($1)`, item.ID); err != nil {
		return storeErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE item_aggregates SET comments = comments + 1 WHERE item_id = $1`,
		item.PostID); err != nil {
		return storeErr(err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	return nil
}

// DeleteItem soft-deletes an item.
func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// itemColumns is the select list shared by item queries.
const itemColumns = `i.id, i.kind, COALESCE(i.post_type, ''), i.community_id,
	COALESCE(i.post_id, ''), i.parent_id, i.depth, i.author_id,
	COALESCE(i.title, ''), COALESCE(i.body, ''), i.created_at, i.updated_at, i.deleted_at`

// scanItem scans one item row produced with itemColumns.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var parentID sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&it.ID, &it.Kind, &it.Type, &it.CommunityID,
		&it.PostID, &parentID, &it.Depth, &it.AuthorID,
		&it.Title, &it.Body, &it.CreatedAt, &it.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		it.ParentID = &parentID.String
	}
	if deletedAt.Valid {
		it.DeletedAt = &deletedAt.Time
	}
	return &it, nil
}

// Item retrieves a live item by id.
func (s *PostgresStore) Item(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.id = $1 AND i.deleted_at IS NULL`, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, storeErr(err)
	}
	return it, nil
}

// Aggregate returns the item's current counters.
func (s *PostgresStore) Aggregate(ctx context.Context, id string) (VoteAggregate, error) {
	var agg VoteAggregate
	err := s.db.QueryRowContext(ctx,
		`SELECT a.score, a.upvotes, a.downvotes, a.comments
		 FROM item_aggregates a
		 JOIN items i ON i.id = a.item_id
		 WHERE a.item_id = $1 AND i.deleted_at IS NULL`, id).
		Scan(&agg.Score, &agg.Upvotes, &agg.Downvotes, &agg.Comments)
	if err != nil {
		return VoteAggregate{}, storeErr(err)
	}
	return agg, nil
}

// ActiveVote returns the voter's active vote on the item, or nil.
func (s *PostgresStore) ActiveVote(ctx context.Context, voterID, itemID string) (*Vote, error) {
	var v Vote
	err := s.db.QueryRowContext(ctx,
		`SELECT v.id, v.voter_id, v.item_id, v.value, v.created_at, v.updated_at
		 FROM votes v
		 JOIN items i ON i.id = v.item_id
		 WHERE v.voter_id = $1 AND v.item_id = $2
		   AND v.retracted_at IS NULL AND i.deleted_at IS NULL`,
		voterID, itemID).
		Scan(&v.ID, &v.VoterID, &v.ItemID, &v.Value, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish "no vote" from "no item".
		if _, itemErr := s.Item(ctx, itemID); itemErr != nil {
			return nil, itemErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &v, nil
}

// Karma returns the author's cumulative karma.
func (s *PostgresStore) Karma(ctx context.Context, authorID string) (int, error) {
	var karma int
	err := s.db.QueryRowContext(ctx,
		`SELECT karma FROM author_karma WHERE author_id = $1`, authorID).Scan(&karma)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr(err)
	}
	return karma, nil
}

// CommitVote applies one vote-ledger transition in a single
// transaction: vote row, aggregate counters and author karma.
func (s *PostgresStore) CommitVote(ctx context.Context, m VoteMutation) (agg VoteAggregate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "votes", tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		s.logger.Error("failed to begin vote transaction",
			slog.String("error", err.Error()),
			slog.String("item_id", m.ItemID))
		return VoteAggregate{}, storeErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	var deletedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT deleted_at FROM items WHERE id = $1`, m.ItemID).Scan(&deletedAt)
	if err != nil {
		return VoteAggregate{}, storeErr(err)
	}
	if deletedAt.Valid {
		return VoteAggregate{}, ErrNotFound
	}

	if m.NewValue == 0 {
		// Retraction keeps the historical record.
		if _, err := tx.ExecContext(ctx,
			`UPDATE votes SET retracted_at = now(), updated_at = now()
			 WHERE voter_id = $1 AND item_id = $2 AND retracted_at IS NULL`,
			m.VoterID, m.ItemID); err != nil {
			return VoteAggregate{}, storeErr(err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO votes (id, voter_id, item_id, value, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, now(), now())
			 ON CONFLICT (voter_id, item_id)
			 DO UPDATE SET value = EXCLUDED.value, retracted_at = NULL, updated_at = now()`,
			uuid.New().String(), m.VoterID, m.ItemID, m.NewValue); err != nil {
			return VoteAggregate{}, storeErr(err)
		}
	}

	scoreDelta, upDelta, downDelta := m.Deltas()
	err = tx.QueryRowContext(ctx,
		`UPDATE item_aggregates
		 SET score = score + $2, upvotes = upvotes + $3, downvotes = downvotes + $4
		 WHERE item_id = $1
		 RETURNING score, upvotes, downvotes, comments`,
		m.ItemID, scoreDelta, upDelta, downDelta).
		Scan(&agg.Score, &agg.Upvotes, &agg.Downvotes, &agg.Comments)
	if err != nil {
		return VoteAggregate{}, storeErr(err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO author_karma (author_id, karma) VALUES ($1, $2)
		 ON CONFLICT (author_id) DO UPDATE SET karma = author_karma.karma + EXCLUDED.karma`,
		m.AuthorID, scoreDelta); err != nil {
		return VoteAggregate{}, storeErr(err)
	}

	if err := tx.Commit(); err != nil {
		return VoteAggregate{}, storeErr(err)
	}
	return agg, nil
}

// predicateSQL renders the feed predicate as WHERE clauses. The base
// conditions always exclude soft-deleted items and archived
// communities.
func predicateSQL(p Predicate) (string, []any) {
	clauses := []string{
		"i.kind = 'post'",
		"i.deleted_at IS NULL",
		"NOT c.archived",
	}
	var args []any
	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}

	if p.CommunityID != nil {
		clauses = append(clauses, "i.community_id = "+next())
		args = append(args, *p.CommunityID)
	}
	if p.PostType != nil {
		clauses = append(clauses, "i.post_type = "+next())
		args = append(args, *p.PostType)
	}
	if p.TitleSearch != "" {
		clauses = append(clauses, "i.title ILIKE "+next())
		args = append(args, "%"+p.TitleSearch+"%")
	}
	if p.CreatedAfter != nil {
		clauses = append(clauses, "i.created_at >= "+next())
		args = append(args, *p.CreatedAfter)
	}

	return strings.Join(clauses, " AND "), args
}

// CountPosts returns the size of the filtered post set.
func (s *PostgresStore) CountPosts(ctx context.Context, p Predicate) (int, error) {
	where, args := predicateSQL(p)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items i
		 JOIN communities c ON c.id = i.community_id
		 WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// feedQuery runs a feed select and scans items with aggregates.
func (s *PostgresStore) feedQuery(ctx context.Context, query string, args ...any) (items []FeedItem, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []FeedItem{}
	for rows.Next() {
		var fi FeedItem
		var parentID sql.NullString
		var deletedAt sql.NullTime
		err := rows.Scan(&fi.Item.ID, &fi.Item.Kind, &fi.Item.Type, &fi.Item.CommunityID,
			&fi.Item.PostID, &parentID, &fi.Item.Depth, &fi.Item.AuthorID,
			&fi.Item.Title, &fi.Item.Body, &fi.Item.CreatedAt, &fi.Item.UpdatedAt, &deletedAt,
			&fi.Aggregate.Score, &fi.Aggregate.Upvotes, &fi.Aggregate.Downvotes, &fi.Aggregate.Comments)
		if err != nil {
			return nil, storeErr(err)
		}
		if parentID.Valid {
			fi.Item.ParentID = &parentID.String
		}
		if deletedAt.Valid {
			fi.Item.DeletedAt = &deletedAt.Time
		}
		out = append(out, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

const aggregateColumns = `a.score, a.upvotes, a.downvotes, a.comments`

// ListPostsByNew pushes ordering and the page window down to the
// database: created_at DESC with id ASC as tie-break.
func (s *PostgresStore) ListPostsByNew(ctx context.Context, p Predicate, offset, limit int) ([]FeedItem, error) {
	where, args := predicateSQL(p)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT `+itemColumns+`, `+aggregateColumns+`
		 FROM items i
		 JOIN communities c ON c.id = i.community_id
		 JOIN item_aggregates a ON a.item_id = i.id
		 WHERE %s
		 ORDER BY i.created_at DESC, i.id ASC
		 LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	return s.feedQuery(ctx, query, args...)
}

// ListPosts returns the full filtered post set with aggregates.
func (s *PostgresStore) ListPosts(ctx context.Context, p Predicate) ([]FeedItem, error) {
	where, args := predicateSQL(p)
	query := `SELECT ` + itemColumns + `, ` + aggregateColumns + `
		 FROM items i
		 JOIN communities c ON c.id = i.community_id
		 JOIN item_aggregates a ON a.item_id = i.id
		 WHERE ` + where
	return s.feedQuery(ctx, query, args...)
}

// ListComments returns all live comments under a post.
func (s *PostgresStore) ListComments(ctx context.Context, postID string) ([]FeedItem, error) {
	if _, err := s.Item(ctx, postID); err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns + `, ` + aggregateColumns + `
		 FROM items i
		 JOIN item_aggregates a ON a.item_id = i.id
		 WHERE i.kind = 'comment' AND i.deleted_at IS NULL AND i.post_id = $1`
	return s.feedQuery(ctx, query, postID)
}

// Ping verifies database connectivity. Used by readiness checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

// interface guard
var _ Store = (*PostgresStore)(nil)
