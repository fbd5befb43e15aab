package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/buzzbuddies/backend/internal/changefeed"
	"github.com/buzzbuddies/backend/internal/db"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/logging"
)

// PostgresDocumentStore stores documents in a single PostgreSQL table keyed by collection
// path and id. Writes publish the collection path on the change feed; listeners re-run their
// query whenever a change is announced.
type PostgresDocumentStore struct {
	pool db.Pool
	feed changefeed.Feed
	now  func() time.Time
}

// NewPostgresDocumentStore constructs a document store backed by PostgreSQL.
func NewPostgresDocumentStore(pool db.Pool, feed changefeed.Feed) *PostgresDocumentStore {
	return &PostgresDocumentStore{pool: pool, feed: feed, now: time.Now}
}

// Get fetches a single document.
func (s *PostgresDocumentStore) Get(ctx context.Context, ref docstore.DocRef) (docstore.Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return docstore.Document{}, storeError("acquire connection", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT fields, update_time
        FROM documents
        WHERE collection = $1 AND id = $2
    `, ref.Parent.Path(), ref.ID)

	doc := docstore.Document{Ref: ref}
	if err := row.Scan(&doc.Fields, &doc.UpdateTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return docstore.Document{}, ErrNotFound
		}
		return docstore.Document{}, storeError("select document", err)
	}
	doc.UpdateTime = doc.UpdateTime.UTC()
	return doc, nil
}

// Set creates or replaces the document at ref.
func (s *PostgresDocumentStore) Set(ctx context.Context, ref docstore.DocRef, fields docstore.Fields) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storeError("acquire connection", err)
	}
	defer conn.Release()

	now := s.clock()
	_, err = conn.Exec(ctx, `
        INSERT INTO documents (collection, id, fields, update_time)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (collection, id)
        DO UPDATE SET fields = EXCLUDED.fields, update_time = EXCLUDED.update_time
    `, ref.Parent.Path(), ref.ID, encode(fields, now), now)
	if err != nil {
		return storeError("upsert document", err)
	}

	s.announce(ctx, ref.Parent)
	return nil
}

// Add stores fields under a new time-ordered identifier.
func (s *PostgresDocumentStore) Add(ctx context.Context, collection docstore.CollectionRef, fields docstore.Fields) (docstore.DocRef, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return docstore.DocRef{}, storeError("acquire connection", err)
	}
	defer conn.Release()

	ref := collection.Doc(ulid.Make().String())
	now := s.clock()
	_, err = conn.Exec(ctx, `
        INSERT INTO documents (collection, id, fields, update_time)
        VALUES ($1, $2, $3, $4)
    `, collection.Path(), ref.ID, encode(fields, now), now)
	if err != nil {
		return docstore.DocRef{}, storeError("insert document", err)
	}

	s.announce(ctx, collection)
	return ref, nil
}

// Delete removes the document at ref. Deleting a missing document is not an error.
func (s *PostgresDocumentStore) Delete(ctx context.Context, ref docstore.DocRef) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storeError("acquire connection", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM documents
        WHERE collection = $1 AND id = $2
    `, ref.Parent.Path(), ref.ID)
	if err != nil {
		return storeError("delete document", err)
	}

	if tag.RowsAffected() > 0 {
		s.announce(ctx, ref.Parent)
	}
	return nil
}

// Query runs q. Ordering by a field compares the field's text form; times are stored in a
// fixed-width layout so they sort chronologically.
func (s *PostgresDocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, storeError("acquire connection", err)
	}
	defer conn.Release()

	sql, args := buildQuery(q)
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeError("query documents", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			doc docstore.Document
		)
		if err := rows.Scan(&id, &doc.Fields, &doc.UpdateTime); err != nil {
			return nil, storeError("scan document", err)
		}
		doc.Ref = q.Collection.Doc(id)
		doc.UpdateTime = doc.UpdateTime.UTC()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate documents", err)
	}

	return docs, nil
}

// Listen subscribes to change announcements for q's collection and re-runs q on each one.
// Consecutive identical results are emitted once.
func (s *PostgresDocumentStore) Listen(ctx context.Context, q docstore.Query) (<-chan docstore.Snapshot, error) {
	signals, err := s.feed.Subscribe(ctx, q.Collection.Path())
	if err != nil {
		return nil, storeError("subscribe to changes", err)
	}

	out := make(chan docstore.Snapshot)
	go func() {
		defer close(out)

		var (
			last   []docstore.Document
			primed bool
		)
		emit := func() bool {
			docs, err := s.Query(ctx, q)
			if ctx.Err() != nil {
				return false
			}
			snap := docstore.Snapshot{Documents: docs, ReadTime: s.clock(), Err: err}
			if err == nil {
				if primed && docstore.SameResult(last, docs) {
					return true
				}
				primed, last = true, docs
			}
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok || !emit() {
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *PostgresDocumentStore) announce(ctx context.Context, collection docstore.CollectionRef) {
	if err := s.feed.Publish(ctx, collection.Path()); err != nil {
		logging.FromContext(ctx).Warn("publish document change", slog.String("collection", collection.Path()), slog.Any("error", err))
	}
}

// clock truncates to the column precision so UpdateTime round-trips unchanged.
func (s *PostgresDocumentStore) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func encode(fields docstore.Fields, now time.Time) map[string]any {
	return docstore.Encode(docstore.Resolve(fields, now))
}

func buildQuery(q docstore.Query) (string, []any) {
	var b strings.Builder
	args := []any{q.Collection.Path()}

	b.WriteString("SELECT id, fields, update_time FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		args = append(args, f.Field, filterText(f.Value))
		fmt.Fprintf(&b, " AND fields->>($%d::TEXT) = $%d::TEXT", len(args)-1, len(args))
	}

	dir := "ASC"
	if q.Order.Direction == docstore.Desc {
		dir = "DESC"
	}
	if q.Order.Field != "" {
		args = append(args, q.Order.Field)
		fmt.Fprintf(&b, " ORDER BY fields->>($%d::TEXT) %s, id %s", len(args), dir, dir)
	} else {
		fmt.Fprintf(&b, " ORDER BY id %s", dir)
	}

	if q.Max > 0 {
		args = append(args, q.Max)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// filterText renders a filter value the way ->> renders the stored JSON value.
func filterText(v any) string {
	switch t := docstore.EncodeValue(v).(type) {
	case string:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

var _ docstore.Store = (*PostgresDocumentStore)(nil)
