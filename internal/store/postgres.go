package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidclash/backend/internal/db"
)

// Postgres implements Store over a single JSONB documents table keyed by
// (collection, id). Single-row UPDATEs give the per-document write
// serialization the engine relies on.
type Postgres struct {
	pool   db.Pool
	poll   time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres constructs the Postgres-backed document store. poll controls the
// interval subscriptions use to detect changes; the store assumes no
// server-side triggers.
func NewPostgres(pool db.Pool, poll time.Duration, logger *slog.Logger) *Postgres {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, poll: poll, logger: logger, now: time.Now}
}

// Get fetches a single document by id.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return Document{}, unavailable("acquire connection", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, data, created_at, updated_at
        FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
		}
		return Document{}, unavailable(fmt.Sprintf("get %s/%s", collection, id), err)
	}
	return doc, nil
}

// Query returns the documents matching q.
func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, unavailable("acquire connection", err)
	}
	defer conn.Release()

	sql, args := buildSelect(collection, q, "")
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("query %s", collection), err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("scan %s", collection), err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Sprintf("iterate %s", collection), err)
	}
	return docs, nil
}

// Create persists a new document, stamping id and createdAt when absent.
func (p *Postgres) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	now := p.now().UTC()

	clone := make(map[string]any, len(data)+2)
	for k, v := range data {
		clone[k] = v
	}
	clone["id"] = id
	if _, ok := clone["createdAt"]; !ok {
		clone["createdAt"] = now
	}
	created := createdStamp(clone["createdAt"], now)

	raw, err := json.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return "", unavailable("acquire connection", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO documents (collection, id, data, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, collection, id, raw, created, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("create %s/%s: %w", collection, id, ErrConflict)
		}
		return "", unavailable(fmt.Sprintf("create %s/%s", collection, id), err)
	}
	return id, nil
}

// Update shallow-merges patch into the document payload.
func (p *Postgres) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch %s/%s: %w", collection, id, err)
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return unavailable("acquire connection", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE documents
        SET data = data || $3::JSONB, updated_at = $4
        WHERE collection = $1 AND id = $2
    `, collection, id, raw, p.now().UTC())
	if err != nil {
		return unavailable(fmt.Sprintf("update %s/%s", collection, id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Delete removes the document.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return unavailable("acquire connection", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM documents WHERE collection = $1 AND id = $2
    `, collection, id)
	if err != nil {
		return unavailable(fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Increment applies the numeric deltas in a single UPDATE, so every counter in
// deltas lands atomically with respect to concurrent writers.
func (p *Postgres) Increment(ctx context.Context, collection, id string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	fields := make([]string, 0, len(deltas))
	for field := range deltas {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	args := []any{collection, id}
	expr := "data"
	for _, field := range fields {
		args = append(args, fieldPath(field))
		pathIdx := len(args)
		args = append(args, deltas[field])
		deltaIdx := len(args)
		expr = fmt.Sprintf(
			"jsonb_set(%s, $%d, to_jsonb(COALESCE((data #>> $%d)::INT8, 0) + $%d))",
			expr, pathIdx, pathIdx, deltaIdx,
		)
	}
	args = append(args, p.now().UTC())

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return unavailable("acquire connection", err)
	}
	defer conn.Release()

	sql := fmt.Sprintf(`
        UPDATE documents
        SET data = %s, updated_at = $%d
        WHERE collection = $1 AND id = $2
    `, expr, len(args))

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return unavailable(fmt.Sprintf("increment %s/%s", collection, id), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

// Subscribe polls for documents whose updated_at moved past a high-water mark.
// Documents updated while a poll is in flight may be delivered twice.
func (p *Postgres) Subscribe(ctx context.Context, collection string, q Query, fn func(Document)) (func(), error) {
	if fn == nil {
		return nil, errors.New("subscribe: nil handler")
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	highWater := p.now().UTC()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()

		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}

			docs, err := p.queryChanged(subCtx, collection, q, highWater)
			if err != nil {
				if subCtx.Err() == nil {
					p.logger.Warn("subscription poll failed", "collection", collection, "error", err)
				}
				continue
			}
			for _, doc := range docs {
				if doc.UpdatedAt.After(highWater) {
					highWater = doc.UpdatedAt
				}
				fn(doc)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return unsubscribe, nil
}

func (p *Postgres) queryChanged(ctx context.Context, collection string, q Query, since time.Time) ([]Document, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, unavailable("acquire connection", err)
	}
	defer conn.Release()

	changed := q
	changed.OrderBy = nil
	changed.Limit = 0
	sinceIdx := 2 + 2*len(changed.Filters)
	sql, args := buildSelect(collection, changed, fmt.Sprintf("AND updated_at > $%d ORDER BY updated_at ASC", sinceIdx))
	args = append(args, since)

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("poll %s", collection), err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("scan %s", collection), err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc Document
		raw []byte
	)
	if err := row.Scan(&doc.ID, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode payload: %w", err)
	}
	return doc, nil
}

func buildSelect(collection string, q Query, tail string) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1")

	args := []any{collection}
	for _, f := range q.Filters {
		args = append(args, fieldPath(f.Field))
		pathIdx := len(args)
		switch f.Op {
		case OpIn:
			args = append(args, textValues(f.Value))
			fmt.Fprintf(&sb, " AND data #>> $%d = ANY($%d)", pathIdx, len(args))
		case OpLessOrEqual:
			args = append(args, textValue(f.Value))
			fmt.Fprintf(&sb, " AND data #>> $%d <= $%d", pathIdx, len(args))
		case OpGreaterOrEqual:
			args = append(args, textValue(f.Value))
			fmt.Fprintf(&sb, " AND data #>> $%d >= $%d", pathIdx, len(args))
		default:
			args = append(args, textValue(f.Value))
			fmt.Fprintf(&sb, " AND data #>> $%d = $%d", pathIdx, len(args))
		}
	}

	if tail != "" {
		sb.WriteString(" ")
		sb.WriteString(tail)
	}

	if q.OrderBy != nil {
		switch {
		case q.OrderBy.Field == "createdAt":
			// The created_at column avoids the variable sub-second precision
			// of the JSON text form.
			sb.WriteString(" ORDER BY created_at")
		case q.OrderBy.Numeric:
			args = append(args, fieldPath(q.OrderBy.Field))
			fmt.Fprintf(&sb, " ORDER BY (data #>> $%d)::DECIMAL", len(args))
		default:
			args = append(args, fieldPath(q.OrderBy.Field))
			fmt.Fprintf(&sb, " ORDER BY data #>> $%d", len(args))
		}
		if q.OrderBy.Desc {
			sb.WriteString(" DESC")
		}
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

func fieldPath(field string) []string {
	return strings.Split(field, ".")
}

// createdStamp mirrors a caller-provided createdAt onto the created_at column
// so createdAt ordering follows domain time, not insertion time.
func createdStamp(v any, fallback time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

func textValues(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, textValue(item))
		}
		return out
	default:
		return []string{textValue(v)}
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

var _ Store = (*Postgres)(nil)
