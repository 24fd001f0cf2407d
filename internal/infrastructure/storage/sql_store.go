package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const (
	metaVersion    = "version"
	metaLastPollAt = "last_poll_at"

	// rows per multi-row insert; keeps bind parameters under the sqlite limit
	insertBatch = 250
)

// SQLStore persists the state envelope into three tables: seen_items,
// queue_entries and state_meta. Every Save runs in one transaction.
type SQLStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.StateStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, placeholder sq.PlaceholderFormat) *SQLStore {
	return &SQLStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// DB exposes the underlying handle for lifecycle management.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Load reads the envelope back.
func (s *SQLStore) Load(ctx context.Context) (domain.PersistedState, error) {
	state := domain.PersistedState{Version: domain.CurrentStateVersion}

	seen, err := s.loadSeen(ctx)
	if err != nil {
		return domain.PersistedState{}, persistence("load seen items", err)
	}
	state.Seen = seen

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return domain.PersistedState{}, persistence("load queue", err)
	}
	state.Queue = queue

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return domain.PersistedState{}, persistence("load meta", err)
	}
	if v, ok := meta[metaVersion]; ok {
		version, err := strconv.Atoi(v)
		if err != nil {
			return domain.PersistedState{}, persistence("parse version", err)
		}
		if version > domain.CurrentStateVersion {
			return domain.PersistedState{}, persistence("load", fmt.Errorf("unsupported state version %d", version))
		}
		state.Version = version
	}
	if v := meta[metaLastPollAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return domain.PersistedState{}, persistence("parse last poll", err)
		}
		t = t.UTC()
		state.LastPollAt = &t
	}

	return state, nil
}

func (s *SQLStore) loadSeen(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("id").From("seen_items").OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) loadQueue(ctx context.Context) ([]domain.QueueEntry, error) {
	query, args, err := s.sb.Select("payload").From("queue_entries").OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var entry domain.QueueEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLStore) loadMeta(ctx context.Context) (map[string]string, error) {
	query, args, err := s.sb.Select("key", "value").From("state_meta").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces the queue and merges the seen ids in a single transaction.
func (s *SQLStore) Save(ctx context.Context, state domain.PersistedState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.exec(ctx, tx, s.sb.Delete("queue_entries")); err != nil {
		return persistence("clear queue", err)
	}

	for start := 0; start < len(state.Queue); start += insertBatch {
		end := min(start+insertBatch, len(state.Queue))
		insert := s.sb.Insert("queue_entries").Columns("source_id", "position", "payload")
		for i := start; i < end; i++ {
			payload, mErr := json.Marshal(state.Queue[i])
			if mErr != nil {
				err = mErr
				return persistence("encode entry", err)
			}
			insert = insert.Values(state.Queue[i].SourceID, i, string(payload))
		}
		if err = s.exec(ctx, tx, insert); err != nil {
			return persistence("insert queue", err)
		}
	}

	for start := 0; start < len(state.Seen); start += insertBatch {
		end := min(start+insertBatch, len(state.Seen))
		insert := s.sb.Insert("seen_items").Columns("id", "position")
		for i := start; i < end; i++ {
			insert = insert.Values(state.Seen[i], i)
		}
		insert = insert.Suffix("ON CONFLICT (id) DO NOTHING")
		if err = s.exec(ctx, tx, insert); err != nil {
			return persistence("insert seen", err)
		}
	}

	lastPoll := ""
	if state.LastPollAt != nil {
		lastPoll = state.LastPollAt.UTC().Format(time.RFC3339Nano)
	}
	version := state.Version
	if version == 0 {
		version = domain.CurrentStateVersion
	}
	meta := s.sb.Insert("state_meta").
		Columns("key", "value").
		Values(metaVersion, strconv.Itoa(version)).
		Values(metaLastPollAt, lastPoll).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value")
	if err = s.exec(ctx, tx, meta); err != nil {
		return persistence("upsert meta", err)
	}

	if err = tx.Commit(); err != nil {
		return persistence("commit", err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, tx *sql.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func persistence(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
