// Package store implements the message store (C6): a single hl7_message
// table backed by pgx, with unique-violation detection on
// message_control_id, per spec.md §4.6.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

// ErrNotFound is returned by Get when no row matches the uuid.
var ErrNotFound = errors.New("store: message not found")

// ErrDuplicateControlID is returned by Create when message_control_id
// collides with an existing non-NULL value.
var ErrDuplicateControlID = errors.New("store: message_control_id already exists")

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation; see https://www.postgresql.org/docs/current/errcodes-appendix.html.
const uniqueViolation = "23505"

// Record is one row of hl7_message.
type Record struct {
	UUID              string
	Created           time.Time
	CreatedBy         string
	Modified          time.Time
	ModifiedBy        string
	Content           string
	MessageType       string
	SentAt            *time.Time
	IsProcessed       bool
	SrcDescription    string
	DstDescription    string
	MessageControlID  *string
	Ack               *string
	PatientIdentifiers map[string]string
}

// Patch names the fields update(uuid, patch) is allowed to touch, per
// spec.md §4.6.
type Patch struct {
	IsProcessed *bool
	Ack         *string
}

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pool against databaseURL and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Create inserts record, generating a uuid if record.UUID is empty.
// ErrDuplicateControlID is returned (not wrapped around the pgx error) so
// callers can pattern-match it directly against §4.7 step 7's rewrite
// path.
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record.UUID == "" {
		record.UUID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.Created, record.Modified = now, now

	identifiers, err := json.Marshal(record.PatientIdentifiers)
	if err != nil {
		return fmt.Errorf("store: marshal patient_identifiers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO hl7_message
			(uuid, created, created_by, modified, modified_by, content, message_type,
			 sent_at_, is_processed, src_description, dst_description, message_control_id,
			 ack, patient_identifiers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		record.UUID, record.Created, record.CreatedBy, record.Modified, record.ModifiedBy,
		record.Content, nullIfEmpty(record.MessageType), record.SentAt, record.IsProcessed,
		record.SrcDescription, record.DstDescription, record.MessageControlID,
		record.Ack, identifiers,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateControlID
		}
		return fmt.Errorf("store: create: %w", err)
	}
	return nil
}

// Update patches the named fields of the record at uuid.
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	if patch.IsProcessed == nil && patch.Ack == nil {
		return nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE hl7_message
		SET is_processed = COALESCE($2, is_processed),
		    ack = COALESCE($3, ack),
		    modified = $4
		WHERE uuid = $1
	`, id, patch.IsProcessed, patch.Ack, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches the record at uuid.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE uuid = $1`, id)
	return scanRecord(row)
}

// GetByControlID returns every record sharing messageControlID, newest
// first.
func (s *Store) GetByControlID(ctx context.Context, messageControlID string) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE message_control_id = $1 ORDER BY created DESC`, messageControlID)
	if err != nil {
		return nil, fmt.Errorf("store: get_by_control_id: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SearchByIdentifier matches records whose patient_identifiers[kind] JSON
// key equals value, newest first.
func (s *Store) SearchByIdentifier(ctx context.Context, kind, value string) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE patient_identifiers ->> $1 = $2 ORDER BY created DESC`, kind, value)
	if err != nil {
		return nil, fmt.Errorf("store: search_by_identifier: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AckStatus parses the stored ack and returns its MSA-1, or ("", false) if
// the record has no ack. A missing record returns ErrNotFound.
func (s *Store) AckStatus(ctx context.Context, id string) (string, bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if rec.Ack == nil || *rec.Ack == "" {
		return "", false, nil
	}
	code, ok := hl7wrap.AckStatus(*rec.Ack)
	return code, ok, nil
}

const selectColumns = `
	SELECT uuid, created, created_by, modified, modified_by, content, COALESCE(message_type, ''),
	       sent_at_, is_processed, src_description, dst_description, message_control_id, ack,
	       patient_identifiers
	FROM hl7_message`

type row interface {
	Scan(dest ...any) error
}

func scanRecord(r row) (*Record, error) {
	var rec Record
	var identifiers []byte
	err := r.Scan(
		&rec.UUID, &rec.Created, &rec.CreatedBy, &rec.Modified, &rec.ModifiedBy, &rec.Content,
		&rec.MessageType, &rec.SentAt, &rec.IsProcessed, &rec.SrcDescription, &rec.DstDescription,
		&rec.MessageControlID, &rec.Ack, &identifiers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	if len(identifiers) > 0 {
		if err := json.Unmarshal(identifiers, &rec.PatientIdentifiers); err != nil {
			return nil, fmt.Errorf("store: unmarshal patient_identifiers: %w", err)
		}
	}
	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
