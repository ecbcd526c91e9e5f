package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kozaktomas/facerecog/internal/apierr"
	"github.com/kozaktomas/facerecog/internal/descriptor"
)

// User mirrors the spec's User entity.
type User struct {
	UserID           uint64
	ExternalID       string
	DisplayName      string
	ClientRef        string
	Descriptor       descriptor.Descriptor
	Confidence       float32
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastRecognitionAt *time.Time
	RecognitionCount int64
}

// LogEvent is an append-only recognition_logs row.
type LogEvent struct {
	UserID   *uint64
	Event    string
	Outcome  string
	Distance *float64
}

// Store is the descriptor store: the relational source of truth for
// enrolled users. One Store is constructed at startup and injected into
// the recognition coordinator and batch engine — see internal/store's
// package doc on explicit construction.
type Store struct {
	pool *Pool
}

func New(pool *Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

// Create inserts a new active user, failing with apierr.Duplicate if
// externalId collides with another active user.
func (s *Store) Create(ctx context.Context, u User) (uint64, error) {
	descJSON, err := u.Descriptor.MarshalJSON()
	if err != nil {
		return 0, apierr.Wrap(apierr.Internal, "encoding descriptor", err)
	}

	row := s.pool.QueryRowContext(ctx, `
		INSERT INTO users (external_id, display_name, client_ref, descriptor, confidence, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
		RETURNING id
	`, u.ExternalID, u.DisplayName, u.ClientRef, descJSON, u.Confidence)

	var id uint64
	if err := row.Scan(&id); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return 0, apierr.New(apierr.Duplicate, fmt.Sprintf("externalId %q already enrolled", u.ExternalID))
		}
		return 0, apierr.Wrap(apierr.Internal, "creating user", err)
	}
	return id, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (User, error) {
	var u User
	var desc []byte
	if err := row.Scan(
		&u.UserID, &u.ExternalID, &u.DisplayName, &u.ClientRef, &desc,
		&u.Confidence, &u.Active, &u.CreatedAt, &u.UpdatedAt,
		&u.LastRecognitionAt, &u.RecognitionCount,
	); err != nil {
		return User{}, err
	}
	if err := u.Descriptor.UnmarshalJSON(desc); err != nil {
		return User{}, fmt.Errorf("store: decoding descriptor: %w", err)
	}
	return u, nil
}

const userColumns = `id, external_id, display_name, client_ref, descriptor, confidence, active, created_at, updated_at, last_recognition_at, recognition_count`

// FindByExternalID looks up an active user by external id.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (User, error) {
	row := s.pool.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1 AND active LIMIT 1`, externalID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apierr.New(apierr.NotFound, fmt.Sprintf("externalId %q not found", externalID))
	}
	if err != nil {
		return User{}, apierr.Wrap(apierr.Internal, "finding user by external id", err)
	}
	return u, nil
}

// FindByID looks up a user (active or not) by internal id.
func (s *Store) FindByID(ctx context.Context, userID uint64) (User, error) {
	row := s.pool.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apierr.New(apierr.NotFound, fmt.Sprintf("user %d not found", userID))
	}
	if err != nil {
		return User{}, apierr.Wrap(apierr.Internal, "finding user by id", err)
	}
	return u, nil
}

// ListActive returns every active user, descriptors included — the
// snapshot the index rebuild and batch engine's linear fallback path use.
func (s *Store) ListActive(ctx context.Context) ([]User, error) {
	rows, err := s.pool.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE active ORDER BY id`)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "listing active users", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scanning active user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "iterating active users", err)
	}
	return users, nil
}

// UpdateDescriptor atomically replaces a user's descriptor, confidence, and
// updatedAt — the row's only mutable identity fields.
func (s *Store) UpdateDescriptor(ctx context.Context, userID uint64, d descriptor.Descriptor, confidence float32, updatedAt time.Time) error {
	descJSON, err := d.MarshalJSON()
	if err != nil {
		return apierr.Wrap(apierr.Internal, "encoding descriptor", err)
	}
	res, err := s.pool.ExecContext(ctx,
		`UPDATE users SET descriptor = $1, confidence = $2, updated_at = $3 WHERE id = $4 AND active`,
		descJSON, confidence, updatedAt, userID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "updating descriptor", err)
	}
	return requireRowAffected(res, userID)
}

// SoftDelete marks a user inactive without removing the row.
func (s *Store) SoftDelete(ctx context.Context, userID uint64) error {
	res, err := s.pool.ExecContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = now() WHERE id = $1 AND active`, userID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "soft-deleting user", err)
	}
	return requireRowAffected(res, userID)
}

func requireRowAffected(res sql.Result, userID uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.Wrap(apierr.Internal, "checking rows affected", err)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound, fmt.Sprintf("user %d not found or already inactive", userID))
	}
	return nil
}

// CountActive returns the number of active users.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	row := s.pool.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE active`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, apierr.Wrap(apierr.Internal, "counting active users", err)
	}
	return n, nil
}

// AppendLog records a recognition event. Per the spec, failure here must
// never fail the user-facing operation — callers are expected to log and
// swallow the returned error, not propagate it.
func (s *Store) AppendLog(ctx context.Context, e LogEvent) error {
	_, err := s.pool.ExecContext(ctx,
		`INSERT INTO recognition_logs (user_id, event, outcome, distance, created_at) VALUES ($1, $2, $3, $4, now())`,
		e.UserID, e.Event, e.Outcome, e.Distance)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "appending recognition log", err)
	}
	return nil
}

// TouchRecognition bumps a user's lastRecognitionAt and recognitionCount
// after a successful identify — supplementary to the spec's literal
// operation list but implied by the User entity's recognitionCount field.
func (s *Store) TouchRecognition(ctx context.Context, userID uint64, at time.Time) error {
	_, err := s.pool.ExecContext(ctx,
		`UPDATE users SET last_recognition_at = $1, recognition_count = recognition_count + 1 WHERE id = $2`,
		at, userID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "touching recognition stats", err)
	}
	return nil
}
