// Package postgres implements store.RequestStore against PostgreSQL via
// sqlx and lib/pq, following the same conditional-update and duplicate-key
// translation pattern used throughout this codebase's other sqlx-backed
// stores.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/store"
)

const pqUniqueViolation = "23505"

// RequestStore is a sqlx-backed store.RequestStore.
type RequestStore struct {
	db    *sqlx.DB
	retry retryPolicy
}

// New builds a RequestStore that runs every query up to retryCount times in
// total, retrying transient network errors with retryDelayMs*(attempt+1)
// linear backoff, per spec.md §5's DB_QUERY_RETRY_COUNT/DB_QUERY_RETRY_DELAY_MS.
func New(db *sqlx.DB, retryCount, retryDelayMs int) *RequestStore {
	return &RequestStore{db: db, retry: newRetryPolicy(retryCount, retryDelayMs)}
}

func (s *RequestStore) InsertRequest(ctx context.Context, target string, reqType models.RequestType, expiresAt time.Time) (*models.Request, error) {
	now := time.Now().UTC()
	row := &models.Request{
		Target:    target,
		Type:      reqType,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	const q = `
		INSERT INTO dns_requests (target, type, status, created_at, updated_at, expires_at)
		VALUES (:target, :type, :status, :created_at, :updated_at, :expires_at)
		RETURNING id`

	var dupErr error
	err := s.retry.withRetry(ctx, func() error {
		stmt, err := s.db.PrepareNamedContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		if err := stmt.GetContext(ctx, &row.ID, row); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
				dupErr = store.ErrDuplicateEntry
				return nil
			}
			return fmt.Errorf("insert request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, dupErr
	}
	return row, nil
}

func (s *RequestStore) FindByTarget(ctx context.Context, target string) ([]*models.Request, error) {
	var rows []*models.Request
	const q = `SELECT * FROM dns_requests WHERE target = $1 ORDER BY type`
	err := s.retry.withRetry(ctx, func() error {
		return s.db.SelectContext(ctx, &rows, q, target)
	})
	if err != nil {
		return nil, fmt.Errorf("find by target: %w", err)
	}
	return rows, nil
}

func (s *RequestStore) FindByID(ctx context.Context, id int64) (*models.Request, error) {
	var row models.Request
	const q = `SELECT * FROM dns_requests WHERE id = $1`
	notFound := false
	err := s.retry.withRetry(ctx, func() error {
		if err := s.db.GetContext(ctx, &row, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				notFound = true
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find by id: %w", err)
	}
	if notFound {
		return nil, store.ErrNotFound
	}
	return &row, nil
}

func (s *RequestStore) FindPendingNotExpired(ctx context.Context) ([]*models.Request, error) {
	var rows []*models.Request
	const q = `SELECT * FROM dns_requests WHERE status = 'PENDING' AND expires_at > now() ORDER BY id`
	err := s.retry.withRetry(ctx, func() error {
		return s.db.SelectContext(ctx, &rows, q)
	})
	if err != nil {
		return nil, fmt.Errorf("find pending not expired: %w", err)
	}
	return rows, nil
}

func (s *RequestStore) FindLastCreatedByTargetType(ctx context.Context, target string, reqType models.RequestType) (*models.Request, error) {
	var row models.Request
	const q = `
		SELECT * FROM dns_requests
		WHERE target = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1`
	notFound := false
	err := s.retry.withRetry(ctx, func() error {
		if err := s.db.GetContext(ctx, &row, q, target, reqType); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				notFound = true
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find last created: %w", err)
	}
	if notFound {
		return nil, nil
	}
	return &row, nil
}

func (s *RequestStore) UpdateCheckResult(ctx context.Context, id int64, now, nextCheckAt time.Time, resultJSON []byte, failReason *string) (int64, error) {
	const q = `
		UPDATE dns_requests
		SET last_checked_at = $2, next_check_at = $3,
		    last_check_result_json = COALESCE($4, last_check_result_json),
		    fail_reason = $5, updated_at = $2
		WHERE id = $1 AND status = 'PENDING'`
	var jsonArg *string
	if resultJSON != nil {
		v := string(resultJSON)
		jsonArg = &v
	}
	var affected int64
	err := s.retry.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, q, id, now, nextCheckAt, jsonArg, failReason)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("update check result: %w", err)
	}
	return affected, nil
}

func (s *RequestStore) ConditionalTransition(ctx context.Context, id int64, target models.RequestStatus, fields store.TransitionFields) (int64, error) {
	now := time.Now().UTC()
	const q = `
		UPDATE dns_requests
		SET status = $2, updated_at = $3, activated_at = COALESCE($4, activated_at), fail_reason = COALESCE($5, fail_reason)
		WHERE id = $1 AND status = 'PENDING'`
	var affected int64
	err := s.retry.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, q, id, target, now, fields.ActivatedAt, fields.FailReason)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("conditional transition: %w", err)
	}
	return affected, nil
}

func (s *RequestStore) InsertDomainActive(ctx context.Context, name string) error {
	const q = `INSERT INTO domain (name, active) VALUES ($1, true) ON CONFLICT (name) DO NOTHING`
	err := s.retry.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, q, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert domain active: %w", err)
	}
	return nil
}
