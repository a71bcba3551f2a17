// Package store defines the persistence contract for dns_requests rows.
// The Postgres implementation lives in internal/store/postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fntelecomllc/dnsguard/internal/models"
)

// ErrDuplicateEntry is returned by InsertRequest when (target, type) already
// exists.
var ErrDuplicateEntry = errors.New("duplicate request for target and type")

// ErrNotFound is returned when a row lookup by id finds nothing.
var ErrNotFound = errors.New("request not found")

// RequestStore persists dns_requests rows and applies conditional
// transitions out of PENDING.
type RequestStore interface {
	InsertRequest(ctx context.Context, target string, reqType models.RequestType, expiresAt time.Time) (*models.Request, error)
	FindByTarget(ctx context.Context, target string) ([]*models.Request, error)
	FindByID(ctx context.Context, id int64) (*models.Request, error)
	FindPendingNotExpired(ctx context.Context) ([]*models.Request, error)
	FindLastCreatedByTargetType(ctx context.Context, target string, reqType models.RequestType) (*models.Request, error)

	// UpdateCheckResult persists the outcome of one validation tick:
	// last_checked_at, next_check_at, and the bounded result JSON. The
	// update only applies while the row is PENDING. Returns the number of
	// rows affected (0 if the row was no longer PENDING when the update ran).
	UpdateCheckResult(ctx context.Context, id int64, now, nextCheckAt time.Time, resultJSON []byte, failReason *string) (int64, error)

	// ConditionalTransition updates status (and any extra terminal
	// fields) only when the row is currently PENDING. Returns rows
	// affected: 0 means a concurrent tick already moved the row out of
	// PENDING.
	ConditionalTransition(ctx context.Context, id int64, target models.RequestStatus, fields TransitionFields) (int64, error)

	// InsertDomainActive upserts the secondary domain table on first
	// promotion to ACTIVE. Duplicate inserts are ignored, not an error.
	InsertDomainActive(ctx context.Context, name string) error
}

// TransitionFields carries the optional fields set alongside a conditional
// status transition (activated_at for ACTIVE, fail_reason for EXPIRED).
type TransitionFields struct {
	ActivatedAt *time.Time
	FailReason  *string
}
