// Package httpapi wires the Gin HTTP surface: intake, the read-only query
// path, and health/readiness, following the teacher's handler shape (a
// struct holding its collaborators, one method per route, errors returned
// through the shared {error} envelope).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fntelecomllc/dnsguard/internal/domain"
	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/mailer"
	"github.com/fntelecomllc/dnsguard/internal/middleware"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/scheduler"
	"github.com/fntelecomllc/dnsguard/internal/store"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

// Validator is the subset of validation.Engine the intake and query
// handlers depend on.
type Validator interface {
	Check(ctx context.Context, target string) (*models.CheckResult, error)
}

// IntakeHandler implements POST /request/email and the retired
// POST /request/ui.
type IntakeHandler struct {
	store          store.RequestStore
	scheduler      *scheduler.Scheduler
	validator      Validator
	notifier       mailer.Notifier
	logger         *logging.Logger
	cooldown       time.Duration
	jobMaxAge      time.Duration
	resultMaxBytes int
}

func NewIntakeHandler(s store.RequestStore, sched *scheduler.Scheduler, v Validator, n mailer.Notifier, logger *logging.Logger, cooldown, jobMaxAge time.Duration, resultMaxBytes int) *IntakeHandler {
	return &IntakeHandler{
		store:          s,
		scheduler:      sched,
		validator:      v,
		notifier:       n,
		logger:         logger,
		cooldown:       cooldown,
		jobMaxAge:      jobMaxAge,
		resultMaxBytes: resultMaxBytes,
	}
}

// PostEmail handles POST /request/email.
func (h *IntakeHandler) PostEmail(c *gin.Context) {
	ctx := c.Request.Context()

	raw := map[string]interface{}{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		middleware.RespondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	for key := range raw {
		if key != "target" {
			middleware.RespondError(c, http.StatusBadRequest, "unexpected field: "+key)
			return
		}
	}
	rawTarget, _ := raw["target"].(string)

	target, err := domain.Normalize(rawTarget)
	if err != nil {
		middleware.RespondError(c, http.StatusBadRequest, "invalid target")
		return
	}

	if h.scheduler.ActiveCount() >= h.scheduler.MaxActiveJobs() {
		middleware.RespondError(c, http.StatusServiceUnavailable, "server_busy")
		return
	}

	last, err := h.store.FindLastCreatedByTargetType(ctx, target, models.RequestTypeEmail)
	if err != nil {
		h.logger.Error(ctx, "lookup last created for cooldown", err, logging.Fields{"target": target})
		middleware.RespondError(c, http.StatusInternalServerError, "internal_error")
		return
	}
	if last != nil && time.Since(last.CreatedAt) < h.cooldown {
		middleware.RespondError(c, http.StatusTooManyRequests, "target is in cooldown window")
		return
	}

	now := time.Now().UTC()
	row, err := h.store.InsertRequest(ctx, target, models.RequestTypeEmail, now.Add(h.jobMaxAge))
	if err != nil {
		if err == store.ErrDuplicateEntry {
			middleware.RespondError(c, http.StatusConflict, "Duplicate request for EMAIL "+target)
			return
		}
		h.logger.Error(ctx, "insert request", err, logging.Fields{"target": target})
		middleware.RespondError(c, http.StatusInternalServerError, "internal_error")
		return
	}

	go func() {
		if err := h.notifier.SendRequestCreated(target, models.RequestTypeEmail); err != nil {
			h.logger.Warn(context.Background(), "request created email failed", logging.Fields{"target": target, "error": err.Error()})
		}
	}()

	result, checkErr := h.validator.Check(ctx, target)
	if checkErr != nil {
		h.logger.Warn(ctx, "immediate check failed, deferring to background job", logging.Fields{"target": target, "error": checkErr.Error()})
		h.scheduler.StartForRequest(row, 0)
		c.JSON(http.StatusAccepted, gin.H{"id": row.ID, "target": row.Target, "type": row.Type, "status": models.StatusPending, "expires_at": row.ExpiresAt})
		return
	}

	payload, err := validation.BuildResultPayload(result, h.resultMaxBytes)
	if err != nil {
		h.logger.Error(ctx, "marshal immediate check result", err, logging.Fields{"target": target})
		h.scheduler.StartForRequest(row, 0)
		c.JSON(http.StatusAccepted, gin.H{"id": row.ID, "target": row.Target, "type": row.Type, "status": models.StatusPending, "expires_at": row.ExpiresAt})
		return
	}

	if _, err := h.store.UpdateCheckResult(ctx, row.ID, now, now.Add(h.jobMaxAge), payload, nil); err != nil {
		h.logger.Error(ctx, "persist immediate check result", err, logging.Fields{"target": target})
	}

	if result.OK {
		affected, err := h.store.ConditionalTransition(ctx, row.ID, models.StatusActive, store.TransitionFields{ActivatedAt: &now})
		if err == nil && affected > 0 {
			go func() {
				if err := h.notifier.SendStatusChange(target, models.RequestTypeEmail, models.StatusActive, result); err != nil {
					h.logger.Warn(context.Background(), "status change email failed", logging.Fields{"target": target, "error": err.Error()})
				}
			}()
			if err := h.store.InsertDomainActive(ctx, target); err != nil {
				h.logger.Error(ctx, "insert domain active", err, logging.Fields{"target": target})
			}
			c.JSON(http.StatusOK, gin.H{"id": row.ID, "target": row.Target, "type": row.Type, "status": models.StatusActive, "expires_at": row.ExpiresAt})
			return
		}
		if err != nil {
			h.logger.Error(ctx, "conditional promote to active", err, logging.Fields{"target": target})
		}
	}

	h.scheduler.StartForRequest(row, 0)
	c.JSON(http.StatusAccepted, gin.H{"id": row.ID, "target": row.Target, "type": row.Type, "status": models.StatusPending, "expires_at": row.ExpiresAt})
}

// PostUI handles the retired POST /request/ui route, kept as a route that
// always answers 410 rather than silently 404ing for clients still
// pointed at the historical endpoint.
func (h *IntakeHandler) PostUI(c *gin.Context) {
	c.JSON(http.StatusGone, gin.H{"error": "endpoint_removed", "message": "POST /request/ui has been retired; submit EMAIL requests via POST /request/email"})
}
