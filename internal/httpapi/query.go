package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fntelecomllc/dnsguard/internal/domain"
	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/middleware"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/store"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

const debounceGCThreshold = 10000

// QueryHandler implements GET /api/checkdns/:target: it reads persisted
// state and, under strict debounce, may run one opportunistic live DNS
// check — but it never creates a request row or starts a scheduler job.
type QueryHandler struct {
	store          store.RequestStore
	validator      Validator
	profile        validation.Profile
	logger         *logging.Logger
	token          string
	minInterval    time.Duration
	resultMaxBytes int

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewQueryHandler(s store.RequestStore, v Validator, profile validation.Profile, logger *logging.Logger, token string, minInterval time.Duration, resultMaxBytes int) *QueryHandler {
	return &QueryHandler{
		store:          s,
		validator:      v,
		profile:        profile,
		logger:         logger,
		token:          token,
		minInterval:    minInterval,
		resultMaxBytes: resultMaxBytes,
		lastRun:        make(map[string]time.Time),
	}
}

type rowSummary struct {
	Status        models.RequestStatus  `json:"status"`
	ID            int64                 `json:"id"`
	CreatedAt     time.Time             `json:"created_at"`
	ExpiresAt     time.Time             `json:"expires_at"`
	LastCheckedAt *time.Time            `json:"last_checked_at,omitempty"`
	NextCheckAt   *time.Time            `json:"next_check_at,omitempty"`
	Missing       []models.MissingEntry `json:"missing"`
}

// GetCheckDNS handles GET /api/checkdns/:target.
func (h *QueryHandler) GetCheckDNS(c *gin.Context) {
	if h.token != "" && c.GetHeader("x-api-key") != h.token {
		middleware.RespondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	target, err := domain.Normalize(c.Param("target"))
	if err != nil {
		middleware.RespondError(c, http.StatusBadRequest, "invalid target")
		return
	}

	rows, err := h.store.FindByTarget(c.Request.Context(), target)
	if err != nil {
		h.logger.Error(c.Request.Context(), "find by target", err, logging.Fields{"target": target})
		middleware.RespondError(c, http.StatusInternalServerError, "internal_error")
		return
	}
	if len(rows) == 0 {
		middleware.RespondError(c, http.StatusNotFound, "not_found")
		return
	}

	var uiRow, emailRow *models.Request
	for _, r := range rows {
		switch r.Type {
		case models.RequestTypeEmail:
			emailRow = r
		case models.RequestTypeUI:
			uiRow = r
		}
	}

	var uiSummary, emailSummary *rowSummary
	if emailRow != nil {
		emailSummary = h.buildRowSummary(c, emailRow)
	}
	if uiRow != nil {
		uiSummary = h.buildRowSummary(c, uiRow)
	}

	c.JSON(http.StatusOK, gin.H{
		"target":            target,
		"normalized_target": target,
		"summary":           h.buildOverallSummary(uiRow, emailRow),
		"ui":                uiSummary,
		"email":             emailSummary,
	})
}

func (h *QueryHandler) buildOverallSummary(uiRow, emailRow *models.Request) gin.H {
	summary := gin.H{
		"has_ui":    uiRow != nil,
		"has_email": emailRow != nil,
	}

	switch {
	case uiRow == nil && emailRow == nil:
		summary["overall_status"] = "NONE"
	case uiRow == nil:
		summary["overall_status"] = emailRow.Status
	case emailRow == nil:
		summary["overall_status"] = uiRow.Status
	case uiRow.Status == emailRow.Status:
		summary["overall_status"] = uiRow.Status
	default:
		summary["overall_status"] = "MIXED"
	}

	var expiresMin *time.Time
	var lastCheckedMax *time.Time
	var nextCheckMin *time.Time
	for _, r := range []*models.Request{uiRow, emailRow} {
		if r == nil {
			continue
		}
		if expiresMin == nil || r.ExpiresAt.Before(*expiresMin) {
			e := r.ExpiresAt
			expiresMin = &e
		}
		if r.LastCheckedAt != nil && (lastCheckedMax == nil || r.LastCheckedAt.After(*lastCheckedMax)) {
			lastCheckedMax = r.LastCheckedAt
		}
		if r.NextCheckAt != nil && (nextCheckMin == nil || r.NextCheckAt.Before(*nextCheckMin)) {
			nextCheckMin = r.NextCheckAt
		}
	}
	if expiresMin != nil {
		summary["expires_at_min"] = expiresMin
	}
	if lastCheckedMax != nil {
		summary["last_checked_at_max"] = lastCheckedMax
	}
	if nextCheckMin != nil {
		summary["next_check_at_min"] = nextCheckMin
	}
	return summary
}

func (h *QueryHandler) buildRowSummary(c *gin.Context, row *models.Request) *rowSummary {
	return &rowSummary{
		Status:        row.Status,
		ID:            row.ID,
		CreatedAt:     row.CreatedAt,
		ExpiresAt:     row.ExpiresAt,
		LastCheckedAt: row.LastCheckedAt,
		NextCheckAt:   row.NextCheckAt,
		Missing:       h.resolveMissing(c, row),
	}
}

// resolveMissing returns the unified missing list: parsed persisted result
// when present, else an opportunistic debounced live check, else the
// synthetic fallback — always exactly one entry for CNAME/MX/SPF/DMARC, in
// that order, with DKIM included when known.
func (h *QueryHandler) resolveMissing(c *gin.Context, row *models.Request) []models.MissingEntry {
	parsed := h.parsePersisted(row)
	if parsed != nil {
		return h.unify(parsed)
	}

	if live := h.maybeLiveCheck(c, row); live != nil {
		return h.unify(live)
	}

	return h.unify(nil)
}

func (h *QueryHandler) parsePersisted(row *models.Request) map[string]models.MissingEntry {
	if row.LastCheckResultJSON == nil || *row.LastCheckResultJSON == "" {
		return nil
	}
	var result models.CheckResult
	if err := json.Unmarshal([]byte(*row.LastCheckResultJSON), &result); err != nil {
		h.logger.Warn(context.Background(), "parse persisted check result", logging.Fields{"target": row.Target, "error": err.Error()})
		return nil
	}
	out := make(map[string]models.MissingEntry, len(result.Missing))
	for _, m := range result.Missing {
		if m.Type == "" {
			m.Type = recordTypeForKey(m.Key)
		}
		out[m.Key] = m
	}
	return out
}

func recordTypeForKey(key string) string {
	switch key {
	case models.KeyCNAME, models.KeyDKIM:
		return "CNAME"
	case models.KeyMX:
		return "MX"
	case models.KeySPF, models.KeyDMARC:
		return "TXT"
	default:
		return ""
	}
}

// maybeLiveCheck runs validator.Check for row's target if the debounce
// window (persisted last_checked_at and the in-memory lastRun map) allows
// it, persisting the outcome when the row is still PENDING.
func (h *QueryHandler) maybeLiveCheck(c *gin.Context, row *models.Request) map[string]models.MissingEntry {
	key := row.Key()
	now := time.Now()

	h.mu.Lock()
	if len(h.lastRun) > debounceGCThreshold {
		h.sweepLocked(now)
	}
	last, ran := h.lastRun[key]
	throttledInMemory := ran && now.Sub(last) < h.minInterval
	h.mu.Unlock()

	throttledPersisted := row.LastCheckedAt != nil && now.Sub(*row.LastCheckedAt) < h.minInterval
	if throttledInMemory || throttledPersisted {
		return nil
	}

	h.mu.Lock()
	h.lastRun[key] = now
	h.mu.Unlock()

	ctx := c.Request.Context()
	result, err := h.validator.Check(ctx, row.Target)
	if err != nil {
		h.logger.Warn(ctx, "read-only live check failed", logging.Fields{"target": row.Target, "error": err.Error()})
		return nil
	}

	if row.Status == models.StatusPending {
		payload, perr := validation.BuildResultPayload(result, h.resultMaxBytes)
		if perr == nil {
			if _, uerr := h.store.UpdateCheckResult(ctx, row.ID, now.UTC(), now.UTC(), payload, nil); uerr != nil {
				h.logger.Error(ctx, "persist read-only check result", uerr, logging.Fields{"target": row.Target})
			}
		}
	}

	out := make(map[string]models.MissingEntry, len(result.Missing))
	for _, m := range result.Missing {
		out[m.Key] = m
	}
	return out
}

func (h *QueryHandler) sweepLocked(now time.Time) {
	cutoff := 2 * h.minInterval
	for key, t := range h.lastRun {
		if now.Sub(t) > cutoff {
			delete(h.lastRun, key)
		}
	}
}

// unify guarantees the response's missing list always has exactly one
// entry for CNAME, MX, SPF, DMARC (in that order), plus DKIM when known,
// falling back to synthetic expected-vs-nothing-found entries for any key
// the source map omits.
func (h *QueryHandler) unify(source map[string]models.MissingEntry) []models.MissingEntry {
	out := make([]models.MissingEntry, 0, len(models.OrderedKeys)+1)
	for _, key := range models.OrderedKeys {
		if source != nil {
			if entry, ok := source[key]; ok {
				out = append(out, entry)
				continue
			}
		}
		out = append(out, h.synthesize(key))
	}
	if source != nil {
		if entry, ok := source[models.KeyDKIM]; ok {
			out = append(out, entry)
		}
	}
	return out
}

func (h *QueryHandler) synthesize(key string) models.MissingEntry {
	switch key {
	case models.KeyCNAME:
		return models.MissingEntry{Key: key, Type: "CNAME", Expected: h.profile.CNAMEExpected, Found: []string{}, OK: false}
	case models.KeyMX:
		return models.MissingEntry{Key: key, Type: "MX", Expected: h.profile.MXExpectedHost, Found: []string{}, OK: false}
	case models.KeySPF:
		return models.MissingEntry{Key: key, Type: "TXT", Expected: h.profile.SPFExpected, Found: []string{}, OK: false}
	case models.KeyDMARC:
		return models.MissingEntry{Key: key, Type: "TXT", Expected: h.profile.DMARCExpected, Found: []string{}, OK: false}
	case models.KeyDKIM:
		return models.MissingEntry{Key: key, Type: "CNAME", Expected: h.profile.DKIMCNAMEExpected, Found: []string{}, OK: false}
	default:
		return models.MissingEntry{Key: key, Found: []string{}, OK: false}
	}
}
