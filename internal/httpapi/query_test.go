package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/validation"
)

func newTestQueryHandler(fs *fakeStore, fv *fakeValidator, token string, minInterval time.Duration) *QueryHandler {
	profile := validation.Profile{
		CNAMEExpected:  "target.example.net",
		MXExpectedHost: "mx.example.net",
		SPFExpected:    "v=spf1 include:example.net ~all",
		DMARCExpected:  "v=DMARC1; p=reject",
	}
	return NewQueryHandler(fs, fv, profile, logging.New(logging.LevelError), token, minInterval, 20000)
}

func TestGetCheckDNS_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fs := newFakeStore()
	fv := &fakeValidator{result: &models.CheckResult{OK: true}}
	h := newTestQueryHandler(fs, fv, "", time.Minute)

	router := gin.New()
	router.GET("/api/checkdns/:target", h.GetCheckDNS)

	req := httptest.NewRequest(http.MethodGet, "/api/checkdns/missing.example", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCheckDNS_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fs := newFakeStore()
	fv := &fakeValidator{result: &models.CheckResult{OK: true}}
	h := newTestQueryHandler(fs, fv, "secret-token", time.Minute)

	router := gin.New()
	router.GET("/api/checkdns/:target", h.GetCheckDNS)

	req := httptest.NewRequest(http.MethodGet, "/api/checkdns/anything.example", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCheckDNS_UsesPersistedResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fs := newFakeStore()
	fv := &fakeValidator{result: &models.CheckResult{OK: true}}

	raw, err := json.Marshal(models.CheckResult{
		OK: true,
		Missing: []models.MissingEntry{
			{Key: models.KeyCNAME, Type: "CNAME", Expected: "target.example.net", Found: []string{"target.example.net"}, OK: true},
			{Key: models.KeyMX, Type: "MX", Expected: "mx.example.net", Found: []string{"mx.example.net"}, OK: true},
			{Key: models.KeySPF, Type: "TXT", Expected: "v=spf1 include:example.net ~all", Found: []string{"v=spf1 include:example.net ~all"}, OK: true},
			{Key: models.KeyDMARC, Type: "TXT", Expected: "v=DMARC1; p=reject", Found: []string{"v=DMARC1; p=reject"}, OK: true},
		},
	})
	require.NoError(t, err)
	resultJSON := string(raw)

	row := &models.Request{ID: 1, Target: "ready.example", Type: models.RequestTypeEmail, Status: models.StatusActive, LastCheckResultJSON: &resultJSON, ExpiresAt: time.Now().Add(time.Hour)}
	fs.rows[row.ID] = row
	fs.byTarget["ready.example"] = []*models.Request{row}

	h := newTestQueryHandler(fs, fv, "", time.Minute)

	router := gin.New()
	router.GET("/api/checkdns/:target", h.GetCheckDNS)

	req := httptest.NewRequest(http.MethodGet, "/api/checkdns/ready.example", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	email := body["email"].(map[string]interface{})
	missing := email["missing"].([]interface{})
	assert.Len(t, missing, 4)
}

func TestGetCheckDNS_SynthesizesMissingForPendingRow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fs := newFakeStore()
	fv := &fakeValidator{err: assertAnError{}}

	row := &models.Request{ID: 2, Target: "unchecked.example", Type: models.RequestTypeEmail, Status: models.StatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	fs.rows[row.ID] = row
	fs.byTarget["unchecked.example"] = []*models.Request{row}

	h := newTestQueryHandler(fs, fv, "", time.Minute)

	router := gin.New()
	router.GET("/api/checkdns/:target", h.GetCheckDNS)

	req := httptest.NewRequest(http.MethodGet, "/api/checkdns/unchecked.example", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	email := body["email"].(map[string]interface{})
	missing := email["missing"].([]interface{})
	require.Len(t, missing, 4)
	first := missing[0].(map[string]interface{})
	assert.Equal(t, models.KeyCNAME, first["key"])
}

type assertAnError struct{}

func (assertAnError) Error() string { return "resolver unavailable" }
