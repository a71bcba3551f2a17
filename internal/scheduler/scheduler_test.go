package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fntelecomllc/dnsguard/internal/logging"
	"github.com/fntelecomllc/dnsguard/internal/mailer"
	"github.com/fntelecomllc/dnsguard/internal/models"
	"github.com/fntelecomllc/dnsguard/internal/observability"
	"github.com/fntelecomllc/dnsguard/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     map[int64]*models.Request
	activeIn map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int64]*models.Request{}, activeIn: map[string]bool{}}
}

func (f *fakeStore) InsertRequest(ctx context.Context, target string, t models.RequestType, expiresAt time.Time) (*models.Request, error) {
	return nil, nil
}
func (f *fakeStore) FindByTarget(ctx context.Context, target string) ([]*models.Request, error) {
	return nil, nil
}
func (f *fakeStore) FindByID(ctx context.Context, id int64) (*models.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}
func (f *fakeStore) FindPendingNotExpired(ctx context.Context) ([]*models.Request, error) {
	return nil, nil
}
func (f *fakeStore) FindLastCreatedByTargetType(ctx context.Context, target string, t models.RequestType) (*models.Request, error) {
	return nil, nil
}
func (f *fakeStore) UpdateCheckResult(ctx context.Context, id int64, now, nextCheckAt time.Time, resultJSON []byte, failReason *string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Status != models.StatusPending {
		return 0, nil
	}
	row.LastCheckedAt = &now
	row.NextCheckAt = &nextCheckAt
	if resultJSON != nil {
		s := string(resultJSON)
		row.LastCheckResultJSON = &s
	}
	row.FailReason = failReason
	return 1, nil
}
func (f *fakeStore) ConditionalTransition(ctx context.Context, id int64, target models.RequestStatus, fields store.TransitionFields) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Status != models.StatusPending {
		return 0, nil
	}
	row.Status = target
	if fields.ActivatedAt != nil {
		row.ActivatedAt = fields.ActivatedAt
	}
	if fields.FailReason != nil {
		row.FailReason = fields.FailReason
	}
	return 1, nil
}
func (f *fakeStore) InsertDomainActive(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeIn[name] = true
	return nil
}

type fakeValidator struct {
	mu sync.Mutex
	ok bool
}

func (v *fakeValidator) Check(ctx context.Context, target string) (*models.CheckResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &models.CheckResult{OK: v.ok, Snapshot: models.Snapshot{}}, nil
}

func testScheduler(t *testing.T, fs *fakeStore, fv *fakeValidator) *Scheduler {
	t.Helper()
	logger := logging.New(logging.LevelError)
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	return New(fs, fv, mailer.NoopNotifier{}, logger, metrics, Config{
		PollInterval:     30 * time.Millisecond,
		MaxActiveJobs:    2,
		JobMaxAge:        time.Hour,
		StartupJitterMax: 0,
		ResultMaxBytes:   20000,
	})
}

func TestScheduler_PromotesOnOK(t *testing.T) {
	fs := newFakeStore()
	expiresAt := time.Now().Add(time.Hour)
	fs.rows[1] = &models.Request{ID: 1, Target: "good.example", Type: models.RequestTypeEmail, Status: models.StatusPending, ExpiresAt: expiresAt}
	fv := &fakeValidator{ok: true}
	s := testScheduler(t, fs, fv)

	s.StartForRequest(fs.rows[1], 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fs.mu.Lock()
		status := fs.rows[1].Status
		fs.mu.Unlock()
		if status == models.StatusActive {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.rows[1].Status != models.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", fs.rows[1].Status)
	}
	if fs.rows[1].ActivatedAt == nil {
		t.Fatalf("expected activated_at to be set")
	}
	if !fs.activeIn["good.example"] {
		t.Fatalf("expected domain row inserted")
	}
	if s.ActiveCount() != 0 {
		t.Fatalf("expected job removed after promotion, active=%d", s.ActiveCount())
	}
}

func TestScheduler_ExpiresOnDeadline(t *testing.T) {
	fs := newFakeStore()
	fs.rows[2] = &models.Request{ID: 2, Target: "slow.example", Type: models.RequestTypeEmail, Status: models.StatusPending, ExpiresAt: time.Now().Add(-time.Second)}
	fv := &fakeValidator{ok: false}
	s := testScheduler(t, fs, fv)

	s.StartForRequest(fs.rows[2], 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fs.mu.Lock()
		status := fs.rows[2].Status
		fs.mu.Unlock()
		if status == models.StatusExpired {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.rows[2].Status != models.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", fs.rows[2].Status)
	}
	if fs.rows[2].FailReason == nil || *fs.rows[2].FailReason != "Request expired" {
		t.Fatalf("expected fail_reason set, got %v", fs.rows[2].FailReason)
	}
}

func TestScheduler_AdmissionCapAndQueue(t *testing.T) {
	fs := newFakeStore()
	for i := int64(1); i <= 3; i++ {
		fs.rows[i] = &models.Request{ID: i, Target: "queued" + string(rune('a'+i)) + ".example", Type: models.RequestTypeEmail, Status: models.StatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	}
	fv := &fakeValidator{ok: false}
	s := testScheduler(t, fs, fv)

	s.StartForRequest(fs.rows[1], time.Hour)
	s.StartForRequest(fs.rows[2], time.Hour)
	s.StartForRequest(fs.rows[3], time.Hour)

	if s.ActiveCount() != 2 {
		t.Fatalf("expected 2 active jobs at cap, got %d", s.ActiveCount())
	}
	s.Shutdown()
}
