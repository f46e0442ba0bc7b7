package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightforge/siteaudit/internal/database"
)

type stubProbe struct {
	name string
	out  *Outcome
	err  error
}

func (s stubProbe) Name() string { return s.name }

func (s stubProbe) Run(ctx context.Context, url string) (*Outcome, error) {
	return s.out, s.err
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *recordingBroadcaster) Broadcast(auditID string, event StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingBroadcaster) all() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.events...)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func goodPages() stubProbe {
	return stubProbe{name: "pagespeed", out: &Outcome{Pages: &PageScores{
		Performance: 92, Accessibility: 85, SEO: 90, BestPractices: 95,
		LCPMillis: 2100, CLS: 0.05,
	}}}
}

func goodHeaders() stubProbe {
	return stubProbe{name: "security-headers", out: &Outcome{Headers: &HeaderScan{
		Score:          67,
		HeadersPresent: []string{"strict-transport-security"},
		HeadersMissing: []string{"content-security-policy"},
	}}}
}

func goodHTTPS(redirects bool) stubProbe {
	return stubProbe{name: "https-redirect", out: &Outcome{HTTPS: &HTTPSCheck{
		IsHTTPS: true, RedirectsToHTTPS: redirects,
	}}}
}

func failing(name string) stubProbe {
	return stubProbe{name: name, err: probeErrf(name, "timed out after 45s")}
}

func newTestCoordinator(t *testing.T, db *database.DB, pages, headers, https Probe) (*Coordinator, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	return NewCoordinator(db, pages, headers, https, b, 24*time.Hour), b
}

func startAndProcess(t *testing.T, c *Coordinator) *database.Audit {
	t.Helper()
	res, err := c.StartAudit("example.com")
	require.NoError(t, err)
	require.False(t, res.Cached)
	c.process(context.Background(), res.AuditID)
	a, err := c.db.GetAudit(res.AuditID)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}

func TestCoordinatorCompleteRun(t *testing.T) {
	db := newTestDB(t)
	c, b := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	a := startAndProcess(t, c)

	assert.Equal(t, database.StatusComplete, a.Status)
	require.NotNil(t, a.Performance)
	assert.Equal(t, 92, a.Performance.Score)
	assert.Equal(t, "A", a.Performance.Grade)
	assert.Equal(t, 2100.0, a.Performance.Metrics["largestContentfulPaint"])
	require.NotNil(t, a.Security)
	assert.Equal(t, 67, a.Security.Score)
	assert.Equal(t, "F", a.Security.Grade)
	require.NotNil(t, a.OverallGrade)
	assert.Empty(t, a.Errors)
	require.NotNil(t, a.CompletedAt)

	events := b.all()
	require.Len(t, events, 2)
	assert.Equal(t, database.StatusRunning, events[0].Status)
	assert.Equal(t, database.StatusComplete, events[1].Status)
	assert.True(t, events[1].Done)
}

func TestCoordinatorSecurityBoostOnHTTPSRedirect(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(true))

	a := startAndProcess(t, c)

	require.NotNil(t, a.Security)
	assert.Equal(t, 77, a.Security.Score, "67 + 10 redirect bonus")
	assert.Equal(t, "C", a.Security.Grade, "grade recomputed after boost")
}

func TestCoordinatorSecurityBoostCappedAt100(t *testing.T) {
	db := newTestDB(t)
	headers := stubProbe{name: "security-headers", out: &Outcome{Headers: &HeaderScan{Score: 95}}}
	c, _ := newTestCoordinator(t, db, goodPages(), headers, goodHTTPS(true))

	a := startAndProcess(t, c)
	assert.Equal(t, 100, a.Security.Score)
}

func TestCoordinatorPartialWhenPagesFails(t *testing.T) {
	db := newTestDB(t)
	headers := stubProbe{name: "security-headers", out: &Outcome{Headers: &HeaderScan{
		Score: 40, HeadersMissing: []string{"a", "b", "c", "d"},
	}}}
	c, _ := newTestCoordinator(t, db, failing("pagespeed"), headers, goodHTTPS(false))

	a := startAndProcess(t, c)

	assert.Equal(t, database.StatusPartial, a.Status)
	assert.Nil(t, a.Performance)
	assert.Nil(t, a.Accessibility)
	assert.Nil(t, a.SEO)
	assert.Nil(t, a.BestPractices)
	require.NotNil(t, a.Security)

	// overall grade derives from security alone
	require.NotNil(t, a.OverallGrade)
	assert.Equal(t, "F", *a.OverallGrade)

	require.Len(t, a.Errors, 1)
	assert.Contains(t, a.Errors[0], "timed out")
}

func TestCoordinatorPartialWhenHeadersFails(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), failing("security-headers"), goodHTTPS(false))

	a := startAndProcess(t, c)

	assert.Equal(t, database.StatusPartial, a.Status)
	assert.Nil(t, a.Security)
	require.NotNil(t, a.Performance)
	require.Len(t, a.Errors, 1)
}

func TestCoordinatorFailedWhenBothPrimariesFail(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, failing("pagespeed"), failing("security-headers"), goodHTTPS(true))

	a := startAndProcess(t, c)

	assert.Equal(t, database.StatusFailed, a.Status)
	assert.Nil(t, a.OverallGrade)
	assert.Len(t, a.Errors, 2)
	require.NotNil(t, a.CompletedAt)
}

func TestCoordinatorHTTPSFailureNeverChangesStatus(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), goodHeaders(), failing("https-redirect"))

	a := startAndProcess(t, c)

	assert.Equal(t, database.StatusComplete, a.Status, "https probe outcome does not gate completion")
	require.Len(t, a.Errors, 1)
	assert.Equal(t, 67, a.Security.Score, "no boost without a redirect signal")
}

func TestCoordinatorDedupReuse(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	first, err := c.StartAudit("http://Example.com/")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.StartAudit("https://www.example.com")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.AuditID, second.AuditID)
}

func TestCoordinatorDedupSkipsFailedAudits(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, failing("pagespeed"), failing("security-headers"), goodHTTPS(false))

	first, err := c.StartAudit("example.com")
	require.NoError(t, err)
	c.process(context.Background(), first.AuditID)

	second, err := c.StartAudit("example.com")
	require.NoError(t, err)
	assert.False(t, second.Cached, "failed audits are excluded from reuse")
	assert.NotEqual(t, first.AuditID, second.AuditID)
}

func TestCoordinatorConcurrentDoubleSubmit(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	const n = 8
	results := make([]*StartResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.StartAudit("example.com/")
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	for _, res := range results {
		assert.Equal(t, results[0].AuditID, res.AuditID)
		if !res.Cached {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one submission creates the audit")
}

func TestCoordinatorTerminalAuditNotReprocessed(t *testing.T) {
	db := newTestDB(t)
	c, b := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	a := startAndProcess(t, c)
	firstCompleted := *a.CompletedAt

	c.process(context.Background(), a.ID)

	again, err := db.GetAudit(a.ID)
	require.NoError(t, err)
	assert.Equal(t, firstCompleted.Unix(), again.CompletedAt.Unix())
	assert.Len(t, b.all(), 2, "no extra events for a terminal audit")
}

func TestCoordinatorRunDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	c, b := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 2)
		close(done)
	}()

	res, err := c.StartAudit("example.com")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, err := db.GetAudit(res.AuditID)
		return err == nil && a != nil && database.IsTerminal(a.Status)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop on cancel")
	}

	events := b.all()
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Done)
}

func TestCoordinatorStartAuditNotBlockedByFullQueue(t *testing.T) {
	db := newTestDB(t)
	c, _ := newTestCoordinator(t, db, goodPages(), goodHeaders(), goodHTTPS(false))

	// No worker is draining; saturate the queue.
	for i := 0; i < cap(c.queue); i++ {
		c.queue <- "filler"
	}

	type startOutcome struct {
		res *StartResult
		err error
	}
	started := make(chan startOutcome, 1)
	go func() {
		res, err := c.StartAudit("example.com")
		started <- startOutcome{res, err}
	}()

	var first startOutcome
	select {
	case first = <-started:
	case <-time.After(time.Second):
		t.Fatal("StartAudit blocked on a full queue")
	}
	require.NoError(t, first.err)
	assert.False(t, first.res.Cached)

	// A dedup hit for the same key must not stall behind the overflow either.
	cachedDone := make(chan startOutcome, 1)
	go func() {
		res, err := c.StartAudit("www.example.com")
		cachedDone <- startOutcome{res, err}
	}()
	select {
	case cached := <-cachedDone:
		require.NoError(t, cached.err)
		assert.True(t, cached.res.Cached)
		assert.Equal(t, first.res.AuditID, cached.res.AuditID)
	case <-time.After(time.Second):
		t.Fatal("dedup lookup blocked behind a full queue")
	}

	// Once the queue drains, the deferred dispatch delivers the audit id.
	for i := 0; i < cap(c.queue); i++ {
		<-c.queue
	}
	select {
	case id := <-c.queue:
		assert.Equal(t, first.res.AuditID, id)
	case <-time.After(time.Second):
		t.Fatal("overflowed audit was never dispatched")
	}
}
