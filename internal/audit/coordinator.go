package audit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightforge/siteaudit/internal/database"
)

// StatusEvent is pushed to subscribed clients whenever an audit changes
// state. Done marks the terminal event; no further events follow it.
type StatusEvent struct {
	AuditID      string    `json:"audit_id"`
	Status       string    `json:"status"`
	OverallGrade string    `json:"overall_grade,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Done         bool      `json:"done,omitempty"`
}

// Broadcaster sends status events to connected clients.
type Broadcaster interface {
	Broadcast(auditID string, event StatusEvent)
}

// StartResult is what the audit-start call returns: the id to poll and
// whether an existing record inside the dedup window was reused.
type StartResult struct {
	AuditID string `json:"auditId"`
	Cached  bool   `json:"cached"`
}

const defaultDedupWindow = 24 * time.Hour

// Coordinator owns the audit lifecycle: atomic dedup-or-create on start, a
// worker pool consuming audit ids from a queue, concurrent fan-out over the
// three probes, and the single terminal write.
type Coordinator struct {
	db          *database.DB
	pages       Probe
	headers     Probe
	https       Probe
	broadcaster Broadcaster
	dedupWindow time.Duration

	mu    sync.Mutex // serializes the dedup check-then-create
	queue chan string
}

func NewCoordinator(db *database.DB, pages, headers, https Probe, broadcaster Broadcaster, dedupWindow time.Duration) *Coordinator {
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindow
	}
	return &Coordinator{
		db:          db,
		pages:       pages,
		headers:     headers,
		https:       https,
		broadcaster: broadcaster,
		dedupWindow: dedupWindow,
		queue:       make(chan string, 128),
	}
}

// StartAudit normalizes the URL, reuses the most recent non-failed audit for
// the same key inside the dedup window, or creates a pending record and
// enqueues it for the workers. The check-then-create is serialized so a rapid
// double-submit of the same URL cannot create two audits; the enqueue happens
// after the mutex is released so a full queue never stalls other callers.
func (c *Coordinator) StartAudit(rawURL string) (*StartResult, error) {
	key := NormalizeURL(rawURL)

	a, cached, err := c.dedupOrCreate(rawURL, key)
	if err != nil {
		return nil, err
	}
	if cached {
		return &StartResult{AuditID: a.ID, Cached: true}, nil
	}

	c.enqueue(a.ID)
	return &StartResult{AuditID: a.ID, Cached: false}, nil
}

func (c *Coordinator) dedupOrCreate(rawURL, key string) (*database.Audit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.db.LatestAuditByNormalizedURL(key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil &&
		existing.Status != database.StatusFailed &&
		time.Since(existing.CreatedAt) < c.dedupWindow {
		return existing, true, nil
	}

	a := &database.Audit{
		ID:            uuid.NewString(),
		URL:           rawURL,
		NormalizedURL: key,
		Status:        database.StatusPending,
	}
	if err := c.db.CreateAudit(a); err != nil {
		return nil, false, err
	}
	return a, false, nil
}

// enqueue never blocks the caller. When the queue is full under a burst the
// send is handed to a goroutine; the audit is already persisted as pending,
// so it is also recoverable through the restart requeue path.
func (c *Coordinator) enqueue(id string) {
	select {
	case c.queue <- id:
	default:
		slog.Warn("audit queue full, deferring dispatch", "audit_id", id)
		go func() { c.queue <- id }()
	}
}

// Run starts the worker pool and blocks until ctx is cancelled. Audits left
// unfinished by a previous process are re-enqueued first so a restart picks
// them back up.
func (c *Coordinator) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}

	if ids, err := c.db.ListUnfinishedAuditIDs(); err != nil {
		slog.Error("requeue unfinished audits", "error", err)
	} else {
		for _, id := range ids {
			c.enqueue(id)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-c.queue:
					c.process(ctx, id)
				}
			}
		}()
	}
	wg.Wait()
}

// probeOutcome is one settled probe: either an Outcome or an error, never
// both, never neither.
type probeOutcome struct {
	out *Outcome
	err error
}

func (c *Coordinator) process(ctx context.Context, auditID string) {
	a, err := c.db.GetAudit(auditID)
	if err != nil {
		slog.Error("load audit", "audit_id", auditID, "error", err)
		return
	}
	if a == nil || database.IsTerminal(a.Status) {
		return
	}

	if err := c.db.MarkAuditRunning(a.ID); err != nil {
		slog.Error("mark audit running", "audit_id", a.ID, "error", err)
		return
	}
	c.broadcaster.Broadcast(a.ID, StatusEvent{
		AuditID: a.ID, Status: database.StatusRunning, Timestamp: time.Now(),
	})
	slog.Info("audit started", "audit_id", a.ID, "url", a.NormalizedURL)

	// Settle-all fan-out: every probe runs to completion with its own
	// deadline; one hung service can only ever stall its own slot.
	var wg sync.WaitGroup
	settle := func(p Probe, target string, slot *probeOutcome) {
		defer wg.Done()
		out, err := p.Run(ctx, target)
		*slot = probeOutcome{out: out, err: err}
	}
	var pages, headers, https probeOutcome
	wg.Add(3)
	go settle(c.pages, a.NormalizedURL, &pages)
	go settle(c.headers, a.NormalizedURL, &headers)
	go settle(c.https, a.URL, &https)
	wg.Wait()

	c.assemble(a, pages, headers, https)

	if err := c.db.FinishAudit(a); err != nil {
		slog.Error("finish audit", "audit_id", a.ID, "error", err)
		return
	}

	grade := ""
	if a.OverallGrade != nil {
		grade = *a.OverallGrade
	}
	slog.Info("audit finished", "audit_id", a.ID, "status", a.Status, "overall_grade", grade)
	c.broadcaster.Broadcast(a.ID, StatusEvent{
		AuditID: a.ID, Status: a.Status, OverallGrade: grade,
		Timestamp: time.Now(), Done: true,
	})
}

// assemble folds the three settled probes into the audit's terminal state:
// category scores and grades, the security boost, the overall grade, the
// issue list, the error list, and the terminal status.
func (c *Coordinator) assemble(a *database.Audit, pages, headers, https probeOutcome) {
	var pageScores *PageScores
	var headerScan *HeaderScan
	var httpsCheck *HTTPSCheck

	if pages.err == nil && pages.out != nil {
		pageScores = pages.out.Pages
	}
	if headers.err == nil && headers.out != nil {
		headerScan = headers.out.Headers
	}
	if https.err == nil && https.out != nil {
		httpsCheck = https.out.HTTPS
	}

	if pageScores != nil {
		a.Performance = &database.CategoryResult{
			Score: pageScores.Performance,
			Grade: ScoreToGrade(pageScores.Performance),
			Metrics: map[string]float64{
				"largestContentfulPaint": pageScores.LCPMillis,
				"maxPotentialFid":        pageScores.MaxFID,
				"cumulativeLayoutShift":  pageScores.CLS,
				"firstContentfulPaint":   pageScores.FCPMillis,
			},
		}
		a.Accessibility = &database.CategoryResult{
			Score: pageScores.Accessibility, Grade: ScoreToGrade(pageScores.Accessibility),
		}
		a.SEO = &database.CategoryResult{
			Score: pageScores.SEO, Grade: ScoreToGrade(pageScores.SEO),
		}
		a.BestPractices = &database.CategoryResult{
			Score: pageScores.BestPractices, Grade: ScoreToGrade(pageScores.BestPractices),
		}
	}

	if headerScan != nil {
		score := headerScan.Score
		// An HTTP endpoint that upgrades clients to HTTPS earns a bonus on
		// top of whatever headers are present.
		if httpsCheck != nil && httpsCheck.RedirectsToHTTPS {
			score = int(math.Min(float64(score+10), 100))
		}
		a.Security = &database.SecurityResult{
			Score:          score,
			Grade:          ScoreToGrade(score),
			HeadersPresent: headerScan.HeadersPresent,
			HeadersMissing: headerScan.HeadersMissing,
		}
	}

	grades := map[string]*string{}
	if a.Performance != nil {
		grades["performance"] = &a.Performance.Grade
	}
	if a.Accessibility != nil {
		grades["accessibility"] = &a.Accessibility.Grade
	}
	if a.SEO != nil {
		grades["seo"] = &a.SEO.Grade
	}
	if a.BestPractices != nil {
		grades["bestPractices"] = &a.BestPractices.Grade
	}
	if a.Security != nil {
		grades["security"] = &a.Security.Grade
	}
	if overall := OverallGrade(grades); overall != "" {
		a.OverallGrade = &overall
	}

	a.TopIssues = TopIssues(pageScores, headerScan, httpsCheck)

	a.Errors = []string{}
	for _, err := range []error{pages.err, headers.err, https.err} {
		if err != nil {
			a.Errors = append(a.Errors, err.Error())
		}
	}

	// Terminal status depends only on the two primary probes; the HTTPS
	// check influences the security score but never the status.
	switch {
	case pages.err == nil && headers.err == nil:
		a.Status = database.StatusComplete
	case pages.err == nil || headers.err == nil:
		a.Status = database.StatusPartial
	default:
		a.Status = database.StatusFailed
	}

	now := time.Now().UTC()
	a.CompletedAt = &now
}
