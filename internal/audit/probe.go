package audit

import (
	"context"
	"fmt"
)

// Probe is one independent check against an external assessment service.
// Implementations own their deadline, never panic, and convert every failure
// mode (network error, bad status, malformed body, deadline exceeded) into a
// *ProbeError so the coordinator can treat failure as data.
type Probe interface {
	Name() string
	Run(ctx context.Context, url string) (*Outcome, error)
}

// ProbeError is the typed failure a probe returns. Cause is a human-readable
// diagnostic that ends up in the audit's errors list verbatim.
type ProbeError struct {
	Probe string
	Cause string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Probe, e.Cause)
}

func probeErrf(probe, format string, args ...any) *ProbeError {
	return &ProbeError{Probe: probe, Cause: fmt.Sprintf(format, args...)}
}

// Outcome is the union of everything a probe can report. Exactly one of the
// three sections is set depending on which probe produced it.
type Outcome struct {
	Pages   *PageScores
	Headers *HeaderScan
	HTTPS   *HTTPSCheck
}

// PageScores holds the four Lighthouse category scores (rescaled to 0-100)
// plus the raw timing metrics the issue generator inspects.
type PageScores struct {
	Performance   int
	Accessibility int
	SEO           int
	BestPractices int

	LCPMillis float64 // largest-contentful-paint
	MaxFID    float64 // max-potential-first-input-delay
	CLS       float64 // cumulative-layout-shift
	FCPMillis float64 // first-contentful-paint
}

// HeaderScan holds the security-header check outcome.
type HeaderScan struct {
	Score          int
	HeadersPresent []string
	HeadersMissing []string
}

// HTTPSCheck reports whether the site is served over HTTPS and whether its
// plaintext endpoint upgrades clients.
type HTTPSCheck struct {
	IsHTTPS          bool
	RedirectsToHTTPS bool
}
