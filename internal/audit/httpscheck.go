package audit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const httpsCheckTimeout = 10 * time.Second

// HTTPSCheckProbe issues a HEAD request to the plain-HTTP form of the URL
// with redirects disabled and inspects the Location header.
//
// NOTE the inversion: if the plaintext request fails outright (for example
// the origin refuses port-80 connections entirely), that is treated as a
// SUCCESS with {IsHTTPS: true, RedirectsToHTTPS: false}. An unreachable HTTP
// endpoint is evidence of HTTPS-only deployment, not a broken site. This is
// a deliberate product decision; do not "fix" it into a probe failure.
type HTTPSCheckProbe struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPSCheckProbe(timeout time.Duration) *HTTPSCheckProbe {
	if timeout <= 0 {
		timeout = httpsCheckTimeout
	}
	return &HTTPSCheckProbe{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Timeout: timeout,
	}
}

func (p *HTTPSCheckProbe) Name() string { return "https-redirect" }

func (p *HTTPSCheckProbe) Run(ctx context.Context, target string) (*Outcome, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = httpsCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The probe receives the user's original URL so an explicit http:// is
	// still visible; a scheme-less URL counts as HTTPS, matching the
	// normalizer's https default.
	t := strings.TrimSpace(target)
	lower := strings.ToLower(t)
	isHTTPS := !strings.HasPrefix(lower, "http://")
	if !strings.Contains(lower, "://") {
		t = "https://" + t
	}
	plain := "http://" + t[strings.Index(t, "://")+3:]

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, plain, nil)
	if err != nil {
		return nil, probeErrf(p.Name(), "build request: %v", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		// plaintext endpoint unreachable: HTTPS-only deployment, see note above
		return &Outcome{HTTPS: &HTTPSCheck{IsHTTPS: true, RedirectsToHTTPS: false}}, nil
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	return &Outcome{HTTPS: &HTTPSCheck{
		IsHTTPS:          isHTTPS,
		RedirectsToHTTPS: strings.HasPrefix(location, "https://"),
	}}, nil
}

var (
	_ Probe = (*HTTPSCheckProbe)(nil)
	_ Probe = (*HeaderScanProbe)(nil)
)
