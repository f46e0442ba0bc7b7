package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"
)

const pagespeedTimeout = 45 * time.Second

// PageSpeedProbe runs the Lighthouse-class check: one request to an external
// page-analysis API asking for all four categories under the mobile strategy.
type PageSpeedProbe struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Timeout time.Duration
}

func NewPageSpeedProbe(baseURL, apiKey string, timeout time.Duration) *PageSpeedProbe {
	if timeout <= 0 {
		timeout = pagespeedTimeout
	}
	return &PageSpeedProbe{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

func (p *PageSpeedProbe) Name() string { return "pagespeed" }

type pagespeedResponse struct {
	LighthouseResult struct {
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

func (p *PageSpeedProbe) Run(ctx context.Context, target string) (*Outcome, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = pagespeedTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("url", target)
	q.Set("strategy", "mobile")
	q["category"] = []string{"performance", "accessibility", "seo", "best-practices"}
	if p.APIKey != "" {
		q.Set("key", p.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, probeErrf(p.Name(), "build request: %v", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, probeErrf(p.Name(), "timed out after %s", timeout)
		}
		return nil, probeErrf(p.Name(), "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, probeErrf(p.Name(), "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, probeErrf(p.Name(), "read body: %v", err)
	}

	var parsed pagespeedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, probeErrf(p.Name(), "malformed response: %v", err)
	}

	lr := parsed.LighthouseResult
	scores := &PageScores{
		Performance:   categoryScore(lr.Categories, "performance"),
		Accessibility: categoryScore(lr.Categories, "accessibility"),
		SEO:           categoryScore(lr.Categories, "seo"),
		BestPractices: categoryScore(lr.Categories, "best-practices"),
		LCPMillis:     lr.Audits["largest-contentful-paint"].NumericValue,
		MaxFID:        lr.Audits["max-potential-fid"].NumericValue,
		CLS:           lr.Audits["cumulative-layout-shift"].NumericValue,
		FCPMillis:     lr.Audits["first-contentful-paint"].NumericValue,
	}
	return &Outcome{Pages: scores}, nil
}

// categoryScore rescales a 0-1 fractional score to 0-100. A category absent
// from a malformed response scores 0 rather than failing the whole probe.
func categoryScore(categories map[string]struct {
	Score *float64 `json:"score"`
}, name string) int {
	cat, ok := categories[name]
	if !ok || cat.Score == nil {
		return 0
	}
	return int(math.Round(*cat.Score * 100))
}

var _ Probe = (*PageSpeedProbe)(nil)
