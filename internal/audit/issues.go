package audit

import "sort"

const maxTopIssues = 3

type issueCandidate struct {
	priority int // lower is more urgent
	text     string
}

// TopIssues inspects the resolved probe outputs and produces up to three
// plain-English issues, most important first. Every threshold is evaluated
// independently, candidates sort ascending by priority, and ties keep
// encounter order. Pure function; safe to call with any subset of outputs nil.
func TopIssues(pages *PageScores, headers *HeaderScan, https *HTTPSCheck) []string {
	var candidates []issueCandidate
	add := func(priority int, text string) {
		candidates = append(candidates, issueCandidate{priority, text})
	}

	if pages != nil {
		if pages.Performance < 50 {
			add(1, "Your site loads slowly on mobile devices, which drives visitors away before the page appears.")
		} else if pages.Performance < 70 {
			add(3, "Your site has below average speed on mobile; faster pages keep more visitors engaged.")
		}
		if pages.LCPMillis > 4000 {
			add(2, "The largest element on your page takes over 4 seconds to appear on mobile connections.")
		}
		if pages.CLS > 0.25 {
			add(4, "Content shifts around while the page loads, which makes tapping links frustrating.")
		}
		if pages.Accessibility < 70 {
			add(2, "Accessibility problems make your site hard to use for visitors with assistive technology.")
		}
		if pages.SEO < 70 {
			add(1, "Search engines have trouble understanding your site, which hurts your ranking.")
		}
		if pages.BestPractices < 70 {
			add(4, "Your site is missing several modern web best practices.")
		}
	}
	if headers != nil && len(headers.HeadersMissing) > 2 {
		add(3, "Several recommended security headers are missing, leaving visitors more exposed to attacks.")
	}
	if https != nil && !https.IsHTTPS {
		add(1, "Your site is not served over HTTPS; browsers warn visitors that it is not secure.")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority < candidates[j].priority
	})
	if len(candidates) > maxTopIssues {
		candidates = candidates[:maxTopIssues]
	}
	issues := make([]string, 0, len(candidates))
	for _, c := range candidates {
		issues = append(issues, c.text)
	}
	return issues
}
