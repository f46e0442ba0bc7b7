package audit

// Grade thresholds. The D band (50-69) is wider than the others on purpose:
// sites in that range get a "needs work" grade rather than an outright fail.
var gradeThresholds = []struct {
	Min   int
	Grade string
}{
	{90, "A"},
	{80, "B"},
	{70, "C"},
	{50, "D"},
}

// CategoryWeights is the relative importance of each category in the overall
// grade. Exported so tests and reports can reference the weighting directly.
var CategoryWeights = map[string]int{
	"performance":   3,
	"accessibility": 2,
	"seo":           2,
	"security":      2,
	"bestPractices": 1,
}

var gradePoints = map[string]float64{
	"A": 4, "B": 3, "C": 2, "D": 1, "F": 0,
}

// ScoreToGrade maps a 0-100 score to a letter grade.
func ScoreToGrade(score int) string {
	for _, t := range gradeThresholds {
		if score >= t.Min {
			return t.Grade
		}
	}
	return "F"
}

// OverallGrade computes a GPA-style weighted average of the present category
// grades. Absent categories (nil) are excluded from both numerator and
// denominator, not counted as zero. Returns "" when no category resolved.
func OverallGrade(grades map[string]*string) string {
	var points float64
	var weight int
	for category, grade := range grades {
		if grade == nil {
			continue
		}
		w := CategoryWeights[category]
		points += gradePoints[*grade] * float64(w)
		weight += w
	}
	if weight == 0 {
		return ""
	}
	gpa := points / float64(weight)
	switch {
	case gpa >= 3.5:
		return "A"
	case gpa >= 2.5:
		return "B"
	case gpa >= 1.5:
		return "C"
	case gpa >= 0.5:
		return "D"
	default:
		return "F"
	}
}
