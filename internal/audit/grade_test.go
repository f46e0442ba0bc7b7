package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreToGradeBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"},
		{89, "B"}, {80, "B"},
		{79, "C"}, {70, "C"},
		{69, "D"}, {50, "D"}, // the D band is deliberately 50-69
		{49, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScoreToGrade(tt.score), "score %d", tt.score)
	}
}

func TestScoreToGradeMonotonic(t *testing.T) {
	points := map[string]int{"F": 0, "D": 1, "C": 2, "B": 3, "A": 4}
	prev := -1
	for s := 0; s <= 100; s++ {
		cur := points[ScoreToGrade(s)]
		assert.GreaterOrEqual(t, cur, prev, "grade regressed at score %d", s)
		prev = cur
	}
}

func TestCategoryWeights(t *testing.T) {
	assert.Equal(t, map[string]int{
		"performance":   3,
		"accessibility": 2,
		"seo":           2,
		"security":      2,
		"bestPractices": 1,
	}, CategoryWeights)
}

func str(s string) *string { return &s }

func TestOverallGradeExcludesAbsentCategories(t *testing.T) {
	// performance=A(w3), seo=C(w2): GPA = (4*3 + 2*2) / 5 = 3.2 -> B
	got := OverallGrade(map[string]*string{
		"performance":   str("A"),
		"accessibility": nil,
		"seo":           str("C"),
		"security":      nil,
		"bestPractices": nil,
	})
	assert.Equal(t, "B", got)
}

func TestOverallGradeWeightedMean(t *testing.T) {
	// performance=A, accessibility=D, security=D, bestPractices=A, seo absent:
	// GPA = (4*3 + 1*2 + 1*2 + 4*1) / 8 = 2.25 -> C
	got := OverallGrade(map[string]*string{
		"performance":   str("A"),
		"accessibility": str("D"),
		"security":      str("D"),
		"bestPractices": str("A"),
	})
	assert.Equal(t, "C", got)
}

func TestOverallGradeSingleCategory(t *testing.T) {
	assert.Equal(t, "F", OverallGrade(map[string]*string{"security": str("F")}))
	assert.Equal(t, "A", OverallGrade(map[string]*string{"performance": str("A")}))
}

func TestOverallGradeEmpty(t *testing.T) {
	assert.Equal(t, "", OverallGrade(nil))
	assert.Equal(t, "", OverallGrade(map[string]*string{"performance": nil}))
}

func TestOverallGradeMidpointThresholds(t *testing.T) {
	// two equal-weight categories produce averaged GPAs right on midpoints
	tests := []struct {
		a, b string
		want string
	}{
		{"A", "B", "A"}, // 3.5
		{"B", "C", "B"}, // 2.5
		{"C", "D", "C"}, // 1.5
		{"D", "F", "D"}, // 0.5
		{"F", "F", "F"},
	}
	for _, tt := range tests {
		got := OverallGrade(map[string]*string{"seo": str(tt.a), "security": str(tt.b)})
		assert.Equal(t, tt.want, got, "%s+%s", tt.a, tt.b)
	}
}
