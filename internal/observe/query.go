package observe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/vigil/internal/models"
)

// Select returns the observations matching q, preserving order
func Select(observations []models.Observation, q models.ObservationQuery) ([]models.Observation, error) {
	var re *regexp.Regexp
	if q.Pattern != "" {
		compiled, err := regexp.Compile(q.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid observation pattern %q: %w", q.Pattern, err)
		}
		re = compiled
	}

	matched := make([]models.Observation, 0)
	for _, obs := range observations {
		if q.Category != "" && obs.Category != q.Category {
			continue
		}
		if q.Direction != "" && obs.Direction != q.Direction {
			continue
		}
		if q.Type != "" && obs.Type != q.Type {
			continue
		}
		if q.Contains != "" && !strings.Contains(obs.Text, q.Contains) {
			continue
		}
		if re != nil && !re.MatchString(obs.Text) {
			continue
		}
		matched = append(matched, obs)
	}
	return matched, nil
}

// CountByType tallies WebSocket frames by their JSON "type" discriminator for one direction.
// Empty direction counts both.
func CountByType(observations []models.Observation, dir models.Direction) map[string]int {
	counts := make(map[string]int)
	for _, obs := range observations {
		if obs.Category != models.CategoryWebSocket || obs.Type == "" {
			continue
		}
		if dir != "" && obs.Direction != dir {
			continue
		}
		counts[obs.Type]++
	}
	return counts
}

// CountSatisfied reports whether n meets the query's count constraints.
// A query with no constraint requires at least one match.
func CountSatisfied(q models.ObservationQuery, n int) bool {
	if q.Count == nil && q.Min == nil && q.Max == nil {
		return n >= 1
	}
	if q.Count != nil && n != *q.Count {
		return false
	}
	if q.Min != nil && n < *q.Min {
		return false
	}
	if q.Max != nil && n > *q.Max {
		return false
	}
	return true
}

// CheckCount returns an *models.AssertionMismatchError when n does not satisfy q
func CheckCount(q models.ObservationQuery, n int) error {
	if CountSatisfied(q, n) {
		return nil
	}
	return &models.AssertionMismatchError{
		What:     "observations " + Describe(q),
		Expected: ExpectedCount(q),
		Actual:   fmt.Sprintf("count=%d", n),
	}
}

// ExpectedCount renders the count constraint of q
func ExpectedCount(q models.ObservationQuery) string {
	parts := make([]string, 0, 3)
	if q.Count != nil {
		parts = append(parts, fmt.Sprintf("count=%d", *q.Count))
	}
	if q.Min != nil {
		parts = append(parts, fmt.Sprintf("min=%d", *q.Min))
	}
	if q.Max != nil {
		parts = append(parts, fmt.Sprintf("max=%d", *q.Max))
	}
	if len(parts) == 0 {
		return "count>=1"
	}
	return strings.Join(parts, " ")
}

// Describe renders the selection part of q for logs and reports
func Describe(q models.ObservationQuery) string {
	parts := make([]string, 0, 5)
	if q.Category != "" {
		parts = append(parts, "category="+string(q.Category))
	}
	if q.Direction != "" {
		parts = append(parts, "direction="+string(q.Direction))
	}
	if q.Type != "" {
		parts = append(parts, "type="+q.Type)
	}
	if q.Contains != "" {
		parts = append(parts, fmt.Sprintf("contains=%q", q.Contains))
	}
	if q.Pattern != "" {
		parts = append(parts, fmt.Sprintf("pattern=%q", q.Pattern))
	}
	if len(parts) == 0 {
		return "[any]"
	}
	return "[" + strings.Join(parts, " ") + "]"
}
