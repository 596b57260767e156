package observe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/vigil/internal/models"
)

// Filter is a compiled models.ObservationFilter
type Filter struct {
	categories map[models.ObservationCategory]bool
	contains   string
	pattern    *regexp.Regexp
}

// CompileFilter validates and compiles a capture filter
func CompileFilter(f models.ObservationFilter) (*Filter, error) {
	compiled := &Filter{contains: f.Contains}

	if len(f.Categories) > 0 {
		compiled.categories = make(map[models.ObservationCategory]bool, len(f.Categories))
		for _, c := range f.Categories {
			switch c {
			case models.CategoryConsole, models.CategoryPageError, models.CategoryRequestFailed, models.CategoryWebSocket:
				compiled.categories[c] = true
			default:
				return nil, fmt.Errorf("unknown observation category %q", c)
			}
		}
	}

	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid observation pattern %q: %w", f.Pattern, err)
		}
		compiled.pattern = re
	}

	return compiled, nil
}

// Match reports whether obs passes the filter. A nil filter matches everything.
func (f *Filter) Match(obs models.Observation) bool {
	if f == nil {
		return true
	}
	if f.categories != nil && !f.categories[obs.Category] {
		return false
	}
	if f.contains != "" && !strings.Contains(obs.Text, f.contains) {
		return false
	}
	if f.pattern != nil && !f.pattern.MatchString(obs.Text) {
		return false
	}
	return true
}
