package readiness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/dozer/internal/errors"
)

// StatusRange is an inclusive range of HTTP status codes.
type StatusRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// StatusRanges is an ordered list of ranges; a code matches if any range
// contains it.
type StatusRanges []StatusRange

// ParseStatusRanges parses "200-299,404" style lists. Single codes become
// one-element ranges.
func ParseStatusRanges(s string) (StatusRanges, error) {
	var out StatusRanges
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, invalidRange(part, err)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, invalidRange(part, err)
			}
		}
		if start < 100 || end > 599 || start > end {
			return nil, invalidRange(part, nil)
		}
		out = append(out, StatusRange{Start: start, End: end})
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrConfig,
			"No success status codes given",
			"Example: 200-299,404")
	}
	return out, nil
}

func invalidRange(part string, cause error) error {
	return errors.WrapWithCode(cause, errors.ErrConfig,
		fmt.Sprintf("'%s' isn't a valid status code or range", part),
		"Use codes like 404 or ranges like 200-299")
}

// Contains reports whether code falls in any range.
func (r StatusRanges) Contains(code int) bool {
	for _, rng := range r {
		if code >= rng.Start && code <= rng.End {
			return true
		}
	}
	return false
}

// String renders the ranges back in their config form.
func (r StatusRanges) String() string {
	parts := make([]string, 0, len(r))
	for _, rng := range r {
		if rng.Start == rng.End {
			parts = append(parts, strconv.Itoa(rng.Start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", rng.Start, rng.End))
		}
	}
	return strings.Join(parts, ",")
}
