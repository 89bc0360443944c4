package reconcile

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"

	"github.com/sells-group/docpipe/internal/model"
)

var (
	foldCaser    = cases.Fold()
	multiSpaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
)

// normalizeString applies Unicode case folding, collapses whitespace, and
// strips punctuation.
func normalizeString(s string) string {
	s = foldCaser.String(s)
	s = punctRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// numericValue coerces a value to a number when possible: numeric kinds
// directly, strings after stripping currency formatting.
func numericValue(v model.Value) (float64, bool) {
	switch v.Kind {
	case model.KindNumber:
		return v.Num, true
	case model.KindString:
		s := strings.TrimSpace(v.Str)
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// dateLayouts are the accepted calendar representations, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// dateValue coerces a value to a calendar day in UTC when possible.
func dateValue(v model.Value) (time.Time, bool) {
	switch v.Kind {
	case model.KindDate:
		return v.Date, true
	case model.KindString:
		s := strings.TrimSpace(v.Str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				y, m, d := t.UTC().Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// numericEqual compares within a relative tolerance, falling back to an
// absolute tolerance around zero.
func numericEqual(a, b, tolerance float64) bool {
	diff := math.Abs(a - b)
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return diff == 0
	}
	return diff <= tolerance*scale
}

// numericSimilarity maps the relative difference into [0,1].
func numericSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 1
	}
	sim := 1 - math.Abs(a-b)/scale
	if sim < 0 {
		return 0
	}
	return sim
}

// stringSimilarity is the normalized edit-distance similarity of the
// normalized forms, in [0,1].
func stringSimilarity(a, b string) float64 {
	na, nb := normalizeString(a), normalizeString(b)
	if na == nb {
		return 1
	}
	return levenshtein.Similarity(na, nb, nil)
}
