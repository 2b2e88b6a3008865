package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultDateLayouts are tried in order for named-month and ISO dates.
// Purely numeric day/month forms go through parseNumericDate instead so
// the day/month ambiguity can be resolved document-wide.
var defaultDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
}

var reNumericDate = regexp.MustCompile(`^(\d{1,4})[./-](\d{1,2})[./-](\d{1,4})$`)

// dateParse is one candidate reading of a raw date string. Ambiguous is
// set when both day-first and month-first readings are plausible.
type dateParse struct {
	iso       string
	isoSwap   string
	ambiguous bool
	ok        bool
}

func parseDateOnce(raw string, layouts []string) dateParse {
	s := strings.TrimSpace(raw)
	if s == "" {
		return dateParse{}
	}

	if m := reNumericDate.FindStringSubmatch(s); m != nil {
		return parseNumericDate(m)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateParse{iso: t.Format("2006-01-02"), ok: true}
		}
	}
	return dateParse{}
}

// parseNumericDate handles d/m/y, m/d/y and y/m/d digit groups. The
// month-first reading is the default; isoSwap carries the day-first
// alternative when both readings are valid.
func parseNumericDate(m []string) dateParse {
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	c, _ := strconv.Atoi(m[3])

	if len(m[1]) == 4 {
		// y/m/d is unambiguous.
		return checkDate(a, b, c)
	}
	if len(m[3]) != 4 {
		if c < 100 {
			c += 2000
		} else {
			return dateParse{}
		}
	}

	monthFirst := checkDate(c, a, b)
	dayFirst := checkDate(c, b, a)
	switch {
	case monthFirst.ok && dayFirst.ok && monthFirst.iso != dayFirst.iso:
		return dateParse{iso: monthFirst.iso, isoSwap: dayFirst.iso, ambiguous: true, ok: true}
	case monthFirst.ok:
		return monthFirst
	case dayFirst.ok:
		return dayFirst
	default:
		return dateParse{}
	}
}

func checkDate(year, month, day int) dateParse {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2200 {
		return dateParse{}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != month || t.Day() != day {
		return dateParse{}
	}
	return dateParse{iso: t.Format("2006-01-02"), ok: true}
}

// resolveDates finishes date parsing for a whole document: unambiguous
// values vote for day-first or month-first, and the dominant order breaks
// remaining ties. Returns the final ISO value per input index.
func resolveDates(raws []string, layouts []string) []string {
	if len(layouts) == 0 {
		layouts = defaultDateLayouts
	}
	parses := make([]dateParse, len(raws))
	dayFirstVotes, monthFirstVotes := 0, 0
	for i, raw := range raws {
		parses[i] = parseDateOnce(raw, layouts)
		p := parses[i]
		if !p.ok || p.ambiguous {
			continue
		}
		// An unambiguous numeric parse reveals the document's order.
		if m := reNumericDate.FindStringSubmatch(strings.TrimSpace(raw)); m != nil && len(m[1]) != 4 {
			a, _ := strconv.Atoi(m[1])
			if a > 12 {
				dayFirstVotes++
			} else {
				monthFirstVotes++
			}
		}
	}

	dayFirst := dayFirstVotes > monthFirstVotes

	out := make([]string, len(raws))
	for i, p := range parses {
		switch {
		case !p.ok:
			out[i] = ""
		case p.ambiguous && dayFirst:
			out[i] = p.isoSwap
		default:
			out[i] = p.iso
		}
	}
	return out
}

// ParseDate parses a single date string without document context, using
// the month-first reading for ambiguous numeric dates.
func ParseDate(raw string) (string, error) {
	p := parseDateOnce(raw, defaultDateLayouts)
	if !p.ok {
		return "", fmt.Errorf("unrecognized date %q", raw)
	}
	return p.iso, nil
}
