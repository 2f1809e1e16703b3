package answers

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxLeadDays bounds how far in the future a coverage start date may fall.
// Exactly today+45 is accepted; today+46 is rejected.
const MaxLeadDays = 45

const dateLayout = "2006-01-02"

var (
	isoRe   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dmyRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	shortRe = regexp.MustCompile(`^(\d{1,2})[-/](\d{1,2})[-/](\d{2})$`)
)

// ResolveStartDate resolves a free-form answer to a canonical YYYY-MM-DD
// string, anchored to the current date in loc. Returns "" when the text is
// unparseable or the resolved date falls outside [today, today+45d].
func (p *Parser) ResolveStartDate(text string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	resolved, reason := p.resolveDate(text, loc)
	if reason != "" {
		return ""
	}
	return resolved
}

// resolveDate is the reason-carrying form used by Parse, so callers can
// distinguish "ask again" from "that date is out of range".
func (p *Parser) resolveDate(text string, loc *time.Location) (string, Reason) {
	today := midnight(p.Now().In(loc))

	d, ok := relativeDate(Normalize(text), today)
	if !ok {
		d, ok = absoluteDate(strings.TrimSpace(text), loc)
	}
	if !ok {
		return "", ReasonDateUnparseable
	}

	if d.Before(today) {
		return "", ReasonDateBeforeToday
	}
	if d.After(today.AddDate(0, 0, MaxLeadDays)) {
		return "", ReasonDateTooFar
	}
	return d.Format(dateLayout), ""
}

// relativeDate recognizes the Hebrew relative terms used in intake
// dialogues. Week start follows the Hebrew calendar convention (Sunday).
func relativeDate(token string, today time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(token, "מחרתיים"):
		return today.AddDate(0, 0, 2), true
	case strings.Contains(token, "מחר"):
		return today.AddDate(0, 0, 1), true
	case token == "היום":
		return today, true
	case strings.Contains(token, "אמצע") && strings.Contains(token, "חודש"):
		// middle of next month
		first := nextMonthFirst(today)
		return first.AddDate(0, 0, 14), true
	case strings.Contains(token, "חודש"):
		// start of next month
		return nextMonthFirst(today), true
	case strings.Contains(token, "שבוע"):
		// start of next week: the next Sunday strictly after today
		days := (7 - int(today.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

// absoluteDate parses ISO YYYY-MM-DD, DD/MM/YYYY, and DD-MM-YY (two-digit
// years resolve as 2000+YY). Out-of-range calendar values fail rather than
// rolling over to a neighboring month.
func absoluteDate(text string, loc *time.Location) (time.Time, bool) {
	var day, month, year int
	switch {
	case isoRe.MatchString(text):
		m := isoRe.FindStringSubmatch(text)
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
	case dmyRe.MatchString(text):
		m := dmyRe.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	case shortRe.MatchString(text):
		m := shortRe.FindStringSubmatch(text)
		day, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		yy, _ := strconv.Atoi(m[3])
		year = 2000 + yy
	default:
		return time.Time{}, false
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes (Jan 32 → Feb 1); reject anything that moved.
	if d.Year() != year || d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func nextMonthFirst(today time.Time) time.Time {
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, 1, 0)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
