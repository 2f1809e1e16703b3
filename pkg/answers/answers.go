// Package answers converts raw user utterances into the typed values the
// questionnaire state engine commits into its variable snapshot. Token
// recognition is bilingual (English and Hebrew, formal register included)
// and insensitive to case, combining marks and surrounding punctuation.
// Parsing is side-effect free; committing the result is the caller's job.
package answers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is a question's declared answer type. The set is closed: a document
// declaring anything else is a configuration defect, not a runtime case.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
	TypeString  Type = "string"
	TypeDate    Type = "date"
	TypeEnum    Type = "enum"
)

// ParseType validates a declared data type from a questionnaire document.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeBoolean, TypeNumber, TypeString, TypeDate, TypeEnum:
		return t, nil
	default:
		return "", fmt.Errorf("unknown data_type %q", s)
	}
}

// Reason classifies why an answer could not be parsed. These surface to the
// caller so the user can be re-prompted with a specific message.
type Reason string

const (
	ReasonUnrecognized    Reason = "unrecognized"
	ReasonNotANumber      Reason = "not_a_number"
	ReasonUnknownOption   Reason = "unknown_option"
	ReasonDateUnparseable Reason = "date_unparseable"
	ReasonDateBeforeToday Reason = "date_before_today"
	ReasonDateTooFar      Reason = "date_too_far"
)

// ParseError is a recoverable user-input failure.
type ParseError struct {
	Reason Reason
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("answer %q: %s", e.Raw, e.Reason)
}

// BoolPolicy tunes boolean recognition. The numeric-prefix fallback ("12
// employees" → true, "0" → false) is useful for headcount-style questions
// but carries false-positive risk, so it is switchable per deployment.
type BoolPolicy struct {
	NumericPrefix bool
}

// Parser converts raw answers by declared type. The zero value is not
// usable; construct with NewParser. Now is injectable for tests.
type Parser struct {
	Policy BoolPolicy
	Now    func() time.Time
}

// NewParser returns a parser with the default policy (numeric-prefix
// boolean fallback enabled) and the real clock.
func NewParser() *Parser {
	return &Parser{
		Policy: BoolPolicy{NumericPrefix: true},
		Now:    time.Now,
	}
}

// Parse converts rawText according to the declared type. options carries a
// question's recognized option tokens (enum values, or extra boolean
// tokens). loc anchors date resolution; it must be non-nil for TypeDate.
func (p *Parser) Parse(rawText string, typ Type, options []string, loc *time.Location) (any, error) {
	switch typ {
	case TypeBoolean:
		return p.parseBool(rawText, options)
	case TypeNumber:
		return p.parseNumber(rawText)
	case TypeString:
		return strings.TrimSpace(rawText), nil
	case TypeDate:
		return p.parseDate(rawText, loc)
	case TypeEnum:
		return p.parseEnum(rawText, options)
	default:
		return nil, fmt.Errorf("unknown data_type %q", typ)
	}
}

// Affirmative and negative token tables. Hebrew entries are stored without
// niqqud; Normalize strips it from input before matching.
var (
	affirmative = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
		"true": true, "ok": true, "okay": true, "positive": true,
		"כן": true, "חיובי": true, "נכון": true, "בהחלט": true, "בטח": true,
	}
	negative = map[string]bool{
		"no": true, "n": true, "nope": true, "false": true, "negative": true,
		"none": true, "not": true,
		"לא": true, "שלילי": true, "אין": true,
	}
)

func (p *Parser) parseBool(rawText string, options []string) (any, error) {
	token := Normalize(rawText)
	if token == "" {
		return nil, &ParseError{Reason: ReasonUnrecognized, Raw: rawText}
	}
	if affirmative[token] {
		return true, nil
	}
	if negative[token] {
		return false, nil
	}
	// Question-level options may pair custom tokens with yes/no, e.g.
	// ["יש=true", "אין=false"].
	for _, opt := range options {
		name, val, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		if Normalize(name) == token {
			return strings.TrimSpace(val) == "true", nil
		}
	}
	if p.Policy.NumericPrefix {
		if f, ok := leadingNumber(rawText); ok {
			return f != 0, nil
		}
	}
	return nil, &ParseError{Reason: ReasonUnrecognized, Raw: rawText}
}

func (p *Parser) parseNumber(rawText string) (any, error) {
	if f, ok := leadingNumber(rawText); ok {
		return f, nil
	}
	return nil, &ParseError{Reason: ReasonNotANumber, Raw: rawText}
}

func (p *Parser) parseEnum(rawText string, options []string) (any, error) {
	token := Normalize(rawText)
	for _, opt := range options {
		// Options may carry a canonical value after '=': "קמעונאות=retail".
		name, val, hasVal := strings.Cut(opt, "=")
		if Normalize(name) == token {
			if hasVal {
				return strings.TrimSpace(val), nil
			}
			return strings.TrimSpace(name), nil
		}
		if hasVal && Normalize(val) == token {
			return strings.TrimSpace(val), nil
		}
	}
	return nil, &ParseError{Reason: ReasonUnknownOption, Raw: rawText}
}

func (p *Parser) parseDate(rawText string, loc *time.Location) (any, error) {
	if loc == nil {
		loc = time.UTC
	}
	resolved, reason := p.resolveDate(rawText, loc)
	if reason != "" {
		return nil, &ParseError{Reason: reason, Raw: rawText}
	}
	return resolved, nil
}

// leadingNumber extracts a number from the head of the text, tolerating
// thousands separators ("1,200 employees" → 1200) and a currency symbol.
func leadingNumber(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	s = strings.TrimLeft(s, "₪$€ ")
	end := 0
	seenDot := false
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
		case c == ',':
			// thousands separator, dropped below
		case c == '.' && !seenDot:
			seenDot = true
		case c == '-' && end == 0:
		default:
			goto done
		}
		end++
	}
done:
	if end == 0 {
		return 0, false
	}
	numText := strings.ReplaceAll(s[:end], ",", "")
	if numText == "" || numText == "-" || numText == "." {
		return 0, false
	}
	f, err := strconv.ParseFloat(numText, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
