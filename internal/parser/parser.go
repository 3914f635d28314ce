// Package parser turns reminder commands into absolute trigger times.
//
// Two expression grammars are accepted, tried in order:
//
//	YYYY-MM-DD-HH-MM   absolute wall-clock time in the parser's location
//	<n>[mhdy]          relative to the parse-time clock reading
//
// A year in the relative form is exactly 365 days. Leap years are not
// taken into account.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindme/internal/models"

	"github.com/pkg/errors"
)

const CommandToken = "!remindme"

var (
	// ErrNotCommand means the text is not a reminder command at all. Callers
	// should ignore the message.
	ErrNotCommand = errors.New("not a reminder command")
	// ErrMalformedExpression means the command was recognised but its date
	// expression matched neither grammar or named an impossible time.
	ErrMalformedExpression = errors.New("malformed date expression")
)

var (
	// Unanchored: the command may appear anywhere in a message, and the text
	// ends at the first line break.
	commandPattern  = regexp.MustCompile(regexp.QuoteMeta(CommandToken) + `\s+(\S+)(?:\s+(.+))?`)
	absolutePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})-(\d{2})-(\d{2})$`)
	relativePattern = regexp.MustCompile(`^(\d+)([mhdy])$`)
)

var units = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"y": 365 * 24 * time.Hour,
}

// Parser binds the expression grammars to a clock and a reference location.
type Parser struct {
	Now      func() time.Time
	Location *time.Location
}

// New returns a Parser reading the system clock. A nil location means
// time.Local.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Now: time.Now, Location: loc}
}

// Parse extracts the command from text and resolves its trigger time.
func (p *Parser) Parse(text string) (models.Command, error) {
	cmd, err := ParseCommand(text)
	if err != nil {
		return cmd, err
	}

	trigger, err := ParseExpression(cmd.Expression, p.now())
	if err != nil {
		return cmd, err
	}
	cmd.TriggerTime = trigger
	return cmd, nil
}

func (p *Parser) now() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// ParseCommand splits "!remindme <expression>[ <text>]" into its parts
// without interpreting the expression.
func ParseCommand(text string) (models.Command, error) {
	m := commandPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return models.Command{}, ErrNotCommand
	}
	return models.Command{
		Expression: m[1],
		Text:       strings.TrimSpace(m[2]),
	}, nil
}

// ParseExpression resolves expr against now. Absolute expressions are
// interpreted in now's location.
func ParseExpression(expr string, now time.Time) (time.Time, error) {
	if m := absolutePattern.FindStringSubmatch(expr); m != nil {
		return parseAbsolute(expr, m[1:], now.Location())
	}
	if m := relativePattern.FindStringSubmatch(expr); m != nil {
		return parseRelative(expr, m[1], m[2], now)
	}
	return time.Time{}, errors.Wrapf(ErrMalformedExpression, "%q matches no known format", expr)
}

func parseAbsolute(expr string, fields []string, loc *time.Location) (time.Time, error) {
	var parts [5]int
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrMalformedExpression, "%q: %v", expr, err)
		}
		parts[i] = n
	}
	year, month, day, hour, minute := parts[0], parts[1], parts[2], parts[3], parts[4]

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)

	// time.Date normalises out-of-range fields (month 13, day 32, 24:00);
	// anything that moved is not a real calendar time.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, errors.Wrapf(ErrMalformedExpression, "%q is not a valid calendar time", expr)
	}
	return t, nil
}

func parseRelative(expr, amount, unit string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrMalformedExpression, "%q: %v", expr, err)
	}

	step := units[unit]
	if n > math.MaxInt64/int64(step) {
		return time.Time{}, errors.Wrapf(ErrMalformedExpression, "%q is too far in the future", expr)
	}
	return now.Add(time.Duration(n) * step), nil
}
