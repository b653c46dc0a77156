// Package calendar converts between UTC instants and ISO-8601 strings using
// proleptic Gregorian arithmetic. It does not consult the platform's time zone
// database; every offset is explicit.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrParse is returned for malformed ISO-8601 input
var ErrParse = errors.New("calendar: malformed ISO-8601 timestamp")

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400

	// MaxOffset bounds the absolute UTC offset accepted by Parse
	MaxOffset = secondsPerDay
)

// Cumulative days before each month, for common and leap years
var daysToMonth = [2][12]int64{
	{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334},
	{0, 31, 60, 91, 121, 152, 182, 213, 244, 274, 305, 335},
}

// IsLeap reports whether year is a leap year in the proleptic Gregorian calendar
func IsLeap(year int64) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days in month (1-12) of year
func DaysInMonth(year, month int64) int64 {
	if month == 12 {
		return 31
	}
	leap := leapIndex(year)
	return daysToMonth[leap][month] - daysToMonth[leap][month-1]
}

func leapIndex(year int64) int {
	if IsLeap(year) {
		return 1
	}
	return 0
}

// floorDiv divides rounding toward negative infinity
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// leapsThrough counts leap years up to and including year, relative to year 0
func leapsThrough(year int64) int64 {
	return floorDiv(year, 4) - floorDiv(year, 100) + floorDiv(year, 400)
}

// daysFromCivil returns days since 1970-01-01 for the given date
func daysFromCivil(year, month, day int64) int64 {
	dayOfYear := daysToMonth[leapIndex(year)][month-1] + day - 1
	return 365*(year-1970) + leapsThrough(year-1) - leapsThrough(1969) + dayOfYear
}

// civilFromDays is the inverse of daysFromCivil
func civilFromDays(days int64) (year, month, day int64) {
	z := days + 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	year = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		month = mp + 3
	} else {
		month = mp - 9
	}
	if month <= 2 {
		year++
	}
	return year, month, day
}

// Date returns the calendar date of a UTC instant
func Date(instant int64) (year, month, day int64) {
	return civilFromDays(floorDiv(instant, secondsPerDay))
}

// Unix returns the instant of the given UTC wall-clock time.
// Fields are not normalized; callers validate ranges.
func Unix(year, month, day, hour, minute, second int64) int64 {
	return daysFromCivil(year, month, day)*secondsPerDay +
		hour*secondsPerHour + minute*secondsPerMinute + second
}

// Format renders instant in the zone described by offset as
// YYYY-MM-DDTHH:MM:SS±HH:MM. Sub-minute offset seconds are not rendered.
func Format(instant int64, offset int32) string {
	local := instant + int64(offset)
	days := floorDiv(local, secondsPerDay)
	secs := local - days*secondsPerDay
	year, month, day := civilFromDays(days)

	buf := make([]byte, 0, 32)
	if year < 0 {
		buf = append(buf, '-')
		year = -year
	}
	buf = appendInt(buf, year, 4)
	buf = append(buf, '-')
	buf = appendInt(buf, month, 2)
	buf = append(buf, '-')
	buf = appendInt(buf, day, 2)
	buf = append(buf, 'T')
	buf = appendInt(buf, secs/secondsPerHour, 2)
	buf = append(buf, ':')
	buf = appendInt(buf, secs%secondsPerHour/secondsPerMinute, 2)
	buf = append(buf, ':')
	buf = appendInt(buf, secs%secondsPerMinute, 2)

	off := int64(offset)
	if off < 0 {
		buf = append(buf, '-')
		off = -off
	} else {
		buf = append(buf, '+')
	}
	buf = appendInt(buf, off/secondsPerHour, 2)
	buf = append(buf, ':')
	buf = appendInt(buf, off%secondsPerHour/secondsPerMinute, 2)
	return string(buf)
}

// appendInt appends a non-negative v zero-padded to width
func appendInt(buf []byte, v int64, width int) []byte {
	s := strconv.FormatInt(v, 10)
	for i := len(s); i < width; i++ {
		buf = append(buf, '0')
	}
	return append(buf, s...)
}

// Parse reads YYYY-MM-DDTHH:MM:SS[.frac][Z|±HH:MM] and returns the UTC
// instant together with the offset in seconds. A missing zone designator is
// read as UTC. Fractional seconds are truncated.
func Parse(text string) (instant int64, offset int32, err error) {
	p := &scanner{src: text}

	year, ok := p.year()
	if !ok {
		return 0, 0, parseError(text, "year")
	}
	month, ok := p.field('-', 2)
	if !ok || month < 1 || month > 12 {
		return 0, 0, parseError(text, "month")
	}
	day, ok := p.field('-', 2)
	if !ok || day < 1 || day > DaysInMonth(year, month) {
		return 0, 0, parseError(text, "day")
	}
	hour, ok := p.field('T', 2)
	if !ok || hour > 23 {
		return 0, 0, parseError(text, "hour")
	}
	minute, ok := p.field(':', 2)
	if !ok || minute > 59 {
		return 0, 0, parseError(text, "minute")
	}
	second, ok := p.field(':', 2)
	if !ok || second > 59 {
		return 0, 0, parseError(text, "second")
	}
	if p.peek() == '.' || p.peek() == ',' {
		p.pos++
		if p.skipDigits() == 0 {
			return 0, 0, parseError(text, "fraction")
		}
	}

	var off int64
	switch c := p.peek(); c {
	case 0:
	case 'Z', 'z':
		p.pos++
	case '+', '-':
		p.pos++
		oh, ok := p.digits(2)
		if !ok {
			return 0, 0, parseError(text, "offset hours")
		}
		om, ok := p.field(':', 2)
		if !ok || om > 59 {
			return 0, 0, parseError(text, "offset minutes")
		}
		off = oh*secondsPerHour + om*secondsPerMinute
		if off > MaxOffset {
			return 0, 0, parseError(text, "offset range")
		}
		if c == '-' {
			off = -off
		}
	default:
		return 0, 0, parseError(text, "zone designator")
	}
	if p.pos != len(p.src) {
		return 0, 0, parseError(text, "trailing characters")
	}

	local := Unix(year, month, day, hour, minute, second)
	return local - off, int32(off), nil
}

func parseError(text, field string) error {
	return fmt.Errorf("%w: %q: invalid %s", ErrParse, text, field)
}

type scanner struct {
	src string
	pos int
}

func (p *scanner) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// year reads an optionally negative year of at least four digits
func (p *scanner) year() (int64, bool) {
	neg := false
	if p.peek() == '-' {
		neg = true
		p.pos++
	}
	start := p.pos
	n := p.skipDigits()
	if n < 4 || n > 9 {
		return 0, false
	}
	v, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// field reads sep followed by exactly width digits
func (p *scanner) field(sep byte, width int) (int64, bool) {
	if p.peek() != sep {
		return 0, false
	}
	p.pos++
	return p.digits(width)
}

func (p *scanner) digits(width int) (int64, bool) {
	if p.pos+width > len(p.src) {
		return 0, false
	}
	var v int64
	for i := 0; i < width; i++ {
		c := p.src[p.pos+i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	p.pos += width
	return v, true
}

func (p *scanner) skipDigits() int {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	return p.pos - start
}
