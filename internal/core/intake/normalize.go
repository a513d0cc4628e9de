// Package intake turns raw widget submissions into validated horoscope
// requests.
//
// The accepted wire formats are fixed:
//   - birth_date: MM/DD/YYYY or MM-DD-YYYY
//   - birth_time: 12-hour h:mm:ss AM/PM (seconds optional, default 00)
//
// 24-hour birth times are rejected rather than guessed at.
package intake

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/astrowidget/astroproxy/internal/core"
)

// Field length limits, in runes.
const (
	MaxNameLength     = 80
	MaxLocationLength = 140
	MaxEmailLength    = 254
	MaxKeyLength      = 32
)

var (
	mdyPattern   = regexp.MustCompile(`^(0[1-9]|1[0-2])([/-])(0[1-9]|[12]\d|3[01])([/-])(\d{4})$`)
	time12       = regexp.MustCompile(`^(0?[1-9]|1[0-2]):([0-5]\d)(?::([0-5]\d))? ?(AM|PM)$`)
	whitespace   = regexp.MustCompile(`\s+`)
	nonKeyRunes  = regexp.MustCompile(`[^a-z0-9_-]+`)
	invalidFloat = core.Float(math.NaN())
)

// Draft holds best-effort canonical values. It is not validated; pass it to
// Validate to obtain a core.NormalizedRequest.
type Draft struct {
	Raw         core.Submission
	Name        string
	Email       string
	BirthDate   string
	BirthTime   string
	Timezone    string
	Location    string
	Lat         core.OptionalFloat
	Lng         core.OptionalFloat
	HouseSystem string
	Language    string
	ChartType   string
}

// Normalize converts raw fields into canonical forms. It never fails:
// unparsable input becomes "" (strings) or NaN (numbers) so the validator
// rejects it uniformly.
func Normalize(sub core.Submission) Draft {
	return Draft{
		Raw:         sub,
		Name:        CleanText(sub.Get(core.FieldName), MaxNameLength),
		Email:       CleanText(sub.Get(core.FieldEmail), MaxEmailLength),
		BirthDate:   NormalizeDate(sub.Get(core.FieldBirthDate)),
		BirthTime:   NormalizeTime(sub.Get(core.FieldBirthTime)),
		Timezone:    defaultString(strings.TrimSpace(sub.Get(core.FieldTimezone)), core.DefaultTimezone),
		Location:    CleanText(sub.Get(core.FieldLocation), MaxLocationLength),
		Lat:         NormalizeFloat(sub.Get(core.FieldLat)),
		Lng:         NormalizeFloat(sub.Get(core.FieldLng)),
		HouseSystem: defaultString(SanitizeKey(sub.Get(core.FieldHouseSystem)), core.DefaultHouseSystem),
		Language:    defaultString(SanitizeKey(sub.Get(core.FieldLanguage)), core.DefaultLanguage),
		ChartType:   defaultString(SanitizeKey(sub.Get(core.FieldType)), core.DefaultChartType),
	}
}

// NormalizeDate rewrites MM/DD/YYYY or MM-DD-YYYY to YYYY-MM-DD. Mixed
// separators and out-of-range months or days yield "".
func NormalizeDate(raw string) string {
	m := mdyPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || m[2] != m[4] {
		return ""
	}
	return m[5] + "-" + m[1] + "-" + m[3]
}

// NormalizeTime rewrites a 12-hour time ("2:30:00 PM", "02:30:00pm",
// "2:30 PM") to 24-hour HH:MM:SS. Anything else yields "".
func NormalizeTime(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(whitespace.ReplaceAllString(raw, " ")))
	m := time12.FindStringSubmatch(value)
	if m == nil {
		return ""
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return ""
	}
	hour %= 12
	if m[4] == "PM" {
		hour += 12
	}

	seconds := m[3]
	if seconds == "" {
		seconds = "00"
	}
	return fmt.Sprintf("%02d:%s:%s", hour, m[2], seconds)
}

// CleanText strips markup, collapses whitespace runs, trims, and truncates
// to max runes. Truncation runs last so it never splits a collapsed run.
func CleanText(raw string, max int) string {
	value := StripTags(raw)
	value = strings.TrimSpace(whitespace.ReplaceAllString(value, " "))
	if max > 0 && utf8.RuneCountInString(value) > max {
		value = strings.TrimRight(string([]rune(value)[:max]), " ")
	}
	return value
}

// SanitizeKey lowercases and drops everything outside [a-z0-9_-].
func SanitizeKey(raw string) string {
	value := nonKeyRunes.ReplaceAllString(strings.ToLower(raw), "")
	if len(value) > MaxKeyLength {
		value = value[:MaxKeyLength]
	}
	return value
}

// NormalizeFloat parses a decimal coordinate. Blank input is absent, not
// zero. Unparsable, hexadecimal or non-finite input becomes NaN, which fails
// every range check.
func NormalizeFloat(raw string) core.OptionalFloat {
	value := strings.TrimSpace(raw)
	if value == "" {
		return core.OptionalFloat{}
	}
	if unsigned := strings.TrimLeft(value, "+-"); len(unsigned) > 1 && unsigned[0] == '0' && (unsigned[1] == 'x' || unsigned[1] == 'X') {
		return invalidFloat
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return invalidFloat
	}
	return core.Float(f)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
