package intake

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/astrowidget/astroproxy/internal/core"
)

// Rejection messages. Callers see exactly one of these.
const (
	MsgInvalidFields  = "Invalid or missing required fields"
	MsgLatitudeRange  = "Latitude out of range"
	MsgLongitudeRange = "Longitude out of range"
)

// RequiredFields must be present and non-blank in the raw submission.
var RequiredFields = []string{
	core.FieldName,
	core.FieldEmail,
	core.FieldBirthDate,
	core.FieldBirthTime,
	core.FieldLocation,
}

var (
	ymdPattern      = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])$`)
	hmsPattern      = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2,3}([_-][a-z0-9]{2,8})?$`)

	validate = validator.New()
)

// ValidationError reports the first failing check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type check struct {
	field   string
	message string
	ok      func(d Draft) bool
}

// checks run in this order; the first failure wins.
var checks = []check{
	{field: "required", message: MsgInvalidFields, ok: hasRequired},
	{field: core.FieldName, message: MsgInvalidFields, ok: func(d Draft) bool { return d.Name != "" }},
	{field: core.FieldEmail, message: MsgInvalidFields, ok: func(d Draft) bool { return IsEmail(d.Email) }},
	{field: core.FieldBirthDate, message: MsgInvalidFields, ok: func(d Draft) bool { return IsDate(d.BirthDate) }},
	{field: core.FieldBirthTime, message: MsgInvalidFields, ok: func(d Draft) bool { return IsTime(d.BirthTime) }},
	{field: core.FieldTimezone, message: MsgInvalidFields, ok: func(d Draft) bool { return core.IsTimezone(d.Timezone) }},
	{field: core.FieldLocation, message: MsgInvalidFields, ok: func(d Draft) bool { return d.Location != "" }},
	{field: core.FieldLat, message: MsgLatitudeRange, ok: func(d Draft) bool { return inRange(d.Lat, 90) }},
	{field: core.FieldLng, message: MsgLongitudeRange, ok: func(d Draft) bool { return inRange(d.Lng, 180) }},
	{field: core.FieldHouseSystem, message: MsgInvalidFields, ok: func(d Draft) bool { return core.IsHouseSystem(d.HouseSystem) }},
	{field: core.FieldType, message: MsgInvalidFields, ok: func(d Draft) bool { return core.IsChartType(d.ChartType) }},
	{field: core.FieldLanguage, message: MsgInvalidFields, ok: func(d Draft) bool { return languagePattern.MatchString(d.Language) }},
}

// Validate checks every field of the draft and builds the normalized
// request. It never partially accepts.
func Validate(d Draft) (core.NormalizedRequest, error) {
	for _, c := range checks {
		if !c.ok(d) {
			return core.NormalizedRequest{}, &ValidationError{Field: c.field, Message: c.message}
		}
	}

	return core.NormalizedRequest{
		Name:        d.Name,
		Email:       d.Email,
		BirthDate:   d.BirthDate,
		BirthTime:   d.BirthTime,
		Timezone:    d.Timezone,
		Location:    d.Location,
		Lat:         d.Lat,
		Lng:         d.Lng,
		HouseSystem: d.HouseSystem,
		Language:    d.Language,
		ChartType:   d.ChartType,
	}, nil
}

// Process normalizes and validates a submission in one step.
func Process(sub core.Submission) (core.NormalizedRequest, error) {
	return Validate(Normalize(sub))
}

// IsEmail reports syntactic validity only; no MX or existence checks.
func IsEmail(value string) bool {
	if value == "" || len(value) > MaxEmailLength {
		return false
	}
	return validate.Var(value, "email") == nil
}

// IsDate requires YYYY-MM-DD and a real calendar day (no Feb 30).
func IsDate(value string) bool {
	if !ymdPattern.MatchString(value) {
		return false
	}
	_, err := time.Parse(time.DateOnly, value)
	return err == nil
}

// IsTime requires HH:MM:SS on a 24-hour clock.
func IsTime(value string) bool {
	return hmsPattern.MatchString(value)
}

func hasRequired(d Draft) bool {
	for _, field := range RequiredFields {
		if strings.TrimSpace(d.Raw.Get(field)) == "" {
			return false
		}
	}
	return true
}

func inRange(v core.OptionalFloat, bound float64) bool {
	if !v.Valid {
		return true
	}
	if math.IsNaN(v.Value) {
		return false
	}
	return v.Value >= -bound && v.Value <= bound
}
