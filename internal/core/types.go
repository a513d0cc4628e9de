package core

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Submission field names as sent by the browser widget.
const (
	FieldName        = "name"
	FieldEmail       = "email"
	FieldBirthDate   = "birth_date"
	FieldBirthTime   = "birth_time"
	FieldTimezone    = "timezone"
	FieldLocation    = "location"
	FieldLat         = "lat"
	FieldLng         = "lng"
	FieldHouseSystem = "house_system"
	FieldLanguage    = "language"
	FieldType        = "type"

	// FieldNonce carries the anti-forgery token when the header is absent.
	FieldNonce = "_awnonce"
)

// Submission is the raw, untrusted form data for one horoscope request.
type Submission map[string]string

// Get returns the raw value for a field, or "" when absent.
func (s Submission) Get(field string) string {
	if s == nil {
		return ""
	}
	return s[field]
}

// OptionalFloat is a float that may be absent. Absent values marshal to null.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Float returns a present OptionalFloat.
func Float(v float64) OptionalFloat {
	return OptionalFloat{Value: v, Valid: true}
}

// MarshalJSON renders the value or null.
func (f OptionalFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON reads null as absent and a number as present.
func (f *OptionalFloat) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*f = OptionalFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (f OptionalFloat) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// NormalizedRequest is a fully validated submission. It is only produced by
// the intake validator and is passed by value; nothing mutates it afterwards.
type NormalizedRequest struct {
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	BirthDate   string        `json:"birth_date"`
	BirthTime   string        `json:"birth_time"`
	Timezone    string        `json:"timezone"`
	Location    string        `json:"location"`
	Lat         OptionalFloat `json:"lat"`
	Lng         OptionalFloat `json:"lng"`
	HouseSystem string        `json:"house_system"`
	Language    string        `json:"language"`
	ChartType   string        `json:"type"`
}
