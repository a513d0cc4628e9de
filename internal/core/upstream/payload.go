package upstream

import "github.com/astrowidget/astroproxy/internal/core"

// Payload is the horoscope request body the upstream expects.
type Payload struct {
	Type    string  `json:"type"`
	Person  Person  `json:"person"`
	Options Options `json:"options"`
}

type Person struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	BirthDate string   `json:"birth_date"`
	BirthTime string   `json:"birth_time"`
	Timezone  string   `json:"timezone"`
	Location  Location `json:"location"`
}

// Location keeps lat/lng as null when the widget did not geocode.
type Location struct {
	Text string             `json:"text"`
	Lat  core.OptionalFloat `json:"lat"`
	Lng  core.OptionalFloat `json:"lng"`
}

type Options struct {
	HouseSystem string `json:"house_system"`
	Language    string `json:"language"`
}

// BuildPayload maps a validated request onto the upstream body.
func BuildPayload(req core.NormalizedRequest) Payload {
	return Payload{
		Type: req.ChartType,
		Person: Person{
			Name:      req.Name,
			Email:     req.Email,
			BirthDate: req.BirthDate,
			BirthTime: req.BirthTime,
			Timezone:  req.Timezone,
			Location: Location{
				Text: req.Location,
				Lat:  req.Lat,
				Lng:  req.Lng,
			},
		},
		Options: Options{
			HouseSystem: req.HouseSystem,
			Language:    req.Language,
		},
	}
}
