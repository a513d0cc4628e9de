package core

import "sort"

// Defaults applied when the widget omits an option.
const (
	DefaultHouseSystem = "placidus"
	DefaultLanguage    = "en"
	DefaultChartType   = "natal"
	DefaultTimezone    = "UTC"
)

// HouseSystems lists the house systems the upstream understands.
var HouseSystems = []string{"placidus", "koch", "whole_sign", "equal", "meridian"}

// ChartTypes lists the chart types the upstream understands.
var ChartTypes = []string{
	"natal",
	"transit",
	"solar_return",
	"lunar_return",
	"synastry",
	"composite",
	"zodiac_compatibility",
	"chinese",
}

var (
	houseSystemSet = toSet(HouseSystems)
	chartTypeSet   = toSet(ChartTypes)
	zoneSet        = toSet(ianaZones)
)

// IsHouseSystem reports membership in HouseSystems.
func IsHouseSystem(value string) bool {
	_, ok := houseSystemSet[value]
	return ok
}

// IsChartType reports membership in ChartTypes.
func IsChartType(value string) bool {
	_, ok := chartTypeSet[value]
	return ok
}

// IsTimezone reports exact membership in the IANA zone identifier list.
// No aliasing and no case folding.
func IsTimezone(value string) bool {
	_, ok := zoneSet[value]
	return ok
}

// Timezones returns a sorted copy of the IANA zone identifier list.
func Timezones() []string {
	out := make([]string, len(ianaZones))
	copy(out, ianaZones)
	sort.Strings(out)
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
