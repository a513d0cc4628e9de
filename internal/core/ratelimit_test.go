package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdvanceWindowStartsFresh(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	next, ok := AdvanceWindow(nil, now, 2, 10*time.Minute)
	require.True(t, ok)
	require.Equal(t, 1, next.Count)
	require.Equal(t, now, next.WindowStart)
	require.Equal(t, now.Add(10*time.Minute), next.ExpiresAt)
}

func TestAdvanceWindowRejectsAtLimitWithoutIncrement(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	current := &RateWindow{Count: 2, WindowStart: now, ExpiresAt: now.Add(10 * time.Minute)}

	next, ok := AdvanceWindow(current, now.Add(time.Minute), 2, 10*time.Minute)
	require.False(t, ok)
	require.Equal(t, 2, next.Count)
	require.Equal(t, current.ExpiresAt, next.ExpiresAt)
}

func TestAdvanceWindowResetsAtExpiry(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	current := &RateWindow{Count: 20, WindowStart: start, ExpiresAt: start.Add(10 * time.Minute)}

	next, ok := AdvanceWindow(current, start.Add(10*time.Minute), 20, 10*time.Minute)
	require.True(t, ok)
	require.Equal(t, 1, next.Count)
	require.Equal(t, start.Add(10*time.Minute), next.WindowStart)
}

func TestOptionalFloatMarshal(t *testing.T) {
	payload, err := json.Marshal(struct {
		Lat OptionalFloat `json:"lat"`
		Lng OptionalFloat `json:"lng"`
	}{Lat: Float(33.749), Lng: OptionalFloat{}})
	require.NoError(t, err)
	require.JSONEq(t, `{"lat":33.749,"lng":null}`, string(payload))
}

func TestOptionalFloatUnmarshal(t *testing.T) {
	var decoded struct {
		Lat OptionalFloat `json:"lat"`
		Lng OptionalFloat `json:"lng"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"lat":33.749,"lng":null}`), &decoded))
	require.Equal(t, Float(33.749), decoded.Lat)
	require.False(t, decoded.Lng.Valid)

	require.Error(t, json.Unmarshal([]byte(`{"lat":"north"}`), &decoded))
}

func TestIsTimezone(t *testing.T) {
	require.True(t, IsTimezone("America/New_York"))
	require.True(t, IsTimezone("UTC"))
	require.False(t, IsTimezone("america/new_york"))
	require.False(t, IsTimezone("US/Eastern"))
	require.False(t, IsTimezone("Local"))
	require.False(t, IsTimezone(""))
}

func TestVocabularies(t *testing.T) {
	require.True(t, IsHouseSystem("whole_sign"))
	require.False(t, IsHouseSystem("porphyry"))
	require.True(t, IsChartType("zodiac_compatibility"))
	require.False(t, IsChartType("daily"))
}
