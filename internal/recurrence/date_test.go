package recurrence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.February, d.Month())
	assert.Equal(t, 29, d.Day())
	assert.Equal(t, "2024-02-29", d.String())

	_, err = ParseDate("2025-02-29")
	assert.Error(t, err)

	_, err = ParseDate("01/02/2025")
	assert.Error(t, err)
}

func TestDateOf_UsesLocation(t *testing.T) {
	// 23:30 UTC on Jan 1 is already Jan 2 in Tokyo.
	instant := time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	assert.Equal(t, "2025-01-01", DateOf(instant).String())
	assert.Equal(t, "2025-01-02", DateOf(instant.In(tokyo)).String())
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustParseDate("2024-12-30")

	assert.Equal(t, "2025-01-02", d.AddDays(3).String())
	assert.Equal(t, "2024-12-01", d.AddDays(-29).String())
	assert.Equal(t, 3, d.DaysUntil(d.AddDays(3)))
	assert.Equal(t, -5, d.DaysUntil(d.AddDays(-5)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, d.Equal(MustParseDate("2024-12-30")))
}

func TestDate_AcrossDSTIsWholeDays(t *testing.T) {
	// US DST starts 2025-03-09; date math must not lose an hour.
	before := MustParseDate("2025-03-08")
	after := MustParseDate("2025-03-10")
	assert.Equal(t, 2, before.DaysUntil(after))
}

func TestDate_Start(t *testing.T) {
	loc := time.FixedZone("X", -5*60*60)
	start := MustParseDate("2025-01-10").Start(loc)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, loc), start)
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Due Date `json:"due"`
	}

	b, err := json.Marshal(payload{Due: MustParseDate("2025-01-10")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2025-01-10"}`, string(b))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-07-04"}`), &p))
	assert.Equal(t, "2025-07-04", p.Due.String())
}

func TestDate_Zero(t *testing.T) {
	var d Date
	assert.True(t, d.IsZero())
	assert.Equal(t, "", d.String())
}
