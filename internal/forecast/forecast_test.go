package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGeneratorIsDeterministic(t *testing.T) {
	zones := []models.Zone{"north", "south"}
	a := NewGenerator(zones, monday, 3, 42).Generate()
	b := NewGenerator(zones, monday, 3, 42).Generate()

	require.Len(t, a, 3*24*2)
	assert.Equal(t, a, b)
	assert.Equal(t, models.Zone("north"), a[0].Zone)
	assert.Equal(t, monday.Add(time.Hour), a[2].Time)

	c := NewGenerator(zones, monday, 3, 7).Generate()
	assert.NotEqual(t, a, c)
}

func TestGeneratorRushHoursCarryMoreDemand(t *testing.T) {
	history := NewGenerator([]models.Zone{"z"}, monday, 60, 1).Generate()

	var rush, calm, rushN, calmN float64
	for _, o := range history {
		require.GreaterOrEqual(t, o.Orders, 0)
		require.LessOrEqual(t, o.OnTime, o.Orders)
		switch o.Time.Hour() {
		case 8, 17:
			rush += float64(o.Orders)
			rushN++
		case 2, 14:
			calm += float64(o.Orders)
			calmN++
		}
	}
	assert.InDelta(t, 7.0, rush/rushN, 1.0)
	assert.InDelta(t, 3.0, calm/calmN, 0.7)
}

func TestBaselinePredictsSeasonalMean(t *testing.T) {
	var history []Observation
	for d := 0; d < 14; d++ {
		day := monday.AddDate(0, 0, d)
		orders := 4
		if day.Weekday() == time.Saturday {
			orders = 10
		}
		history = append(history, Observation{Zone: "A", Time: day.Add(12 * time.Hour), Orders: orders})
	}

	b, err := Fit(history)
	require.NoError(t, err)

	mean, variance, ok := b.Predict("A", monday.Add(12*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 4.0, mean)
	assert.Equal(t, 0.0, variance)

	saturday := monday.AddDate(0, 0, 5).Add(12 * time.Hour)
	mean, _, _ = b.Predict("A", saturday)
	assert.Equal(t, 10.0, mean)

	_, _, ok = b.Predict("A", monday.Add(13*time.Hour))
	assert.False(t, ok)
	_, _, ok = b.Predict("B", monday.Add(12*time.Hour))
	assert.False(t, ok)
}

func TestBaselineFallsBackToHourOfDay(t *testing.T) {
	history := []Observation{
		{Zone: "A", Time: monday.Add(9 * time.Hour), Orders: 2},
		{Zone: "A", Time: monday.AddDate(0, 0, 1).Add(9 * time.Hour), Orders: 6},
	}
	b, err := Fit(history)
	require.NoError(t, err)

	friday := monday.AddDate(0, 0, 4).Add(9 * time.Hour)
	mean, variance, ok := b.Predict("A", friday)
	require.True(t, ok)
	assert.Equal(t, 4.0, mean)
	assert.Equal(t, 8.0, variance)
}

func TestForecastBuildsDemandTable(t *testing.T) {
	zones := []models.Zone{"A", "B"}
	history := NewGenerator(zones, monday, 56, 5).Generate()
	b, err := Fit(history)
	require.NoError(t, err)
	assert.Equal(t, zones, b.Zones())

	start := monday.AddDate(0, 0, 56)
	tbl, err := b.Forecast(zones, start, 24)
	require.NoError(t, err)
	assert.Equal(t, 48, tbl.Len())
	assert.Equal(t, []models.TimeSlot{0, 23}, []models.TimeSlot{tbl.Slots()[0], tbl.Slots()[23]})

	var rush, calm float64
	for _, h := range models.DefaultRushHours {
		rush += tbl.Demand("A", models.TimeSlot(h))
		calm += tbl.Demand("A", models.TimeSlot(h+4))
	}
	assert.Greater(t, rush, calm)

	_, err = b.Forecast(zones, start, -1)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	history := NewGenerator([]models.Zone{"A", "B", "C"}, monday, 28, 9).Generate()

	mae, err := Evaluate(history, 0.75)
	require.NoError(t, err)
	assert.Greater(t, mae, 0.0)
	assert.Less(t, mae, 5.0)

	_, err = Evaluate(history, 1.5)
	assert.Error(t, err)

	_, err = Fit(nil)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestOnTimeRate(t *testing.T) {
	assert.Equal(t, 1.0, OnTimeRate(nil))
	assert.Equal(t, 0.75, OnTimeRate([]Observation{{Orders: 3, OnTime: 3}, {Orders: 1}}))
}
