package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

var ErrNoHistory = errors.New("forecast: no history")

type seasonKey struct {
	zone    models.Zone
	weekday time.Weekday
	hour    int
}

type hourKey struct {
	zone models.Zone
	hour int
}

type moments struct {
	mean     float64
	variance float64
}

// Baseline is a seasonal forecaster: the prediction for a zone at a time is the
// historical mean for the same weekday and hour, falling back to the same hour on
// any day when the weekday was never observed.
type Baseline struct {
	seasonal map[seasonKey]moments
	hourly   map[hourKey]moments
	zones    []models.Zone
}

// Fit estimates per-cell mean and variance from history.
func Fit(history []Observation) (*Baseline, error) {
	if len(history) == 0 {
		return nil, ErrNoHistory
	}

	seasonal := make(map[seasonKey][]float64)
	hourly := make(map[hourKey][]float64)
	zoneSet := make(map[models.Zone]struct{})
	for _, o := range history {
		sk := seasonKey{zone: o.Zone, weekday: o.Time.Weekday(), hour: o.Time.Hour()}
		hk := hourKey{zone: o.Zone, hour: o.Time.Hour()}
		seasonal[sk] = append(seasonal[sk], float64(o.Orders))
		hourly[hk] = append(hourly[hk], float64(o.Orders))
		zoneSet[o.Zone] = struct{}{}
	}

	b := &Baseline{
		seasonal: make(map[seasonKey]moments, len(seasonal)),
		hourly:   make(map[hourKey]moments, len(hourly)),
	}
	for k, xs := range seasonal {
		b.seasonal[k] = estimate(xs)
	}
	for k, xs := range hourly {
		b.hourly[k] = estimate(xs)
	}
	for z := range zoneSet {
		b.zones = append(b.zones, z)
	}
	sort.Slice(b.zones, func(i, j int) bool { return b.zones[i] < b.zones[j] })
	return b, nil
}

// estimate uses the unbiased variance; a single sample has zero variance.
func estimate(xs []float64) moments {
	if len(xs) == 1 {
		return moments{mean: xs[0]}
	}
	mean, variance := stat.MeanVariance(xs, nil)
	return moments{mean: mean, variance: variance}
}

func (b *Baseline) Zones() []models.Zone {
	return append([]models.Zone(nil), b.zones...)
}

// Predict returns the expected orders and variance for a zone at t. ok is false
// when the zone never appeared at that hour.
func (b *Baseline) Predict(zone models.Zone, t time.Time) (mean, variance float64, ok bool) {
	if m, found := b.seasonal[seasonKey{zone: zone, weekday: t.Weekday(), hour: t.Hour()}]; found {
		return m.mean, m.variance, true
	}
	if m, found := b.hourly[hourKey{zone: zone, hour: t.Hour()}]; found {
		return m.mean, m.variance, true
	}
	return 0, 0, false
}

// Forecast builds a demand table for horizon hours starting at start. Slot i is
// start + i hours; unknown zone-hours forecast zero.
func (b *Baseline) Forecast(zones []models.Zone, start time.Time, horizon int) (*models.DemandTable, error) {
	if horizon < 0 {
		return nil, fmt.Errorf("forecast: negative horizon %d", horizon)
	}
	entries := make([]models.DemandEntry, 0, horizon*len(zones))
	for s := 0; s < horizon; s++ {
		ts := start.Add(time.Duration(s) * time.Hour)
		for _, z := range zones {
			mean, variance, _ := b.Predict(z, ts)
			entries = append(entries, models.DemandEntry{
				Zone:     z,
				Slot:     models.TimeSlot(s),
				Expected: mean,
				Variance: variance,
			})
		}
	}
	return models.NewDemandTable(entries)
}

// Evaluate fits on the first trainFraction of history in time order and returns the
// mean absolute error on the rest.
func Evaluate(history []Observation, trainFraction float64) (float64, error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return 0, fmt.Errorf("forecast: train fraction %v outside (0, 1)", trainFraction)
	}
	sorted := append([]Observation(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	cut := int(math.Round(float64(len(sorted)) * trainFraction))
	if cut == 0 || cut == len(sorted) {
		return 0, ErrNoHistory
	}

	b, err := Fit(sorted[:cut])
	if err != nil {
		return 0, err
	}
	errs := make([]float64, 0, len(sorted)-cut)
	for _, o := range sorted[cut:] {
		pred, _, _ := b.Predict(o.Zone, o.Time)
		errs = append(errs, math.Abs(pred-float64(o.Orders)))
	}
	return stat.Mean(errs, nil), nil
}

// OnTimeRate is the share of historical orders delivered within the threshold.
func OnTimeRate(history []Observation) float64 {
	var orders, onTime int
	for _, o := range history {
		orders += o.Orders
		onTime += o.OnTime
	}
	if orders == 0 {
		return 1
	}
	return float64(onTime) / float64(orders)
}
