package forecast

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// Observation is the order count of one zone for one clock hour.
type Observation struct {
	Zone   models.Zone `json:"zone"`
	Time   time.Time   `json:"time"`
	Orders int         `json:"orders"`
	// OnTime counts orders delivered within the on-time threshold.
	OnTime              int     `json:"on_time"`
	MeanDeliveryMinutes float64 `json:"mean_delivery_minutes"`
}

const (
	defaultBaseRate = 3.0
	defaultRushRate = 4.0

	deliveryMeanMinutes  = 25.0
	deliveryStdMinutes   = 5.0
	rushDeliverySlowdown = 1.4
	minDeliveryMinutes   = 10.0
	onTimeThreshold      = 45.0
)

// Generator produces a synthetic hourly order history. Every hour each zone gets
// Poisson(BaseRate) orders plus Poisson(RushRate) more during rush hours.
type Generator struct {
	Zones     []models.Zone
	Start     time.Time
	Days      int
	BaseRate  float64
	RushRate  float64
	RushHours []int
	Seed      uint64
}

func NewGenerator(zones []models.Zone, start time.Time, days int, seed uint64) *Generator {
	return &Generator{
		Zones:     zones,
		Start:     start,
		Days:      days,
		BaseRate:  defaultBaseRate,
		RushRate:  defaultRushRate,
		RushHours: models.DefaultRushHours,
		Seed:      seed,
	}
}

// Generate returns observations ordered by time then zone. The same seed gives the
// same history.
func (g *Generator) Generate() []Observation {
	src := rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15)
	base := distuv.Poisson{Lambda: g.BaseRate, Src: src}
	rush := distuv.Poisson{Lambda: g.RushRate, Src: src}
	service := distuv.Normal{Mu: deliveryMeanMinutes, Sigma: deliveryStdMinutes, Src: src}

	rushHours := make(map[int]bool, len(g.RushHours))
	for _, h := range g.RushHours {
		rushHours[h] = true
	}

	hours := g.Days * 24
	out := make([]Observation, 0, hours*len(g.Zones))
	for h := 0; h < hours; h++ {
		ts := g.Start.Add(time.Duration(h) * time.Hour)
		isRush := rushHours[ts.Hour()]
		for _, z := range g.Zones {
			orders := 0
			if g.BaseRate > 0 {
				orders = int(base.Rand())
			}
			if isRush && g.RushRate > 0 {
				orders += int(rush.Rand())
			}

			obs := Observation{Zone: z, Time: ts, Orders: orders}
			var total float64
			for i := 0; i < orders; i++ {
				minutes := service.Rand()
				if isRush {
					minutes *= rushDeliverySlowdown
				}
				minutes = math.Max(minDeliveryMinutes, minutes)
				total += minutes
				if minutes <= onTimeThreshold {
					obs.OnTime++
				}
			}
			if orders > 0 {
				obs.MeanDeliveryMinutes = total / float64(orders)
			}
			out = append(out, obs)
		}
	}
	return out
}
