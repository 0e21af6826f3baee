package models

// TrafficProfile scales driver throughput by hour of day. Rush hours are slower, so
// a driver completes fewer deliveries per hour.
type TrafficProfile struct {
	RushHours  []int   `json:"rush_hours" mapstructure:"rush_hours"`
	RushFactor float64 `json:"rush_factor" mapstructure:"rush_hour_throughput_factor"`
}

// DefaultRushHours are the morning and evening commute peaks.
var DefaultRushHours = []int{7, 8, 9, 16, 17, 18}

// Factor returns the throughput multiplier for a slot. A nil profile or an unset
// rush factor leaves throughput unchanged.
func (p *TrafficProfile) Factor(slot TimeSlot) float64 {
	if p == nil || p.RushFactor == 0 {
		return 1
	}
	hour := slot.HourOfDay()
	for _, h := range p.RushHours {
		if h == hour {
			return p.RushFactor
		}
	}
	return 1
}

type DeliveryCluster struct {
	Name           string
	TrafficDensity float64
}

// ThroughputFactor is how much of the base throughput a driver keeps in the cluster.
func (c DeliveryCluster) ThroughputFactor() float64 {
	if c.TrafficDensity <= 0 {
		return 1
	}
	return 1 / c.TrafficDensity
}

var DeliveryClusters = map[string]DeliveryCluster{
	ClusterUrbanCore:        {Name: ClusterUrbanCore, TrafficDensity: 1.5},
	ClusterUrbanResidential: {Name: ClusterUrbanResidential, TrafficDensity: 1.2},
	ClusterSuburban:         {Name: ClusterSuburban, TrafficDensity: 0.8},
}
