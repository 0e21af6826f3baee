package factories

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/jaswdr/faker"

	"github.com/chrisdamba/fleetalloc/internal/models"
)

// clusterWeights gives the share of generated zones per delivery cluster, in percent.
var clusterWeights = []struct {
	cluster string
	weight  int
}{
	{models.ClusterUrbanCore, 25},
	{models.ClusterUrbanResidential, 45},
	{models.ClusterSuburban, 30},
}

type ZoneFactory struct {
	fake      faker.Faker
	slugCache sync.Map // to track used zone ids
}

// NewZoneFactory returns a factory whose output depends only on seed.
func NewZoneFactory(seed int64) *ZoneFactory {
	return &ZoneFactory{fake: faker.NewWithSeed(rand.NewSource(seed))}
}

func (zf *ZoneFactory) CreateZone() models.ZoneInfo {
	name := zf.fake.Address().City()
	return models.ZoneInfo{
		ID:      models.Zone(zf.createUniqueSlug(name)),
		Name:    name,
		Cluster: zf.pickCluster(),
	}
}

func (zf *ZoneFactory) CreateZones(n int) []models.ZoneInfo {
	zones := make([]models.ZoneInfo, 0, n)
	for i := 0; i < n; i++ {
		zones = append(zones, zf.CreateZone())
	}
	return zones
}

func (zf *ZoneFactory) pickCluster() string {
	roll := zf.fake.IntBetween(0, 99)
	for _, cw := range clusterWeights {
		if roll < cw.weight {
			return cw.cluster
		}
		roll -= cw.weight
	}
	return models.ClusterSuburban
}

func (zf *ZoneFactory) createUniqueSlug(name string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, base)
	if base == "" {
		base = "zone"
	}

	slug := base
	counter := 1

	for {
		if _, exists := zf.slugCache.LoadOrStore(slug, true); !exists {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
		counter++
	}
}

// ZoneIDs returns the ids of zones in order.
func ZoneIDs(zones []models.ZoneInfo) []models.Zone {
	ids := make([]models.Zone, len(zones))
	for i, z := range zones {
		ids[i] = z.ID
	}
	return ids
}

// ClusterThroughput scales base by each zone's cluster traffic density. Denser
// clusters complete fewer deliveries per driver-hour.
func ClusterThroughput(zones []models.ZoneInfo, base float64) map[models.Zone]float64 {
	out := make(map[models.Zone]float64, len(zones))
	for _, z := range zones {
		factor := 1.0
		if c, ok := models.DeliveryClusters[z.Cluster]; ok {
			factor = c.ThroughputFactor()
		}
		out[z.ID] = base * factor
	}
	return out
}
