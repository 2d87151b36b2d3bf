package geo

import (
	"sort"

	"github.com/mmcloughlin/geohash"

	"pickup-map-api-server/internal/models"
)

// StoredHashPrecision is the geohash length persisted on each pickup (~5m cells).
const StoredHashPrecision = 9

// Hash encodes a coordinate at the stored precision.
func Hash(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, StoredHashPrecision)
}

// Cluster groups approved pickups that share a geohash cell at the current zoom.
type Cluster struct {
	Geohash   string         `json:"geohash"`
	Count     int            `json:"count"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Bounds    BBox           `json:"bounds"`
	Pickup    *models.Pickup `json:"pickup,omitempty"`
}

// PrecisionForZoom maps a web-mercator zoom level to a geohash length so that
// a cell is roughly one marker-cluster radius on screen.
func PrecisionForZoom(zoom int) uint {
	switch {
	case zoom <= 2:
		return 1
	case zoom <= 4:
		return 2
	case zoom <= 7:
		return 3
	case zoom <= 10:
		return 4
	case zoom <= 13:
		return 5
	case zoom <= 16:
		return 6
	default:
		return 7
	}
}

// ClusterPickups buckets pickups by geohash cell. The result is sorted by
// descending count, ties broken by geohash, so responses are stable.
func ClusterPickups(pickups []models.Pickup, zoom int) []Cluster {
	precision := PrecisionForZoom(zoom)

	type acc struct {
		sumLat, sumLng float64
		bounds         BBox
		members        []int
	}
	cells := make(map[string]*acc)

	for i, p := range pickups {
		pt := Point{Latitude: p.Latitude, Longitude: p.Longitude}
		key := geohash.EncodeWithPrecision(p.Latitude, p.Longitude, precision)
		a, ok := cells[key]
		if !ok {
			a = &acc{bounds: BBoxOf(pt)}
			cells[key] = a
		}
		a.sumLat += p.Latitude
		a.sumLng += p.Longitude
		a.bounds = a.bounds.Extend(pt)
		a.members = append(a.members, i)
	}

	clusters := make([]Cluster, 0, len(cells))
	for key, a := range cells {
		n := len(a.members)
		c := Cluster{
			Geohash:   key,
			Count:     n,
			Latitude:  a.sumLat / float64(n),
			Longitude: a.sumLng / float64(n),
			Bounds:    a.bounds,
		}
		if n == 1 {
			p := pickups[a.members[0]]
			c.Pickup = &p
		}
		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].Geohash < clusters[j].Geohash
	})
	return clusters
}
