// Package rtree wraps rtreego with the two spatial lookups the routing engine
// needs: which circular influence zones cover a point, and which named places
// are nearest to a point.
package rtree

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
)

const (
	tolerance   = 1e-9
	minChildren = 4
	maxChildren = 16
	dimensions  = 2

	// boundsPadding widens zone rectangles so that the planar degree
	// conversion never clips the haversine circle
	boundsPadding = 1.01
)

// Circle is a circular region identified by the caller's ID
type Circle struct {
	ID      int
	Center  models.Location
	RadiusM float64
}

// spatialCircle wraps a circle to implement rtreego.Spatial
type spatialCircle struct {
	Circle
	rect rtreego.Rect
}

func (sc *spatialCircle) Bounds() rtreego.Rect {
	return sc.rect
}

// ZoneIndex is a thread-safe R-Tree of circular zones
type ZoneIndex struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// NewZoneIndex creates an empty zone index
func NewZoneIndex() *ZoneIndex {
	return &ZoneIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// IndexCircles adds circles to the index using their bounding boxes
func (z *ZoneIndex) IndexCircles(circles []Circle) error {
	items := make([]*spatialCircle, 0, len(circles))
	for _, c := range circles {
		if c.RadiusM <= 0 || math.IsNaN(c.RadiusM) {
			return fmt.Errorf("zone %d: radius must be positive, got %v", c.ID, c.RadiusM)
		}

		dLat := geo.LatDegrees(c.RadiusM * boundsPadding)
		dLng := geo.LngDegrees(c.RadiusM*boundsPadding, c.Center.Lat)
		rect, err := rtreego.NewRect(
			rtreego.Point{c.Center.Lat - dLat, c.Center.Lng - dLng},
			[]float64{2 * dLat, 2 * dLng},
		)
		if err != nil {
			return fmt.Errorf("invalid bounds for zone %d: %w", c.ID, err)
		}
		items = append(items, &spatialCircle{Circle: c, rect: rect})
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	for _, item := range items {
		z.tree.Insert(item)
	}
	z.itemCount.Add(int64(len(items)))
	return nil
}

// Containing returns the zones whose circle strictly contains loc, along with
// the haversine distance from each zone center. Results are ordered by ID.
func (z *ZoneIndex) Containing(loc models.Location) []Hit {
	z.mu.RLock()
	defer z.mu.RUnlock()

	results := z.tree.SearchIntersect(rtreego.Point{loc.Lat, loc.Lng}.ToRect(tolerance))

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialCircle)
		if !ok {
			continue
		}

		// The rectangle is only a prefilter
		dist := geo.Distance(loc, item.Center)
		if dist < item.RadiusM {
			hits = append(hits, Hit{ID: item.ID, DistanceM: dist, RadiusM: item.RadiusM})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	return hits
}

// Hit is a zone that covers a queried location
type Hit struct {
	ID        int
	DistanceM float64
	RadiusM   float64
}

// Falloff is the linear intensity of the zone at the hit distance: 1 at the
// center, 0 at the edge
func (h Hit) Falloff() float64 {
	return 1 - h.DistanceM/h.RadiusM
}

// Count returns the number of indexed zones
func (z *ZoneIndex) Count() int64 {
	return z.itemCount.Load()
}

// Clear removes all zones from the index
func (z *ZoneIndex) Clear() {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	z.itemCount.Store(0)
}
