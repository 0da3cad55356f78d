package rtree

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
)

// spatialPoint wraps a point to implement rtreego.Spatial
type spatialPoint struct {
	models.Point
	rect rtreego.Rect
}

func (sp *spatialPoint) Bounds() rtreego.Rect {
	return sp.rect
}

// PlaceIndex is a thread-safe R-Tree of named points
type PlaceIndex struct {
	tree      *rtreego.Rtree
	mu        sync.RWMutex
	itemCount atomic.Int64
}

// NewPlaceIndex creates an empty place index
func NewPlaceIndex() *PlaceIndex {
	return &PlaceIndex{
		tree: rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// IndexPoints indexes a batch of points
func (p *PlaceIndex) IndexPoints(points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, point := range points {
		rt := rtreego.Point{point.Location.Lat, point.Location.Lng}
		p.tree.Insert(&spatialPoint{Point: point, rect: rt.ToRect(tolerance)})
	}
	p.itemCount.Add(int64(len(points)))
	return nil
}

// QueryBox returns all points within the given bounding box
func (p *PlaceIndex) QueryBox(box models.BoundingBox) ([]models.Point, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bounds, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.BottomLeft.Lat, box.BottomLeft.Lng},
		rtreego.Point{box.TopRight.Lat, box.TopRight.Lng},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	results := p.tree.SearchIntersect(bounds)

	points := make([]models.Point, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialPoint)
		if !ok {
			continue
		}
		if box.Contains(item.Location) {
			points = append(points, item.Point)
		}
	}

	return points, nil
}

// NearestNeighbors returns the n nearest points to loc ordered by haversine distance
func (p *PlaceIndex) NearestNeighbors(loc models.Location, n int) []models.Point {
	if n <= 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	type nearestResult struct {
		point    models.Point
		distance float64
	}

	// Degree-space neighbors are close to, but not exactly, haversine order,
	// so over-fetch and re-rank
	results := p.tree.NearestNeighbors(n*2, rtreego.Point{loc.Lat, loc.Lng})

	ranked := make([]nearestResult, 0, len(results))
	for _, result := range results {
		item, ok := result.(*spatialPoint)
		if !ok {
			continue
		}
		ranked = append(ranked, nearestResult{
			point:    item.Point,
			distance: geo.Distance(loc, item.Location),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}

	points := make([]models.Point, len(ranked))
	for i, r := range ranked {
		points[i] = r.point
	}
	return points
}

// Count returns the number of indexed points
func (p *PlaceIndex) Count() int64 {
	return p.itemCount.Load()
}
