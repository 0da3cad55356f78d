package geo

import (
	"strings"

	"github.com/kass/go-eco-route/pkg/models"
)

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Geohash encodes a location as a base32 geohash of the given precision
func Geohash(loc models.Location, precision int) string {
	if precision <= 0 {
		return ""
	}

	latRange := [2]float64{-90, 90}
	lngRange := [2]float64{-180, 180}

	var sb strings.Builder
	sb.Grow(precision)

	bit, ch := 0, 0
	even := true
	for sb.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if loc.Lng > mid {
				ch |= 1 << (4 - bit)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if loc.Lat > mid {
				ch |= 1 << (4 - bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		even = !even

		if bit < 4 {
			bit++
			continue
		}
		sb.WriteByte(geohashAlphabet[ch])
		bit, ch = 0, 0
	}

	return sb.String()
}
