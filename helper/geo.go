package helper

import (
	"cmp"
	"math"
	"slices"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Haversine returns the great-circle distance in kilometres between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Locator extracts an optional position from an entity. A nil latitude or
// longitude means the entity has no usable location.
type Locator[E any] func(E) (lat, lon *float64)

// DistanceFrom returns the distance in km from ref to the located position,
// or +Inf when either coordinate is missing.
func DistanceFrom(ref Coordinate, lat, lon *float64) float64 {
	if lat == nil || lon == nil {
		return math.Inf(1)
	}
	return Haversine(ref.Lat, ref.Lon, *lat, *lon)
}

// RankByDistance returns a new slice with items ordered by ascending distance
// to ref. The sort is stable: equal distances, including the +Inf assigned to
// unlocated items, keep their input order, so unlocated items end up last in
// their original relative order. The input slice is not modified.
func RankByDistance[E any](ref Coordinate, items []E, locate Locator[E]) []E {
	type ranked struct {
		item     E
		distance float64
	}

	rows := make([]ranked, len(items))
	for i, item := range items {
		lat, lon := locate(item)
		rows[i] = ranked{item: item, distance: DistanceFrom(ref, lat, lon)}
	}

	slices.SortStableFunc(rows, func(a, b ranked) int {
		return cmp.Compare(a.distance, b.distance)
	})

	out := make([]E, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out
}
