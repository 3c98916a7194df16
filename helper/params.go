package helper

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOptionalFloat parses s, treating an empty string as absent.
func ParseOptionalFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &f, nil
}

// ParseReference builds a ranking reference from lat/lon query values. It
// returns nil unless both are present.
func ParseReference(lat, lon string) (*Coordinate, error) {
	la, err := ParseOptionalFloat(lat)
	if err != nil {
		return nil, err
	}
	lo, err := ParseOptionalFloat(lon)
	if err != nil {
		return nil, err
	}
	if la == nil || lo == nil {
		return nil, nil
	}
	return &Coordinate{Lat: *la, Lon: *lo}, nil
}
