package models

import (
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
)

// UnitStatus represents the availability state of a unit.
type UnitStatus string

const (
	StatusAvailable UnitStatus = "available"
	StatusPending   UnitStatus = "pending"
	StatusLeased    UnitStatus = "leased"
)

// Valid reports whether s is one of the known status values.
func (s UnitStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusPending, StatusLeased:
		return true
	}
	return false
}

// Geohash precision for stored locations (~150m cells).
const locationGeohashPrecision = 7

// Location is the structured address of a unit.
type Location struct {
	Address string  `json:"address,omitempty"`
	City    string  `json:"city"`
	State   string  `json:"state,omitempty"`
	Zip     string  `json:"zip"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Geohash string  `json:"geohash,omitempty"`
}

// StampGeohash derives the geohash from the coordinates. Locations without
// coordinates keep an empty geohash.
func (l *Location) StampGeohash() {
	if l.Lat == 0 && l.Lng == 0 {
		l.Geohash = ""
		return
	}
	l.Geohash = geohash.EncodeWithPrecision(l.Lat, l.Lng, locationGeohashPrecision)
}

// Unit represents a single rentable apartment unit.
// The ID is assigned once at creation and never reused after deletion.
// LeadScore is computed by the scoring engine, never set directly.
type Unit struct {
	ID           string     `json:"id"`
	PropertyName string     `json:"property_name"`
	UnitNumber   string     `json:"unit_number"`
	Bedrooms     int        `json:"bedrooms"`
	Bathrooms    float64    `json:"bathrooms"`
	SquareFeet   int        `json:"square_feet"`
	Price        int        `json:"price"`
	Status       UnitStatus `json:"status"`
	Amenities    []string   `json:"amenities"`
	Location     Location   `json:"location"`
	Images       []string   `json:"images"`
	Description  string     `json:"description"`
	LeadScore    float64    `json:"lead_score"`
	ListedAt     time.Time  `json:"listed_at"`
	LeasedAt     *time.Time `json:"leased_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ApplyStatus transitions the unit to the given status. Any direction is
// allowed. Entering leased stamps LeasedAt exactly once; re-applying leased
// never re-stamps it. Leaving leased clears LeasedAt so that it is non-nil
// if and only if the unit is leased. LeasedAt is never earlier than ListedAt.
func (u *Unit) ApplyStatus(status UnitStatus, now time.Time) {
	prev := u.Status
	u.Status = status

	switch {
	case status == StatusLeased && u.LeasedAt == nil:
		if now.Before(u.ListedAt) {
			now = u.ListedAt
		}
		leasedAt := now
		u.LeasedAt = &leasedAt
	case status != StatusLeased && prev == StatusLeased:
		u.LeasedAt = nil
	}
}

// NormalizeTag canonicalizes an amenity tag: lower-cased, surrounding
// whitespace trimmed, inner spaces mapped to underscores.
func NormalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), " ", "_")
}
