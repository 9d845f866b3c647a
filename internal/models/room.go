package models

import "time"

// Room is one bookable unit of the house. Money is in minor units (cents).
type Room struct {
	ID                    string   `json:"id"`
	Slug                  string   `json:"slug"`
	Name                  string   `json:"name"`
	Summary               string   `json:"summary"`
	Description           string   `json:"description"`
	Capacity              int      `json:"capacity"`
	BaseOccupancy         int      `json:"baseOccupancy"`
	BasePrice             int64    `json:"basePrice"`
	ExtraGuestFee         int64    `json:"extraGuestFee"`
	CleaningFee           int64    `json:"cleaningFee"`
	WeeklyDiscountPercent int      `json:"weeklyDiscountPercent"`
	MinNights             int      `json:"minNights"`
	Amenities             []string `json:"amenities"`
	Images                []string `json:"images"`
	// SmoobuApartmentID links the room to its Smoobu apartment; 0 means not synced.
	SmoobuApartmentID int64     `json:"smoobuApartmentId"`
	Active            bool      `json:"active"`
	SortOrder         int       `json:"sortOrder"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// IncludedGuests is how many guests the base price covers.
func (r Room) IncludedGuests() int {
	if r.BaseOccupancy <= 0 {
		return r.Capacity
	}
	return r.BaseOccupancy
}
