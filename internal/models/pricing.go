package models

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Season is a recurring yearly price band. StartMonthDay and EndMonthDay are
// "MM-DD", both inclusive; a band may wrap the new year (e.g. 12-20 to 01-06).
type Season struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	RoomIDs       []string `json:"roomIds"`
	StartMonthDay string   `json:"startMonthDay"`
	EndMonthDay   string   `json:"endMonthDay"`
	NightlyPrice  int64    `json:"nightlyPrice"`
	MinNights     int      `json:"minNights"`
	Priority      int      `json:"priority"`
}

// SpecialPeriod is a dated price rule (festivals, holidays). It either sets a
// fixed NightlyPrice or adjusts the seasonal/base price by PercentAdjust.
type SpecialPeriod struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	RoomIDs       []string   `json:"roomIds"`
	StartDate     civil.Date `json:"startDate"`
	EndDate       civil.Date `json:"endDate"`
	NightlyPrice  int64      `json:"nightlyPrice"`
	PercentAdjust int        `json:"percentAdjust"`
	MinNights     int        `json:"minNights"`
	Priority      int        `json:"priority"`
}

// PriceOverride pins one room on one date. A nil Price keeps the lower-tier
// price and only applies Closed/MinNights.
type PriceOverride struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	Date      civil.Date `json:"date"`
	Price     *int64     `json:"price,omitempty"`
	Closed    bool       `json:"closed"`
	MinNights int        `json:"minNights"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AppliesToRoom reports whether a rule scoped to roomIDs covers roomID.
// An empty scope covers every room.
func AppliesToRoom(roomIDs []string, roomID string) bool {
	if len(roomIDs) == 0 {
		return true
	}
	for _, id := range roomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// ParseMonthDay parses "MM-DD" into month*100+day.
func ParseMonthDay(s string) (int, error) {
	var m, d int
	if _, err := fmt.Sscanf(s, "%02d-%02d", &m, &d); err != nil || len(s) != 5 {
		return 0, fmt.Errorf("invalid month-day %q, want MM-DD", s)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, fmt.Errorf("invalid month-day %q", s)
	}
	return m*100 + d, nil
}

// Contains reports whether date falls inside the season band.
func (s Season) Contains(date civil.Date) bool {
	start, err := ParseMonthDay(s.StartMonthDay)
	if err != nil {
		return false
	}
	end, err := ParseMonthDay(s.EndMonthDay)
	if err != nil {
		return false
	}
	md := int(date.Month)*100 + date.Day
	if start <= end {
		return md >= start && md <= end
	}
	return md >= start || md <= end
}

// Contains reports whether date falls inside the period.
func (p SpecialPeriod) Contains(date civil.Date) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}
