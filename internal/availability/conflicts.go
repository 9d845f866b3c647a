package availability

import (
	"sort"
	"time"

	"github.com/casaolivo/bnb-server/internal/models"
)

// Conflict is a double booking: two blocking bookings sharing nights on a room.
type Conflict struct {
	RoomID string         `json:"roomId"`
	First  models.Booking `json:"first"`
	Second models.Booking `json:"second"`
}

// Key identifies the pair independent of order; used to alert only once.
func (c Conflict) Key() string {
	a, b := c.First.ID, c.Second.ID
	if b < a {
		a, b = b, a
	}
	return c.RoomID + ":" + a + ":" + b
}

// FindConflicts returns every overlapping pair of blocking bookings per room,
// ordered by room, then first check-in, then booking ID.
func FindConflicts(bookings []models.Booking, now time.Time) []Conflict {
	byRoom := make(map[string][]models.Booking)
	for _, b := range bookings {
		if b.Blocks(now) {
			byRoom[b.RoomID] = append(byRoom[b.RoomID], b)
		}
	}

	rooms := make([]string, 0, len(byRoom))
	for id := range byRoom {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)

	var out []Conflict
	for _, roomID := range rooms {
		list := byRoom[roomID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].CheckIn != list[j].CheckIn {
				return list[i].CheckIn.Before(list[j].CheckIn)
			}
			return list[i].ID < list[j].ID
		})
		// Sorted by check-in: once a later booking starts after b ends, no
		// further booking can overlap b.
		for i, b := range list {
			for _, other := range list[i+1:] {
				if !other.CheckIn.Before(b.CheckOut) {
					break
				}
				out = append(out, Conflict{RoomID: roomID, First: b, Second: other})
			}
		}
	}
	return out
}
