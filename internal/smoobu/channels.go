package smoobu

import (
	"strings"

	"github.com/casaolivo/bnb-server/internal/models"
)

// ChannelMapper turns Smoobu channels into our channel names. Configured IDs
// win; otherwise the channel name is matched.
type ChannelMapper struct {
	byID map[int64]models.Channel
}

// NewChannelMapper takes channel name to Smoobu channel ID, as in the config file.
func NewChannelMapper(ids map[string]int) *ChannelMapper {
	m := &ChannelMapper{byID: make(map[int64]models.Channel)}
	for name, id := range ids {
		ch := models.Channel(name)
		if ch.Valid() {
			m.byID[int64(id)] = ch
		}
	}
	return m
}

func (m *ChannelMapper) Map(r Reservation) models.Channel {
	if r.IsBlocked {
		return models.ChannelBlocked
	}
	if ch, ok := m.byID[r.Channel.ID]; ok {
		return ch
	}

	name := strings.ToLower(r.Channel.Name)
	switch {
	case strings.Contains(name, "airbnb"):
		return models.ChannelAirbnb
	case strings.Contains(name, "direct"), strings.Contains(name, "website"), strings.Contains(name, "homepage"):
		return models.ChannelDirect
	case strings.Contains(name, "booking"):
		return models.ChannelBookingCom
	case strings.Contains(name, "expedia"):
		return models.ChannelExpedia
	case strings.Contains(name, "blocked"):
		return models.ChannelBlocked
	}
	return models.ChannelOther
}
