// Package site serves the public pages and the public room and contact API.
package site

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/pricing"
	"github.com/casaolivo/bnb-server/internal/reviews"
	"github.com/casaolivo/bnb-server/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// fromPriceDays is how far ahead the "from" price looks.
const fromPriceDays = 180

// Templates parses the page templates for gin's SetHTMLTemplate.
func Templates() (*template.Template, error) {
	funcs := template.FuncMap{
		"money": email.FormatMoney,
		"date": func(d civil.Date) string {
			return d.In(time.UTC).Format("Mon 2 Jan 2006")
		},
		"stars": func(avg float64) string {
			return fmt.Sprintf("%.1f", avg)
		},
	}
	t, err := template.New("site").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse site templates: %w", err)
	}
	return t, nil
}

type Dependencies struct {
	Store    storage.Store
	Bookings *booking.Service
	Reviews  *reviews.Service
	Mailer   email.Mailer
	Logger   *logger.Logger
}

type Site struct {
	store    storage.Store
	bookings *booking.Service
	reviews  *reviews.Service
	mailer   email.Mailer
	cfg      *config.Config
	logger   *logger.Logger
}

func New(deps Dependencies, cfg *config.Config) *Site {
	return &Site{
		store:    deps.Store,
		bookings: deps.Bookings,
		reviews:  deps.Reviews,
		mailer:   deps.Mailer,
		cfg:      cfg,
		logger:   deps.Logger.WithComponent("site"),
	}
}

// RoomCard is a room as the public sees it.
type RoomCard struct {
	models.Room
	FromPrice int64           `json:"fromPrice"`
	Currency  string          `json:"currency"`
	Reviews   reviews.Summary `json:"reviews"`
}

func (s *Site) card(ctx context.Context, room models.Room) (RoomCard, error) {
	from := s.bookings.Today()
	to := from.AddDays(fromPriceDays)
	rules, err := storage.LoadRules(ctx, s.store, room.ID, from, to)
	if err != nil {
		return RoomCard{}, err
	}
	_, summary, err := s.reviews.Published(ctx, room.ID)
	if err != nil {
		return RoomCard{}, err
	}
	// The smoobu mapping is internal.
	room.SmoobuApartmentID = 0
	return RoomCard{
		Room:      room,
		FromPrice: pricing.FromPrice(pricing.Range(room, from, to, rules)),
		Currency:  s.cfg.Property.Currency,
		Reviews:   summary,
	}, nil
}

func (s *Site) roomCards(ctx context.Context) ([]RoomCard, error) {
	rooms, err := s.store.ListRooms(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].SortOrder != rooms[j].SortOrder {
			return rooms[i].SortOrder < rooms[j].SortOrder
		}
		return rooms[i].Name < rooms[j].Name
	})
	cards := make([]RoomCard, 0, len(rooms))
	for _, room := range rooms {
		card, err := s.card(ctx, room)
		if err != nil {
			return nil, fmt.Errorf("failed to price room %s: %w", room.ID, err)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// publicRoom loads an active room by slug.
func (s *Site) publicRoom(ctx context.Context, slug string) (*models.Room, error) {
	room, err := s.store.GetRoomBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !room.Active {
		return nil, storage.ErrNotFound
	}
	return room, nil
}

func (s *Site) contact(ctx context.Context) models.ContactSettings {
	settings, err := s.store.GetContactSettings(ctx)
	if err != nil || settings == nil {
		return models.ContactSettings{}
	}
	return *settings
}

// page fills the data every template's layout uses.
func (s *Site) page(c *gin.Context, title string, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	data["Property"] = s.cfg.Property
	data["Contact"] = s.contact(c.Request.Context())
	data["Year"] = time.Now().Year()
	return data
}
