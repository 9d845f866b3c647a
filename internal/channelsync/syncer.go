package channelsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/availability"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage"
)

var ErrSyncRunning = errors.New("a channel sync is already running")

// Trigger names recorded on sync runs.
const (
	TriggerSchedule = "schedule"
	TriggerCron     = "cron"
	TriggerAdmin    = "admin"
	TriggerWebhook  = "webhook"
	TriggerCLI      = "cli"
)

// Source is the part of the Smoobu client the sync reads.
type Source interface {
	Enabled() bool
	ListReservations(ctx context.Context, from, to civil.Date, apartmentID int64) ([]smoobu.Reservation, error)
}

// Syncer imports channel bookings from Smoobu and reports double bookings.
type Syncer struct {
	store    storage.Store
	source   Source
	channels *smoobu.ChannelMapper
	mailer   email.Mailer
	cfg      *config.Config
	logger   *logger.Logger
	now      func() time.Time

	running sync.Mutex

	mu      sync.Mutex
	alerted map[string]bool
}

func NewSyncer(store storage.Store, source Source, mailer email.Mailer, cfg *config.Config, log *logger.Logger) *Syncer {
	return &Syncer{
		store:    store,
		source:   source,
		channels: smoobu.NewChannelMapper(cfg.Channels.SmoobuChannelIDs),
		mailer:   mailer,
		cfg:      cfg,
		logger:   log.WithComponent("channelsync"),
		now:      time.Now,
		alerted:  make(map[string]bool),
	}
}

// Enabled reports whether Smoobu is configured.
func (s *Syncer) Enabled() bool {
	return s.source != nil && s.source.Enabled()
}

func (s *Syncer) today() civil.Date {
	return civil.DateOf(s.now().In(s.cfg.Location()))
}

func (s *Syncer) window() Window {
	from := s.today().AddDays(-1)
	return Window{From: from, To: from.AddDays(s.cfg.Booking.SyncWindowDays + 1)}
}

func (s *Syncer) syncedRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.store.ListRooms(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := rooms[:0]
	for _, r := range rooms {
		if r.SmoobuApartmentID != 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// Run fetches every linked room's reservations, applies the plan, and checks
// for conflicts. Only one run happens at a time.
func (s *Syncer) Run(ctx context.Context, trigger string) (*models.SyncRun, error) {
	if !s.Enabled() {
		return nil, smoobu.ErrDisabled
	}
	if !s.running.TryLock() {
		return nil, ErrSyncRunning
	}
	defer s.running.Unlock()

	ctx = logger.WithOperation(ctx, "channel_sync")
	log := s.logger.WithContext(ctx)
	run := &models.SyncRun{Trigger: trigger, StartedAt: s.now()}
	started := time.Now()

	runErr := s.syncRooms(ctx, run)
	if runErr != nil {
		run.Error = runErr.Error()
	}

	conflicts, err := s.Conflicts(ctx)
	if err != nil {
		log.Error("conflict check failed", "error", err.Error())
		if runErr == nil {
			runErr = err
			run.Error = err.Error()
		}
	} else {
		run.Conflicts = len(conflicts)
		s.alertNewConflicts(ctx, conflicts, "found during channel sync")
	}

	run.FinishedAt = s.now()
	if err := s.store.SaveSyncRun(ctx, run); err != nil {
		log.Error("failed to record sync run", "error", err.Error())
	}
	metrics.RecordSyncRun(time.Since(started), runErr)

	log.Info("channel sync finished",
		"trigger", trigger,
		"fetched", run.Fetched,
		"created", run.Created,
		"updated", run.Updated,
		"cancelled", run.Cancelled,
		"conflicts", run.Conflicts,
		"duration", time.Since(started))
	return run, runErr
}

func (s *Syncer) syncRooms(ctx context.Context, run *models.SyncRun) error {
	rooms, err := s.syncedRooms(ctx)
	if err != nil {
		return err
	}
	window := s.window()

	var errs []error
	for _, room := range rooms {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.syncRoom(ctx, room, window, run); err != nil {
			s.logger.WithContext(ctx).Error("room sync failed", "room_id", room.ID, "error", err.Error())
			errs = append(errs, fmt.Errorf("room %s: %w", room.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) syncRoom(ctx context.Context, room models.Room, window Window, run *models.SyncRun) error {
	reservations, err := s.source.ListReservations(ctx, window.From, window.To, room.SmoobuApartmentID)
	if err != nil {
		return err
	}
	run.Fetched += len(reservations)

	remote := make([]Remote, 0, len(reservations))
	skipped := make(map[string]bool)
	for _, r := range reservations {
		rb, err := ToRemote(r, room.ID, s.channels, s.cfg.Property.Currency)
		if err != nil {
			s.logger.WithContext(ctx).Warn("skipping reservation", "error", err.Error())
			skipped[r.Key()] = true
			continue
		}
		remote = append(remote, rb)
	}

	local, err := s.store.ListBookings(ctx, storage.BookingFilter{RoomID: room.ID, From: window.From, To: window.To})
	if err != nil {
		return fmt.Errorf("failed to list local bookings: %w", err)
	}
	if local, err = s.withMoved(ctx, local, remote); err != nil {
		return err
	}

	window.Complete = true
	window.Skipped = skipped
	return s.apply(ctx, Reconcile(local, remote, window), run)
}

// withMoved adds the stored copies of reservations that are not in local,
// such as one Smoobu moved here from another apartment, so they are updated
// in place instead of imported twice.
func (s *Syncer) withMoved(ctx context.Context, local []models.Booking, remote []Remote) ([]models.Booking, error) {
	known := make(map[string]bool, len(local))
	for _, b := range local {
		if b.ExternalID != "" {
			known[b.ExternalID] = true
		}
	}
	for _, r := range remote {
		ext := r.Booking.ExternalID
		if known[ext] {
			continue
		}
		b, err := s.store.FindBookingByExternalID(ctx, ext)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find booking %s: %w", ext, err)
		}
		known[ext] = true
		local = append(local, *b)
	}
	return local, nil
}

func (s *Syncer) apply(ctx context.Context, plan Plan, run *models.SyncRun) error {
	var errs []error
	save := func(b *models.Booking) bool {
		if err := s.store.SaveBooking(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ExternalID, err))
			return false
		}
		return true
	}

	for i := range plan.Create {
		b := &plan.Create[i]
		if save(b) {
			run.Created++
			metrics.RecordBooking(metrics.EventImported, string(b.Channel))
		}
	}
	for i := range plan.Update {
		if save(&plan.Update[i]) {
			run.Updated++
		}
	}
	for i := range plan.Cancel {
		b := &plan.Cancel[i]
		if save(b) {
			run.Cancelled++
			metrics.RecordBooking(metrics.EventCancelled, string(b.Channel))
		}
	}
	for i := range plan.Link {
		if save(&plan.Link[i]) {
			run.Updated++
		}
	}
	return errors.Join(errs...)
}

// ApplyWebhook applies one reservation Smoobu pushed.
func (s *Syncer) ApplyWebhook(ctx context.Context, action string, r smoobu.Reservation) error {
	log := s.logger.WithContext(ctx)

	rooms, err := s.syncedRooms(ctx)
	if err != nil {
		return err
	}
	var room *models.Room
	for i := range rooms {
		if rooms[i].SmoobuApartmentID == r.Apartment.ID {
			room = &rooms[i]
			break
		}
	}
	if room == nil {
		log.Warn("webhook for an apartment without a room", "apartment_id", r.Apartment.ID, "reservation_id", r.ID)
		return nil
	}

	remote, err := ToRemote(r, room.ID, s.channels, s.cfg.Property.Currency)
	if err != nil {
		return err
	}
	if action == smoobu.ActionCancelReservation || action == smoobu.ActionDeleteReservation {
		remote.Booking.Status = models.StatusCancelled
	}

	var local []models.Booking
	if b, err := s.store.FindBookingByExternalID(ctx, remote.Booking.ExternalID); err == nil {
		local = append(local, *b)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to find booking: %w", err)
	}
	if remote.SiteBookingID != "" {
		if b, err := s.store.GetBooking(ctx, remote.SiteBookingID); err == nil && (len(local) == 0 || local[0].ID != b.ID) {
			local = append(local, *b)
		}
	}

	run := &models.SyncRun{Trigger: TriggerWebhook, StartedAt: s.now(), Fetched: 1}
	plan := Reconcile(local, []Remote{remote}, Window{})
	if err := s.apply(ctx, plan, run); err != nil {
		return err
	}
	if !plan.Empty() {
		log.Info("smoobu webhook applied", "action", action, "reservation_id", r.ID,
			"created", run.Created, "updated", run.Updated, "cancelled", run.Cancelled)
	}

	conflicts, err := s.Conflicts(ctx)
	if err != nil {
		return err
	}
	s.alertNewConflicts(ctx, conflicts, "caused by a channel reservation")
	return nil
}

// Conflicts lists double bookings from today on.
func (s *Syncer) Conflicts(ctx context.Context) ([]availability.Conflict, error) {
	w := s.window()
	bookings, err := s.store.ListBookings(ctx, storage.BookingFilter{From: w.From.AddDays(1), To: w.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	conflicts := availability.FindConflicts(bookings, s.now())
	metrics.SetConflicts(len(conflicts))
	return conflicts, nil
}

// alertNewConflicts emails the host about conflicts not reported before.
func (s *Syncer) alertNewConflicts(ctx context.Context, conflicts []availability.Conflict, reason string) {
	s.mu.Lock()
	current := make(map[string]bool, len(conflicts))
	var fresh []availability.Conflict
	for _, c := range conflicts {
		current[c.Key()] = true
		if !s.alerted[c.Key()] {
			fresh = append(fresh, c)
		}
	}
	s.alerted = current
	s.mu.Unlock()

	if len(fresh) == 0 || s.mailer == nil {
		return
	}
	to := s.adminRecipients(ctx)
	if len(to) == 0 {
		s.logger.WithContext(ctx).Warn("double booking found but no admin address is configured", "conflicts", len(fresh))
		return
	}

	names := make(map[string]string)
	if rooms, err := s.store.ListRooms(ctx, false); err == nil {
		for _, r := range rooms {
			names[r.ID] = r.Name
		}
	}
	rows := make([]map[string]string, 0, len(fresh))
	for _, c := range fresh {
		room := names[c.RoomID]
		if room == "" {
			room = c.RoomID
		}
		rows = append(rows, map[string]string{
			"Room":   room,
			"First":  describe(c.First),
			"Second": describe(c.Second),
		})
	}

	err := s.mailer.Send(ctx, email.Message{
		To:       to,
		Template: email.TemplateConflictAlert,
		Data: map[string]any{
			"Reason":    fmt.Sprintf("%d new double booking(s) %s.", len(fresh), reason),
			"Conflicts": rows,
		},
	})
	if err != nil {
		s.logger.WithContext(ctx).Error("failed to send conflict alert", "error", err.Error())
	}
}

func describe(b models.Booking) string {
	name := b.GuestName
	if name == "" {
		name = b.ID
	}
	return fmt.Sprintf("%s (%s) %s to %s", name, b.Channel, b.CheckIn, b.CheckOut)
}

func (s *Syncer) adminRecipients(ctx context.Context) []string {
	if s.cfg.AdminNotifyEmail != "" {
		return []string{s.cfg.AdminNotifyEmail}
	}
	if c, err := s.store.GetContactSettings(ctx); err == nil && c.Email != "" {
		return []string{c.Email}
	}
	return nil
}
