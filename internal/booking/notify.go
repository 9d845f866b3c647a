package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/smoobu"
)

// SiteBookingTag marks Smoobu reservations that mirror a site booking, so
// the channel sync links them instead of importing a duplicate.
const SiteBookingTag = "site-booking:"

// splitName splits "Ada King Lovelace" into "Ada" and "King Lovelace".
func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, "-"
}

func (s *Service) smoobuChannelID(ch models.Channel) int {
	if id, ok := s.cfg.Channels.SmoobuChannelIDs[string(ch)]; ok {
		return id
	}
	return s.cfg.Channels.SmoobuSiteChannelID
}

// pushToChannel creates the Smoobu mirror of a booking and stores its ID.
func (s *Service) pushToChannel(ctx context.Context, b *models.Booking, room *models.Room) error {
	if s.channel == nil || !s.channel.Enabled() || room.SmoobuApartmentID == 0 || b.ExternalID != "" {
		return nil
	}
	log := s.logger.WithContext(ctx)

	first, last := splitName(b.GuestName)
	if b.Channel == models.ChannelBlocked {
		first, last = "Blocked", b.Notes
	}
	id, err := s.channel.CreateReservation(ctx, smoobu.NewReservation{
		ArrivalDate:   b.CheckIn.String(),
		DepartureDate: b.CheckOut.String(),
		ChannelID:     s.smoobuChannelID(b.Channel),
		ApartmentID:   room.SmoobuApartmentID,
		FirstName:     first,
		LastName:      last,
		Email:         b.GuestEmail,
		Phone:         b.GuestPhone,
		Adults:        b.Guests,
		Price:         float64(b.TotalAmount) / 100,
		PriceStatus:   1,
		Notice:        SiteBookingTag + b.ID,
	})
	if err != nil {
		log.Error("failed to mirror booking to smoobu", "error", err.Error())
		return err
	}

	b.ExternalID = strconv.FormatInt(id, 10)
	if err := s.store.SaveBooking(ctx, b); err != nil {
		log.Error("failed to store smoobu reservation id", "smoobu_id", id, "error", err.Error())
		return err
	}
	log.Info("booking mirrored to smoobu", "smoobu_id", id)
	return nil
}

// removeFromChannel cancels the Smoobu mirror of a site or admin booking.
func (s *Service) removeFromChannel(ctx context.Context, b *models.Booking) error {
	if s.channel == nil || !s.channel.Enabled() || b.ExternalID == "" {
		return nil
	}
	id, err := strconv.ParseInt(b.ExternalID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid smoobu reservation id %q: %w", b.ExternalID, err)
	}
	return s.channel.CancelReservation(ctx, id)
}

func (s *Service) contact(ctx context.Context) models.ContactSettings {
	c, err := s.store.GetContactSettings(ctx)
	if err != nil || c == nil {
		return models.ContactSettings{}
	}
	return *c
}

func (s *Service) adminRecipients(ctx context.Context) []string {
	if s.cfg.AdminNotifyEmail != "" {
		return []string{s.cfg.AdminNotifyEmail}
	}
	if c := s.contact(ctx); c.Email != "" {
		return []string{c.Email}
	}
	return nil
}

func (s *Service) send(ctx context.Context, msg email.Message) {
	if s.mailer == nil || len(msg.To) == 0 {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.WithContext(ctx).Error("failed to send email", "template", msg.Template, "error", err.Error())
	}
}

func (s *Service) money(amount int64, currency string) string {
	if currency == "" {
		currency = s.cfg.Property.Currency
	}
	return email.FormatMoney(amount, currency)
}

// ManageURL is the tokenized link that lets a guest without an account see
// and cancel a booking.
func (s *Service) ManageURL(b *models.Booking) string {
	if s.links == nil {
		return s.cfg.SiteURL + "/account"
	}
	token, err := s.links.Sign(b.ID, b.GuestEmail)
	if err != nil {
		s.logger.Error("failed to sign manage link", "booking_id", b.ID, "error", err.Error())
		return s.cfg.SiteURL + "/account"
	}
	return s.cfg.SiteURL + "/manage?token=" + token
}

func (s *Service) sendConfirmation(ctx context.Context, b *models.Booking, room *models.Room) {
	contact := s.contact(ctx)
	data := map[string]any{
		"GuestName":    b.GuestName,
		"Room":         room.Name,
		"CheckIn":      b.CheckIn.String(),
		"CheckOut":     b.CheckOut.String(),
		"CheckInTime":  s.cfg.Property.CheckIn,
		"CheckOutTime": s.cfg.Property.CheckOut,
		"Nights":       b.Nights(),
		"Guests":       b.Guests,
		"Total":        s.money(b.TotalAmount, b.Currency),
		"ManageURL":    s.ManageURL(b),
		"ContactEmail": contact.Email,
		"ContactPhone": contact.Phone,
	}
	if deadline := s.FreeCancelDeadline(b); !deadline.Before(s.Today()) {
		data["FreeCancelUntil"] = deadline.String()
	}
	s.send(ctx, email.Message{
		To:       []string{b.GuestEmail},
		ReplyTo:  contact.Email,
		Template: email.TemplateBookingConfirmed,
		Data:     data,
	})
}

func (s *Service) notifyAdminNewBooking(ctx context.Context, b *models.Booking, room *models.Room, channelErr error) {
	data := map[string]any{
		"BookingID":  b.ID,
		"Room":       room.Name,
		"CheckIn":    b.CheckIn.String(),
		"CheckOut":   b.CheckOut.String(),
		"Nights":     b.Nights(),
		"GuestName":  b.GuestName,
		"GuestEmail": b.GuestEmail,
		"GuestPhone": b.GuestPhone,
		"Guests":     b.Guests,
		"Total":      s.money(b.TotalAmount, b.Currency),
		"Notes":      b.Notes,
	}
	if channelErr != nil {
		data["SmoobuError"] = channelErr.Error()
	}
	s.send(ctx, email.Message{
		To:       s.adminRecipients(ctx),
		ReplyTo:  b.GuestEmail,
		Template: email.TemplateAdminNewBooking,
		Data:     data,
	})
}

func (s *Service) sendCancellation(ctx context.Context, b *models.Booking, room *models.Room, refunded int64) {
	if b.GuestEmail == "" {
		return
	}
	data := map[string]any{
		"GuestName": b.GuestName,
		"Room":      room.Name,
		"CheckIn":   b.CheckIn.String(),
		"CheckOut":  b.CheckOut.String(),
		"Reason":    b.CancelReason,
	}
	if refunded > 0 {
		data["Refund"] = s.money(refunded, b.Currency)
	}
	s.send(ctx, email.Message{
		To:       []string{b.GuestEmail},
		ReplyTo:  s.contact(ctx).Email,
		Template: email.TemplateBookingCancelled,
		Data:     data,
	})
}

func (s *Service) alertPaymentConflict(ctx context.Context, b *models.Booking, room *models.Room, reason string, refundErr error) {
	msg := fmt.Sprintf("A payment for booking %s (%s) could not be honoured: %s.", b.ID, b.GuestEmail, reason)
	if refundErr != nil {
		msg += " The automatic refund failed, refund it from the Stripe dashboard."
	} else {
		msg += " The guest was refunded automatically."
	}
	s.send(ctx, email.Message{
		To:       s.adminRecipients(ctx),
		Template: email.TemplateConflictAlert,
		Data: map[string]any{
			"Reason": msg,
			"Conflicts": []map[string]string{{
				"Room":   room.Name,
				"First":  fmt.Sprintf("%s %s to %s", b.ID, b.CheckIn, b.CheckOut),
				"Second": "existing booking",
			}},
		},
	})
}
