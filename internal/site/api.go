package site

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/email"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/storage"
)

const (
	maxNameChars    = 120
	maxMessageChars = 5000
)

// ListRooms handles GET /api/rooms.
func (s *Site) ListRooms(c *gin.Context) {
	cards, err := s.roomCards(c.Request.Context())
	if err != nil {
		s.logger.WithContext(c.Request.Context()).Error("failed to list rooms", "error", err.Error())
		apierrors.Internal(c, "failed to list rooms", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": cards})
}

// RoomBySlug handles GET /api/rooms/slug/:slug.
func (s *Site) RoomBySlug(c *gin.Context) {
	ctx := c.Request.Context()
	room, err := s.publicRoom(ctx, c.Param("slug"))
	if errors.Is(err, storage.ErrNotFound) {
		apierrors.NotFound(c, "room not found", nil)
		return
	}
	if err == nil {
		var card RoomCard
		if card, err = s.card(ctx, *room); err == nil {
			c.JSON(http.StatusOK, card)
			return
		}
	}
	s.logger.WithContext(ctx).Error("failed to load room", "slug", c.Param("slug"), "error", err.Error())
	apierrors.Internal(c, "failed to load room", nil)
}

// ContactRequest is a message from the contact form. Website is a honeypot
// that people never fill in.
type ContactRequest struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Phone   string `json:"phone" form:"phone"`
	Dates   string `json:"dates" form:"dates"`
	Message string `json:"message" form:"message"`
	Website string `json:"website" form:"website"`
}

func (r *ContactRequest) normalize() (string, string) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Dates = strings.TrimSpace(r.Dates)
	r.Message = strings.TrimSpace(r.Message)

	switch {
	case r.Name == "" || utf8.RuneCountInString(r.Name) > maxNameChars:
		return "name", "please tell us your name"
	case r.Message == "":
		return "message", "please write a message"
	case utf8.RuneCountInString(r.Message) > maxMessageChars:
		return "message", "the message is too long"
	case utf8.RuneCountInString(r.Phone) > 32 || utf8.RuneCountInString(r.Dates) > 120:
		return "phone", "phone or dates are too long"
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil {
		return "email", "please enter a valid email address"
	}
	r.Email = addr.Address
	return "", ""
}

func (s *Site) adminRecipients(c *gin.Context) []string {
	if s.cfg.AdminNotifyEmail != "" {
		return []string{s.cfg.AdminNotifyEmail}
	}
	if contact := s.contact(c.Request.Context()); contact.Email != "" {
		return []string{contact.Email}
	}
	return nil
}

// SubmitContact handles POST /api/contact.
func (s *Site) SubmitContact(c *gin.Context) {
	ctx := c.Request.Context()
	log := s.logger.WithContext(ctx)

	var req ContactRequest
	if err := c.ShouldBind(&req); err != nil {
		apierrors.BadRequest(c, "invalid message", nil)
		return
	}
	if req.Website != "" {
		log.Info("contact form honeypot filled, dropping message")
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
		return
	}
	if field, msg := req.normalize(); field != "" {
		apierrors.BadRequest(c, msg, map[string]interface{}{"field": field})
		return
	}

	to := s.adminRecipients(c)
	if len(to) == 0 {
		log.Error("contact form has no recipient, set ADMIN_NOTIFY_EMAIL or the contact email")
		apierrors.Internal(c, "the message could not be delivered, please email us directly", nil)
		return
	}
	err := s.mailer.Send(ctx, email.Message{
		To:       to,
		ReplyTo:  req.Email,
		Template: email.TemplateContactMessage,
		Data: map[string]any{
			"Name":    req.Name,
			"Email":   req.Email,
			"Phone":   req.Phone,
			"Dates":   req.Dates,
			"Message": req.Message,
		},
	})
	if err != nil {
		log.Error("failed to send contact message", "error", err.Error())
		apierrors.BadGateway(c, "the message could not be delivered, please try again", nil)
		return
	}
	log.Info("contact message sent")
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}
