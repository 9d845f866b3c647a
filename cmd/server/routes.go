package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/casaolivo/bnb-server/internal/account"
	"github.com/casaolivo/bnb-server/internal/admin"
	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/channelsync"
	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/metrics"
	"github.com/casaolivo/bnb-server/internal/ratelimit"
	"github.com/casaolivo/bnb-server/internal/reviews"
	"github.com/casaolivo/bnb-server/internal/site"
	"github.com/casaolivo/bnb-server/internal/stripe"
)

type handlers struct {
	auth     *auth.Handler
	booking  *booking.Handler
	account  *account.Handler
	reviews  *reviews.Handler
	stripe   *stripe.Handler
	channels *channelsync.Handler
	admin    *admin.Handler
	site     *site.Site
}

type limiters struct {
	bookings *ratelimit.Limiter
	contact  *ratelimit.Limiter
	auth     *ratelimit.Limiter
}

func setupRouter(log *logger.Logger, mw *auth.Middleware, h handlers, limits limiters) (*gin.Engine, error) {
	tmpl, err := site.Templates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(gin.Recovery(), logger.RequestLoggingMiddleware(log), metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public pages
	pages := router.Group("/", mw.OptionalUser())
	{
		pages.GET("/", h.site.Home)
		pages.GET("/rooms", h.site.Rooms)
		pages.GET("/rooms/:slug", h.site.Room)
		pages.GET("/contact", h.site.Contact)
		pages.GET("/booking/success", h.site.BookingSuccess)
		pages.GET("/booking/cancelled", h.site.BookingCancelled)
		pages.GET("/account", h.site.Account)
		pages.GET("/manage", h.site.Manage)
	}

	api := router.Group("/api")
	{
		api.GET("/rooms", h.site.ListRooms)
		api.GET("/rooms/slug/:slug", h.site.RoomBySlug)
		api.GET("/rooms/:id/quote", h.booking.Quote)
		api.GET("/rooms/:id/calendar", h.booking.Calendar)
		api.POST("/bookings", limits.bookings.Middleware(log), mw.OptionalUser(), h.booking.Create)
		api.GET("/bookings/:id/status", h.booking.Status)
		api.GET("/reviews", h.reviews.Published)
		api.POST("/contact", limits.contact.Middleware(log), h.site.SubmitContact)

		api.GET("/manage", h.account.ManageGet)
		api.POST("/manage/cancel", h.account.ManageCancel)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/session", limits.auth.Middleware(log), h.auth.CreateSession)
			authGroup.POST("/logout", h.auth.Logout)
			authGroup.GET("/me", mw.RequireUser(), h.auth.Me)
		}

		accountGroup := api.Group("/account", mw.RequireUser())
		{
			accountGroup.GET("/profile", h.account.GetProfile)
			accountGroup.PUT("/profile", h.account.UpdateProfile)
			accountGroup.GET("/bookings", h.account.ListBookings)
			accountGroup.POST("/bookings/:id/cancel", h.account.CancelBooking)
			accountGroup.POST("/reviews", h.reviews.Submit)
		}

		adminGroup := api.Group("/admin", mw.RequireAdmin())
		{
			adminGroup.GET("/bookings", h.admin.ListBookings)
			adminGroup.POST("/bookings", h.admin.CreateBooking)
			adminGroup.GET("/bookings/:id", h.admin.GetBooking)
			adminGroup.PATCH("/bookings/:id/status", h.admin.UpdateBookingStatus)
			adminGroup.POST("/bookings/:id/cancel", h.admin.CancelBooking)

			adminGroup.GET("/rooms", h.admin.ListRooms)
			adminGroup.POST("/rooms", h.admin.SaveRoom)
			adminGroup.PUT("/rooms/:id", h.admin.SaveRoom)
			adminGroup.DELETE("/rooms/:id", h.admin.ArchiveRoom)
			adminGroup.GET("/rooms/:id/pricing", h.admin.PreviewPricing)

			adminGroup.GET("/pricing", h.admin.ListPricing)
			adminGroup.POST("/seasons", h.admin.SaveSeason)
			adminGroup.PUT("/seasons/:id", h.admin.SaveSeason)
			adminGroup.DELETE("/seasons/:id", h.admin.DeleteSeason)
			adminGroup.POST("/special-periods", h.admin.SaveSpecialPeriod)
			adminGroup.PUT("/special-periods/:id", h.admin.SaveSpecialPeriod)
			adminGroup.DELETE("/special-periods/:id", h.admin.DeleteSpecialPeriod)
			adminGroup.GET("/overrides", h.admin.ListOverrides)
			adminGroup.PUT("/overrides", h.admin.SaveOverrides)
			adminGroup.DELETE("/overrides/:id", h.admin.DeleteOverride)

			adminGroup.GET("/reviews", h.reviews.List)
			adminGroup.PATCH("/reviews/:id", h.reviews.Moderate)
			adminGroup.POST("/reviews/import", h.reviews.Import)

			adminGroup.GET("/conflicts", h.admin.Conflicts)
			adminGroup.POST("/sync", h.admin.TriggerSync)
			adminGroup.GET("/sync/runs", h.admin.ListSyncRuns)

			adminGroup.GET("/contact", h.admin.GetContact)
			adminGroup.PUT("/contact", h.admin.UpdateAddress)
			adminGroup.POST("/contact/otp", h.admin.RequestContactChange)
			adminGroup.POST("/contact/confirm", h.admin.ConfirmContactChange)
		}

		cron := api.Group("/cron", h.channels.RequireCronSecret())
		{
			cron.POST("/sync", h.channels.RunSync)
			cron.POST("/expire-holds", h.channels.ExpireHolds)
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/stripe", h.stripe.HandleWebhook)
			webhooks.POST("/smoobu", h.channels.SmoobuWebhook)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			apierrors.NotFound(c, "no such endpoint", nil)
			return
		}
		h.site.NotFound(c)
	})

	return router, nil
}
