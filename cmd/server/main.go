package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/casaolivo/bnb-server/internal/account"
	"github.com/casaolivo/bnb-server/internal/admin"
	"github.com/casaolivo/bnb-server/internal/auth"
	"github.com/casaolivo/bnb-server/internal/booking"
	"github.com/casaolivo/bnb-server/internal/channelsync"
	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/email"
	"github.com/casaolivo/bnb-server/internal/logger"
	"github.com/casaolivo/bnb-server/internal/otp"
	"github.com/casaolivo/bnb-server/internal/ratelimit"
	"github.com/casaolivo/bnb-server/internal/reviews"
	"github.com/casaolivo/bnb-server/internal/site"
	"github.com/casaolivo/bnb-server/internal/smoobu"
	"github.com/casaolivo/bnb-server/internal/storage"
	"github.com/casaolivo/bnb-server/internal/storage/firestoredb"
	"github.com/casaolivo/bnb-server/internal/storage/memory"
	"github.com/casaolivo/bnb-server/internal/stripe"
)

// manageLinkTTL outlives any stay that can be booked.
const manageLinkTTL = 2 * 365 * 24 * time.Hour

func fatal(log *logger.Logger, msg string, err error) {
	log.Error(msg, "error", err.Error())
	os.Exit(1)
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using the in-memory store, data is lost on restart")
		return memory.New(), nil
	case "firestore":
		log.Info("connecting to Firestore", "project_id", cfg.FirebaseProjectID)
		return firestoredb.Open(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
	default:
		return nil, errors.New("STORE_BACKEND must be firestore or memory")
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, log *logger.Logger) (auth.Verifier, error) {
	if cfg.FirebaseProjectID == "" {
		log.Warn("FIREBASE_PROJECT_ID is empty, sign-in is disabled")
		return auth.DisabledVerifier{}, nil
	}
	return auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
}

// newManageTokens falls back to a per-process secret, so manage links keep
// working in development but die with the process.
func newManageTokens(cfg *config.Config, log *logger.Logger) (*auth.ManageTokens, error) {
	secret := cfg.ManageTokenSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)
		log.Warn("MANAGE_TOKEN_SECRET is empty, manage links are valid until restart")
	}
	return auth.NewManageTokens(secret, manageLinkTTL)
}

func newMailer(cfg *config.Config, log *logger.Logger) (email.Mailer, error) {
	renderer, err := email.NewRenderer(cfg.Property.Name)
	if err != nil {
		return nil, err
	}
	if cfg.ResendAPIKey == "" {
		return email.NewLogMailer(renderer, log), nil
	}
	return email.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFrom, renderer, log), nil
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("setting gin mode", "mode", cfg.GinMode)
	gin.SetMode(cfg.GinMode)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		fatal(log, "failed to open store", err)
	}
	defer store.Close()

	verifier, err := newVerifier(ctx, cfg, log)
	if err != nil {
		fatal(log, "failed to initialize Firebase auth", err)
	}
	manageTokens, err := newManageTokens(cfg, log)
	if err != nil {
		fatal(log, "failed to initialize manage links", err)
	}
	mailer, err := newMailer(cfg, log)
	if err != nil {
		fatal(log, "failed to initialize email", err)
	}

	// Initialize services
	stripeService := stripe.NewService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)
	smoobuClient := smoobu.NewClient(cfg.SmoobuBaseURL, cfg.SmoobuAPIKey, log)
	bookingService := booking.NewService(booking.Dependencies{
		Store:    store,
		Payments: stripeService,
		Mailer:   mailer,
		Channel:  smoobuClient,
		Links:    manageTokens,
		Logger:   log,
	}, cfg)
	stripeService.SetEventHandler(bookingService)
	reviewService := reviews.NewService(store, cfg.Booking.ReviewMaxBodyChars, cfg.Location(), log)
	syncer := channelsync.NewSyncer(store, smoobuClient, mailer, cfg, log)
	codes := otp.New(store, otp.Config{
		TTL:         cfg.Booking.OTPTTL,
		MaxAttempts: cfg.Booking.OTPMaxAttempts,
		Cooldown:    cfg.Booking.OTPResendCooldown,
	})

	scheduler, err := channelsync.NewScheduler(cfg, syncer, bookingService, log)
	if err != nil {
		fatal(log, "failed to initialize scheduler", err)
	}

	// Initialize handlers
	authMiddleware := auth.NewMiddleware(verifier, store, cfg, cfg.SessionCookieName, log)
	h := handlers{
		auth:     auth.NewHandler(authMiddleware, time.Duration(cfg.SessionCookieDays)*24*time.Hour, cfg.SiteURL),
		booking:  booking.NewHandler(bookingService, log),
		account:  account.NewHandler(bookingService, store, manageTokens, log),
		reviews:  reviews.NewHandler(reviewService, log),
		stripe:   stripe.NewHandler(stripeService, log),
		channels: channelsync.NewHandler(syncer, bookingService, cfg.CronSecret, cfg.SmoobuWebhookToken, log),
		admin: admin.NewHandler(admin.Dependencies{
			Store:    store,
			Bookings: bookingService,
			Syncer:   syncer,
			Codes:    codes,
			Mailer:   mailer,
			Logger:   log,
		}, cfg),
		site: site.New(site.Dependencies{
			Store:    store,
			Bookings: bookingService,
			Reviews:  reviewService,
			Mailer:   mailer,
			Logger:   log,
		}, cfg),
	}
	limits := limiters{
		bookings: ratelimit.PerHour("bookings", cfg.Booking.BookingsPerHour),
		contact:  ratelimit.PerHour("contact", cfg.Booking.ContactPerHour),
		auth:     ratelimit.PerHour("auth", 60),
	}
	for _, l := range []*ratelimit.Limiter{limits.bookings, limits.contact, limits.auth} {
		go l.Run(ctx, 10*time.Minute)
	}

	router, err := setupRouter(log, authMiddleware, h, limits)
	if err != nil {
		fatal(log, "failed to set up routes", err)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   splitOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler.Start()
	go func() {
		log.Info("server listening",
			"port", cfg.Port,
			"store", cfg.StoreBackend,
			"payments", stripeService.Enabled(),
			"channel_sync", syncer.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "failed to start server", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err.Error())
	}
	log.Info("server exited")
}
