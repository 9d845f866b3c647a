package config

import (
	"errors"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string
	SiteURL string

	// Storage: "firestore" in production, "memory" for local development.
	StoreBackend      string
	FirebaseProjectID string
	FirebaseCredJSON  string

	// Auth
	AdminEmails       []string
	SessionCookieName string
	SessionCookieDays int
	ManageTokenSecret string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Resend
	ResendAPIKey     string
	EmailFrom        string
	AdminNotifyEmail string

	// Smoobu channel manager
	SmoobuAPIKey       string
	SmoobuBaseURL      string
	SmoobuWebhookToken string
	SmoobuSyncEnabled  bool
	SmoobuSyncSchedule string

	// Shared secret for external schedulers calling /api/cron/*.
	CronSecret string

	// Server
	ServerShutdownTimeoutSeconds int
	CORSAllowedOrigins           string

	// Logging
	LogLevel  string
	LogFormat string

	// Loaded from the YAML config file.
	Property PropertyConfig `yaml:"property"`
	Booking  BookingPolicy  `yaml:"booking"`
	Channels ChannelConfig  `yaml:"channels"`
}

// PropertyConfig describes the house itself.
type PropertyConfig struct {
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
	Currency string `yaml:"currency"`
	CheckIn  string `yaml:"check_in"`
	CheckOut string `yaml:"check_out"`
}

// BookingPolicy holds the rules the booking flow enforces on the site.
type BookingPolicy struct {
	HoldTTL            time.Duration `yaml:"hold_ttl"`
	MaxNights          int           `yaml:"max_nights"`
	MaxAdvanceDays     int           `yaml:"max_advance_days"`
	FreeCancelDays     int           `yaml:"free_cancel_days"`
	SyncWindowDays     int           `yaml:"sync_window_days"`
	OTPTTL             time.Duration `yaml:"otp_ttl"`
	OTPMaxAttempts     int           `yaml:"otp_max_attempts"`
	OTPResendCooldown  time.Duration `yaml:"otp_resend_cooldown"`
	ContactPerHour     int           `yaml:"contact_per_hour"`
	BookingsPerHour    int           `yaml:"bookings_per_hour"`
	ReviewMaxBodyChars int           `yaml:"review_max_body_chars"`
}

// ChannelConfig maps Smoobu channel IDs to our channel names. Smoobu's IDs
// differ per account, names are used as a fallback.
type ChannelConfig struct {
	SmoobuChannelIDs map[string]int `yaml:"smoobu_channel_ids"`
	// SmoobuSiteChannelID is used when pushing site bookings to Smoobu.
	SmoobuSiteChannelID int `yaml:"smoobu_site_channel_id"`
}

var AppConfig *Config

// Defaults returns a config with every policy value set. LoadConfig starts from it.
func Defaults() *Config {
	return &Config{
		Port:                         "8080",
		GinMode:                      "release",
		SiteURL:                      "http://localhost:8080",
		StoreBackend:                 "firestore",
		SessionCookieName:            "__session",
		SessionCookieDays:            5,
		SmoobuBaseURL:                "https://login.smoobu.com/api",
		SmoobuSyncSchedule:           "@every 15m",
		ServerShutdownTimeoutSeconds: 20,
		LogLevel:                     "info",
		LogFormat:                    "text",
		Property: PropertyConfig{
			Name:     "Casa Olivo",
			Timezone: "Europe/Rome",
			Currency: "eur",
			CheckIn:  "15:00",
			CheckOut: "10:30",
		},
		Booking: BookingPolicy{
			HoldTTL:            30 * time.Minute,
			MaxNights:          28,
			MaxAdvanceDays:     540,
			FreeCancelDays:     14,
			SyncWindowDays:     365,
			OTPTTL:             10 * time.Minute,
			OTPMaxAttempts:     5,
			OTPResendCooldown:  time.Minute,
			ContactPerHour:     5,
			BookingsPerHour:    10,
			ReviewMaxBodyChars: 2000,
		},
	}
}

func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Defaults()
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.GinMode = getEnvOrDefault("GIN_MODE", cfg.GinMode)
	cfg.SiteURL = strings.TrimRight(getEnvOrDefault("SITE_URL", cfg.SiteURL), "/")

	cfg.StoreBackend = getEnvOrDefault("STORE_BACKEND", cfg.StoreBackend)
	cfg.FirebaseProjectID = getEnvOrDefault("FIREBASE_PROJECT_ID", "")
	cfg.FirebaseCredJSON = getEnvOrDefault("FIREBASE_CRED_JSON", "")

	cfg.AdminEmails = splitList(getEnvOrDefault("ADMIN_EMAILS", ""))
	cfg.SessionCookieName = getEnvOrDefault("SESSION_COOKIE_NAME", cfg.SessionCookieName)
	cfg.SessionCookieDays = getEnvAsInt("SESSION_COOKIE_DAYS", cfg.SessionCookieDays)
	cfg.ManageTokenSecret = getEnvOrDefault("MANAGE_TOKEN_SECRET", "")

	// Trim whitespace, pasted keys often carry a trailing newline.
	cfg.StripeSecretKey = strings.TrimSpace(getEnvOrDefault("STRIPE_SECRET_KEY", ""))
	cfg.StripeWebhookSecret = strings.TrimSpace(getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""))

	cfg.ResendAPIKey = strings.TrimSpace(getEnvOrDefault("RESEND_API_KEY", ""))
	cfg.EmailFrom = getEnvOrDefault("EMAIL_FROM", "Casa Olivo <bookings@casaolivo.it>")
	cfg.AdminNotifyEmail = getEnvOrDefault("ADMIN_NOTIFY_EMAIL", "")

	cfg.SmoobuAPIKey = strings.TrimSpace(getEnvOrDefault("SMOOBU_API_KEY", ""))
	cfg.SmoobuBaseURL = strings.TrimRight(getEnvOrDefault("SMOOBU_BASE_URL", cfg.SmoobuBaseURL), "/")
	cfg.SmoobuWebhookToken = getEnvOrDefault("SMOOBU_WEBHOOK_TOKEN", "")
	cfg.SmoobuSyncEnabled = getEnvAsBool("SMOOBU_SYNC_ENABLED", true)
	cfg.SmoobuSyncSchedule = getEnvOrDefault("SMOOBU_SYNC_SCHEDULE", cfg.SmoobuSyncSchedule)

	cfg.CronSecret = getEnvOrDefault("CRON_SECRET", "")

	cfg.ServerShutdownTimeoutSeconds = getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", cfg.ServerShutdownTimeoutSeconds)
	cfg.CORSAllowedOrigins = getEnvOrDefault("CORS_ALLOWED_ORIGINS", cfg.SiteURL)

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	// The YAML file only carries property and policy settings; it is optional.
	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using built-in property defaults", configFilePath)
	case err != nil:
		log.Fatalf("Failed to open config file: %v", err)
	default:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			log.Fatalf("Failed to load config file: %v", err)
		}
	}

	if cfg.StoreBackend == "firestore" && cfg.FirebaseProjectID == "" {
		log.Println("Warning: Firebase project ID is missing. Please set FIREBASE_PROJECT_ID environment variable.")
	}
	if cfg.ManageTokenSecret == "" {
		log.Println("Warning: MANAGE_TOKEN_SECRET is empty, manage-booking links are disabled.")
	}
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		log.Println("Warning: Stripe credentials are missing. Please set STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET environment variables.")
	} else {
		keyPrefix := cfg.StripeSecretKey
		if len(keyPrefix) > 12 {
			keyPrefix = keyPrefix[:12] + "..."
		}
		log.Printf("Stripe configured: key=%s (length=%d)", keyPrefix, len(cfg.StripeSecretKey))
	}
	if cfg.ResendAPIKey == "" {
		log.Println("Warning: Resend API key is missing, emails will only be logged.")
	}
	if cfg.SmoobuAPIKey == "" {
		log.Println("Warning: Smoobu API key is missing, channel sync is disabled.")
	}
	if cfg.CronSecret == "" {
		log.Println("Warning: CRON_SECRET is empty, /api/cron endpoints will reject every call.")
	}
	if len(cfg.AdminEmails) == 0 {
		log.Println("Warning: ADMIN_EMAILS is empty, only users with the admin claim can open the console.")
	}

	AppConfig = cfg
}

// LoadConfigFile decodes YAML settings on top of config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return err
	}
	return nil
}

// Location returns the property timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Property.Timezone)
	if err != nil {
		log.Printf("Warning: invalid property timezone %q, using UTC: %v", c.Property.Timezone, err)
		return time.UTC
	}
	return loc
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
