package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings is the process configuration. It is read once at start and not
// mutated afterwards.
type Settings struct {
	AppName     string
	Environment string
	Port        string

	APIURL string
	AppURL string

	SupabaseURL         string
	SupabaseAnonKey     string
	SupabaseServiceKey  string
	SupabaseJWTSecret   string
	SupabaseJWTIssuer   string
	SupabaseJWTAudience string

	AdminEmail    string
	WhitelistMode bool
	CORSOrigins   []string

	StripeEnabled       bool
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceMonthly  string
	StripePriceYearly   string

	AnalyticsEnabled bool
	RateLimit        string
	LogLevel         string

	// Backend stores. Only gin-server needs them.
	PostgresURI string
	RedisAddr   string // host:port or redis:// URL
	MongoURI    string
	MongoDB     string
}

// Load reads Settings from the environment. Call godotenv.Load first if a
// .env file should be honoured.
func Load() Settings {
	s := Settings{
		AppName:     getenv("APP_NAME", "SaaS Boilerplate"),
		Environment: getenv("ENVIRONMENT", "development"),
		Port:        getenv("PORT", "8000"),

		APIURL: getenv("API_URL", "http://localhost:8000"),
		AppURL: strings.TrimRight(getenv("APP_URL", "http://localhost:5173"), "/"),

		SupabaseURL:         strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:     os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceKey:  os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseJWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		SupabaseJWTIssuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
		SupabaseJWTAudience: os.Getenv("SUPABASE_JWT_AUDIENCE"),

		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		WhitelistMode: getbool("WHITELIST_MODE"),
		CORSOrigins:   splitList(os.Getenv("CORS_ORIGINS")),

		StripeEnabled:       getbool("STRIPE_ENABLED"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceMonthly:  os.Getenv("STRIPE_PRICE_ID_MONTHLY"),
		StripePriceYearly:   os.Getenv("STRIPE_PRICE_ID_YEARLY"),

		AnalyticsEnabled: getbool("ANALYTICS_ENABLED"),
		RateLimit:        getenv("RATE_LIMIT", "100/minute"),
		LogLevel:         os.Getenv("LOG_LEVEL"),

		PostgresURI: os.Getenv("POSTGRES_URI"),
		RedisAddr:   firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDB:     getenv("MONGO_DB", "launchkit"),
	}
	if s.SupabaseJWTSecret == "" {
		s.SupabaseJWTSecret = os.Getenv("JWT_SECRET")
	}
	return s
}

// Validate checks the values a deployment cannot run without. The returned
// warnings describe optional features that are switched off.
func (s Settings) Validate() (warnings []string, err error) {
	var errs []error

	if s.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL: missing required variable"))
	} else if u, perr := url.Parse(s.SupabaseURL); perr != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, errors.New("SUPABASE_URL: must be an absolute http(s) URL"))
	}
	if s.SupabaseAnonKey == "" {
		errs = append(errs, errors.New("SUPABASE_ANON_KEY: missing required variable"))
	}
	if s.SupabaseServiceKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_KEY: missing required variable"))
	}
	if len(s.SupabaseJWTSecret) < 32 {
		errs = append(errs, errors.New("SUPABASE_JWT_SECRET: should be at least 32 characters"))
	}
	if s.AdminEmail == "" {
		errs = append(errs, errors.New("ADMIN_EMAIL: missing required variable"))
	} else if _, perr := mail.ParseAddress(s.AdminEmail); perr != nil {
		errs = append(errs, errors.New("ADMIN_EMAIL: invalid email format"))
	}
	for _, key := range []string{"WHITELIST_MODE", "STRIPE_ENABLED", "ANALYTICS_ENABLED"} {
		if v := os.Getenv(key); v != "" && v != "true" && v != "false" {
			errs = append(errs, fmt.Errorf("%s: must be either \"true\" or \"false\"", key))
		}
	}
	if _, _, perr := ParseRateLimit(s.RateLimit); perr != nil {
		errs = append(errs, fmt.Errorf("RATE_LIMIT: %w", perr))
	}

	if s.StripeEnabled {
		if s.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY: required when STRIPE_ENABLED is true"))
		} else if !strings.HasPrefix(s.StripeSecretKey, "sk_") {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY: invalid Stripe secret key format"))
		}
		if s.StripePriceMonthly == "" && s.StripePriceYearly == "" {
			errs = append(errs, errors.New("STRIPE_PRICE_ID_MONTHLY/STRIPE_PRICE_ID_YEARLY: at least one price is required"))
		}
	} else {
		warnings = append(warnings, "Stripe is disabled. Payment features won't be available.")
	}
	if !s.AnalyticsEnabled {
		warnings = append(warnings, "Analytics is not configured.")
	}

	return warnings, errors.Join(errs...)
}

// IsProduction reports whether the deployment runs with production defaults.
func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// ParseRateLimit parses "<n>/<second|minute|hour>" into events per second
// and a burst size equal to n.
func ParseRateLimit(v string) (perSecond float64, burst int, err error) {
	n, unit, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate %q, want <n>/<unit>", v)
	}
	count, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("invalid rate count %q", n)
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "second", "s":
		window = time.Second
	case "minute", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate unit %q", unit)
	}
	return float64(count) / window.Seconds(), count, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getbool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
