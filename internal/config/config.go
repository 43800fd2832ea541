package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = "3002"
	defaultDatabaseURL        = "file:lazla.db?_pragma=foreign_keys(1)"
	defaultAccessTTL          = "15m"
	defaultRefreshTTL         = "7d"
	defaultBcryptRounds       = 12
	defaultOTPTTL             = "15m"
	defaultOTPLength          = 6
	defaultRefreshTokenPepper = "change-me-refresh-pepper"
	defaultOTPPepper          = "change-me-otp-pepper"
	defaultCORSOrigins        = "http://localhost:3000"
)

const (
	MailSMTP     = "smtp"
	MailSendGrid = "sendgrid"
	MailConsole  = "console"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	BcryptRounds     int

	RefreshTokenPepper string
	OTPPepper          string
	OTPTTL             time.Duration
	OTPLength          int

	Mail MailConfig

	CookieSecure       bool
	CORSAllowedOrigins []string

	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	RabbitMQURL string
}

type MailConfig struct {
	Provider       string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SMTPSecure     bool
	FromEmail      string
	SendGridAPIKey string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	loadDotenv()
	return FromEnv()
}

// LoadDB is Load for commands that only touch the database. Token, mail and
// rate-limit settings are neither read nor validated.
func LoadDB() (*Config, error) {
	loadDotenv()
	return DBFromEnv()
}

func loadDotenv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("level=warn msg=\"dotenv load failed\" err=%v", err)
	}
}

// DBFromEnv reads APP_ENV, DATABASE_URL and BCRYPT_SALT_ROUNDS.
func DBFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := readStore(cfg); err != nil {
		return nil, err
	}
	if err := validateRounds(cfg.BcryptRounds); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readStore(cfg *Config) error {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("NODE_ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))

	var err error
	cfg.BcryptRounds, err = parseIntEnv("BCRYPT_SALT_ROUNDS", defaultBcryptRounds)
	return err
}

// FromEnv builds the full API config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := readStore(cfg); err != nil {
		return nil, err
	}

	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.JWTAccessSecret = strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET"))
	cfg.JWTRefreshSecret = strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET"))
	cfg.RefreshTokenPepper = strings.TrimSpace(getEnv("REFRESH_TOKEN_PEPPER", defaultRefreshTokenPepper))
	cfg.OTPPepper = strings.TrimSpace(getEnv("OTP_PEPPER", defaultOTPPepper))

	var err error
	if cfg.AccessTTL, err = parseDurationEnv("ACCESS_TOKEN_EXPIRES_IN", defaultAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TOKEN_EXPIRES_IN", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.OTPTTL, err = parseDurationEnv("OTP_TTL", defaultOTPTTL); err != nil {
		return nil, err
	}
	if cfg.OTPLength, err = parseIntEnv("OTP_LENGTH", defaultOTPLength); err != nil {
		return nil, err
	}

	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(getEnv("MAIL_PROVIDER", MailSMTP)))
	cfg.Mail.SMTPHost = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if cfg.Mail.SMTPPort, err = parseIntEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.Mail.SMTPUser = strings.TrimSpace(os.Getenv("SMTP_USER"))
	cfg.Mail.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.Mail.SMTPSecure = parseBoolEnv("SMTP_SECURE", "false")
	cfg.Mail.FromEmail = strings.TrimSpace(getEnv("FROM_EMAIL", cfg.Mail.SMTPUser))
	cfg.Mail.SendGridAPIKey = strings.TrimSpace(os.Getenv("SENDGRID_API_KEY"))

	defaultSecure := "false"
	if isProdLike(cfg.AppEnv) {
		defaultSecure = "true"
	}
	cfg.CookieSecure = parseBoolEnv("COOKIE_SECURE", defaultSecure)
	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins))

	cfg.RateLimitBackend = strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", RateLimitMemory)))
	cfg.RedisAddr = strings.TrimSpace(getEnv("REDIS_ADDR", "localhost:6379"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.RabbitMQURL = strings.TrimSpace(os.Getenv("RABBITMQ_URL"))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("level=info msg=\"config loaded\" env=%s mail=%s rate_limit=%s cookie_secure=%t",
		cfg.AppEnv, cfg.Mail.Provider, cfg.RateLimitBackend, cfg.CookieSecure)

	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production-like environment.
func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET must be set")
	}
	if cfg.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET must be set")
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.AccessTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRES_IN must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRES_IN must be > 0")
	}
	if cfg.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be > 0")
	}
	if err := validateRounds(cfg.BcryptRounds); err != nil {
		return err
	}
	if cfg.OTPLength < 4 || cfg.OTPLength > 12 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 12")
	}

	switch cfg.Mail.Provider {
	case MailSMTP:
		if cfg.Mail.SMTPHost == "" || cfg.Mail.SMTPUser == "" || cfg.Mail.SMTPPass == "" {
			return fmt.Errorf("SMTP_HOST, SMTP_USER and SMTP_PASS must be set when MAIL_PROVIDER=smtp")
		}
	case MailSendGrid:
		if cfg.Mail.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY must be set when MAIL_PROVIDER=sendgrid")
		}
		if cfg.Mail.FromEmail == "" {
			return fmt.Errorf("FROM_EMAIL must be set when MAIL_PROVIDER=sendgrid")
		}
	case MailConsole:
		if isProdLike(cfg.AppEnv) {
			return fmt.Errorf("MAIL_PROVIDER=console is not allowed in prod/release")
		}
	default:
		return fmt.Errorf("MAIL_PROVIDER must be one of: smtp, sendgrid, console")
	}

	switch cfg.RateLimitBackend {
	case RateLimitMemory:
	case RateLimitRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of: memory, redis")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.RefreshTokenPepper, defaultRefreshTokenPepper) {
			return fmt.Errorf("in prod/release REFRESH_TOKEN_PEPPER must be set and not default")
		}
		if isEmptyOrDefault(cfg.OTPPepper, defaultOTPPepper) {
			return fmt.Errorf("in prod/release OTP_PEPPER must be set and not default")
		}
	}

	return nil
}

func validateRounds(rounds int) error {
	if rounds < 4 || rounds > 31 {
		return fmt.Errorf("BCRYPT_SALT_ROUNDS must be between 4 and 31")
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

// ParseDuration accepts Go durations ("15m", "168h"), a day suffix ("7d")
// and bare seconds ("900").
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if strings.HasSuffix(value, "d") {
		n, err := strconv.ParseFloat(strings.TrimSuffix(value, "d"), 64)
		if err != nil {
			return 0, err
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(value)
}

func parseIntEnv(name string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
