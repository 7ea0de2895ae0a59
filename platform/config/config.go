// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings shared by the api and scheduler binaries.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// TimerConfig provides background timer cadence and per-tick limits.
type TimerConfig interface {
	GetDispatchInterval() time.Duration
	GetReplyScanInterval() time.Duration
	GetCaptureScanInterval() time.Duration
	GetCampaignInterval() time.Duration
	GetDispatchBatchSize() int
	GetDispatchParallelism() int
	GetDispatchRatePerSecond() float64
	GetExternalCallTimeout() time.Duration
}

// DeliveryConfig provides settings for outbound mail delivery.
type DeliveryConfig interface {
	GetDeliveryProvider() string
	GetSendGridAPIKey() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetFromAddress() string
	GetFromName() string
}

// GoogleOAuthConfig provides the OAuth client used for the Gmail inbox.
type GoogleOAuthConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleRedirectURL() string
	IsGoogleOAuthEnabled() bool
}

// IMAPConfig provides settings for the IMAP inbox.
type IMAPConfig interface {
	GetIMAPHost() string
	GetIMAPPort() int
	GetIMAPUsername() string
	GetIMAPPassword() string
	GetIMAPTLS() bool
	GetIMAPSentMailbox() string
}

// InboxConfig selects the inbox provider.
type InboxConfig interface {
	GetInboxProvider() string
	GoogleOAuthConfig
	IMAPConfig
}

// ClassifierConfig provides settings for reply classification.
type ClassifierConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	IsClassifierEnabled() bool
}

// DirectoryConfig provides settings for the contact directory.
type DirectoryConfig interface {
	GetHubSpotAccessToken() string
	GetHubSpotBaseURL() string
	IsDirectoryEnabled() bool
}

// ArchiveConfig provides settings for raw reply archiving in MinIO.
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOBucketReplies() string
	IsArchiveEnabled() bool
}

// CaptureConfig provides settings for inbox scans and parsing.
type CaptureConfig interface {
	GetEnrollmentDomain() string
	GetSelfAddresses() []string
	GetCaptureQuery() string
	GetReplyQuery() string
	GetScanMaxResults() int
	GetReplyBodyLimit() int
}

// SecretConfig provides the key used to encrypt stored OAuth tokens.
type SecretConfig interface {
	GetTokenEncryptionKey() string
}

// WebhookConfig provides the shared key for provider event callbacks.
type WebhookConfig interface {
	GetDeliveryWebhookKey() string
}

// =============================================================================
// Full Config Struct
// =============================================================================

// Config holds every setting. Modules should depend on the narrow interfaces above.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	DBMaxConns      int32
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string
	CORSAllowCreds  bool

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	DispatchInterval      time.Duration
	ReplyScanInterval     time.Duration
	CaptureScanInterval   time.Duration
	CampaignInterval      time.Duration
	DispatchBatchSize     int
	DispatchParallelism   int
	DispatchRatePerSecond float64
	ExternalCallTimeout   time.Duration

	DeliveryProvider string
	SendGridAPIKey   string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	FromAddress      string
	FromName         string

	InboxProvider      string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	IMAPHost           string
	IMAPPort           int
	IMAPUsername       string
	IMAPPassword       string
	IMAPTLS            bool
	IMAPSentMailbox    string

	GeminiAPIKey string
	GeminiModel  string

	HubSpotAccessToken string
	HubSpotBaseURL     string

	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinIOBucketReplies string

	EnrollmentDomain string
	SelfAddresses    []string
	CaptureQuery     string
	ReplyQuery       string
	ScanMaxResults   int
	ReplyBodyLimit   int

	TokenEncryptionKey string
	DeliveryWebhookKey string
}

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DBMaxConns }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool    { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetDispatchInterval() time.Duration    { return c.DispatchInterval }
func (c *Config) GetReplyScanInterval() time.Duration   { return c.ReplyScanInterval }
func (c *Config) GetCaptureScanInterval() time.Duration { return c.CaptureScanInterval }
func (c *Config) GetCampaignInterval() time.Duration    { return c.CampaignInterval }
func (c *Config) GetDispatchBatchSize() int             { return c.DispatchBatchSize }
func (c *Config) GetDispatchParallelism() int           { return c.DispatchParallelism }
func (c *Config) GetDispatchRatePerSecond() float64     { return c.DispatchRatePerSecond }
func (c *Config) GetExternalCallTimeout() time.Duration { return c.ExternalCallTimeout }

func (c *Config) GetDeliveryProvider() string { return c.DeliveryProvider }
func (c *Config) GetSendGridAPIKey() string   { return c.SendGridAPIKey }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetFromAddress() string      { return c.FromAddress }
func (c *Config) GetFromName() string         { return c.FromName }

func (c *Config) GetInboxProvider() string      { return c.InboxProvider }
func (c *Config) GetGoogleClientID() string     { return c.GoogleClientID }
func (c *Config) GetGoogleClientSecret() string { return c.GoogleClientSecret }
func (c *Config) GetGoogleRedirectURL() string  { return c.GoogleRedirectURL }

// IsGoogleOAuthEnabled reports whether the Gmail OAuth client is configured.
func (c *Config) IsGoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

func (c *Config) GetIMAPHost() string        { return c.IMAPHost }
func (c *Config) GetIMAPPort() int           { return c.IMAPPort }
func (c *Config) GetIMAPUsername() string    { return c.IMAPUsername }
func (c *Config) GetIMAPPassword() string    { return c.IMAPPassword }
func (c *Config) GetIMAPTLS() bool           { return c.IMAPTLS }
func (c *Config) GetIMAPSentMailbox() string { return c.IMAPSentMailbox }

func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string  { return c.GeminiModel }
func (c *Config) IsClassifierEnabled() bool {
	return c.GeminiAPIKey != ""
}

func (c *Config) GetHubSpotAccessToken() string { return c.HubSpotAccessToken }
func (c *Config) GetHubSpotBaseURL() string     { return c.HubSpotBaseURL }
func (c *Config) IsDirectoryEnabled() bool {
	return c.HubSpotAccessToken != ""
}

func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinIOBucketReplies() string { return c.MinIOBucketReplies }
func (c *Config) IsArchiveEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetEnrollmentDomain() string { return c.EnrollmentDomain }
func (c *Config) GetSelfAddresses() []string  { return c.SelfAddresses }
func (c *Config) GetCaptureQuery() string     { return c.CaptureQuery }
func (c *Config) GetReplyQuery() string       { return c.ReplyQuery }
func (c *Config) GetScanMaxResults() int      { return c.ScanMaxResults }
func (c *Config) GetReplyBodyLimit() int      { return c.ReplyBodyLimit }

func (c *Config) GetTokenEncryptionKey() string { return c.TokenEncryptionKey }
func (c *Config) GetDeliveryWebhookKey() string { return c.DeliveryWebhookKey }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	fromAddress := getEnv("FROM_EMAIL", "noreply@example.com")
	selfAddresses := splitCSV(getEnv("SELF_ADDRESSES", ""))
	if len(selfAddresses) == 0 {
		selfAddresses = []string{fromAddress}
	}

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxConns:      int32(mustInt(getEnv("DB_MAX_CONNS", "10"))),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "nurture"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),

		DispatchInterval:      mustDuration(getEnv("DISPATCH_INTERVAL", "60s")),
		ReplyScanInterval:     mustDuration(getEnv("REPLY_SCAN_INTERVAL", "5m")),
		CaptureScanInterval:   mustDuration(getEnv("CAPTURE_SCAN_INTERVAL", "5m")),
		CampaignInterval:      mustDuration(getEnv("CAMPAIGN_INTERVAL", "60s")),
		DispatchBatchSize:     mustInt(getEnv("DISPATCH_BATCH_SIZE", "100")),
		DispatchParallelism:   mustInt(getEnv("DISPATCH_PARALLELISM", "4")),
		DispatchRatePerSecond: mustFloat(getEnv("DISPATCH_RATE_PER_SECOND", "5")),
		ExternalCallTimeout:   mustDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "15s")),

		DeliveryProvider: strings.ToLower(getEnv("DELIVERY_PROVIDER", "")),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		FromAddress:      fromAddress,
		FromName:         getEnv("FROM_NAME", "Certification Team"),

		InboxProvider:      strings.ToLower(getEnv("INBOX_PROVIDER", "")),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		IMAPHost:           getEnv("IMAP_HOST", ""),
		IMAPPort:           mustInt(getEnv("IMAP_PORT", "993")),
		IMAPUsername:       getEnv("IMAP_USERNAME", ""),
		IMAPPassword:       getEnv("IMAP_PASSWORD", ""),
		IMAPTLS:            strings.EqualFold(getEnv("IMAP_TLS", "true"), "true"),
		IMAPSentMailbox:    getEnv("IMAP_SENT_MAILBOX", "Sent"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		HubSpotAccessToken: getEnv("HUBSPOT_ACCESS_TOKEN", ""),
		HubSpotBaseURL:     getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),

		MinIOEndpoint:      getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:        strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOBucketReplies: getEnv("MINIO_BUCKET_REPLIES", "raw-replies"),

		EnrollmentDomain: getEnv("ENROLLMENT_DOMAIN", "www.pm-example.com"),
		SelfAddresses:    selfAddresses,
		CaptureQuery:     getEnv("CAPTURE_QUERY", `in:sent subject:"promotion code claim"`),
		ReplyQuery:       getEnv("REPLY_QUERY", "in:inbox"),
		ScanMaxResults:   mustInt(getEnv("SCAN_MAX_RESULTS", "20")),
		ReplyBodyLimit:   mustInt(getEnv("REPLY_BODY_LIMIT", "1000")),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		DeliveryWebhookKey: getEnv("DELIVERY_WEBHOOK_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	switch cfg.DeliveryProvider {
	case "", "sendgrid", "smtp":
	default:
		return nil, fmt.Errorf("DELIVERY_PROVIDER must be one of sendgrid, smtp")
	}
	switch cfg.InboxProvider {
	case "", "gmail", "imap":
	default:
		return nil, fmt.Errorf("INBOX_PROVIDER must be one of gmail, imap")
	}
	if cfg.InboxProvider == "gmail" && cfg.TokenEncryptionKey == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required when INBOX_PROVIDER is gmail")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
