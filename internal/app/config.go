package app

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	LogLevel      string
	SentryDSN     string

	// Storage. Empty values select the in-process implementations.
	DatabaseURL string
	NatsURL     string
	AudioBucket string
	RedisAddr   string
	RedisPass   string
	RedisDB     int

	// Voice AI providers
	DeepgramAPIKey   string
	DeepgramModel    string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
	ElevenLabsModel  string
	TTSStability     float64
	TTSSimilarity    float64

	// Voice settings
	DefaultVoiceID string // trained ElevenLabs voice
	FallbackVoice  string // OpenAI stock voice

	// Chat models per tier
	ChatModelBasic    string
	ChatModelAdvanced string

	// JWT Authentication
	JWTSecret string

	// Admin access (X-Admin-Key)
	AdminAPIKey string

	// Guest sessions
	GuestSessionTTL     time.Duration
	GuestReaperSchedule string
	WizardSessionTTL    time.Duration

	// Notifications
	DiscordWebhookURL string
	APNsKeyPath       string
	APNsKeyID         string
	APNsTeamID        string
	APNsBundleID      string
	APNsProduction    bool
}

var defaults = map[string]any{
	"HTTP_ADDR":             ":8080",
	"PUBLIC_BASE_URL":       "http://localhost:8080",
	"LOG_LEVEL":             "info",
	"AUDIO_BUCKET":          "evervoice-audio",
	"REDIS_DB":              0,
	"DEEPGRAM_MODEL":        "nova-3",
	"ELEVENLABS_MODEL":      "eleven_multilingual_v2",
	"TTS_STABILITY":         0.5,
	"TTS_SIMILARITY":        0.75,
	"FALLBACK_VOICE":        "alloy",
	"CHAT_MODEL_BASIC":      "gpt-4o-mini",
	"CHAT_MODEL_ADVANCED":   "gpt-4o",
	"GUEST_SESSION_TTL":     "30m",
	"GUEST_REAPER_SCHEDULE": "@every 1m",
	"WIZARD_SESSION_TTL":    "24h",
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() Config {
	_ = godotenv.Load()
	return LoadConfigFromEnv()
}

// LoadConfigFromEnv reads configuration from the process environment only.
func LoadConfigFromEnv() Config {
	v := viper.New()
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
	}

	return Config{
		HTTPAddr:      v.GetString("HTTP_ADDR"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		SentryDSN:     v.GetString("SENTRY_DSN"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		NatsURL:     v.GetString("NATS_URL"),
		AudioBucket: v.GetString("AUDIO_BUCKET"),
		RedisAddr:   v.GetString("REDIS_ADDR"),
		RedisPass:   v.GetString("REDIS_PASSWORD"),
		RedisDB:     v.GetInt("REDIS_DB"),

		DeepgramAPIKey:   v.GetString("DEEPGRAM_API_KEY"),
		DeepgramModel:    v.GetString("DEEPGRAM_MODEL"),
		OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
		ElevenLabsAPIKey: v.GetString("ELEVENLABS_API_KEY"),
		ElevenLabsModel:  v.GetString("ELEVENLABS_MODEL"),
		TTSStability:     clamp(v.GetFloat64("TTS_STABILITY"), 0, 1),
		TTSSimilarity:    clamp(v.GetFloat64("TTS_SIMILARITY"), 0, 1),

		DefaultVoiceID: v.GetString("DEFAULT_VOICE_ID"),
		FallbackVoice:  v.GetString("FALLBACK_VOICE"),

		ChatModelBasic:    v.GetString("CHAT_MODEL_BASIC"),
		ChatModelAdvanced: v.GetString("CHAT_MODEL_ADVANCED"),

		JWTSecret:   v.GetString("JWT_SECRET"), // Required - no fallback for security
		AdminAPIKey: v.GetString("ADMIN_API_KEY"),

		GuestSessionTTL:     v.GetDuration("GUEST_SESSION_TTL"),
		GuestReaperSchedule: v.GetString("GUEST_REAPER_SCHEDULE"),
		WizardSessionTTL:    v.GetDuration("WIZARD_SESSION_TTL"),

		DiscordWebhookURL: v.GetString("DISCORD_WEBHOOK_URL"),
		APNsKeyPath:       v.GetString("APNS_KEY_PATH"),
		APNsKeyID:         v.GetString("APNS_KEY_ID"),
		APNsTeamID:        v.GetString("APNS_TEAM_ID"),
		APNsBundleID:      v.GetString("APNS_BUNDLE_ID"),
		APNsProduction:    v.GetBool("APNS_PRODUCTION"),
	}
}

// Validate reports configuration the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.GuestSessionTTL <= 0 {
		errs = append(errs, errors.New("GUEST_SESSION_TTL must be positive"))
	}
	if c.WizardSessionTTL <= 0 {
		errs = append(errs, errors.New("WIZARD_SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
