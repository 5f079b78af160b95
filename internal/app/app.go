package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/evervoice/internal/conversation"
	"github.com/lukasbauer/evervoice/internal/eventlog"
	"github.com/lukasbauer/evervoice/internal/httpapi"
	"github.com/lukasbauer/evervoice/internal/jobs"
	"github.com/lukasbauer/evervoice/internal/llm"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/notifications"
	"github.com/lukasbauer/evervoice/internal/objectstore"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/lukasbauer/evervoice/internal/share"
	"github.com/lukasbauer/evervoice/internal/similarity"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/lukasbauer/evervoice/internal/stt"
	"github.com/lukasbauer/evervoice/internal/tts"
	"github.com/lukasbauer/evervoice/internal/voice"
	"github.com/lukasbauer/evervoice/internal/wizard"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	cfg    Config
	log    zerolog.Logger
	db     *pgxpool.Pool
	nc     *nats.Conn
	rdb    *redis.Client
	router http.Handler

	Records  store.Records
	EventLog *eventlog.Logger
	Guests   *share.Guests
	Reaper   *jobs.GuestReaperJob
}

// OpenRecords connects to Postgres when DATABASE_URL is set and applies the
// schema; otherwise it returns the in-memory store. The pool is nil in the
// in-memory case.
func OpenRecords(ctx context.Context, databaseURL string) (store.Records, *pgxpool.Pool, error) {
	if databaseURL == "" {
		return store.NewMemory(), nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	s := store.New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return s, db, nil
}

func New(cfg Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ElevenLabsAPIKey == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}

	a := &App{cfg: cfg, log: log}
	ctx := context.Background()

	records, db, err := OpenRecords(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.db, a.Records = db, records
	if db == nil {
		log.Warn().Msg("DATABASE_URL not set, using in-memory record store")
	}
	a.EventLog = eventlog.New(db)

	blobs, err := a.openBlobs()
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions, err := a.openWizardSessions(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Shared HTTP client with connection pooling for TTS.
	// Keeps TCP connections alive to reduce latency for repeated calls to ElevenLabs.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10, // ElevenLabs is single host
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	eleven := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		ModelID:    cfg.ElevenLabsModel,
		Stability:  cfg.TTSStability,
		Similarity: cfg.TTSSimilarity,
		HTTPClient: httpClient,
	})
	openaiSpeech := tts.NewOpenAISpeechClient(tts.OpenAISpeechConfig{APIKey: cfg.OpenAIAPIKey})
	gateway := tts.NewGateway(
		tts.Provider{Name: "elevenlabs", Synth: eleven},
		&tts.Provider{Name: "openai", Synth: openaiSpeech, Voice: cfg.FallbackVoice},
		cfg.DefaultVoiceID,
		log,
	)

	chat, err := llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.ChatModelBasic})
	if err != nil {
		a.Close()
		return nil, err
	}

	transcriber, err := stt.NewTranscriber(stt.DeepgramConfig{
		APIKey:    cfg.DeepgramAPIKey,
		Model:     cfg.DeepgramModel,
		Punctuate: true,
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("transcription disabled")
	}

	apns, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("APNs init failed, push notifications disabled")
	}
	var pusher notifications.Pusher
	if apns != nil {
		pusher = apns
	}
	notifier := notifications.NewNotifier(records, pusher, log)
	discord := notifications.NewDiscord(cfg.DiscordWebhookURL, log)

	ledger := progression.NewLedger(records, log)
	memories := memory.NewService(records, log)
	assets := voice.NewAssets(blobs, eleven, cfg.DefaultVoiceID, log)
	tokens := share.NewTokens(records, log)

	a.Guests = share.NewGuests(share.Deps{
		Tokens:     tokens,
		Registry:   share.NewRegistry(),
		Ledger:     ledger,
		Voices:     assets,
		Speech:     gateway,
		Identities: records,
		Notifier:   notifier,
		Events:     a.EventLog,
	}, cfg.GuestSessionTTL, log)

	a.Reaper, err = jobs.NewGuestReaperJob(a.Guests, cfg.GuestReaperSchedule, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	svc := httpapi.Services{
		Records:  records,
		Ledger:   ledger,
		Memories: memories,
		Builder:  memory.NewBuilder(memories, chat),
		Assets:   assets,
		Scorer:   similarity.NewScorer(assets, memories),
		Conversation: conversation.NewService(conversation.Deps{
			Ledger:      ledger,
			Personas:    memories,
			Clips:       assets,
			Chat:        chat,
			Speech:      gateway,
			Transcriber: transcriber,
		}, conversation.Models{Basic: cfg.ChatModelBasic, Advanced: cfg.ChatModelAdvanced}, log),
		Wizard: wizard.New(wizard.Deps{
			Sessions:    sessions,
			Clips:       assets,
			Profiles:    ledger,
			Completions: records,
			Speech:      gateway,
			Tokens:      tokens,
			Events:      a.EventLog,
		}, cfg.PublicBaseURL, log),
		Tokens:   tokens,
		Guests:   a.Guests,
		EventLog: a.EventLog,
		Discord:  discord,
	}

	a.router = httpapi.NewRouter(httpapi.RouterConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		JWTSecret:     cfg.JWTSecret,
		GuestTokenTTL: 12 * time.Hour,
		AdminAPIKey:   cfg.AdminAPIKey,
	}, svc, log)

	return a, nil
}

func (a *App) openBlobs() (objectstore.Blobs, error) {
	if a.cfg.NatsURL == "" {
		a.log.Warn().Msg("NATS_URL not set, using in-memory audio store")
		return objectstore.NewMemory(), nil
	}
	nc, err := nats.Connect(a.cfg.NatsURL, nats.Name("evervoice"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.nc = nc
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return objectstore.NewNats(js, a.cfg.AudioBucket)
}

func (a *App) openWizardSessions(ctx context.Context) (wizard.SessionStore, error) {
	if a.cfg.RedisAddr == "" {
		return wizard.NewMemorySessions(a.cfg.WizardSessionTTL), nil
	}
	rdb, err := wizard.DialRedis(ctx, a.cfg.RedisAddr, a.cfg.RedisPass, a.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	return wizard.NewRedisSessions(rdb, a.cfg.WizardSessionTTL), nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// Shutdown closes every open guest session, releasing ephemeral voices, and
// waits for background work.
func (a *App) Shutdown(ctx context.Context) {
	if a.Reaper != nil {
		a.Reaper.Stop()
	}
	if a.Guests != nil {
		a.Guests.Shutdown(ctx)
	}
	a.EventLog.Wait()
}

func (a *App) Close() error {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
