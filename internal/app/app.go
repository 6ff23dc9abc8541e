// Package app wires the voice service subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and runs the session janitor, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithRedisClient,
// WithArchive). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aishwarymishra09/voice-chat-be/internal/archive"
	"github.com/aishwarymishra09/voice-chat-be/internal/config"
	"github.com/aishwarymishra09/voice-chat-be/internal/dialog"
	"github.com/aishwarymishra09/voice-chat-be/internal/engine"
	"github.com/aishwarymishra09/voice-chat-be/internal/health"
	"github.com/aishwarymishra09/voice-chat-be/internal/resilience"
	"github.com/aishwarymishra09/voice-chat-be/internal/server"
	"github.com/aishwarymishra09/voice-chat-be/internal/session"
	"github.com/aishwarymishra09/voice-chat-be/internal/transcript"
	"github.com/aishwarymishra09/voice-chat-be/internal/transcript/phonetic"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad"
)

// archiveDepth is how many turns of a closed call the archiver copies out of
// Redis. Matches the store's history cap.
const archiveDepth = 50

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// VAD is optional; without it streams fall back to energy gating.
	VAD vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	redis     *redis.Client
	store     *session.Store
	manager   *session.Manager
	archive   *archive.Archive
	processor *engine.Processor
	server    *server.Server
	httpSrv   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRedisClient injects a Redis client instead of dialing one from config.
func WithRedisClient(client *redis.Client) Option {
	return func(a *App) { a.redis = client }
}

// WithArchive injects a transcript archive instead of connecting from config.
func WithArchive(ar *archive.Archive) Option {
	return func(a *App) { a.archive = ar }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); STT, LLM, and TTS
// are required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, fmt.Errorf("app: stt, llm, and tts providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initRedis(ctx); err != nil {
		return nil, fmt.Errorf("app: init redis: %w", err)
	}
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	a.initSessions()
	a.initPipeline()
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initRedis dials the session store backend and verifies the connection.
func (a *App) initRedis(ctx context.Context) error {
	if a.redis == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr(),
			DB:       a.cfg.Redis.DB,
			Password: a.cfg.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
	}
	a.store = session.NewStore(a.redis)
	return nil
}

// initArchive connects the transcript archive when a DSN is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil || a.cfg.Archive.PostgresDSN == "" {
		return nil
	}
	ar, err := archive.New(ctx, a.cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	a.archive = ar
	a.closers = append(a.closers, func() error {
		ar.Close()
		return nil
	})
	return nil
}

// initSessions builds the session manager with lifetime limits from config
// and hooks the archiver into session close.
func (a *App) initSessions() {
	opts := []session.ManagerOption{}
	if a.cfg.Session.IdleTimeout > 0 {
		opts = append(opts, session.WithIdleTimeout(a.cfg.Session.IdleTimeout))
	}
	if a.cfg.Session.MaxDuration > 0 {
		opts = append(opts, session.WithMaxDuration(a.cfg.Session.MaxDuration))
	}
	if a.cfg.Session.SweepInterval > 0 {
		opts = append(opts, session.WithSweepInterval(a.cfg.Session.SweepInterval))
	}
	if a.archive != nil {
		opts = append(opts, session.OnClose(a.archiveSession))
	}
	a.manager = session.NewManager(a.store, opts...)
}

// initPipeline assembles the per-turn processor: providers behind circuit
// breakers, the dialogue engine, and the clinic vocabulary corrector.
func (a *App) initPipeline() {
	fcfg := resilience.FallbackConfig{}

	sttP := resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, fcfg)
	llmP := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, fcfg)
	ttsP := resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, fcfg)

	dlg := dialog.NewEngine(a.store, llmP,
		dialog.WithGreeting(a.cfg.Persona.Greeting),
	)

	engineOpts := []engine.Option{
		engine.WithVoice(a.voiceProfile()),
	}
	if len(a.cfg.Vocabulary) > 0 {
		corrector := transcript.New(phonetic.New(), a.cfg.Vocabulary)
		engineOpts = append(engineOpts, engine.WithCorrector(corrector))
	}

	a.processor = engine.New(sttP, ttsP, dlg, engineOpts...)
}

// initServer builds the HTTP surface with readiness checks for every backing
// store that is actually configured.
func (a *App) initServer() {
	checkers := []health.Checker{health.RedisChecker(a.redis)}
	if a.archive != nil {
		checkers = append(checkers, health.PostgresChecker(a.archive.Pool()))
	}

	a.server = server.New(a.manager, a.processor,
		server.WithVAD(a.providers.VAD),
		server.WithTiming(a.cfg.Turn.Timing()),
		server.WithHealth(health.New(checkers...)),
	)
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// voiceProfile converts the persona voice config to a TTS profile.
func (a *App) voiceProfile() tts.VoiceProfile {
	vc := a.cfg.Persona.Voice
	profile := tts.VoiceProfile{
		ID:          vc.VoiceID,
		Name:        a.cfg.Persona.Name,
		Provider:    a.cfg.Providers.TTS.Name,
		SpeedFactor: vc.SpeedFactor,
	}
	if vc.PitchShift != 0 {
		profile.Metadata = map[string]string{
			"pitch_shift": strconv.FormatFloat(vc.PitchShift, 'f', -1, 64),
		}
	}
	return profile
}

// archiveSession copies a closed session's Redis history into PostgreSQL.
// Best effort: a failure is logged and the close proceeds.
func (a *App) archiveSession(ctx context.Context, id, reason string) {
	records, err := a.store.History(ctx, id, archiveDepth)
	if err != nil {
		slog.Warn("archive: loading history failed", "session_id", id, "error", err)
		return
	}
	if err := a.archive.WriteSession(ctx, id, reason, records); err != nil {
		slog.Warn("archive: writing transcript failed", "session_id", id, "error", err)
		return
	}
	slog.Info("archived call transcript", "session_id", id, "turns", len(records), "reason", reason)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and runs the session janitor until ctx is cancelled, then
// drains the HTTP server. Returns the listener error if serving fails,
// otherwise the context error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.manager.Run(ctx)
		return nil
	})

	g.Go(func() error {
		var err error
		if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
			err = a.httpSrv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain failed", "error", err)
		}
		return ctx.Err()
	})

	slog.Info("listening", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// Handler exposes the HTTP handler, for tests that serve the App in-process.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Manager exposes the session manager.
func (a *App) Manager() *session.Manager {
	return a.manager
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			slog.Warn("http shutdown error", "error", err)
		}

		// Closers run in reverse so dependents go before their backends.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
