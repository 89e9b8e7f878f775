package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rbright/huddle/internal/capture"
	"github.com/rbright/huddle/internal/config"
	"github.com/rbright/huddle/internal/discord"
	"github.com/rbright/huddle/internal/health"
	"github.com/rbright/huddle/internal/history"
	"github.com/rbright/huddle/internal/ipc"
	"github.com/rbright/huddle/internal/media"
	"github.com/rbright/huddle/internal/names"
	"github.com/rbright/huddle/internal/pipeline"
	"github.com/rbright/huddle/internal/recorder"
	"github.com/rbright/huddle/internal/session"
	"github.com/rbright/huddle/internal/tasks"
	"github.com/rbright/huddle/internal/transcribe"
)

const (
	// Discord voice is 48 kHz stereo Opus.
	voiceSampleRate = 48000
	voiceChannels   = 2
)

// commandServe runs the daemon until ctx is cancelled.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if len(cfg.Secrets.Tokens) == 0 {
		fmt.Fprintf(r.Stderr, "error: %v (set DISCORD_TOKEN)\n", discord.ErrNoTokens)
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	identities, err := discord.NewIdentities(cfg.Secrets.Tokens, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	nameCache := names.NewCache()
	sources := append([]names.Source{nameCache}, discord.NameSources(identities)...)

	processor, err := buildProcessor(cfg, sources, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	store, err := openHistory(cfg.History, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	taskPool := tasks.New(logger.With("component", "tasks"), cfg.Post.Workers)
	template, err := sessionTemplate(cfg, processor, taskPool, nameCache, sources, store, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	pooled := make([]recorder.Identity, 0, len(identities))
	for _, identity := range identities {
		pooled = append(pooled, identity)
	}
	rec := recorder.New(template, pooled...)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	healthErrCh := make(chan error, 1)
	if cfg.Health.Enable {
		healthListener, err := net.Listen("tcp", cfg.Health.Address)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: listen health %s: %v\n", cfg.Health.Address, err)
			return 1
		}
		healthSrv := health.NewServer(logger)
		rec.OnReadyChange(healthSrv.SetReady)
		healthSrv.SetReady(rec.ReadyIdentities())
		go func() { healthErrCh <- healthSrv.Serve(serverCtx, healthListener) }()
	} else {
		healthErrCh <- nil
	}

	bot := discord.NewBot(identities, rec, logger)
	if err := bot.Open(serverCtx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		serverCancel()
		<-healthErrCh
		return 1
	}

	ipcErrCh := make(chan error, 1)
	go func() { ipcErrCh <- ipc.Serve(serverCtx, listener, rec) }()

	logger.Info("daemon serving",
		"identities", len(identities),
		"socket", socketPath,
		"stt_mode", cfg.STT.Mode,
		"health", cfg.Health.Enable,
	)

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-ipcErrCh:
		ipcErrCh <- err
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Post.ShutdownTimeout())
	defer cancel()
	if err := rec.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err.Error())
		exitCode = 1
	}
	if err := bot.Close(); err != nil {
		logger.Warn("close discord sessions", "error", err.Error())
	}

	serverCancel()
	if err := <-ipcErrCh; err != nil && exitCode == 0 {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", err)
		exitCode = 1
	}
	if err := <-healthErrCh; err != nil {
		logger.Warn("health server stopped", "error", err.Error())
	}
	logger.Info("daemon stopped", "exit_code", exitCode)
	return exitCode
}

// buildProcessor wires the configured media tool and transcriber.
func buildProcessor(cfg config.Config, sources []names.Source, logger *slog.Logger) (*pipeline.Processor, error) {
	transcriber, err := transcribe.New(transcribe.Config{
		Mode: cfg.STT.Mode,
		WhisperX: transcribe.WhisperXConfig{
			Binary:      cfg.STT.WhisperX.Binary,
			Model:       cfg.STT.WhisperX.Model,
			ComputeType: cfg.STT.WhisperX.ComputeType,
			HFToken:     cfg.Secrets.HFToken,
			ExtraArgs:   cfg.STT.WhisperX.ExtraArgs.Argv,
		},
		Deepgram: transcribe.DeepgramConfig{
			APIKey:   cfg.Secrets.DeepgramAPIKey,
			Endpoint: cfg.STT.Deepgram.Endpoint,
			Model:    cfg.STT.Deepgram.Model,
			Timeout:  cfg.STT.Deepgram.Timeout(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure transcriber: %w", err)
	}

	return &pipeline.Processor{
		Media:          media.New(cfg.FFmpeg.Binary, cfg.FFmpeg.Bitrate),
		Transcriber:    transcriber,
		TranscriptsDir: cfg.TranscriptsDir,
		Cleanup:        cfg.Post.CleanupTempFiles,
		Names:          sources,
		Logger:         logger.With("component", "pipeline"),
	}, nil
}

// sessionTemplate holds the options every recording session shares.
func sessionTemplate(
	cfg config.Config,
	processor session.Processor,
	taskPool *tasks.Pool,
	nameCache *names.Cache,
	sources []names.Source,
	store *history.Store,
	logger *slog.Logger,
) (session.Options, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return session.Options{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	opts := session.Options{
		Processor:     processor,
		Tasks:         taskPool,
		RecordingsDir: cfg.RecordingsDir,
		Location:      loc,
		Connect: session.ConnectPolicy{
			Attempts:      cfg.Connect.Attempts,
			Timeout:       cfg.Connect.Timeout(),
			BackoffBase:   cfg.Connect.BackoffBase(),
			BackoffJitter: cfg.Connect.BackoffJitter(),
		},
		CaptureFormat: capture.Format(cfg.Capture.Format),
		NewDecoder:    capture.OpusFactory(voiceSampleRate, voiceChannels),
		Names:         sources,
		NameCache:     nameCache,
		Logger:        logger,
	}
	if store != nil {
		opts.Observer = store
	}
	return opts, nil
}

// openHistory returns nil when history is disabled.
func openHistory(cfg config.HistoryConfig, logger *slog.Logger) (*history.Store, error) {
	if !cfg.Enable {
		return nil, nil
	}
	path := cfg.Path
	if path == "" {
		var err error
		path, err = history.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve history path: %w", err)
		}
	}
	store, err := history.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}
