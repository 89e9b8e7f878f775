package app

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/rbright/huddle/internal/config"
	"github.com/rbright/huddle/internal/discord"
	"github.com/rbright/huddle/internal/pipeline"
)

// commandProcess rebuilds the transcript of an archived session directory.
func (r Runner) commandProcess(ctx context.Context, cfg config.Config, dir string, logger *slog.Logger) int {
	processor, err := buildProcessor(cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	job, err := pipeline.LoadSessionDir(dir, loc)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("reprocessing session", "dir", dir, "session_id", job.SessionID, "captures", len(job.Records))

	out, err := processor.Process(ctx, job)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "%s (%d segments, %d/%d speakers transcribed)\n",
		out.TranscriptPath, out.Segments, out.Transcribed, out.Transcribed+out.Failed)
	return 0
}

// commandRescue transcribes one audio file with backend speaker labels.
func (r Runner) commandRescue(ctx context.Context, cfg config.Config, file string, logger *slog.Logger) int {
	processor, err := buildProcessor(cfg, nil, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	path, rendered, err := processor.Rescue(ctx, file, time.Now().In(loc))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprint(r.Stdout, rendered)
	logger.Info("rescue complete", "input", file, "transcript", path)
	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config, limit int, logger *slog.Logger) int {
	if !cfg.History.Enable {
		fmt.Fprintln(r.Stderr, "error: history is disabled (history.enable=false)")
		return 1
	}
	store, err := openHistory(cfg.History, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.Stdout, "no sessions recorded")
		return 0
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tCHANNEL\tIDENTITY\tSTATE\tSPEAKERS\tRESULT")
	for _, e := range entries {
		channel := e.ChannelName
		if channel == "" {
			channel = e.ChannelID
		}
		result := e.TranscriptPath
		if e.Error != "" {
			result = "error: " + e.Error
		}
		if result == "" {
			result = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.StartedAt.Format(time.DateTime), channel, e.Identity, e.State, e.Speakers, result)
	}
	_ = tw.Flush()
	return 0
}

// commandRegister overwrites the slash commands as the primary identity.
func (r Runner) commandRegister(ctx context.Context, cfg config.Config, guildID string, logger *slog.Logger) int {
	if len(cfg.Secrets.Tokens) == 0 {
		fmt.Fprintf(r.Stderr, "error: %v (set DISCORD_TOKEN)\n", discord.ErrNoTokens)
		return 1
	}
	identity, err := discord.NewIdentity("primary", cfg.Secrets.Tokens[0], logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	registered, err := discord.RegisterCommands(ctx, identity.Session(), guildID)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	scope := "globally"
	if guildID != "" {
		scope = "in guild " + guildID
	}
	for _, cmd := range registered {
		fmt.Fprintf(r.Stdout, "/%s registered %s\n", cmd.Name, scope)
	}
	logger.Info("slash commands registered", "count", len(registered), "guild_id", guildID)
	return 0
}
