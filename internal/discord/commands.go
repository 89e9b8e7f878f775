package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/rbright/huddle/internal/recorder"
	"github.com/rbright/huddle/internal/voice"
)

// Slash command names.
const (
	CommandRecord       = "record"
	CommandEndRecording = "end_recording"
	CommandStop         = "stop"
)

// Commands lists the application commands huddle registers.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: CommandRecord, Description: "Start recording the voice channel you are in"},
		{Name: CommandEndRecording, Description: "Stop recording and build the transcript"},
		{Name: CommandStop, Description: "Stop recording and build the transcript"},
	}
}

type commandRegistrar interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// RegisterCommands overwrites the bot's slash commands. An empty guildID
// registers them globally.
func RegisterCommands(ctx context.Context, client commandRegistrar, guildID string) ([]*discordgo.ApplicationCommand, error) {
	me, err := client.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("resolve application id: %w", err)
	}
	registered, err := client.ApplicationCommandBulkOverwrite(me.ID, guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return registered, nil
}

// replier answers one slash command invocation.
type replier interface {
	Respond(text string, ephemeral bool) error
	Edit(text string) error
	Followup(text string) error
}

// handleCommand runs one slash command from a caller in channel.
func handleCommand(ctx context.Context, rec Recorder, name string, channel voice.ChannelRef, r replier, logger *slog.Logger) {
	log := func(err error) {
		if err != nil {
			logger.Error("interaction reply failed", "command", name, "error", err.Error())
		}
	}

	switch name {
	case CommandRecord:
		responded := false
		reply := rec.Record(ctx, recorder.Request{
			Channel: channel,
			Progress: func(text string) {
				responded = true
				log(r.Respond(text, false))
			},
		})
		switch {
		case !responded:
			log(r.Respond(reply.Text, !reply.OK))
		case !reply.OK:
			log(r.Edit(reply.Text))
		}

	case CommandEndRecording, CommandStop:
		if channel.ChannelID == "" || !rec.Active(channel.ChannelID) {
			log(r.Respond("no active recording in your channel", true))
			return
		}
		log(r.Respond("stopping recording", false))
		reply := rec.Stop(ctx, channel.ChannelID)
		switch {
		case !reply.OK:
			log(r.Edit(reply.Text))
		case reply.Text != "stopping recording":
			log(r.Followup(reply.Text))
		}

	default:
		logger.Warn("unknown command", "command", name)
	}
}

type interactionReplier struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (r *interactionReplier) Respond(text string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: text}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func (r *interactionReplier) Edit(text string) error {
	_, err := r.session.InteractionResponseEdit(r.interaction, &discordgo.WebhookEdit{Content: &text})
	return err
}

func (r *interactionReplier) Followup(text string) error {
	_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{Content: text})
	return err
}
