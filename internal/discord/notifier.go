package discord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
)

// messenger is the slice of *discordgo.Session the notifier needs.
type messenger interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts into a voice channel's built-in text chat.
type Notifier struct {
	client    messenger
	channelID string
}

// NewNotifier builds a Notifier that posts as session into channelID.
func NewNotifier(session *discordgo.Session, channelID string) *Notifier {
	return &Notifier{client: session, channelID: channelID}
}

func (n *Notifier) Send(ctx context.Context, text string) error {
	_, err := n.client.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{Content: text}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send message to %s: %w", n.channelID, err)
	}
	return nil
}

// SendFile posts text with path attached under its base name.
func (n *Notifier) SendFile(ctx context.Context, text string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	msg := &discordgo.MessageSend{
		Content: text,
		Files: []*discordgo.File{{
			Name:        filepath.Base(path),
			ContentType: "text/plain",
			Reader:      f,
		}},
	}
	if _, err := n.client.ChannelMessageSendComplex(n.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("upload %s to %s: %w", filepath.Base(path), n.channelID, err)
	}
	return nil
}
