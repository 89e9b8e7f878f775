package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rbright/huddle/internal/names"
)

type userFetcher interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// MemberSource resolves display names from the gateway member cache, then
// from the REST user endpoint.
type MemberSource struct {
	state *discordgo.State
	rest  userFetcher
}

// NewMemberSource builds a names.Source backed by session.
func NewMemberSource(session *discordgo.Session) *MemberSource {
	return &MemberSource{state: session.State, rest: session}
}

// NameSources returns one member source per identity, primary first.
func NameSources(identities []*Identity) []names.Source {
	sources := make([]names.Source, 0, len(identities))
	for _, identity := range identities {
		sources = append(sources, NewMemberSource(identity.session))
	}
	return sources
}

func (m *MemberSource) DisplayName(ctx context.Context, userID string) (string, bool) {
	for _, guildID := range guildIDs(m.state) {
		member, err := m.state.Member(guildID, userID)
		if err != nil || member == nil {
			continue
		}
		if name := memberDisplayName(member); name != "" {
			return name, true
		}
	}

	if m.rest == nil {
		return "", false
	}
	user, err := m.rest.User(userID, discordgo.WithContext(ctx))
	if err != nil || user == nil {
		return "", false
	}
	name := userDisplayName(user)
	return name, name != ""
}

// memberDisplayName prefers the guild nickname, then the global display name,
// then the username.
func memberDisplayName(member *discordgo.Member) string {
	if nick := strings.TrimSpace(member.Nick); nick != "" {
		return nick
	}
	if member.User == nil {
		return ""
	}
	return userDisplayName(member.User)
}

func userDisplayName(user *discordgo.User) string {
	if global := strings.TrimSpace(user.GlobalName); global != "" {
		return global
	}
	return strings.TrimSpace(user.Username)
}

func guildIDs(state *discordgo.State) []string {
	if state == nil {
		return nil
	}
	state.RLock()
	defer state.RUnlock()
	ids := make([]string, 0, len(state.Guilds))
	for _, guild := range state.Guilds {
		ids = append(ids, guild.ID)
	}
	return ids
}

// countHumans counts non-bot users in channelID according to the state cache.
// Users whose member record is unknown count as human.
func countHumans(state *discordgo.State, guildID string, channelID string) int {
	if state == nil || channelID == "" {
		return 0
	}
	guild, err := state.Guild(guildID)
	if err != nil {
		return 0
	}

	type present struct {
		userID string
		member *discordgo.Member
	}
	state.RLock()
	var users []present
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			users = append(users, present{userID: vs.UserID, member: vs.Member})
		}
	}
	state.RUnlock()

	humans := 0
	for _, u := range users {
		member := u.member
		if member == nil || member.User == nil {
			member, _ = state.Member(guildID, u.userID)
		}
		if member != nil && member.User != nil && member.User.Bot {
			continue
		}
		humans++
	}
	return humans
}
