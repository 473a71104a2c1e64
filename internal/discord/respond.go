package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/playback"
)

// Responder is the subset of *discordgo.Session used to answer commands.
type Responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// VoiceLocator returns the voice channel userID is connected to in
// guildID, or "" when they are not in one.
type VoiceLocator func(guildID, userID string) string

// Invocation is one command call, made either as a slash command or as a
// prefixed text message. It carries the parsed options and answers through
// whichever channel the call arrived on.
//
// Invocation implements [playback.Origin]: the requester's voice channel is
// looked up when the request is played.
type Invocation struct {
	// Key is the routed command, e.g. "sfx/play".
	Key string

	GuildID   string
	ChannelID string
	UserID    string
	Roles     []string

	options     map[string]string
	rs          Responder
	locate      VoiceLocator
	interaction *discordgo.Interaction
	message     *discordgo.Message

	mu        sync.Mutex
	responded bool
}

var _ playback.Origin = (*Invocation)(nil)

// NewInteractionInvocation builds an invocation for a slash command.
func NewInteractionInvocation(rs Responder, locate VoiceLocator, i *discordgo.Interaction, key string, options map[string]string) *Invocation {
	inv := &Invocation{
		Key:         key,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		options:     options,
		rs:          rs,
		locate:      locate,
		interaction: i,
	}
	if i.Member != nil {
		inv.Roles = i.Member.Roles
		if i.Member.User != nil {
			inv.UserID = i.Member.User.ID
		}
	}
	if inv.UserID == "" && i.User != nil {
		inv.UserID = i.User.ID
	}
	return inv
}

// NewMessageInvocation builds an invocation for a prefixed text command.
func NewMessageInvocation(rs Responder, locate VoiceLocator, m *discordgo.Message, key string, options map[string]string) *Invocation {
	inv := &Invocation{
		Key:       key,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		options:   options,
		rs:        rs,
		locate:    locate,
		message:   m,
	}
	if m.Author != nil {
		inv.UserID = m.Author.ID
	}
	if m.Member != nil {
		inv.Roles = m.Member.Roles
	}
	return inv
}

// Option returns the value of the named option, or "" when it was not
// given.
func (inv *Invocation) Option(name string) string {
	return inv.options[name]
}

// IsInteraction reports whether the invocation is a slash command.
func (inv *Invocation) IsInteraction() bool { return inv.interaction != nil }

// VoiceTarget implements [playback.Origin].
func (inv *Invocation) VoiceTarget() playback.Target {
	t := playback.Target{GuildID: inv.GuildID, MemberID: inv.UserID}
	if inv.locate != nil && inv.GuildID != "" && inv.UserID != "" {
		t.ChannelID = inv.locate(inv.GuildID, inv.UserID)
	}
	return t
}

// NotifyPlaying implements [playback.Origin].
func (inv *Invocation) NotifyPlaying(title string) {
	slog.Debug("discord: now playing", "guild_id", inv.GuildID, "command", inv.Key, "title", title)
}

// NotifyError implements [playback.Origin].
func (inv *Invocation) NotifyError(err error) {
	inv.ReplyEphemeral("Could not play that: " + truncate(err.Error(), 1500))
}

// Reply answers publicly.
func (inv *Invocation) Reply(content string) {
	inv.send(&discordgo.InteractionResponseData{Content: content})
}

// ReplyEphemeral answers so only the caller sees it. Text commands cannot
// hide replies, so they get a regular reply.
func (inv *Invocation) ReplyEphemeral(content string) {
	inv.send(&discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// ReplyEmbed answers with an embed.
func (inv *Invocation) ReplyEmbed(embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	inv.send(data)
}

// Defer acknowledges a slash command whose answer takes longer than
// Discord's response window. Later replies become follow-ups.
func (inv *Invocation) Defer(ephemeral bool) {
	if inv.interaction == nil {
		return
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.responded {
		return
	}
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := inv.rs.InteractionRespond(inv.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "command", inv.Key, "err", err)
		return
	}
	inv.responded = true
}

// send delivers data as the first response, a follow-up, or a message
// reply. Sends are serialised so the first response is never duplicated.
func (inv *Invocation) send(data *discordgo.InteractionResponseData) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.message != nil {
		_, err := inv.rs.ChannelMessageSendComplex(inv.message.ChannelID, &discordgo.MessageSend{
			Content:   data.Content,
			Embeds:    data.Embeds,
			Reference: inv.message.Reference(),
		})
		if err != nil {
			slog.Warn("discord: failed to reply to message", "command", inv.Key, "err", err)
		}
		return
	}

	if !inv.responded {
		err := inv.rs.InteractionRespond(inv.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: data,
		})
		if err != nil {
			slog.Warn("discord: failed to send response", "command", inv.Key, "err", err)
			return
		}
		inv.responded = true
		return
	}

	_, err := inv.rs.FollowupMessageCreate(inv.interaction, true, &discordgo.WebhookParams{
		Content: data.Content,
		Embeds:  data.Embeds,
		Flags:   data.Flags,
	})
	if err != nil {
		slog.Warn("discord: failed to send follow-up", "command", inv.Key, "err", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "[...]"
}
