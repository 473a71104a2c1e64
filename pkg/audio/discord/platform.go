// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// Botnek's PCM [audio.AudioFrame] pipeline with Discord's Opus voice
// transport.
//
// The platform requires an active *discordgo.Session owned by the bot layer.
// Each call to [Platform.Join] returns a [Connection] that publishes the
// voice handshake as status transitions and encodes outgoing audio.
package discord

import (
	"context"
	"fmt"

	"github.com/MrWong99/botnek/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
}

// New creates a new Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// Join implements [audio.Platform]. The returned connection starts in
// [audio.StatusSignalling]; discordgo's blocking handshake runs in the
// background.
func (p *Platform) Join(ctx context.Context, guildID, channelID string) (audio.VoiceConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	if p.session == nil {
		return nil, fmt.Errorf("discord: join voice channel %q: no session", channelID)
	}

	var botUserID string
	if p.session.State != nil && p.session.State.User != nil {
		botUserID = p.session.State.User.ID
	}

	// Self-deafened: the bot only ever sends audio.
	join := func(gID, cID string) (*discordgo.VoiceConnection, error) {
		return p.session.ChannelVoiceJoin(gID, cID, false, true)
	}

	conn := newConnection(guildID, channelID, botUserID, join)
	conn.addHandlers(
		p.session.AddHandler(conn.handleVoiceStateUpdate),
		p.session.AddHandler(conn.handleVoiceServerUpdate),
	)
	go conn.handshake()
	return conn, nil
}
