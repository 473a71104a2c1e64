// Package commands implements Botnek's slash and text command handlers.
package commands

import (
	"context"

	"github.com/MrWong99/botnek/internal/playback"
	"github.com/MrWong99/botnek/internal/sfx"
	"github.com/MrWong99/botnek/internal/track"
)

// embedColor is the accent colour of Botnek's embeds.
const embedColor = 0x0f0f0f

// Queue is the part of a guild's playback engine the commands drive.
type Queue interface {
	Enqueue(origin playback.Origin, t track.Track)
	Stop()
}

// Queues returns the playback queue of a guild.
type Queues func(guildID string) (Queue, error)

// Libraries returns the sound library of a guild.
type Libraries func(guildID string) (*sfx.Library, error)

// Resolver turns a URL into a playable remote track.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*track.Remote, error)
}

const somethingWrong = "I'm sorry, something went wrong"
