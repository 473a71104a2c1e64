package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/discord"
)

// HelpCommands answers /help with an overview of every registered command.
type HelpCommands struct {
	router *discord.CommandRouter
}

// NewHelpCommands creates a HelpCommands and registers /help with router.
func NewHelpCommands(router *discord.CommandRouter) *HelpCommands {
	hc := &HelpCommands{router: router}
	router.RegisterCommand("help", hc.Definition(), hc.handleHelp)
	router.RegisterHelp("help", "Command: `help`")
	return hc
}

// Definition returns the /help ApplicationCommand definition.
func (hc *HelpCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "help",
		Description: "List all of Botnek's commands.",
	}
}

func (hc *HelpCommands) handleHelp(_ context.Context, inv *discord.Invocation) error {
	entries := hc.router.Help()
	fields := make([]*discordgo.MessageEmbedField, 0, len(entries))
	for _, e := range entries {
		value := e.Text
		if value == "" {
			value = "Command: `" + e.Name + "`"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: e.Description, Value: value})
	}
	inv.ReplyEmbed(&discordgo.MessageEmbed{
		Color:     embedColor,
		Title:     "Botnek Commands Overview",
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    fields,
	}, true)
	return nil
}
