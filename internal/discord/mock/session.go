// Package mock provides test doubles for Discord command testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Responder records interaction responses and message replies for test
// assertions. It satisfies discord.Responder.
type Responder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Messages records all ChannelMessageSendComplex calls.
	Messages []*discordgo.MessageSend

	// Err is returned by every call when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *Responder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *Responder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// ChannelMessageSendComplex records the message and returns a stub.
func (m *Responder) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, data)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID}, nil
}

// Texts returns the content of every reply in the order sent, across
// responses, follow-ups and message replies.
func (m *Responder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.Responses {
		if r.Data != nil && r.Data.Content != "" {
			out = append(out, r.Data.Content)
		}
	}
	for _, f := range m.FollowUps {
		if f.Content != "" {
			out = append(out, f.Content)
		}
	}
	for _, msg := range m.Messages {
		if msg.Content != "" {
			out = append(out, msg.Content)
		}
	}
	return out
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Responder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *Responder) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// Reset clears all recorded calls and errors.
func (m *Responder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.FollowUps = nil
	m.Messages = nil
	m.Err = nil
}
