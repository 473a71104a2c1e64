package discord

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/discord/mock"
)

func inVoice(string, string) string { return "voice-1" }

func nowhere(string, string) string { return "" }

func testMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg-1",
		GuildID:   "guild-1",
		ChannelID: "text-1",
		Content:   content,
		Author:    &discordgo.User{ID: "user-1"},
	}
}

func testInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "guild-1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "user-1"}},
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}
}

func TestPermissionChecker_CanManage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		roleID string
		roles  []string
		want   bool
	}{
		{name: "user with role", roleID: "role-123", roles: []string{"role-456", "role-123", "role-789"}, want: true},
		{name: "user without role", roleID: "role-123", roles: []string{"role-456", "role-789"}, want: false},
		{name: "empty role allows all", roleID: "", roles: []string{"role-456"}, want: true},
		{name: "no roles", roleID: "role-123", roles: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPermissionChecker(tt.roleID)
			got := pc.CanManage(&Invocation{Roles: tt.roles})
			if got != tt.want {
				t.Errorf("CanManage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionChecker_SetRole(t *testing.T) {
	t.Parallel()

	pc := NewPermissionChecker("old")
	inv := &Invocation{Roles: []string{"new"}}
	if pc.CanManage(inv) {
		t.Fatal("should not manage before the role changes")
	}
	pc.SetRole("new")
	if !pc.CanManage(inv) {
		t.Error("should manage after the role changes")
	}
}

func TestCommandRouter_ApplicationCommands_Dedup(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	noop := func(context.Context, *Invocation) error { return nil }

	r.RegisterCommand("sfx/play", &discordgo.ApplicationCommand{Name: "sfx"}, noop)
	r.RegisterCommand("sfx/list", &discordgo.ApplicationCommand{Name: "sfx"}, noop)
	r.RegisterCommand("play", &discordgo.ApplicationCommand{Name: "play", Description: "Play"}, noop)
	r.RegisterHandler("sfx/del", noop)

	cmds := r.ApplicationCommands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 deduplicated commands, got %d", len(cmds))
	}
	if cmds[0].Name != "play" || cmds[1].Name != "sfx" {
		t.Errorf("commands not sorted: %s, %s", cmds[0].Name, cmds[1].Name)
	}

	r.RegisterHelp("play", "Usage: `/play <url>`")
	help := r.Help()
	if len(help) != 2 {
		t.Fatalf("expected 2 help entries, got %d", len(help))
	}
	if help[0] != (HelpEntry{Name: "play", Description: "Play", Text: "Usage: `/play <url>`"}) {
		t.Errorf("help[0] = %+v", help[0])
	}
}

func TestBindArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		names []string
		words []string
		want  map[string]string
	}{
		{name: "positional", names: []string{"alias", "url"}, words: []string{"yay", "http://x"}, want: map[string]string{"alias": "yay", "url": "http://x"}},
		{name: "missing trailing", names: []string{"alias", "url", "start-time"}, words: []string{"yay"}, want: map[string]string{"alias": "yay"}},
		{name: "extra ignored", names: []string{"alias"}, words: []string{"yay", "more"}, want: map[string]string{"alias": "yay"}},
		{name: "rest", names: []string{"sfxs..."}, words: []string{"a,", "b", "c"}, want: map[string]string{"sfxs": "a, b c"}},
		{name: "no names", names: nil, words: []string{"x"}, want: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bindArgs(tt.names, tt.words)
			if len(got) != len(tt.want) {
				t.Fatalf("bindArgs() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("bindArgs()[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestCommandRouter_HandleMessage(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var got []string
	record := func(ctx context.Context, inv *Invocation) error {
		got = append(got, inv.Key+"="+inv.Option("alias"))
		return nil
	}
	r.RegisterHandler("sfx/play", record, "alias")
	r.RegisterHandler("sfx/list", record)
	r.RegisterHandler("stop", record)
	r.RegisterDefault("sfx", "sfx/play")

	tests := []struct {
		content string
		handled bool
		want    string
	}{
		{content: "!sfx yay", handled: true, want: "sfx/play=yay"},
		{content: "!SFX play yay", handled: true, want: "sfx/play=yay"},
		{content: "!sfx list", handled: true, want: "sfx/list="},
		{content: "!stop now", handled: true, want: "stop="},
		{content: "!nope", handled: false},
		{content: "!", handled: false},
		{content: "sfx yay", handled: false},
	}
	for _, tt := range tests {
		got = nil
		rs := &mock.Responder{}
		handled := r.HandleMessage(context.Background(), rs, inVoice, testMessage(tt.content), "!")
		if handled != tt.handled {
			t.Errorf("HandleMessage(%q) = %v, want %v", tt.content, handled, tt.handled)
			continue
		}
		if !tt.handled {
			if len(got) != 0 {
				t.Errorf("HandleMessage(%q) called a handler", tt.content)
			}
			continue
		}
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("HandleMessage(%q) dispatched %v, want %s", tt.content, got, tt.want)
		}
	}
}

func TestCommandRouter_HandleMessage_RequiresVoice(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	called := false
	r.RegisterHandler("stop", func(context.Context, *Invocation) error {
		called = true
		return nil
	})

	rs := &mock.Responder{}
	if !r.HandleMessage(context.Background(), rs, nowhere, testMessage("!stop"), "!") {
		t.Fatal("stop should be handled")
	}
	if called {
		t.Error("handler must not run without a voice channel")
	}
	if len(rs.Messages) != 1 || rs.Messages[0].Content != "You must join a voice channel before sending a command" {
		t.Errorf("messages = %+v", rs.Messages)
	}
}

func TestCommandRouter_HandleInteraction(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	var inv *Invocation
	r.RegisterCommand("sfx/add", &discordgo.ApplicationCommand{Name: "sfx"}, func(_ context.Context, i *Invocation) error {
		inv = i
		return nil
	})

	rs := &mock.Responder{}
	r.HandleInteraction(context.Background(), rs, inVoice, testInteraction("sfx", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "add",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "alias", Type: discordgo.ApplicationCommandOptionString, Value: "yay"},
			{Name: "url", Type: discordgo.ApplicationCommandOptionString, Value: "https://youtu.be/x"},
		},
	}))
	if inv == nil {
		t.Fatal("handler not called")
	}
	if inv.Key != "sfx/add" || inv.Option("alias") != "yay" || inv.Option("url") != "https://youtu.be/x" {
		t.Errorf("invocation = %s %q %q", inv.Key, inv.Option("alias"), inv.Option("url"))
	}
	if !inv.IsInteraction() || inv.UserID != "user-1" {
		t.Errorf("invocation user = %q, interaction = %v", inv.UserID, inv.IsInteraction())
	}
	if target := inv.VoiceTarget(); target.ChannelID != "voice-1" || target.GuildID != "guild-1" {
		t.Errorf("VoiceTarget() = %+v", target)
	}

	r.HandleInteraction(context.Background(), rs, inVoice, testInteraction("dance"))
	if resp := rs.LastResponse(); resp == nil || resp.Data.Content != "Unknown command." {
		t.Errorf("unknown command response = %+v", resp)
	}
}

func TestCommandRouter_HandlerError(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter()
	r.RegisterCommand("stop", &discordgo.ApplicationCommand{Name: "stop"}, func(context.Context, *Invocation) error {
		return errors.New("engine exploded")
	})

	rs := &mock.Responder{}
	r.HandleInteraction(context.Background(), rs, inVoice, testInteraction("stop"))
	resp := rs.LastResponse()
	if resp == nil || !strings.Contains(resp.Data.Content, "engine exploded") {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("error reply should be ephemeral")
	}
}

func TestCommandRouter_RateLimit(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter(WithRateLimit(2))
	calls := 0
	r.RegisterHandler("stop", func(context.Context, *Invocation) error {
		calls++
		return nil
	})

	rs := &mock.Responder{}
	for range 3 {
		r.HandleMessage(context.Background(), rs, inVoice, testMessage("!stop"), "!")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	texts := rs.Texts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "Slow down!") {
		t.Errorf("texts = %v", texts)
	}

	r.SetRateLimit(0)
	r.HandleMessage(context.Background(), rs, inVoice, testMessage("!stop"), "!")
	if calls != 3 {
		t.Errorf("calls after disabling limit = %d, want 3", calls)
	}
}

func TestInvocation_ReplyRouting(t *testing.T) {
	t.Parallel()

	t.Run("interaction responds then follows up", func(t *testing.T) {
		t.Parallel()
		rs := &mock.Responder{}
		inv := NewInteractionInvocation(rs, inVoice, testInteraction("play"), "play", nil)
		inv.Reply("first")
		inv.ReplyEphemeral("second")
		if len(rs.Responses) != 1 || rs.Responses[0].Data.Content != "first" {
			t.Errorf("responses = %+v", rs.Responses)
		}
		if f := rs.LastFollowUp(); f == nil || f.Content != "second" || f.Flags&discordgo.MessageFlagsEphemeral == 0 {
			t.Errorf("follow-up = %+v", f)
		}
	})

	t.Run("deferred interaction follows up", func(t *testing.T) {
		t.Parallel()
		rs := &mock.Responder{}
		inv := NewInteractionInvocation(rs, inVoice, testInteraction("sfx"), "sfx/add", nil)
		inv.Defer(false)
		inv.Reply("done")
		if len(rs.Responses) != 1 || rs.Responses[0].Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
			t.Errorf("responses = %+v", rs.Responses)
		}
		if f := rs.LastFollowUp(); f == nil || f.Content != "done" {
			t.Errorf("follow-up = %+v", f)
		}
	})

	t.Run("message replies reference the command", func(t *testing.T) {
		t.Parallel()
		rs := &mock.Responder{}
		inv := NewMessageInvocation(rs, inVoice, testMessage("!play x"), "play", nil)
		inv.Defer(false)
		inv.ReplyEphemeral("hi")
		inv.NotifyError(errors.New("boom"))
		if len(rs.Responses) != 0 {
			t.Errorf("message invocation sent interaction responses: %+v", rs.Responses)
		}
		if len(rs.Messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(rs.Messages))
		}
		if ref := rs.Messages[0].Reference; ref == nil || ref.MessageID != "msg-1" {
			t.Errorf("reference = %+v", ref)
		}
		if rs.Messages[1].Content != "Could not play that: boom" {
			t.Errorf("error reply = %q", rs.Messages[1].Content)
		}
	})

	t.Run("no voice channel", func(t *testing.T) {
		t.Parallel()
		inv := NewMessageInvocation(&mock.Responder{}, nowhere, testMessage("!play x"), "play", nil)
		if target := inv.VoiceTarget(); target.ChannelID != "" || target.MemberID != "user-1" {
			t.Errorf("VoiceTarget() = %+v", target)
		}
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789[...]" {
		t.Errorf("truncate() = %q", got)
	}
}
