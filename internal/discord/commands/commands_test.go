package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/botnek/internal/discord"
	"github.com/MrWong99/botnek/internal/discord/mock"
	"github.com/MrWong99/botnek/internal/playback"
	"github.com/MrWong99/botnek/internal/sfx"
	"github.com/MrWong99/botnek/internal/track"
	"github.com/MrWong99/botnek/pkg/audio"
)

const (
	testGuild   = "guild-1"
	testUser    = "user-1"
	testVoice   = "voice-1"
	testVideo   = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	managerRole = "role-sfx"
)

// fakeQueue records enqueued tracks.
type fakeQueue struct {
	mu      sync.Mutex
	tracks  []track.Track
	origins []playback.Origin
	stopped int
}

func (q *fakeQueue) Enqueue(origin playback.Origin, t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = append(q.tracks, t)
	q.origins = append(q.origins, origin)
}

func (q *fakeQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped++
}

func (q *fakeQueue) titles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = t.Title()
	}
	return out
}

// fakeTranscoder writes clips verbatim and names rate-adjusted copies after
// their rate.
type fakeTranscoder struct{}

func (fakeTranscoder) DecodeFile(context.Context, string) (audio.Stream, error) {
	return io.NopCloser(strings.NewReader("pcm")), nil
}

func (fakeTranscoder) DecodeReader(_ context.Context, r io.ReadCloser) (audio.Stream, error) {
	return r, nil
}

func (fakeTranscoder) AdjustRate(_ context.Context, in, guildDir string, rate float64) (string, error) {
	return fmt.Sprintf("%s/ffmpeg/%s@%g", guildDir, filepath.Base(in), rate), nil
}

func (fakeTranscoder) Clip(_ context.Context, r io.Reader, out string, _, _ time.Duration) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

// fakeFetcher serves one ten second video and doubles as a /play resolver.
type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) Info(context.Context, string) (track.VideoInfo, error) {
	if f.err != nil {
		return track.VideoInfo{}, f.err
	}
	return track.VideoInfo{ID: "dQw4w9WgXcQ", Title: "Never Gonna", Duration: 10 * time.Second}, nil
}

func (f *fakeFetcher) Resolve(_ context.Context, url string) (*track.Remote, error) {
	if f.err != nil {
		return nil, f.err
	}
	open := func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("encoded")), nil
	}
	return track.NewRemote("Never Gonna", url, open, nil), nil
}

// harness wires every command group to fakes for one guild.
type harness struct {
	router  *discord.CommandRouter
	rs      *mock.Responder
	queue   *fakeQueue
	lib     *sfx.Library
	fetcher *fakeFetcher
	voice   string
}

// newHarness seeds the guild's library with the given aliases.
func newHarness(t *testing.T, role string, aliases ...string) *harness {
	t.Helper()

	dir := t.TempDir()
	var db strings.Builder
	db.WriteString("sfx:\n  sounds:\n")
	for _, a := range aliases {
		file := filepath.Join(dir, "sounds", a+".mp3")
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(file, []byte(a), 0o644); err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(&db, "    %s: %s\n", a, file)
	}
	if err := os.WriteFile(filepath.Join(dir, sfx.StoreFile), []byte(db.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		router:  discord.NewCommandRouter(),
		rs:      &mock.Responder{},
		queue:   &fakeQueue{},
		fetcher: &fakeFetcher{},
		voice:   testVoice,
	}
	lib, err := sfx.Open(dir, fakeTranscoder{}, h.fetcher)
	if err != nil {
		t.Fatalf("sfx.Open: %v", err)
	}
	h.lib = lib

	queues := func(guildID string) (Queue, error) {
		if guildID != testGuild {
			return nil, errors.New("unknown guild")
		}
		return h.queue, nil
	}
	libraries := func(guildID string) (*sfx.Library, error) {
		if guildID != testGuild {
			return nil, errors.New("unknown guild")
		}
		return h.lib, nil
	}
	NewPlayCommands(h.router, queues, h.fetcher)
	NewSFXCommands(h.router, queues, libraries, discord.NewPermissionChecker(role))
	NewHelpCommands(h.router)
	return h
}

func (h *harness) locate(guildID, userID string) string {
	if guildID == testGuild && userID == testUser {
		return h.voice
	}
	return ""
}

// slash dispatches a slash command. sub may be empty for top-level
// commands.
func (h *harness) slash(name, sub string, opts map[string]string, roles ...string) {
	var options []*discordgo.ApplicationCommandInteractionDataOption
	for k, v := range opts {
		options = append(options, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  k,
			Type:  discordgo.ApplicationCommandOptionString,
			Value: v,
		})
	}
	if sub != "" {
		options = []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:    sub,
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Options: options,
		}}
	}
	i := &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   testGuild,
		ChannelID: "text-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: testUser}, Roles: roles},
		Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	}
	h.router.HandleInteraction(context.Background(), h.rs, h.locate, i)
}

// text dispatches a "!" prefixed message.
func (h *harness) text(content string, roles ...string) bool {
	m := &discordgo.Message{
		ID:        "msg-1",
		GuildID:   testGuild,
		ChannelID: "text-1",
		Content:   content,
		Author:    &discordgo.User{ID: testUser},
		Member:    &discordgo.Member{Roles: roles},
	}
	return h.router.HandleMessage(context.Background(), h.rs, h.locate, m, "!")
}

func (h *harness) lastText(t *testing.T) string {
	t.Helper()
	texts := h.rs.Texts()
	if len(texts) == 0 {
		t.Fatal("no reply sent")
	}
	return texts[len(texts)-1]
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	cmds := h.router.ApplicationCommands()

	var names []string
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	if got, want := strings.Join(names, ","), "help,play,sfx,stop"; got != want {
		t.Fatalf("commands = %s, want %s", got, want)
	}

	sfxDef := cmds[2]
	wantSubs := []string{"list", "add", "del", "play", "chain", "help"}
	if len(sfxDef.Options) != len(wantSubs) {
		t.Fatalf("sfx subcommands = %d, want %d", len(sfxDef.Options), len(wantSubs))
	}
	for i, name := range wantSubs {
		if sfxDef.Options[i].Name != name {
			t.Errorf("subcommand[%d] = %q, want %q", i, sfxDef.Options[i].Name, name)
		}
		if sfxDef.Options[i].Type != discordgo.ApplicationCommandOptionSubCommand {
			t.Errorf("subcommand[%d] type = %d, want SubCommand", i, sfxDef.Options[i].Type)
		}
	}
	addOpts := sfxDef.Options[1].Options
	if len(addOpts) != 4 || !addOpts[0].Required || !addOpts[1].Required || addOpts[2].Required || addOpts[3].Required {
		t.Errorf("add options should be alias, url required and two optional times")
	}
}

func TestPlay(t *testing.T) {
	t.Parallel()

	t.Run("unsupported url", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.slash("play", "", map[string]string{"url": "https://example.com/a.mp3"})
		if got := h.lastText(t); got != "Url scheme not supported: `https://example.com/a.mp3`" {
			t.Errorf("reply = %q", got)
		}
		if len(h.queue.titles()) != 0 {
			t.Error("nothing should be queued")
		}
	})

	t.Run("not in voice", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.voice = ""
		h.slash("play", "", map[string]string{"url": testVideo})
		if got := h.lastText(t); got != "You must join a voice channel to play audio." {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("queues remote", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.slash("play", "", map[string]string{"url": testVideo})
		if got := h.lastText(t); got != "Added "+testVideo+" to the queue" {
			t.Errorf("reply = %q", got)
		}
		if got := h.queue.titles(); len(got) != 1 || got[0] != "Never Gonna" {
			t.Fatalf("queued = %v", got)
		}
		target := h.queue.origins[0].VoiceTarget()
		if target.ChannelID != testVoice || target.MemberID != testUser || target.GuildID != testGuild {
			t.Errorf("origin target = %+v", target)
		}
	})

	t.Run("resolve failure reported", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.fetcher.err = &track.MediaFetchError{Source: testVideo, Err: errors.New("video unavailable")}
		h.slash("play", "", map[string]string{"url": testVideo})
		if got := h.lastText(t); !strings.HasPrefix(got, "Could not play that: ") {
			t.Errorf("reply = %q", got)
		}
		if len(h.queue.titles()) != 0 {
			t.Error("nothing should be queued")
		}
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.slash("stop", "", nil)
	if h.queue.stopped != 1 {
		t.Errorf("stopped = %d, want 1", h.queue.stopped)
	}
	if got := h.lastText(t); got != "Stopping!" {
		t.Errorf("reply = %q", got)
	}
}

func TestSFXPlay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		alias     string
		wantReply string
		wantTitle string
	}{
		{name: "plain", alias: "yay", wantReply: "Playing `yay`", wantTitle: "yay"},
		{name: "modifiers", alias: "yay#turbo#slow2", wantReply: "Playing `yay#TURBO#SLOW2`", wantTitle: "yay [TURBO,SLOW2]"},
		{name: "unknown with suggestion", alias: "airhorm", wantReply: "`airhorm` does not exist! Did you mean `airhorn`?"},
		{name: "unknown", alias: "zzz", wantReply: "`zzz` does not exist!"},
		{name: "invalid", alias: "no-pe", wantReply: "`no-pe` is not a valid alias, only lowercase and numbers allowed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, "", "yay", "airhorn")
			h.slash("sfx", "play", map[string]string{"alias": tt.alias})
			if got := h.lastText(t); got != tt.wantReply {
				t.Errorf("reply = %q, want %q", got, tt.wantReply)
			}
			titles := h.queue.titles()
			if tt.wantTitle == "" {
				if len(titles) != 0 {
					t.Errorf("queued = %v, want none", titles)
				}
				return
			}
			if len(titles) != 1 || titles[0] != tt.wantTitle {
				t.Errorf("queued = %v, want [%s]", titles, tt.wantTitle)
			}
		})
	}
}

func TestSFXChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sfxs       string
		wantReply  string
		wantQueued int
	}{
		{name: "queues in order", sfxs: "yay, airhorn#turbo", wantReply: "Queued chain of `yay` -> `airhorn#TURBO`", wantQueued: 2},
		{name: "too long", sfxs: "yay yay yay yay yay yay", wantReply: "Can only chain up to 5 sound effects, you psychopath."},
		{name: "only separators", sfxs: " , ,", wantReply: "Must chain at least one sfx"},
		{name: "missing", sfxs: "yay,nope,gone", wantReply: "The following sfx don't exist: `[nope, gone]`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, "", "yay", "airhorn")
			h.slash("sfx", "chain", map[string]string{"sfxs": tt.sfxs})
			if got := h.lastText(t); got != tt.wantReply {
				t.Errorf("reply = %q, want %q", got, tt.wantReply)
			}
			if got := len(h.queue.titles()); got != tt.wantQueued {
				t.Errorf("queued %d tracks, want %d", got, tt.wantQueued)
			}
		})
	}
}

func TestSFXAdd(t *testing.T) {
	t.Parallel()

	t.Run("stores clip after deferring", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.slash("sfx", "add", map[string]string{"alias": "rick", "url": testVideo, "start-time": "0:02", "end-time": "5s"})

		first := h.rs.Responses[0]
		if first.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
			t.Errorf("first response type = %d, want deferred", first.Type)
		}
		if got := h.rs.LastFollowUp(); got == nil || got.Content != "Added `rick`" {
			t.Fatalf("follow-up = %+v", got)
		}
		if !h.lib.Has("rick") {
			t.Error("rick should be stored")
		}
	})

	tests := []struct {
		name      string
		role      string
		opts      map[string]string
		wantReply string
	}{
		{
			name:      "missing role",
			role:      managerRole,
			opts:      map[string]string{"alias": "rick", "url": testVideo},
			wantReply: "You need the sfx role to add sound effects.",
		},
		{
			name:      "reserved",
			opts:      map[string]string{"alias": "random", "url": testVideo},
			wantReply: "`random` is a reserved alias.",
		},
		{
			name:      "invalid alias",
			opts:      map[string]string{"alias": "Rick!", "url": testVideo},
			wantReply: "`Rick!` is not a valid alias, only lowercase and numbers allowed.",
		},
		{
			name:      "exists",
			opts:      map[string]string{"alias": "yay", "url": testVideo},
			wantReply: "Sfx yay already exists!",
		},
		{
			name:      "unsupported url",
			opts:      map[string]string{"alias": "rick", "url": "https://example.com/x"},
			wantReply: "URL https://example.com/x is not supported",
		},
		{
			name:      "start after end",
			opts:      map[string]string{"alias": "rick", "url": testVideo, "start-time": "4s", "end-time": "2s"},
			wantReply: "startTime cannot be after endTime.",
		},
		{
			name:      "bad timestamp",
			opts:      map[string]string{"alias": "rick", "url": testVideo, "start-time": "soon"},
			wantReply: "Could not read start-time `soon`, use e.g. `1m30s` or `1:30`.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.role, "yay")
			h.slash("sfx", "add", tt.opts)
			if got := h.lastText(t); got != tt.wantReply {
				t.Errorf("reply = %q, want %q", got, tt.wantReply)
			}
			if h.lib.Has("rick") {
				t.Error("rick should not be stored")
			}
		})
	}
}

func TestSFXAdd_WithRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t, managerRole)
	h.slash("sfx", "add", map[string]string{"alias": "rick", "url": testVideo}, managerRole)
	if got := h.lastText(t); got != "Added `rick`" {
		t.Errorf("reply = %q", got)
	}
}

func TestSFXDel(t *testing.T) {
	t.Parallel()

	t.Run("deletes file", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "", "yay")
		h.slash("sfx", "del", map[string]string{"alias": "yay"})
		if got := h.lastText(t); got != "Deleted `yay`" {
			t.Errorf("reply = %q", got)
		}
		if h.lib.Has("yay") {
			t.Error("yay should be gone")
		}
	})

	t.Run("file already gone", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "", "yay")
		if err := os.Remove(filepath.Join(h.lib.Dir(), "sounds", "yay.mp3")); err != nil {
			t.Fatal(err)
		}
		h.slash("sfx", "del", map[string]string{"alias": "yay"})
		if got := h.lastText(t); got != "Sfx file did not exist, removed." {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		h.slash("sfx", "del", map[string]string{"alias": "yay"})
		if got := h.lastText(t); got != "Sfx `yay` does not exist!" {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("missing role", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, managerRole, "yay")
		h.slash("sfx", "del", map[string]string{"alias": "yay"}, "other-role")
		if !h.lib.Has("yay") {
			t.Error("yay should survive")
		}
	})
}

func TestSFXList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "", "b", "a", "c")
	h.slash("sfx", "list", nil)
	if got := h.lastText(t); got != "```\na | b | c\n```" {
		t.Errorf("reply = %q", got)
	}
}

func TestHelp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.slash("help", "", nil)

	resp := h.rs.LastResponse()
	if resp == nil || len(resp.Data.Embeds) != 1 {
		t.Fatalf("expected one embed, got %+v", resp)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("help should be ephemeral")
	}
	embed := resp.Data.Embeds[0]
	if embed.Title != "Botnek Commands Overview" {
		t.Errorf("title = %q", embed.Title)
	}
	if len(embed.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(embed.Fields))
	}
	if embed.Fields[2].Value != "Try `sfx help` for more info." {
		t.Errorf("sfx help text = %q", embed.Fields[2].Value)
	}
}

func TestTextCommands(t *testing.T) {
	t.Parallel()

	t.Run("default subcommand plays", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "", "yay")
		if !h.text("!sfx yay#turbo") {
			t.Fatal("message should be handled")
		}
		if got := h.queue.titles(); len(got) != 1 || got[0] != "yay [TURBO]" {
			t.Errorf("queued = %v", got)
		}
		if got := h.rs.Messages[0].Reference; got == nil || got.MessageID != "msg-1" {
			t.Errorf("reply should reference the command message, got %+v", got)
		}
	})

	t.Run("chain takes the rest", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "", "yay", "airhorn")
		h.text("!sfx chain yay, airhorn")
		if got := len(h.queue.titles()); got != 2 {
			t.Errorf("queued %d tracks, want 2", got)
		}
	})

	t.Run("requires voice", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "", "yay")
		h.voice = ""
		h.text("!sfx yay")
		if got := h.lastText(t); got != "You must join a voice channel before sending a command" {
			t.Errorf("reply = %q", got)
		}
		if len(h.queue.titles()) != 0 {
			t.Error("nothing should be queued")
		}
	})

	t.Run("unknown ignored", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "")
		if h.text("!dance") {
			t.Error("unknown command should not be handled")
		}
		if h.text("hello") {
			t.Error("unprefixed message should not be handled")
		}
		if len(h.rs.Texts()) != 0 {
			t.Error("no reply expected")
		}
	})
}
