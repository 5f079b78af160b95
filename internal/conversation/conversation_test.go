package conversation

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lukasbauer/evervoice/internal/core"
	"github.com/lukasbauer/evervoice/internal/memory"
	"github.com/lukasbauer/evervoice/internal/objectstore"
	"github.com/lukasbauer/evervoice/internal/progression"
	"github.com/lukasbauer/evervoice/internal/store"
	"github.com/lukasbauer/evervoice/internal/voice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	reply string
	err   error
	calls []core.ChatRequest
}

func (f *fakeChat) Chat(_ context.Context, req core.ChatRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

type speechFunc func(ctx context.Context, text, voiceID string) []byte

func (f speechFunc) Synthesize(ctx context.Context, text, voiceID string) []byte {
	return f(ctx, text, voiceID)
}

type nopCloner struct{}

func (nopCloner) CloneVoice(context.Context, string, []byte) (string, error) { return "", nil }
func (nopCloner) AddVoiceSample(context.Context, string, []byte) error       { return nil }
func (nopCloner) DeleteVoice(context.Context, string) error                  { return nil }

type fixture struct {
	svc      *Service
	mem      *store.Memory
	ledger   *progression.Ledger
	memories *memory.Service
	assets   *voice.Assets
	chat     *fakeChat
	speech   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mem: store.NewMemory(), chat: &fakeChat{reply: "I'm here, love."}, speech: []byte("SPEECH")}
	f.ledger = progression.NewLedger(f.mem, zerolog.Nop())
	f.memories = memory.NewService(f.mem, zerolog.Nop())
	f.assets = voice.NewAssets(objectstore.NewMemory(), nopCloner{}, "default", zerolog.Nop())
	f.svc = NewService(Deps{
		Ledger:   f.ledger,
		Personas: f.memories,
		Clips:    f.assets,
		Chat:     f.chat,
		Speech:   speechFunc(func(context.Context, string, string) []byte { return f.speech }),
	}, Models{Basic: "small", Advanced: "large"}, zerolog.Nop())
	return f
}

func TestOwnerTurnSpendsEnergy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "I'm here, love.", r.Text)
	require.NotNil(t, r.Energy)
	assert.Equal(t, progression.DefaultEnergy-1, *r.Energy)
	assert.Equal(t, []byte("SPEECH"), r.Audio)

	txs, err := f.ledger.Transactions(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ReasonChat, txs[0].Reason)
	assert.Equal(t, -1, txs[0].EnergyDelta)
}

func TestOutOfEnergy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.ApplyDelta(ctx, "u1", 0, -1000, "drain")
	require.NoError(t, err)

	_, err = f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	assert.ErrorIs(t, err, core.ErrOutOfEnergy)
	assert.Empty(t, f.chat.calls)

	r, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi", Guest: true})
	require.NoError(t, err, "guests talk for free")
	assert.Nil(t, r.Energy)
}

func TestChatFailureKeepsEnergy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.chat.err = errors.New("upstream 500")

	_, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.Error(t, err)

	p, err := f.ledger.GetOrCreateProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, progression.DefaultEnergy, p.Energy)
}

func TestModelFollowsTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.NoError(t, err)
	_, _, err = f.ledger.UpgradeTier(ctx, "u1", core.TierAdvanced, 0, 0)
	require.NoError(t, err)
	_, err = f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.NoError(t, err)

	require.Len(t, f.chat.calls, 2)
	assert.Equal(t, "small", f.chat.calls[0].Model)
	assert.Equal(t, "large", f.chat.calls[1].Model)
}

func TestSystemPromptUsesPersonaAndMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nick := "Bug"
	require.NoError(t, f.memories.SavePersona(ctx, "u1", core.RoleDaughter, "You are Anna, cheerful and teasing.", &nick))
	require.NoError(t, f.memories.SaveFragment(ctx, "u1", core.RoleDaughter, "favorite_trip", "Camping at the lake"))
	require.NoError(t, f.memories.SaveFragment(ctx, "u1", core.RoleDaughter, "first_pet", memory.SkipAnswer))

	_, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleDaughter, Text: "hi"})
	require.NoError(t, err)

	prompt := f.chat.calls[0].SystemPrompt
	assert.Contains(t, prompt, "You are Anna")
	assert.Contains(t, prompt, "Camping at the lake")
	assert.NotContains(t, prompt, memory.SkipAnswer)
}

func TestDefaultPersonaPrompt(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reply(context.Background(), Turn{OwnerID: "u1", Role: core.RoleSon, Text: "hi"})
	require.NoError(t, err)
	assert.Contains(t, f.chat.calls[0].SystemPrompt, "their son")
}

func TestNicknameClipSplicedInFront(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.assets.UploadClip(ctx, "u1", core.RoleWife, core.SlotNickname, []byte("NICK")))

	r, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(r.Audio, []byte("NICK")))
	assert.True(t, bytes.HasSuffix(r.Audio, []byte("SPEECH")))
}

func TestSynthesisFailureReturnsTextOnly(t *testing.T) {
	f := newFixture(t)
	f.speech = nil
	ctx := context.Background()
	require.NoError(t, f.assets.UploadClip(ctx, "u1", core.RoleWife, core.SlotNickname, []byte("NICK")))

	r, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, r.Text)
	assert.Nil(t, r.Audio)
}

func TestAudioTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Audio: []byte("a")})
	assert.ErrorIs(t, err, core.ErrTranscription)

	f.svc.Transcriber = fakeTranscriber{text: " how was your day? "}
	r, err := f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Audio: []byte("a")})
	require.NoError(t, err)
	assert.Equal(t, "how was your day?", r.Transcript)
	assert.Equal(t, "how was your day?", f.chat.calls[0].UserText)

	f.svc.Transcriber = fakeTranscriber{err: errors.New("socket closed")}
	_, err = f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife, Audio: []byte("a")})
	assert.ErrorIs(t, err, core.ErrTranscription)

	_, err = f.svc.Reply(ctx, Turn{OwnerID: "u1", Role: core.RoleWife})
	assert.ErrorIs(t, err, ErrEmptyTurn)
}

func TestHistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	var history []core.Message
	for i := 0; i < 50; i++ {
		history = append(history, core.Message{Role: "user", Content: strings.Repeat("x", i)})
	}
	_, err := f.svc.Reply(context.Background(), Turn{OwnerID: "u1", Role: core.RoleWife, Text: "hi", History: history})
	require.NoError(t, err)
	assert.Len(t, f.chat.calls[0].History, maxHistory)
}
