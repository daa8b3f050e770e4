package controller_test

import (
	"context"
	"testing"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func musicProvider() *stubProvider {
	return returning("suno", &provider.Artifact{Items: []provider.Artifact{
		{Kind: provider.ArtifactURL, URL: "https://x/one.mp3", MIME: "audio/mpeg", Title: "Night Drive"},
	}})
}

func TestCustomMusicFlowWithLyrics(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	suno := musicProvider()
	e.registry.Register(suno)

	e.send(100, "/custom_generate_music")
	assert.Contains(t, e.msgr.lastTo(100).text, "title")

	e.send(100, "Night Drive")
	last := e.msgr.lastTo(100)
	require.NotNil(t, last.markup)
	assert.Equal(t, "flow:custom_music:no", last.markup.InlineKeyboard[1][0].CallbackData)

	e.press(100, "flow:custom_music:no")
	assert.Equal(t, "📝 Send the lyrics.", e.msgr.lastTo(100).text)

	e.send(100, "city lights\nempty roads")
	assert.Contains(t, e.msgr.lastTo(100).text, "Describe the style")

	e.send(100, "synthwave, male vocals")
	summary := e.msgr.lastTo(100)
	assert.Contains(t, summary.text, "Night Drive")
	assert.Contains(t, summary.text, "synthwave")
	require.NotNil(t, summary.markup)
	assert.Zero(t, suno.calls.Load())

	e.press(100, "flow:custom_music:yes")
	e.waitIdle(t, 100)

	require.EqualValues(t, 1, suno.calls.Load())
	args := suno.lastRequest().Args
	assert.Equal(t, provider.MusicCustom, args.Get(entity.ArgOperation))
	assert.Equal(t, "Night Drive", args.Get(entity.ArgTitle))
	assert.Equal(t, "city lights\nempty roads", args.Get(entity.ArgLyrics))
	assert.Equal(t, "synthwave, male vocals", args.Get(entity.ArgTags))
	assert.False(t, args.Bool(entity.ArgInstrumental))

	assert.Nil(t, e.sessions.Load(ctx, 100).Flow)
	assert.Len(t, e.msgr.mediaOf("audio"), 1)
	assert.Equal(t, 2, e.msgr.answerCount())
}

func TestCustomMusicInstrumentalSkipsLyrics(t *testing.T) {
	e := newEnv(t)
	suno := musicProvider()
	e.registry.Register(suno)

	e.send(101, "/custom_generate_music")
	e.send(101, "Ambient Morning")
	e.send(101, "yes")
	assert.Contains(t, e.msgr.lastTo(101).text, "Describe the style")

	e.send(101, "ambient piano")
	assert.Contains(t, e.msgr.lastTo(101).text, "Instrumental: yes")

	e.send(101, "maybe")
	assert.Contains(t, e.msgr.lastTo(101).text, "yes or no")

	e.send(101, "yes")
	e.waitIdle(t, 101)
	require.EqualValues(t, 1, suno.calls.Load())
	assert.True(t, suno.lastRequest().Args.Bool(entity.ArgInstrumental))
}

func TestCancelLeavesFlowAndTextGoesToChat(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	text := textReply("Sure.")
	e.registry.Register(text)

	e.send(102, "/custom_generate_music")
	e.send(102, "/cancel")
	assert.Equal(t, "❎ Cancelled.", e.msgr.lastTo(102).text)
	assert.Nil(t, e.sessions.Load(ctx, 102).Flow)

	e.send(102, "tell me a joke")
	e.waitIdle(t, 102)
	assert.EqualValues(t, 1, text.calls.Load())

	e.send(102, "/cancel")
	assert.Equal(t, "Nothing to cancel.", e.msgr.lastTo(102).text)
}

func TestMusicLookupsDoNotCountAgainstQuota(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withQuota(entity.KindMusicGen, 1))
	suno := returning("suno", &provider.Artifact{Kind: provider.ArtifactText, Text: "clip abc: complete"})
	e.registry.Register(suno)

	e.send(103, "/get_music_info abc, def")
	e.waitIdle(t, 103)
	e.send(103, "/get_music_info abc")
	e.waitIdle(t, 103)

	reqs := suno.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "abc,def", reqs[0].Args.Get(entity.ArgClipID))
	assert.Equal(t, provider.MusicInfo, reqs[0].Args.Get(entity.ArgOperation))

	n, err := e.uow.NewUnitOfWork(ctx).GenerationRepository().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExtendAudioParsesOffsetAndLyrics(t *testing.T) {
	e := newEnv(t)
	suno := musicProvider()
	e.registry.Register(suno)

	e.send(104, "/extend_audio clip-9 42 and the night goes on")
	e.waitIdle(t, 104)

	args := suno.lastRequest().Args
	assert.Equal(t, provider.MusicExtend, args.Get(entity.ArgOperation))
	assert.Equal(t, "clip-9", args.Get(entity.ArgClipID))
	assert.Equal(t, 42, args.Int(entity.ArgContinueAt, 0))
	assert.Equal(t, "and the night goes on", args.Get(entity.ArgLyrics))
}
