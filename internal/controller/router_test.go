package controller_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/repository/specification"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textReply(answer string) *stubProvider {
	return returning("text", &provider.Artifact{Kind: provider.ArtifactText, Text: answer})
}

func TestFluxCommandDeliversPhotoAndRecordsOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	flux := returning("flux", &provider.Artifact{Kind: provider.ArtifactURL, URL: "https://x/a.png", MIME: "image/png"})
	e.registry.Register(flux)

	e.send(7, "/flux cat in hat")
	placeholder := e.msgr.placeholderTo(7)
	require.NotZero(t, placeholder)

	require.Eventually(t, func() bool { return e.msgr.wasDeleted(placeholder) }, settleTimeout, 5*time.Millisecond)
	e.waitIdle(t, 7)

	photos := e.msgr.mediaOf("photo")
	require.Len(t, photos, 1)
	assert.Equal(t, "https://x/a.png", photos[0].file.URL)
	assert.Contains(t, photos[0].caption, "cat in hat")
	assert.Equal(t, "flux-dev", flux.lastRequest().Model)

	n, err := e.uow.NewUnitOfWork(ctx).GenerationRepository().Count(ctx, specification.ByUserID{UserID: 7})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.Eventually(t, func() bool {
		totals, err := e.collector.Snapshot(ctx)
		return err == nil && totals.Models["flux-dev"] == 1
	}, settleTimeout, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	totals, err := e.collector.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals.Commands["/flux"])
	assert.EqualValues(t, 1, totals.Models["flux-dev"], "submit and completion must not both count the model")
}

func TestFailedEnqueueRewritesPlaceholder(t *testing.T) {
	e := newEnv(t)
	e.registry.Register(returning("flux", &provider.Artifact{Kind: provider.ArtifactURL, URL: "https://x/a.png"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.queue.Shutdown(ctx))

	e.send(7, "/flux cat in hat")
	placeholder := e.msgr.placeholderTo(7)
	require.NotZero(t, placeholder)

	assert.False(t, e.msgr.wasDeleted(placeholder))
	edits := e.msgr.editsOf(placeholder)
	require.NotEmpty(t, edits)
	assert.Contains(t, edits[len(edits)-1], "job queue is unavailable")
	assert.Equal(t, []string{"⏳ Queued…"}, e.msgr.textsTo(7), "the error replaces the placeholder")
}

func TestVideoOverDailyLimitIsRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, withQuota(entity.KindVideoGen, 2))
	video := returning("video", &provider.Artifact{Kind: provider.ArtifactURL, URL: "https://x/v.mp4", MIME: "video/mp4"})
	e.registry.Register(video)
	for i := 0; i < 2; i++ {
		_, err := e.uow.NewUnitOfWork(ctx).GenerationRepository().Record(ctx, &entity.GenerationRecord{
			UserID: 8, Kind: entity.KindVideoGen, Provider: "video",
			JobID: fmt.Sprintf("earlier-%d", i), CreatedAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
	}

	e.send(8, "/video mountains")

	reply := e.msgr.lastTo(8).text
	assert.Contains(t, reply, "daily limit")
	assert.Contains(t, reply, "2")
	assert.Zero(t, e.msgr.placeholderTo(8))
	assert.Zero(t, video.calls.Load())

	n, err := e.uow.NewUnitOfWork(ctx).GenerationRepository().Count(ctx, specification.ByUserID{UserID: 8})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTTSSelectsFirstVoiceAndKeepsIt(t *testing.T) {
	e := newEnv(t)
	tts := returning("elevenlabs", &provider.Artifact{Kind: provider.ArtifactURL, URL: "https://x/hello.mp3", MIME: "audio/mpeg"})
	e.registry.Register(tts)

	e.send(9, "/tts hello")
	e.waitIdle(t, 9)

	require.Len(t, e.msgr.mediaOf("voice"), 1)
	req := tts.lastRequest()
	assert.Equal(t, "hello", req.Args.Get(entity.ArgPrompt))
	assert.Equal(t, "v-adam", req.Args.Get(entity.ArgVoiceID))

	e.send(9, "/currentvoice")
	assert.Equal(t, "Current voice: Adam", e.msgr.lastTo(9).text)
}

func TestConcurrentImageJobsStaySeparate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	var running sync.WaitGroup
	running.Add(2)
	image := &stubProvider{name: "openai-image", fn: func(ctx context.Context, req provider.Request, sink progress.Sink) provider.Outcome {
		running.Done()
		running.Wait()
		return provider.Completed(&provider.Artifact{
			Kind: provider.ArtifactURL,
			URL:  "https://x/" + req.Args.Get(entity.ArgPrompt) + ".png",
			MIME: "image/png",
		})
	}}
	e.registry.Register(image)

	e.send(21, "/generate_image red")
	e.send(22, "/generate_image blue")
	e.waitIdle(t, 21)
	e.waitIdle(t, 22)

	photos := e.msgr.mediaOf("photo")
	require.Len(t, photos, 2)
	for _, p := range photos {
		switch p.chatID {
		case 21:
			assert.Equal(t, "https://x/red.png", p.file.URL)
		case 22:
			assert.Equal(t, "https://x/blue.png", p.file.URL)
		default:
			t.Fatalf("photo sent to unexpected chat %d", p.chatID)
		}
	}
	for _, uid := range []int64{21, 22} {
		n, err := e.uow.NewUnitOfWork(ctx).GenerationRepository().Count(ctx, specification.ByUserID{UserID: uid})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}
}

func TestDeleteSessionCancelsPendingChat(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	started := make(chan struct{}, 1)
	text := &stubProvider{name: "text", fn: func(ctx context.Context, req provider.Request, sink progress.Sink) provider.Outcome {
		started <- struct{}{}
		<-ctx.Done()
		return provider.Failed(ctx.Err())
	}}
	e.registry.Register(text)

	e.send(30, "/gpt long question about everything")
	placeholder := e.msgr.placeholderTo(30)
	select {
	case <-started:
	case <-time.After(settleTimeout):
		t.Fatal("text job never started")
	}

	e.send(30, "/delete_session")
	require.Eventually(t, func() bool { return e.msgr.wasDeleted(placeholder) }, settleTimeout, 5*time.Millisecond)
	e.waitIdle(t, 30)

	for _, msg := range e.msgr.textsTo(30) {
		assert.NotContains(t, msg, "went wrong")
	}
	assert.Contains(t, e.msgr.textsTo(30), "🧹 Conversation cleared. Cancelled 1 pending request(s).")
	assert.Empty(t, e.sessions.Load(ctx, 30).History)
}

func TestTextChatCarriesHistory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	text := textReply("Hi there!")
	e.registry.Register(text)

	e.send(31, "hello")
	e.waitIdle(t, 31)
	e.send(31, "how are you?")
	e.waitIdle(t, 31)

	assert.Equal(t, "gpt-4o", text.lastRequest().Model)
	assert.Len(t, text.lastRequest().Messages, 3)
	assert.Len(t, e.sessions.Load(ctx, 31).History, 4)
	assert.Contains(t, e.msgr.textsTo(31), "Hi there!")
}

func TestGroupMessagesNeedMention(t *testing.T) {
	e := newEnv(t)
	text := textReply("ok")
	e.registry.Register(text)

	group := func(body string) *telegram.Message {
		msg := e.message(40, body)
		msg.Chat = &telegram.Chat{ID: -100, Type: "supergroup"}
		return msg
	}

	e.sendMessage(group("just chatting"))
	assert.Zero(t, text.calls.Load())
	assert.Empty(t, e.msgr.textsTo(-100))

	e.sendMessage(group("@GenBot what is Go?"))
	e.waitIdle(t, 40)
	require.EqualValues(t, 1, text.calls.Load())
	assert.Equal(t, "what is Go?", text.lastRequest().Messages[len(text.lastRequest().Messages)-1].Content)

	e.sendMessage(group("/gpt@genbot and Rust?"))
	e.waitIdle(t, 40)
	require.EqualValues(t, 2, text.calls.Load())
	msgs := text.lastRequest().Messages
	assert.Equal(t, "and Rust?", msgs[len(msgs)-1].Content)
}

func TestAccessListsFilterUsers(t *testing.T) {
	e := newEnv(t, withAccess([]int64{5}, []int64{6}))

	e.send(6, "/start")
	e.send(7, "/start")
	e.send(5, "/start")
	e.send(adminID, "/start")

	assert.Empty(t, e.msgr.textsTo(6))
	assert.Empty(t, e.msgr.textsTo(7))
	assert.Len(t, e.msgr.textsTo(5), 1)
	assert.Len(t, e.msgr.textsTo(adminID), 1)
}

func TestAdminCommandsAndBans(t *testing.T) {
	e := newEnv(t)
	e.registry.Register(textReply("hi"))

	e.send(50, "/admin_ban 51")
	assert.Contains(t, e.msgr.lastTo(50).text, "admins only")

	e.send(adminID, "/admin_ban 51")
	assert.Equal(t, "🚫 User 51 banned.", e.msgr.lastTo(adminID).text)

	e.send(51, "/gpt hello")
	assert.Contains(t, e.msgr.lastTo(51).text, "banned")
	assert.Zero(t, e.msgr.placeholderTo(51))

	e.send(adminID, "/admin_unban 51")
	e.send(51, "/gpt hello")
	assert.NotZero(t, e.msgr.placeholderTo(51))
	e.waitIdle(t, 51)

	e.send(adminID, "/admin_ban bob")
	assert.Contains(t, e.msgr.lastTo(adminID).text, "not a user id")
}

func TestAdminRestartRunsInBackground(t *testing.T) {
	e := newEnv(t)

	e.send(adminID, "/admin_restart")
	select {
	case <-e.restarted:
	case <-time.After(settleTimeout):
		t.Fatal("restart was not requested")
	}
	assert.Contains(t, e.msgr.textsTo(adminID), "♻️ Restarting…")
}

func TestHelpShowsAdminSectionToAdmins(t *testing.T) {
	e := newEnv(t)

	e.send(60, "/HELP")
	e.send(adminID, "/help@genbot")

	assert.NotContains(t, e.msgr.lastTo(60).text, "/admin_ban")
	assert.Contains(t, e.msgr.lastTo(adminID).text, "/admin_ban")
}

func TestUsageErrorsAreReported(t *testing.T) {
	e := newEnv(t)

	e.send(61, "/tts")
	assert.Equal(t, "⚠️ Usage: /tts <text>", e.msgr.lastTo(61).text)

	e.send(61, "/setvoice Nobody")
	assert.Contains(t, e.msgr.lastTo(61).text, "Unknown voice")

	e.send(61, "/no_such_command")
	assert.Len(t, e.msgr.textsTo(61), 2)
}

func TestAnalyzeImageWaitsForPhoto(t *testing.T) {
	e := newEnv(t)
	vision := returning("vision", &provider.Artifact{Kind: provider.ArtifactText, Text: "A cat wearing a hat."})
	e.registry.Register(vision)

	e.send(70, "/analyze_image what is this?")
	assert.Contains(t, e.msgr.lastTo(70).text, "Send the photo")
	assert.Zero(t, vision.calls.Load())

	photo := e.message(70, "")
	photo.Photo = []telegram.PhotoSize{{FileID: "small", Width: 90, Height: 90}, {FileID: "large", Width: 1280, Height: 960}}
	e.sendMessage(photo)
	e.waitIdle(t, 70)

	require.EqualValues(t, 1, vision.calls.Load())
	req := vision.lastRequest()
	assert.Equal(t, "large", req.Args.Get(entity.ArgFileID))
	assert.Equal(t, "what is this?", req.Args.Get(entity.ArgPrompt))
	assert.NotEmpty(t, req.InputPath)
	assert.Contains(t, e.msgr.textsTo(70), "A cat wearing a hat.")
}

func TestSetFluxModelIsUsed(t *testing.T) {
	e := newEnv(t)
	flux := returning("flux", &provider.Artifact{Kind: provider.ArtifactURL, URL: "https://x/b.png", MIME: "image/png"})
	e.registry.Register(flux)

	e.send(80, "/set_flux_model flux-schnell")
	assert.Contains(t, e.msgr.lastTo(80).text, "flux-schnell")
	e.send(80, "/current_flux_model")
	assert.Equal(t, "Current flux model: flux-schnell", e.msgr.lastTo(80).text)

	e.send(80, "/flux a lighthouse")
	e.waitIdle(t, 80)
	assert.Equal(t, "flux-schnell", flux.lastRequest().Model)
}

func TestParseCommandVariants(t *testing.T) {
	e := newEnv(t)
	text := textReply("ok")
	e.registry.Register(text)

	e.send(90, "  /GPT@genbot   spaced   out  ")
	e.waitIdle(t, 90)
	msgs := text.lastRequest().Messages
	require.NotEmpty(t, msgs)
	assert.True(t, strings.HasPrefix(msgs[len(msgs)-1].Content, "spaced"))
}
