package controller

import (
	"context"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/telegram"
)

// Context is the per-update state handed to middleware and handlers.
type Context struct {
	ctx    context.Context
	router *Router

	Update   telegram.Update
	Message  *telegram.Message
	Callback *telegram.CallbackQuery
	UserID   int64
	ChatID   int64
	// Command is the lowercased command name, empty for plain messages.
	Command string
	// Args is the text after the command, the whole text of a plain
	// message, or the callback data after the matched prefix.
	Args string
	Kind entity.GenerationKind
}

func (c *Context) Ctx() context.Context { return c.ctx }

func (c *Context) MessageID() int64 {
	if c.Message == nil {
		return 0
	}
	return c.Message.MessageID
}

// Reply answers in the same chat, threaded to the triggering message.
func (c *Context) Reply(text string) error {
	_, err := c.router.messenger.SendMessage(c.ctx, c.ChatID, text, telegram.SendOptions{ReplyTo: c.replyTarget()})
	return err
}

func (c *Context) ReplyMarkup(text string, markup *telegram.InlineKeyboardMarkup) error {
	_, err := c.router.messenger.SendMessage(c.ctx, c.ChatID, text, telegram.SendOptions{ReplyTo: c.replyTarget(), Markup: markup})
	return err
}

// Fields splits Args on whitespace.
func (c *Context) Fields() []string {
	return strings.Fields(c.Args)
}

// PhotoFileID returns the largest attached photo, an image sent as a file,
// or failing that a photo in the message being replied to.
func (c *Context) PhotoFileID() string {
	if c.Message == nil || c.Callback != nil {
		return ""
	}
	if id := photoOf(c.Message); id != "" {
		return id
	}
	if c.Message.ReplyTo != nil {
		return photoOf(c.Message.ReplyTo)
	}
	return ""
}

// VoiceFileID returns an attached voice note or audio file.
func (c *Context) VoiceFileID() string {
	if c.Message == nil || c.Callback != nil {
		return ""
	}
	if id := voiceOf(c.Message); id != "" {
		return id
	}
	if c.Message.ReplyTo != nil {
		return voiceOf(c.Message.ReplyTo)
	}
	return ""
}

func (c *Context) replyTarget() int64 {
	if c.Callback != nil {
		return 0
	}
	return c.MessageID()
}

func photoOf(m *telegram.Message) string {
	if p := m.LargestPhoto(); p != nil {
		return p.FileID
	}
	if m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/") {
		return m.Document.FileID
	}
	return ""
}

func voiceOf(m *telegram.Message) string {
	if m.Voice != nil {
		return m.Voice.FileID
	}
	if m.Audio != nil {
		return m.Audio.FileID
	}
	return ""
}

// Detach returns a copy whose context outlives the update, for work that
// continues after the handler returns.
func (c *Context) Detach() *Context {
	cp := *c
	cp.ctx = context.WithoutCancel(c.ctx)
	return &cp
}
