package controller

import (
	"context"
	"regexp"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/service"
	"ai-genbot-gateway/pkg/telegram"
)

// HandlerFunc handles one inbound update. A returned error is reported to
// the chat through the notifier.
type HandlerFunc func(c *Context) error

type Middleware func(next HandlerFunc) HandlerFunc

type route struct {
	kind       entity.GenerationKind
	handler    HandlerFunc
	middleware []Middleware
}

// Router maps chat updates to handlers the way a fiber app maps paths:
// commands by name, plain text, voice and photos by message type, and
// inline-button presses by data prefix.
type Router struct {
	messenger service.Messenger
	sessions  service.ISessionService
	notifier  service.INotifier
	mention   *regexp.Regexp
	logger    logger.ILogger

	middleware []Middleware
	commands   map[string]*route
	callbacks  map[string]*route
	flows      map[string]HandlerFunc
	text       *route
	voice      *route
	photo      *route
}

func NewRouter(
	messenger service.Messenger,
	sessions service.ISessionService,
	notifier service.INotifier,
	botUsername string,
	log logger.ILogger,
) *Router {
	r := &Router{
		messenger: messenger,
		sessions:  sessions,
		notifier:  notifier,
		logger:    log,
		commands:  make(map[string]*route),
		callbacks: make(map[string]*route),
		flows:     make(map[string]HandlerFunc),
	}
	if botUsername = strings.TrimPrefix(strings.TrimSpace(botUsername), "@"); botUsername != "" {
		r.mention = regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botUsername) + `\b`)
	}
	return r
}

// Use appends middleware that runs for every route, including routes
// registered before the call.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Group returns a registrar whose routes also run mw.
func (r *Router) Group(mw ...Middleware) *Group {
	return &Group{router: r, middleware: mw}
}

func (r *Router) Command(name string, kind entity.GenerationKind, h HandlerFunc) {
	r.Group().Command(name, kind, h)
}

func (r *Router) OnText(kind entity.GenerationKind, h HandlerFunc) {
	r.text = &route{kind: kind, handler: h}
}

func (r *Router) OnVoice(kind entity.GenerationKind, h HandlerFunc) {
	r.voice = &route{kind: kind, handler: h}
}

func (r *Router) OnPhoto(kind entity.GenerationKind, h HandlerFunc) {
	r.photo = &route{kind: kind, handler: h}
}

// OnCallback routes inline-button presses whose data starts with prefix.
// The handler sees the rest of the data in Context.Args.
func (r *Router) OnCallback(prefix string, h HandlerFunc) {
	r.callbacks[prefix] = &route{handler: h}
}

// OnFlow takes over plain text messages while the user is inside the named
// interactive flow.
func (r *Router) OnFlow(name string, h HandlerFunc) {
	r.flows[name] = h
}

// Commands lists the registered command names.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

type Group struct {
	router     *Router
	middleware []Middleware
}

func (g *Group) Command(name string, kind entity.GenerationKind, h HandlerFunc) {
	g.router.commands[strings.ToLower(name)] = &route{kind: kind, handler: h, middleware: g.middleware}
}

// Dispatch handles one update. It has the telegram.UpdateHandler signature
// so it can be handed to the poller or the webhook endpoint directly.
func (r *Router) Dispatch(ctx context.Context, update telegram.Update) {
	c, rt := r.resolve(ctx, update)
	if rt == nil {
		return
	}

	h := rt.handler
	for i := len(rt.middleware) - 1; i >= 0; i-- {
		h = rt.middleware[i](h)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}

	if err := h(c); err != nil {
		r.fail(c, err)
	}
	if c.Callback != nil {
		if err := r.messenger.AnswerCallbackQuery(ctx, c.Callback.ID, ""); err != nil {
			r.logger.Debug("DISPATCH", "answerCallbackQuery failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (r *Router) resolve(ctx context.Context, update telegram.Update) (*Context, *route) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
			return nil, nil
		}
		for prefix, rt := range r.callbacks {
			if strings.HasPrefix(cb.Data, prefix) {
				c := r.newContext(ctx, update, cb.Message, cb.From.ID)
				c.Callback = cb
				c.Args = strings.TrimPrefix(cb.Data, prefix)
				return c, rt
			}
		}
		return nil, nil
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return nil, nil
	}
	text, ok := r.addressed(msg)
	if !ok {
		return nil, nil
	}

	c := r.newContext(ctx, update, msg, msg.From.ID)
	if name, args := parseCommand(text); name != "" {
		rt, found := r.commands[name]
		if !found {
			return nil, nil
		}
		c.Command, c.Args, c.Kind = name, args, rt.kind
		return c, rt
	}

	c.Args = text
	var rt *route
	switch {
	case photoOf(msg) != "":
		rt = r.withPending(r.photo)
	case voiceOf(msg) != "":
		rt = r.withPending(r.voice)
	case text != "":
		rt = r.withFlow(r.text)
	}
	if rt == nil {
		return nil, nil
	}
	c.Kind = rt.kind
	return c, rt
}

func (r *Router) newContext(ctx context.Context, update telegram.Update, msg *telegram.Message, userID int64) *Context {
	return &Context{
		ctx:     ctx,
		Update:  update,
		Message: msg,
		UserID:  userID,
		ChatID:  msg.Chat.ID,
		router:  r,
	}
}

// addressed returns the message text with any bot mention removed. Group
// messages count only when they mention the bot, use a command or reply
// to one of its messages.
func (r *Router) addressed(msg *telegram.Message) (string, bool) {
	text := strings.TrimSpace(msg.Content())
	mentioned := false
	if r.mention != nil && r.mention.MatchString(text) {
		mentioned = true
		text = strings.TrimSpace(r.mention.ReplaceAllString(text, ""))
	}
	if !msg.Chat.IsGroup() || mentioned {
		return text, true
	}
	if strings.HasPrefix(text, "/") {
		return text, true
	}
	if msg.ReplyTo != nil && msg.ReplyTo.From != nil && msg.ReplyTo.From.IsBot {
		return text, true
	}
	return "", false
}

// withFlow lets an active interactive flow take plain text before the
// default text handler.
func (r *Router) withFlow(fallback *route) *route {
	if fallback == nil && len(r.flows) == 0 {
		return nil
	}
	kind := entity.KindTextChat
	if fallback != nil {
		kind = fallback.kind
	}
	return &route{kind: kind, handler: func(c *Context) error {
		if flow := r.sessions.Load(c.Ctx(), c.UserID).Flow; flow != nil {
			if h, ok := r.flows[flow.Name]; ok {
				return h(c)
			}
		}
		if fallback == nil {
			return nil
		}
		return fallback.handler(c)
	}}
}

// withPending replays a command that was waiting for an attachment, such
// as /analyze_image sent without a photo, against this message.
func (r *Router) withPending(fallback *route) *route {
	if fallback == nil && len(r.commands) == 0 {
		return nil
	}
	kind := entity.GenerationKind("")
	if fallback != nil {
		kind = fallback.kind
	}
	return &route{kind: kind, handler: func(c *Context) error {
		pending, err := r.sessions.TakePartial(c.Ctx(), c.UserID)
		if err != nil {
			r.logger.Warn("DISPATCH", "Failed to read pending command", map[string]interface{}{
				"userId": c.UserID,
				"error":  err.Error(),
			})
		}
		if name, args := parseCommand(pending); name != "" {
			if rt, ok := r.commands[name]; ok {
				c.Command, c.Kind = name, rt.kind
				if c.Args == "" {
					c.Args = args
				}
				return rt.handler(c)
			}
		}
		if fallback == nil {
			return nil
		}
		return fallback.handler(c)
	}}
}

func (r *Router) fail(c *Context, err error) {
	kind := entity.ErrorKindOf(err)
	detail := entity.ErrorDetail(err)
	if kind == entity.ErrorInternal {
		r.logger.Error("DISPATCH", "Handler failed", map[string]interface{}{
			"userId":  c.UserID,
			"chatId":  c.ChatID,
			"command": c.Command,
			"error":   err.Error(),
		})
		if detail == "" {
			detail = strings.TrimSpace(c.Command + " " + err.Error())
		}
	}
	opts := []service.NotifyOption{service.ReplyTo(c.MessageID()), service.ForUser(c.UserID)}
	if id := entity.ErrorMessageID(err); id != 0 {
		opts = append(opts, service.InPlaceOf(id))
	}
	r.notifier.NotifyError(c.Ctx(), c.ChatID, kind, detail, opts...)
}

// parseCommand splits "/cmd@bot rest" into ("/cmd", "rest"). Text that is
// not a command yields an empty name.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", ""
	}
	name, args := text, ""
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		name, args = text[:i], strings.TrimSpace(text[i+1:])
	}
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), args
}
