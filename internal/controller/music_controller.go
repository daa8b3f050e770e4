package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/service"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/telegram"
)

// Steps of the custom music flow.
const (
	stepTitle        = "TITLE"
	stepInstrumental = "IS_INSTRUMENTAL"
	stepLyrics       = "LYRICS"
	stepTags         = "TAGS"
	stepConfirm      = "CONFIRM"
)

const (
	maxTitleRunes  = 80
	maxLyricsRunes = 3000
	tagsPrompt     = "🎨 Describe the style, e.g. \"dreamy synth pop, female vocals\"."
)

type IMusicController interface {
	RegisterRoutes(r *Router)
	GenerateMusic(c *Context) error
	CustomMusic(c *Context) error
	CustomMusicInput(c *Context) error
	CustomMusicCallback(c *Context) error
	GenerateLyrics(c *Context) error
	ExtendAudio(c *Context) error
	ConcatAudio(c *Context) error
	MusicInfo(c *Context) error
	Cancel(c *Context) error
}

type musicController struct {
	jobSubmitter
	sessions service.ISessionService
}

func NewMusicController(sessions service.ISessionService, jobs service.IJobService) IMusicController {
	return &musicController{
		jobSubmitter: jobSubmitter{jobs: jobs},
		sessions:     sessions,
	}
}

func (ctl *musicController) RegisterRoutes(r *Router) {
	r.Command(constant.CmdGenerateMusic, entity.KindMusicGen, ctl.GenerateMusic)
	r.Command(constant.CmdCustomMusic, entity.KindMusicGen, ctl.CustomMusic)
	r.Command(constant.CmdGenerateLyrics, entity.KindMusicGen, ctl.GenerateLyrics)
	r.Command(constant.CmdExtendAudio, entity.KindMusicGen, ctl.ExtendAudio)
	r.Command(constant.CmdConcatAudio, entity.KindMusicGen, ctl.ConcatAudio)
	r.Command(constant.CmdMusicInfo, entity.KindMusicGen, ctl.MusicInfo)
	r.Command(constant.CmdCancel, "", ctl.Cancel)

	r.OnFlow(constant.FlowCustomMusic, ctl.CustomMusicInput)
	r.OnCallback(flowCallbackPrefix(constant.FlowCustomMusic), ctl.CustomMusicCallback)
}

func flowCallbackPrefix(flow string) string {
	return constant.CallbackFlowPrefix + flow + ":"
}

func (ctl *musicController) GenerateMusic(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdGenerateMusic + " <description>")
	}
	return ctl.music(c, entity.JobArgs{
		entity.ArgOperation: provider.MusicGenerate,
		entity.ArgPrompt:    c.Args,
	}, false)
}

func (ctl *musicController) GenerateLyrics(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdGenerateLyrics + " <topic>")
	}
	return ctl.music(c, entity.JobArgs{
		entity.ArgOperation: provider.MusicLyrics,
		entity.ArgPrompt:    c.Args,
	}, true)
}

// ExtendAudio takes a clip id, an optional start offset in seconds and
// optional lyrics for the continuation.
func (ctl *musicController) ExtendAudio(c *Context) error {
	fields := c.Fields()
	if len(fields) == 0 {
		return usage(constant.CmdExtendAudio + " <clip id> [seconds] [lyrics]")
	}
	args := entity.JobArgs{
		entity.ArgOperation: provider.MusicExtend,
		entity.ArgClipID:    fields[0],
	}
	rest := fields[1:]
	if len(rest) > 0 {
		if secs, err := strconv.Atoi(rest[0]); err == nil {
			if secs < 0 {
				return entity.NewInputError("The start offset must be a positive number of seconds.")
			}
			args[entity.ArgContinueAt] = strconv.Itoa(secs)
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		args[entity.ArgLyrics] = strings.Join(rest, " ")
	}
	return ctl.music(c, args, false)
}

func (ctl *musicController) ConcatAudio(c *Context) error {
	fields := c.Fields()
	if len(fields) != 1 {
		return usage(constant.CmdConcatAudio + " <clip id>")
	}
	return ctl.music(c, entity.JobArgs{
		entity.ArgOperation: provider.MusicConcat,
		entity.ArgClipID:    fields[0],
	}, false)
}

func (ctl *musicController) MusicInfo(c *Context) error {
	ids := strings.FieldsFunc(c.Args, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' })
	if len(ids) == 0 {
		return usage(constant.CmdMusicInfo + " <clip id> [more ids]")
	}
	return ctl.music(c, entity.JobArgs{
		entity.ArgOperation: provider.MusicInfo,
		entity.ArgClipID:    strings.Join(ids, ","),
	}, true)
}

// music submits a music job. Lookups and lyrics do not count against the
// daily music quota.
func (ctl *musicController) music(c *Context, args entity.JobArgs, noRecord bool) error {
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindMusicGen,
		Provider: constant.ProviderMusic,
		Args:     args,
		NoRecord: noRecord,
	})
}

func (ctl *musicController) CustomMusic(c *Context) error {
	_, err := ctl.sessions.Mutate(c.Ctx(), c.UserID, func(s *entity.Session) error {
		s.Flow = &entity.FlowState{
			Name:      constant.FlowCustomMusic,
			Step:      stepTitle,
			Data:      map[string]string{},
			StartedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.Reply("🎵 Let's write a song together. What's the title?\n\nSend /cancel to stop at any time.")
}

func (ctl *musicController) CustomMusicInput(c *Context) error {
	return ctl.advance(c, c.Args)
}

func (ctl *musicController) CustomMusicCallback(c *Context) error {
	return ctl.advance(c, c.Args)
}

func (ctl *musicController) Cancel(c *Context) error {
	var active bool
	_, err := ctl.sessions.Mutate(c.Ctx(), c.UserID, func(s *entity.Session) error {
		active = s.Flow != nil
		s.Flow = nil
		return nil
	})
	if err != nil {
		return err
	}
	if !active {
		return c.Reply("Nothing to cancel.")
	}
	return c.Reply("❎ Cancelled.")
}

// advance feeds one answer into the custom music flow. The flow lives in
// the session, so it expires with it.
func (ctl *musicController) advance(c *Context, input string) error {
	input = strings.TrimSpace(input)
	var (
		reply  string
		markup *telegram.InlineKeyboardMarkup
		ready  map[string]string
	)
	_, err := ctl.sessions.Mutate(c.Ctx(), c.UserID, func(s *entity.Session) error {
		flow := s.Flow
		if flow == nil || flow.Name != constant.FlowCustomMusic {
			reply = "That song draft has expired. Start again with " + constant.CmdCustomMusic + "."
			return nil
		}
		if flow.Data == nil {
			flow.Data = map[string]string{}
		}

		switch flow.Step {
		case stepTitle:
			if input == "" {
				return entity.NewInputError("Please send a title for the song.")
			}
			flow.Data[entity.ArgTitle] = progress.Truncate(input, maxTitleRunes)
			flow.Step = stepInstrumental
			reply, markup = "🎹 Should it be instrumental?", yesNoKeyboard("Instrumental", "With vocals")

		case stepInstrumental:
			yes, ok := parseYesNo(input)
			if !ok {
				return entity.NewInputError("Please answer yes or no.")
			}
			flow.Data[entity.ArgInstrumental] = strconv.FormatBool(yes)
			if yes {
				flow.Step, reply = stepTags, tagsPrompt
			} else {
				flow.Step, reply = stepLyrics, "📝 Send the lyrics."
			}

		case stepLyrics:
			if input == "" {
				return entity.NewInputError("Please send the lyrics as text.")
			}
			flow.Data[entity.ArgLyrics] = progress.Truncate(input, maxLyricsRunes)
			flow.Step, reply = stepTags, tagsPrompt

		case stepTags:
			if input == "" {
				return entity.NewInputError("Please describe the style.")
			}
			flow.Data[entity.ArgTags] = input
			flow.Step = stepConfirm
			reply, markup = summarize(flow.Data), yesNoKeyboard("Generate", "Cancel")

		case stepConfirm:
			yes, ok := parseYesNo(input)
			if !ok {
				return entity.NewInputError("Please answer yes or no.")
			}
			if yes {
				ready = flow.Data
			} else {
				reply = "❎ Cancelled."
			}
			s.Flow = nil

		default:
			s.Flow = nil
			reply = "That song draft is no longer valid. Start again with " + constant.CmdCustomMusic + "."
		}
		return nil
	})
	if err != nil {
		return err
	}

	if ready != nil {
		args := entity.JobArgs{entity.ArgOperation: provider.MusicCustom}
		for k, v := range ready {
			args[k] = v
		}
		c.Command = constant.CmdCustomMusic
		return ctl.music(c, args, false)
	}
	if markup != nil {
		return c.ReplyMarkup(reply, markup)
	}
	return c.Reply(reply)
}

func yesNoKeyboard(yes, no string) *telegram.InlineKeyboardMarkup {
	prefix := flowCallbackPrefix(constant.FlowCustomMusic)
	return telegram.Keyboard(
		telegram.InlineKeyboardButton{Text: yes, CallbackData: prefix + "yes"},
		telegram.InlineKeyboardButton{Text: no, CallbackData: prefix + "no"},
	)
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "ok", "generate", "instrumental":
		return true, true
	case "no", "n", "false", "cancel", "vocals":
		return false, true
	}
	return false, false
}

func summarize(data map[string]string) string {
	var b strings.Builder
	b.WriteString("🎼 Ready to generate:\n")
	fmt.Fprintf(&b, "\nTitle: %s", data[entity.ArgTitle])
	if data[entity.ArgInstrumental] == "true" {
		b.WriteString("\nInstrumental: yes")
	} else {
		fmt.Fprintf(&b, "\nLyrics: %s", progress.Truncate(data[entity.ArgLyrics], 200))
	}
	fmt.Fprintf(&b, "\nStyle: %s", data[entity.ArgTags])
	return b.String()
}
