package controller

import (
	"fmt"

	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/service"
)

type IVoiceController interface {
	RegisterRoutes(r *Router)
	ListVoices(c *Context) error
	SetVoice(c *Context) error
	CurrentVoice(c *Context) error
	AddVoice(c *Context) error
	DeleteVoice(c *Context) error
	TTS(c *Context) error
}

type voiceController struct {
	jobSubmitter
	users    service.IUserService
	sessions service.ISessionService
}

func NewVoiceController(users service.IUserService, sessions service.ISessionService, jobs service.IJobService) IVoiceController {
	return &voiceController{
		jobSubmitter: jobSubmitter{jobs: jobs},
		users:        users,
		sessions:     sessions,
	}
}

func (ctl *voiceController) RegisterRoutes(r *Router) {
	r.Command(constant.CmdListVoices, "", ctl.ListVoices)
	r.Command(constant.CmdSetVoice, "", ctl.SetVoice)
	r.Command(constant.CmdCurrentVoice, "", ctl.CurrentVoice)
	r.Command(constant.CmdAddVoice, "", ctl.AddVoice)
	r.Command(constant.CmdDeleteVoice, "", ctl.DeleteVoice)
	r.Command(constant.CmdTTS, entity.KindTTS, ctl.TTS)
}

func (ctl *voiceController) ListVoices(c *Context) error {
	return c.Reply(ctl.users.ListVoices())
}

func (ctl *voiceController) SetVoice(c *Context) error {
	entry, err := ctl.users.SetVoice(c.Ctx(), c.UserID, c.Args)
	if err != nil {
		return err
	}
	return c.Reply(fmt.Sprintf("✅ Voice set to %s.", entry.Name))
}

func (ctl *voiceController) CurrentVoice(c *Context) error {
	return c.Reply(ctl.users.CurrentVoice(c.Ctx(), c.UserID))
}

// AddVoice clones a voice from an attached sample. Without one, the command
// waits for the next voice message.
func (ctl *voiceController) AddVoice(c *Context) error {
	fileID := c.VoiceFileID()
	if fileID == "" {
		if err := ctl.sessions.StagePartial(c.Ctx(), c.UserID, constant.CmdAddVoice+" "+c.Args); err != nil {
			return err
		}
		return c.Reply("🎙 Send a voice message with about a minute of clear speech.")
	}
	if _, err := ctl.users.AddCustomVoice(c.Ctx(), c.UserID, c.Args, fileID); err != nil {
		return err
	}
	return c.Reply("✅ Your custom voice is ready and selected.")
}

func (ctl *voiceController) DeleteVoice(c *Context) error {
	if err := ctl.users.DeleteCustomVoice(c.Ctx(), c.UserID); err != nil {
		return err
	}
	return c.Reply("🗑 Custom voice deleted.")
}

func (ctl *voiceController) TTS(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdTTS + " <text>")
	}
	voiceID, err := ctl.users.ResolveVoice(c.Ctx(), c.UserID)
	if err != nil {
		return err
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindTTS,
		Provider: constant.ProviderTTS,
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args, entity.ArgVoiceID: voiceID},
	})
}
