package controller

import (
	"fmt"

	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/service"
)

type IUserController interface {
	RegisterRoutes(r *Router)
	Start(c *Context) error
	Help(c *Context) error
	History(c *Context) error
	DeleteSession(c *Context) error
	SetSystemMessage(c *Context) error
	GetSystemMessage(c *Context) error
	QueueStatus(c *Context) error

	// Text models
	ListModels(c *Context) error
	SetModel(c *Context) error
	CurrentModel(c *Context) error

	// Conversation
	GPT(c *Context) error
	Text(c *Context) error
	VoiceChat(c *Context) error
}

type userController struct {
	jobSubmitter
	users    service.IUserService
	sessions service.ISessionService
	gate     service.IQuotaGate
}

func NewUserController(
	users service.IUserService,
	sessions service.ISessionService,
	jobs service.IJobService,
	gate service.IQuotaGate,
) IUserController {
	return &userController{
		jobSubmitter: jobSubmitter{jobs: jobs},
		users:        users,
		sessions:     sessions,
		gate:         gate,
	}
}

func (ctl *userController) RegisterRoutes(r *Router) {
	r.Command(constant.CmdStart, "", ctl.Start)
	r.Command(constant.CmdHelp, "", ctl.Help)
	r.Command(constant.CmdHistory, "", ctl.History)
	r.Command(constant.CmdDeleteSession, "", ctl.DeleteSession)
	r.Command(constant.CmdSetSystem, "", ctl.SetSystemMessage)
	r.Command(constant.CmdGetSystem, "", ctl.GetSystemMessage)
	r.Command(constant.CmdQueueStatus, "", ctl.QueueStatus)

	r.Command(constant.CmdListModels, "", ctl.ListModels)
	r.Command(constant.CmdSetModel, "", ctl.SetModel)
	r.Command(constant.CmdCurrentModel, "", ctl.CurrentModel)

	r.Command(constant.CmdGPT, entity.KindTextChat, ctl.GPT)
	r.OnText(entity.KindTextChat, ctl.Text)
	r.OnVoice(entity.KindVoiceChat, ctl.VoiceChat)
}

func (ctl *userController) Start(c *Context) error {
	return c.Reply(constant.WelcomeText)
}

func (ctl *userController) Help(c *Context) error {
	text := constant.HelpText
	if ctl.gate.IsAdmin(c.UserID) {
		text += "\n\n" + constant.AdminHelpText
	}
	return c.Reply(text)
}

func (ctl *userController) History(c *Context) error {
	return c.Reply(ctl.users.History(c.Ctx(), c.UserID))
}

// DeleteSession cancels pending conversation jobs before clearing history
// so none of them can append to the fresh session.
func (ctl *userController) DeleteSession(c *Context) error {
	cancelled := ctl.jobs.CancelConversation(c.Ctx(), c.UserID)
	if err := ctl.sessions.Reset(c.Ctx(), c.UserID); err != nil {
		return err
	}
	text := "🧹 Conversation cleared."
	if cancelled > 0 {
		text += fmt.Sprintf(" Cancelled %d pending request(s).", cancelled)
	}
	return c.Reply(text)
}

func (ctl *userController) SetSystemMessage(c *Context) error {
	if err := ctl.users.SetSystemPrompt(c.Ctx(), c.UserID, c.Args); err != nil {
		return err
	}
	return c.Reply("✅ System message updated.")
}

func (ctl *userController) GetSystemMessage(c *Context) error {
	return c.Reply("Current system message:\n\n" + ctl.users.SystemPrompt(c.Ctx(), c.UserID))
}

func (ctl *userController) QueueStatus(c *Context) error {
	return c.Reply(ctl.jobs.QueueStatus(c.Ctx()))
}

func (ctl *userController) ListModels(c *Context) error {
	return listModels(c, ctl.users, service.SlotText)
}

func (ctl *userController) SetModel(c *Context) error {
	return setModel(c, ctl.users, service.SlotText)
}

func (ctl *userController) CurrentModel(c *Context) error {
	return currentModel(c, ctl.users, service.SlotText)
}

func (ctl *userController) GPT(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdGPT + " <question>")
	}
	return ctl.Text(c)
}

func (ctl *userController) Text(c *Context) error {
	if c.Args == "" {
		return nil
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindTextChat,
		Provider: constant.ProviderText,
		Model:    ctl.model(c),
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args},
	})
}

func (ctl *userController) VoiceChat(c *Context) error {
	fileID := c.VoiceFileID()
	if fileID == "" {
		return entity.NewInputError("Send a voice message to talk to me.")
	}
	voiceID, err := ctl.users.ResolveVoice(c.Ctx(), c.UserID)
	if err != nil {
		return err
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindVoiceChat,
		Provider: constant.ProviderVoiceChat,
		Model:    ctl.model(c),
		Args:     entity.JobArgs{entity.ArgFileID: fileID, entity.ArgVoiceID: voiceID},
	})
}

func (ctl *userController) model(c *Context) string {
	if entry, ok := ctl.users.CurrentModel(c.Ctx(), c.UserID, service.SlotText); ok {
		return entry.ID
	}
	return ""
}

// Model list/set/current commands are shared by the text, flux and
// leonardo slots.

func listModels(c *Context, users service.IUserService, slot service.ModelSlot) error {
	return c.Reply(users.ListModels(slot))
}

func setModel(c *Context, users service.IUserService, slot service.ModelSlot) error {
	entry, err := users.SetModel(c.Ctx(), c.UserID, slot, c.Args)
	if err != nil {
		return err
	}
	return c.Reply(fmt.Sprintf("✅ %s model set to %s.", slot, entryLabel(entry.ID, entry.Name)))
}

func currentModel(c *Context, users service.IUserService, slot service.ModelSlot) error {
	entry, ok := users.CurrentModel(c.Ctx(), c.UserID, slot)
	if !ok {
		return c.Reply(fmt.Sprintf("No %s model is available right now.", slot))
	}
	return c.Reply(fmt.Sprintf("Current %s model: %s", slot, entryLabel(entry.ID, entry.Name)))
}

func entryLabel(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
