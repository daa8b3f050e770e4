package controller

import (
	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/service"
)

type IImageController interface {
	RegisterRoutes(r *Router)
	GenerateImage(c *Context) error
	AnalyzeImage(c *Context) error
	Flux(c *Context) error
	Leo(c *Context) error
	Unzoom(c *Context) error
	RemoveBackground(c *Context) error
	Video(c *Context) error
	ImageToVideo(c *Context) error
}

type imageController struct {
	jobSubmitter
	users    service.IUserService
	sessions service.ISessionService
}

func NewImageController(users service.IUserService, sessions service.ISessionService, jobs service.IJobService) IImageController {
	return &imageController{
		jobSubmitter: jobSubmitter{jobs: jobs},
		users:        users,
		sessions:     sessions,
	}
}

func (ctl *imageController) RegisterRoutes(r *Router) {
	r.Command(constant.CmdGenerateImage, entity.KindImageGen, ctl.GenerateImage)
	r.Command(constant.CmdAnalyzeImage, entity.KindImageAnalyze, ctl.AnalyzeImage)
	r.OnPhoto(entity.KindImageAnalyze, ctl.AnalyzeImage)

	r.Command(constant.CmdFlux, entity.KindImageGen, ctl.Flux)
	r.Command(constant.CmdListFlux, "", ctl.slot(service.SlotFlux, listModels))
	r.Command(constant.CmdSetFlux, "", ctl.slot(service.SlotFlux, setModel))
	r.Command(constant.CmdCurrentFlux, "", ctl.slot(service.SlotFlux, currentModel))

	r.Command(constant.CmdLeo, entity.KindImageGen, ctl.Leo)
	r.Command(constant.CmdListLeonardo, "", ctl.slot(service.SlotLeonardo, listModels))
	r.Command(constant.CmdSetLeonardo, "", ctl.slot(service.SlotLeonardo, setModel))
	r.Command(constant.CmdCurrentLeonardo, "", ctl.slot(service.SlotLeonardo, currentModel))
	r.Command(constant.CmdUnzoom, entity.KindImageUnzoom, ctl.Unzoom)
	r.Command(constant.CmdRemoveBg, entity.KindBgRemove, ctl.RemoveBackground)

	r.Command(constant.CmdVideo, entity.KindVideoGen, ctl.Video)
	r.Command(constant.CmdImg2Video, entity.KindImageToVideo, ctl.ImageToVideo)
}

func (ctl *imageController) slot(slot service.ModelSlot, fn func(*Context, service.IUserService, service.ModelSlot) error) HandlerFunc {
	return func(c *Context) error { return fn(c, ctl.users, slot) }
}

func (ctl *imageController) GenerateImage(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdGenerateImage + " <prompt>")
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindImageGen,
		Provider: constant.ProviderImage,
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args},
	})
}

// AnalyzeImage also serves plain photos; the caption becomes the question.
func (ctl *imageController) AnalyzeImage(c *Context) error {
	fileID, waiting, err := ctl.photo(c, constant.CmdAnalyzeImage, "📷 Send the photo you want me to look at.")
	if waiting || err != nil {
		return err
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindImageAnalyze,
		Provider: constant.ProviderVision,
		Args:     entity.JobArgs{entity.ArgFileID: fileID, entity.ArgPrompt: c.Args},
	})
}

func (ctl *imageController) Flux(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdFlux + " <prompt>")
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindImageGen,
		Provider: constant.ProviderFlux,
		Model:    ctl.model(c, service.SlotFlux),
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args},
	})
}

func (ctl *imageController) Leo(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdLeo + " <prompt>")
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindImageGen,
		Provider: constant.ProviderLeonardo,
		Model:    ctl.model(c, service.SlotLeonardo),
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args},
	})
}

func (ctl *imageController) Unzoom(c *Context) error {
	return ctl.transform(c, constant.CmdUnzoom, entity.KindImageUnzoom)
}

func (ctl *imageController) RemoveBackground(c *Context) error {
	return ctl.transform(c, constant.CmdRemoveBg, entity.KindBgRemove)
}

func (ctl *imageController) transform(c *Context, command string, kind entity.GenerationKind) error {
	fileID, waiting, err := ctl.photo(c, command, "📷 Send the photo to work on.")
	if waiting || err != nil {
		return err
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     kind,
		Provider: constant.ProviderLeonardo,
		Args:     entity.JobArgs{entity.ArgFileID: fileID},
	})
}

func (ctl *imageController) Video(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdVideo + " <prompt>")
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindVideoGen,
		Provider: constant.ProviderVideo,
		Args:     entity.JobArgs{entity.ArgPrompt: c.Args},
	})
}

func (ctl *imageController) ImageToVideo(c *Context) error {
	fileID, waiting, err := ctl.photo(c, constant.CmdImg2Video, "📷 Send the photo to animate.")
	if waiting || err != nil {
		return err
	}
	return ctl.submit(c, service.JobRequest{
		Kind:     entity.KindImageToVideo,
		Provider: constant.ProviderVideo,
		Args:     entity.JobArgs{entity.ArgFileID: fileID, entity.ArgPrompt: c.Args},
	})
}

// photo returns the attached photo. Without one it stages the command for
// the next photo the user sends and reports waiting.
func (ctl *imageController) photo(c *Context, command, prompt string) (string, bool, error) {
	if fileID := c.PhotoFileID(); fileID != "" {
		return fileID, false, nil
	}
	if err := ctl.sessions.StagePartial(c.Ctx(), c.UserID, command+" "+c.Args); err != nil {
		return "", true, err
	}
	return "", true, c.Reply(prompt)
}

func (ctl *imageController) model(c *Context, slot service.ModelSlot) string {
	if entry, ok := ctl.users.CurrentModel(c.Ctx(), c.UserID, slot); ok {
		return entry.ID
	}
	return ""
}
