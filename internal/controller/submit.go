package controller

import (
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/service"
)

// jobSubmitter fills the request from the update and hands it to the job
// service. Admission happens inside Submit; the model is counted when the
// job completes.
type jobSubmitter struct {
	jobs service.IJobService
}

func (s jobSubmitter) submit(c *Context, req service.JobRequest) error {
	req.UserID = c.UserID
	req.ChatID = c.ChatID
	req.OriginMessageID = c.replyTarget()
	if req.Kind == "" {
		req.Kind = c.Kind
	}
	if req.Command == "" {
		req.Command = c.Command
	}
	_, err := s.jobs.Submit(c.Ctx(), req)
	return err
}

func usage(text string) error {
	return entity.NewInputError("Usage: %s", text)
}
