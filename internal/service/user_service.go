package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/pkg/catalog"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/scratch"
)

// ModelSlot is one of the per-user model preferences.
type ModelSlot string

const (
	SlotText     ModelSlot = "text"
	SlotFlux     ModelSlot = "flux"
	SlotLeonardo ModelSlot = "leonardo"
)

func (s ModelSlot) catalog() catalog.Name {
	switch s {
	case SlotFlux:
		return catalog.FluxModels
	case SlotLeonardo:
		return catalog.LeonardoModels
	default:
		return catalog.TextModels
	}
}

func (s ModelSlot) field(p *entity.Preferences) *string {
	switch s {
	case SlotFlux:
		return &p.FluxModel
	case SlotLeonardo:
		return &p.LeonardoModel
	default:
		return &p.TextModel
	}
}

// VoiceManager registers and removes cloned voices upstream.
// *provider.TTSAdapter implements it.
type VoiceManager interface {
	RegisterVoice(ctx context.Context, name, samplePath string, labels map[string]string) (string, error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

type IUserService interface {
	Touch(ctx context.Context, userID int64, class entity.ModelClass) error
	History(ctx context.Context, userID int64) string
	SetSystemPrompt(ctx context.Context, userID int64, prompt string) error
	SystemPrompt(ctx context.Context, userID int64) string

	ListModels(slot ModelSlot) string
	SetModel(ctx context.Context, userID int64, slot ModelSlot, key string) (catalog.Entry, error)
	CurrentModel(ctx context.Context, userID int64, slot ModelSlot) (catalog.Entry, bool)

	ListVoices() string
	SetVoice(ctx context.Context, userID int64, key string) (catalog.Entry, error)
	CurrentVoice(ctx context.Context, userID int64) string
	// ResolveVoice returns the user's voice, selecting and saving the first
	// catalog voice when none is set yet.
	ResolveVoice(ctx context.Context, userID int64) (string, error)
	AddCustomVoice(ctx context.Context, userID int64, name, fileID string) (string, error)
	DeleteCustomVoice(ctx context.Context, userID int64) error
}

type userService struct {
	uowFactory    unitofwork.RepositoryFactory
	sessions      ISessionService
	catalogs      *catalog.Service
	voices        VoiceManager
	messenger     Messenger
	scratch       *scratch.Manager
	defaultPrompt string
	logger        logger.ILogger
}

func NewUserService(
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	catalogs *catalog.Service,
	voices VoiceManager,
	messenger Messenger,
	scratchDirs *scratch.Manager,
	defaultPrompt string,
	log logger.ILogger,
) IUserService {
	return &userService{
		uowFactory:    uowFactory,
		sessions:      sessions,
		catalogs:      catalogs,
		voices:        voices,
		messenger:     messenger,
		scratch:       scratchDirs,
		defaultPrompt: defaultPrompt,
		logger:        log,
	}
}

func (s *userService) Touch(ctx context.Context, userID int64, class entity.ModelClass) error {
	return s.uowFactory.NewUnitOfWork(ctx).UserRepository().Touch(ctx, userID, class, time.Now())
}

func (s *userService) History(ctx context.Context, userID int64) string {
	sess := s.sessions.Load(ctx, userID)
	if len(sess.History) == 0 {
		return "Your conversation history is empty."
	}
	var b strings.Builder
	b.WriteString("🕘 Recent conversation\n")
	for _, t := range sess.History {
		who := "You"
		if t.Role == entity.RoleAssistant {
			who = "Bot"
		}
		text := t.Text
		if t.AudioID != "" && text == "" {
			text = "(voice message)"
		}
		fmt.Fprintf(&b, "\n%s: %s", who, progress.Truncate(text, 300))
	}
	return b.String()
}

func (s *userService) SetSystemPrompt(ctx context.Context, userID int64, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return entity.NewInputError("Usage: /set_system_message <text>")
	}
	_, err := s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		sess.SystemPrompt = prompt
		return nil
	})
	return err
}

func (s *userService) SystemPrompt(ctx context.Context, userID int64) string {
	sess := s.sessions.Load(ctx, userID)
	if sess.SystemPrompt != "" {
		return sess.SystemPrompt
	}
	if global, err := loadGlobalSystemPrompt(ctx, s.uowFactory); err == nil && global != "" {
		return global
	}
	return s.defaultPrompt
}

func (s *userService) ListModels(slot ModelSlot) string {
	return renderEntries(fmt.Sprintf("Available %s models", slot), s.catalogs.Snapshot(slot.catalog()))
}

func (s *userService) SetModel(ctx context.Context, userID int64, slot ModelSlot, key string) (catalog.Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return catalog.Entry{}, entity.NewInputError("Tell me which model to use. See the list of %s models.", slot)
	}
	entry, ok := s.catalogs.Lookup(slot.catalog(), key)
	if !ok {
		return catalog.Entry{}, entity.NewInputError("Unknown %s model %q.", slot, key)
	}
	_, err := s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		*slot.field(&sess.Preferences) = entry.ID
		return nil
	})
	return entry, err
}

func (s *userService) CurrentModel(ctx context.Context, userID int64, slot ModelSlot) (catalog.Entry, bool) {
	sess := s.sessions.Load(ctx, userID)
	if id := *slot.field(&sess.Preferences); id != "" {
		if entry, ok := s.catalogs.Lookup(slot.catalog(), id); ok {
			return entry, true
		}
		return catalog.Entry{ID: id, Name: id}, true
	}
	return s.catalogs.First(slot.catalog())
}

func (s *userService) ListVoices() string {
	return renderEntries("Available voices", s.catalogs.Snapshot(catalog.Voices))
}

func (s *userService) SetVoice(ctx context.Context, userID int64, key string) (catalog.Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return catalog.Entry{}, entity.NewInputError("Usage: /setvoice <voice name>")
	}
	entry, ok := s.catalogs.Lookup(catalog.Voices, key)
	if !ok {
		return catalog.Entry{}, entity.NewInputError("Unknown voice %q. Use /listvoices to see them.", key)
	}
	_, err := s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		sess.VoiceID, sess.VoiceName = entry.ID, entry.Name
		return nil
	})
	return entry, err
}

func (s *userService) CurrentVoice(ctx context.Context, userID int64) string {
	sess := s.sessions.Load(ctx, userID)
	switch {
	case sess.VoiceID == "":
		return "No voice selected yet. The first available voice will be used."
	case sess.VoiceID == sess.CustomVoiceID:
		return fmt.Sprintf("Current voice: %s (your custom voice)", sess.VoiceName)
	default:
		return fmt.Sprintf("Current voice: %s", sess.VoiceName)
	}
}

func (s *userService) ResolveVoice(ctx context.Context, userID int64) (string, error) {
	var voiceID string
	_, err := s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		if sess.VoiceID == "" {
			first, ok := s.catalogs.First(catalog.Voices)
			if !ok {
				return entity.NewInputError("No voices are available right now.")
			}
			sess.VoiceID, sess.VoiceName = first.ID, first.Name
		}
		voiceID = sess.VoiceID
		return nil
	})
	return voiceID, err
}

func (s *userService) AddCustomVoice(ctx context.Context, userID int64, name, fileID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("voice-%d", userID)
	}
	if fileID == "" {
		return "", entity.NewInputError("Send a voice message or audio file with a clear voice sample.")
	}

	workID := "voice-" + NewJobID()
	dir, err := s.scratch.Acquire(workID)
	if err != nil {
		return "", err
	}
	defer s.scratch.Release(workID)

	sample := filepath.Join(dir, "sample.ogg")
	if _, err := s.messenger.DownloadFile(ctx, fileID, sample, maxInputBytes); err != nil {
		return "", &entity.UserError{Kind: entity.ErrorTransient, Message: "I couldn't fetch the voice sample.", Err: err}
	}
	voiceID, err := s.voices.RegisterVoice(ctx, name, sample, map[string]string{"owner": fmt.Sprint(userID)})
	if err != nil {
		return "", &entity.UserError{Kind: entity.ErrorPermanent, Message: "The voice service rejected the sample.", Err: err}
	}

	var previous string
	_, err = s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		previous = sess.CustomVoiceID
		sess.CustomVoiceID = voiceID
		sess.VoiceID, sess.VoiceName = voiceID, name
		return nil
	})
	if err != nil {
		return "", err
	}
	if previous != "" && previous != voiceID {
		if err := s.voices.DeleteVoice(ctx, previous); err != nil {
			s.logger.Warn("VOICE", "Failed to delete replaced custom voice", map[string]interface{}{"userId": userID, "voiceId": previous, "error": err.Error()})
		}
	}
	s.logger.Info("VOICE", "Custom voice registered", map[string]interface{}{"userId": userID, "voiceId": voiceID})
	return voiceID, nil
}

func (s *userService) DeleteCustomVoice(ctx context.Context, userID int64) error {
	sess := s.sessions.Load(ctx, userID)
	if sess.CustomVoiceID == "" {
		return entity.NewInputError("You don't have a custom voice.")
	}
	if err := s.voices.DeleteVoice(ctx, sess.CustomVoiceID); err != nil {
		return &entity.UserError{Kind: entity.ErrorTransient, Message: "I couldn't delete the voice right now.", Err: err}
	}
	_, err := s.sessions.Mutate(ctx, userID, func(sess *entity.Session) error {
		if sess.VoiceID == sess.CustomVoiceID {
			sess.VoiceID, sess.VoiceName = "", ""
		}
		sess.CustomVoiceID = ""
		return nil
	})
	return err
}

func renderEntries(title string, entries []catalog.Entry) string {
	if len(entries) == 0 {
		return title + ": none available right now."
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, e := range entries {
		if e.Name != e.ID {
			fmt.Fprintf(&b, "• %s (%s)\n", e.Name, e.ID)
		} else {
			fmt.Fprintf(&b, "• %s\n", e.ID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
