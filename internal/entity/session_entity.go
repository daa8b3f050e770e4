// FILE: internal/entity/session_entity.go
package entity

import (
	"time"
	"unicode/utf8"
)

const (
	MaxHistoryTurns = 10
	// Turn text is clipped by encoded size: ten turns of non-Latin text
	// still have to fit the KV store's value cap.
	MaxTurnBytesInSession = 1200
)

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ConversationTurn is append-only. AudioID links a turn to a voice message
// by id; turns never point at each other.
type ConversationTurn struct {
	UserID    int64     `json:"user_id"`
	Timestamp time.Time `json:"ts"`
	Role      TurnRole  `json:"role"`
	Text      string    `json:"text"`
	AudioID   string    `json:"audio_id,omitempty"`
}

// Conversation is one persisted exchange (the cold copy of two turns).
type Conversation struct {
	ID         int64
	UserID     int64
	UserText   string
	BotText    string
	ModelClass ModelClass
	AudioID    string
	Timestamp  time.Time
}

// Turns expands the row into its user and assistant turns.
func (c *Conversation) Turns() []ConversationTurn {
	return []ConversationTurn{
		{UserID: c.UserID, Timestamp: c.Timestamp, Role: RoleUser, Text: c.UserText},
		{UserID: c.UserID, Timestamp: c.Timestamp, Role: RoleAssistant, Text: c.BotText, AudioID: c.AudioID},
	}
}

type Preferences struct {
	TextModel     string `json:"text_model,omitempty"`
	ImageModel    string `json:"image_model,omitempty"`
	FluxModel     string `json:"flux_model,omitempty"`
	LeonardoModel string `json:"leonardo_model,omitempty"`
	VoiceID       string `json:"voice_id,omitempty"`
	VoiceName     string `json:"voice_name,omitempty"`
	CustomVoiceID string `json:"custom_voice_id,omitempty"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
}

type Session struct {
	UserID int64 `json:"user_id"`
	Preferences
	History   []ConversationTurn `json:"history,omitempty"`
	InFlight  []JobRef           `json:"in_flight,omitempty"`
	Flow      *FlowState         `json:"flow,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
	// Ephemeral is set when the store was unreachable and nothing will be saved.
	Ephemeral bool `json:"-"`
}

func NewSession(userID int64) *Session {
	return &Session{UserID: userID, UpdatedAt: time.Now()}
}

// AppendExchange adds a user turn and its reply, keeping the newest
// MaxHistoryTurns and never starting the window on an assistant turn.
func (s *Session) AppendExchange(userText, botText, audioID string, at time.Time) {
	s.History = append(s.History,
		ConversationTurn{UserID: s.UserID, Timestamp: at, Role: RoleUser, Text: clip(userText)},
		ConversationTurn{UserID: s.UserID, Timestamp: at, Role: RoleAssistant, Text: clip(botText), AudioID: audioID},
	)
	s.trimHistory()
}

func (s *Session) trimHistory() {
	if len(s.History) > MaxHistoryTurns {
		s.History = append([]ConversationTurn(nil), s.History[len(s.History)-MaxHistoryTurns:]...)
	}
	for len(s.History) > 0 && s.History[0].Role == RoleAssistant {
		s.History = s.History[1:]
	}
}

// DropOldestExchange removes the oldest user turn with its reply. It
// reports false when there was nothing to drop.
func (s *Session) DropOldestExchange() bool {
	if len(s.History) == 0 {
		return false
	}
	s.History = s.History[1:]
	s.trimHistory()
	return true
}

func (s *Session) ClearHistory() {
	s.History = nil
}

func (s *Session) AddInFlight(ref JobRef) {
	for _, r := range s.InFlight {
		if r.JobID == ref.JobID {
			return
		}
	}
	s.InFlight = append(s.InFlight, ref)
}

func (s *Session) RemoveInFlight(jobID string) {
	out := s.InFlight[:0]
	for _, r := range s.InFlight {
		if r.JobID != jobID {
			out = append(out, r)
		}
	}
	s.InFlight = out
}

func clip(text string) string {
	if len(text) <= MaxTurnBytesInSession {
		return text
	}
	cut := MaxTurnBytesInSession
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// FlowState is the per-user step of an interactive multi-step command.
type FlowState struct {
	Name      string            `json:"name"`
	Step      string            `json:"step"`
	Data      map[string]string `json:"data,omitempty"`
	StartedAt time.Time         `json:"started_at"`
}
