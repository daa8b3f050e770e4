// FILE: internal/entity/generation_kind.go
package entity

import (
	"fmt"
	"strings"
	"time"
)

// GenerationKind is the closed set of things a Job can produce. It is the
// key for quotas, generation records and metrics.
type GenerationKind string

const (
	KindTextChat     GenerationKind = "text-chat"
	KindImageGen     GenerationKind = "image-gen"
	KindImageAnalyze GenerationKind = "image-analyze"
	KindTTS          GenerationKind = "tts"
	KindVoiceChat    GenerationKind = "voice-chat"
	KindMusicGen     GenerationKind = "music-gen"
	KindVideoGen     GenerationKind = "video-gen"
	KindImageToVideo GenerationKind = "image-to-video"
	KindBgRemove     GenerationKind = "bg-remove"
	KindImageUnzoom  GenerationKind = "image-unzoom"
)

var allKinds = []GenerationKind{
	KindTextChat,
	KindImageGen,
	KindImageAnalyze,
	KindTTS,
	KindVoiceChat,
	KindMusicGen,
	KindVideoGen,
	KindImageToVideo,
	KindBgRemove,
	KindImageUnzoom,
}

func AllGenerationKinds() []GenerationKind {
	out := make([]GenerationKind, len(allKinds))
	copy(out, allKinds)
	return out
}

func ParseGenerationKind(raw string) (GenerationKind, error) {
	k := GenerationKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown generation kind %q", raw)
}

func (k GenerationKind) Valid() bool {
	_, err := ParseGenerationKind(string(k))
	return err == nil
}

func (k GenerationKind) String() string { return string(k) }

// DefaultDeadline is the wall-clock budget of one attempt.
func (k GenerationKind) DefaultDeadline() time.Duration {
	switch k {
	case KindTextChat, KindTTS, KindImageAnalyze:
		return 60 * time.Second
	case KindVoiceChat, KindImageGen, KindBgRemove, KindImageUnzoom:
		return 120 * time.Second
	case KindMusicGen:
		return 180 * time.Second
	case KindVideoGen, KindImageToVideo:
		return 600 * time.Second
	default:
		return 60 * time.Second
	}
}

func (k GenerationKind) DefaultClass() PriorityClass {
	switch k {
	case KindTextChat, KindImageAnalyze, KindTTS, KindVoiceChat:
		return ClassQuick
	case KindMusicGen, KindVideoGen, KindImageToVideo:
		return ClassDurable
	default:
		return ClassLongRun
	}
}

// IsConversation reports whether jobs of this kind belong to the chat
// history and are therefore cancelled by a session reset.
func (k GenerationKind) IsConversation() bool {
	return k == KindTextChat || k == KindVoiceChat
}

// ModelClass buckets kinds for the per-class message counters on users.
func (k GenerationKind) ModelClass() ModelClass {
	switch k {
	case KindTextChat, KindImageAnalyze:
		return ModelClassText
	case KindImageGen, KindBgRemove, KindImageUnzoom:
		return ModelClassImage
	case KindTTS, KindVoiceChat, KindMusicGen:
		return ModelClassAudio
	case KindVideoGen, KindImageToVideo:
		return ModelClassVideo
	default:
		return ModelClassNone
	}
}

type ModelClass string

const (
	ModelClassNone  ModelClass = ""
	ModelClassText  ModelClass = "text"
	ModelClassImage ModelClass = "image"
	ModelClassAudio ModelClass = "audio"
	ModelClassVideo ModelClass = "video"
)
