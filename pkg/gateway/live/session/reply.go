package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vango-go/voice-relay/pkg/core/audio"
	"github.com/vango-go/voice-relay/pkg/core/types"
	"github.com/vango-go/voice-relay/pkg/gateway/metrics"
)

const (
	transcribePrompt    = "Transcribe this audio."
	voiceMessagePrompt  = "(voice message)"
	apologyPrefix       = "Sorry, I ran into a problem answering that: "
	timeoutErrorMessage = "the request timed out"

	maxApologyDetail = 240
)

// replyInput is the user content of one request. Exactly one of text or samples is set.
type replyInput struct {
	text    string
	samples []int16
}

func (in replyInput) isVoice() bool {
	return len(in.samples) > 0
}

// replyOutcome carries what a request produced. userText is the transcript for voice
// input and the literal text otherwise.
type replyOutcome struct {
	userText string
	reply    string
	err      error
}

// produceReply is the single request path for both voice and typed input. Voice input
// is transcribed first; the transcript then goes through the same reply call as text.
func (s *VoiceSession) produceReply(ctx context.Context, in replyInput, history []types.Turn, language string) replyOutcome {
	userText := strings.TrimSpace(in.text)

	if in.isVoice() {
		if err := ctx.Err(); err != nil {
			return replyOutcome{userText: voiceMessagePrompt, err: err}
		}
		transcript, err := s.transcribe(ctx, in.samples, history, language)
		if err != nil {
			return replyOutcome{userText: voiceMessagePrompt, err: err}
		}
		userText = transcript
		if userText == "" {
			return replyOutcome{userText: voiceMessagePrompt, err: errors.New("no speech was recognized")}
		}
	}

	if err := ctx.Err(); err != nil {
		return replyOutcome{userText: userText, err: err}
	}
	reply, err := s.generate(ctx, metrics.KindReply, &types.GenerateRequest{
		Model:   s.generator.Model(),
		System:  s.systemInstruction(language),
		History: types.Recent(history, s.cfg.HistoryTurns),
		Text:    userText,
	})
	if err != nil {
		return replyOutcome{userText: userText, err: err}
	}
	if reply == "" {
		return replyOutcome{userText: userText, err: errors.New("the model returned an empty reply")}
	}
	return replyOutcome{userText: userText, reply: reply}
}

func (s *VoiceSession) transcribe(ctx context.Context, samples []int16, history []types.Turn, language string) (string, error) {
	clip, err := audio.EncodeWAV(samples, s.cfg.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encode audio: %w", err)
	}
	return s.generate(ctx, metrics.KindTranscribe, &types.GenerateRequest{
		Model:   s.generator.Model(),
		System:  transcribeInstruction(language),
		History: types.Recent(history, s.cfg.HistoryTurns),
		Text:    transcribePrompt,
		Audio:   &types.InlineData{MIMEType: audio.MIMEType, Data: clip},
	})
}

func (s *VoiceSession) generate(ctx context.Context, kind string, req *types.GenerateRequest) (string, error) {
	start := s.now()
	resp, err := s.generator.Generate(ctx, req)
	s.metrics.RecordGeneration(s.generator.Name(), kind, s.now().Sub(start), err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("generation failed",
				"session_id", s.sessionID,
				"kind", kind,
				"error", err,
			)
		}
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *VoiceSession) systemInstruction(language string) string {
	base := strings.TrimSpace(s.cfg.SystemInstruction)
	if language == "" {
		return base
	}
	hint := fmt.Sprintf("Respond in the language identified by the tag %q.", language)
	if base == "" {
		return hint
	}
	return base + "\n\n" + hint
}

func transcribeInstruction(language string) string {
	if language == "" {
		return "Transcribe the user's speech verbatim. Return only the transcript."
	}
	return fmt.Sprintf("Transcribe the user's speech verbatim. The expected language is %q. Return only the transcript.", language)
}

// apologyText turns a failed request into the model turn shown to the user.
func apologyText(err error) string {
	msg := timeoutErrorMessage
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		msg = strings.Join(strings.Fields(err.Error()), " ")
		if r := []rune(msg); len(r) > maxApologyDetail {
			msg = string(r[:maxApologyDetail]) + "…"
		}
		if msg == "" {
			msg = "unknown error"
		}
	}
	return apologyPrefix + msg
}

func (s *VoiceSession) requestContext() (context.Context, context.CancelFunc) {
	if s.cfg.GenerationTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.GenerationTimeout)
	}
	return context.WithCancel(s.ctx)
}
