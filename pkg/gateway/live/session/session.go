package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voice-relay/pkg/core"
	"github.com/vango-go/voice-relay/pkg/core/audio"
	"github.com/vango-go/voice-relay/pkg/gateway/live/protocol"
	"github.com/vango-go/voice-relay/pkg/gateway/metrics"
)

const (
	outboundPriorityQueueSize = 8

	defaultHistoryTurns = 10
	defaultLanguage     = "en-US"
)

var errBackpressure = errors.New("voice outbound backpressure")

type Config struct {
	MaxMessageBytes      int64
	MaxInboundSampleRate int
	InboundBurstSeconds  int
	PingInterval         time.Duration
	WriteTimeout         time.Duration
	ReadTimeout          time.Duration
	GenerationTimeout    time.Duration
	OutboundQueueSize    int
	HistoryTurns         int
	DefaultLanguage      string
	SampleRate           int
	MaxBufferedSamples   int
	SystemInstruction    string
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Generator core.Generator
	Metrics   *metrics.Metrics
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

// VoiceSession is one browser connection. Everything below the channels is owned by
// the Run loop and must not be touched from other goroutines.
type VoiceSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	generator core.Generator
	metrics   *metrics.Metrics
	sessionID string
	requestID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame
	results          chan generationResult
	workers          sync.WaitGroup

	state atomic.Int32

	limiter        *inboundAudioLimiter
	micActive      bool
	buffer         []int16
	overflowWarned bool
	rateWarned     bool
	history        *historyLog
	language       string
	pending        *pendingRequest
	nextID         uint64
}

type outboundFrame struct {
	textPayload []byte
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// pendingRequest is the cancellation handle of the one in-flight request.
type pendingRequest struct {
	id     uint64
	voice  bool
	cancel context.CancelFunc
}

type generationResult struct {
	id    uint64
	voice bool
	replyOutcome
}

func New(deps Dependencies) (*VoiceSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.HistoryTurns <= 0 {
		deps.Config.HistoryTurns = defaultHistoryTurns
	}
	if strings.TrimSpace(deps.Config.DefaultLanguage) == "" {
		deps.Config.DefaultLanguage = defaultLanguage
	}
	if deps.Config.SampleRate <= 0 {
		deps.Config.SampleRate = audio.SampleRate
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &VoiceSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		generator:        deps.Generator,
		metrics:          deps.Metrics,
		sessionID:        deps.SessionID,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, max(1, min(deps.Config.OutboundQueueSize, outboundPriorityQueueSize))),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		results:          make(chan generationResult, 4),
		limiter:          newInboundAudioLimiter(deps.Now, deps.Config.MaxInboundSampleRate, deps.Config.InboundBurstSeconds),
		history:          newHistoryLog(),
		language:         strings.TrimSpace(deps.Config.DefaultLanguage),
	}
	return s, nil
}

// Run serves the connection until the client goes away, the session is cancelled or
// the writer fails. It always cancels any in-flight request before returning.
func (s *VoiceSession) Run() error {
	defer func() {
		s.cancelPending()
		s.cancel()
		s.workers.Wait()
	}()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func(err error) error {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		return err
	}

	onSendErr := func(err error) error {
		if errors.Is(err, errBackpressure) {
			s.logger.Warn("voice session outbound queue full",
				"session_id", s.sessionID,
				"request_id", s.requestID,
			)
		}
		return flushAndClose(err)
	}

	if err := s.greet(); err != nil {
		return onSendErr(err)
	}

	for {
		select {
		case <-s.ctx.Done():
			return flushAndClose(nil)
		case err := <-writerErrCh:
			return err
		case res := <-s.results:
			if err := s.handleResult(res); err != nil {
				return onSendErr(err)
			}
		case frame, ok := <-readCh:
			if !ok {
				return flushAndClose(nil)
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return flushAndClose(nil)
				}
				return flushAndClose(frame.err)
			}
			if err := s.handleFrame(frame); err != nil {
				return onSendErr(err)
			}
		}
	}
}

// State reports the session phase as last published by the Run loop.
func (s *VoiceSession) State() State {
	return State(s.state.Load())
}

func (s *VoiceSession) publishState() {
	s.state.Store(int32(deriveState(s.micActive, s.pending)))
}

func (s *VoiceSession) greet() error {
	hasKey := s.generator.HasCredentials()
	if err := s.sendJSON(protocol.ConnectionStatus(hasKey)); err != nil {
		return err
	}
	if err := s.sendJSON(protocol.GeminiStatus(hasKey, s.generator.Model())); err != nil {
		return err
	}
	if !hasKey {
		return s.sendJSON(protocol.Error("Gemini API key is not configured; replies will fail until one is set"))
	}
	return nil
}

func (s *VoiceSession) handleFrame(frame inboundFrame) error {
	switch frame.messageType {
	case websocket.BinaryMessage:
		s.metrics.RecordInboundEvent(protocol.TypeAudioData)
		samples, err := audio.SamplesFromPCM(frame.data)
		if err != nil {
			s.metrics.RecordInboundEvent("malformed")
			return s.sendJSON(protocol.Error("invalid binary audio frame: " + err.Error()))
		}
		return s.handleAudio(samples)
	case websocket.TextMessage:
	default:
		return nil
	}

	msg, decErr := protocol.DecodeClientMessage(frame.data)
	if decErr != nil {
		s.metrics.RecordInboundEvent("malformed")
		s.logger.Debug("rejected inbound event",
			"session_id", s.sessionID,
			"error", decErr,
		)
		return s.sendJSON(protocol.Error(decErr.Error()))
	}

	switch m := msg.(type) {
	case protocol.ClientStartMic:
		s.metrics.RecordInboundEvent(protocol.TypeStartMic)
		return s.handleStartMic(m)
	case protocol.ClientAudioData:
		s.metrics.RecordInboundEvent(protocol.TypeAudioData)
		return s.handleAudio(m.Audio)
	case protocol.ClientStopMic:
		s.metrics.RecordInboundEvent(protocol.TypeStopMic)
		return s.handleStopMic()
	case protocol.ClientInterrupt:
		s.metrics.RecordInboundEvent(protocol.TypeInterrupt)
		return s.handleInterrupt()
	case protocol.ClientTextMessage:
		s.metrics.RecordInboundEvent(protocol.TypeTextMessage)
		return s.handleTextMessage(m)
	}
	return nil
}

func (s *VoiceSession) handleStartMic(m protocol.ClientStartMic) error {
	if m.LanguageCode != "" {
		s.language = m.LanguageCode
	}
	if !s.micActive {
		s.buffer = nil
		s.overflowWarned = false
		s.rateWarned = false
		s.micActive = true
		s.publishState()
	}
	return s.sendJSON(protocol.MicStatus(true))
}

func (s *VoiceSession) handleAudio(samples []int16) error {
	if !s.micActive || len(samples) == 0 {
		return nil
	}
	if !s.limiter.AllowSamples(len(samples)) {
		s.metrics.RecordInboundEvent("audio_data_dropped")
		if s.rateWarned {
			return nil
		}
		s.rateWarned = true
		return s.sendJSON(protocol.Error("audio is arriving faster than real time; some audio was dropped"))
	}

	if limit := s.cfg.MaxBufferedSamples; limit > 0 && len(s.buffer)+len(samples) > limit {
		room := max(0, limit-len(s.buffer))
		samples = samples[:room]
		if !s.overflowWarned {
			s.overflowWarned = true
			seconds := limit / s.cfg.SampleRate
			if err := s.sendJSON(protocol.Error(fmt.Sprintf("recording exceeds %d seconds; further audio is ignored", seconds))); err != nil {
				return err
			}
		}
	}
	if len(samples) == 0 {
		return nil
	}
	s.buffer = append(s.buffer, samples...)
	s.metrics.RecordAudioSamples(len(samples))
	return nil
}

func (s *VoiceSession) handleStopMic() error {
	if !s.micActive {
		return s.sendJSON(protocol.MicStatus(false))
	}

	samples := s.buffer
	s.buffer = nil
	s.overflowWarned = false
	s.micActive = false

	if len(samples) == 0 {
		s.publishState()
		return s.sendJSON(protocol.MicStatus(false))
	}
	return s.startRequest(replyInput{samples: samples})
}

func (s *VoiceSession) handleTextMessage(m protocol.ClientTextMessage) error {
	text := strings.TrimSpace(m.Text)
	prior := s.history.len()
	s.history.appendUser(text)
	if err := s.startRequestWithHistory(replyInput{text: text}, prior); err != nil {
		return err
	}
	return s.sendJSON(protocol.UserMessage(text))
}

func (s *VoiceSession) handleInterrupt() error {
	s.cancelPending()
	s.buffer = nil
	s.overflowWarned = false
	s.rateWarned = false
	s.micActive = false
	s.publishState()

	if err := s.sendJSONPriority(protocol.InterruptAck()); err != nil {
		return err
	}
	return s.sendJSON(protocol.MicStatus(false))
}

func (s *VoiceSession) startRequest(in replyInput) error {
	return s.startRequestWithHistory(in, s.history.len())
}

// startRequestWithHistory replaces any pending request with a new one whose context
// is the first historyLen turns of the log. A superseded voice request never reports
// its own mic_status, so the client is told the mic is off here instead.
func (s *VoiceSession) startRequestWithHistory(in replyInput, historyLen int) error {
	supersededVoice := s.pending != nil && s.pending.voice
	s.cancelPending()

	s.nextID++
	id := s.nextID
	ctx, cancel := s.requestContext()
	s.pending = &pendingRequest{id: id, voice: in.isVoice(), cancel: cancel}
	s.publishState()

	history := s.history.snapshot()[:historyLen]
	language := s.language

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		out := s.produceReply(ctx, in, history, language)
		select {
		case s.results <- generationResult{id: id, voice: in.isVoice(), replyOutcome: out}:
		case <-s.ctx.Done():
		}
	}()

	if supersededVoice && !s.micActive {
		return s.sendJSON(protocol.MicStatus(false))
	}
	return nil
}

func (s *VoiceSession) cancelPending() {
	if s.pending == nil {
		return
	}
	s.pending.cancel()
	s.pending = nil
}

func (s *VoiceSession) handleResult(res generationResult) error {
	if s.pending == nil || s.pending.id != res.id {
		s.logger.Debug("discarding stale generation result",
			"session_id", s.sessionID,
			"request", res.id,
		)
		return nil
	}
	s.pending.cancel()
	s.pending = nil
	s.publishState()

	reply := res.reply
	if res.err != nil {
		reply = apologyText(res.err)
	}

	if !res.voice {
		s.history.appendModel(reply)
		return s.sendJSON(protocol.AIResponse(reply))
	}

	s.history.appendUser(res.userText)
	s.history.appendModel(reply)
	if err := s.sendJSON(protocol.UserMessage(res.userText)); err != nil {
		return err
	}
	if err := s.sendJSON(protocol.AIResponse(reply)); err != nil {
		return err
	}
	if s.micActive {
		return nil
	}
	return s.sendJSON(protocol.MicStatus(false))
}

func (s *VoiceSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{textPayload: payload})
}

func (s *VoiceSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{textPayload: payload})
}

func (s *VoiceSession) enqueueNormal(frame outboundFrame) error {
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *VoiceSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *VoiceSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Cancel ends the session. Safe to call from any goroutine.
func (s *VoiceSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Notify queues an error event for the client. Safe to call from any goroutine.
func (s *VoiceSession) Notify(message string) error {
	if s == nil {
		return nil
	}
	return s.sendJSON(protocol.Error(message))
}
