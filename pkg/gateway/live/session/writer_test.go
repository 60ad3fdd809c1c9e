package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu       sync.Mutex
	writes   []recordedWrite
	closed   bool
	writeErr error
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 2)

	normal <- outboundFrame{textPayload: []byte(`{"type":"ai_response","text":"late"}`)}
	normal <- outboundFrame{textPayload: []byte(`{"type":"mic_status","started":false}`)}
	priority <- outboundFrame{textPayload: []byte(`{"type":"interrupt_ack","interrupted":true}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 3 {
		t.Fatalf("writes=%d, want 3", len(writes))
	}
	if !strings.Contains(writes[0].data, `"type":"interrupt_ack"`) {
		t.Fatalf("first write was not interrupt_ack: %q", writes[0].data)
	}
	if !strings.Contains(writes[1].data, `"ai_response"`) || !strings.Contains(writes[2].data, `"mic_status"`) {
		t.Fatalf("normal frames out of order: %+v", writes)
	}
	for _, wr := range writes {
		if wr.messageType != websocket.TextMessage {
			t.Fatalf("messageType=%d, want text", wr.messageType)
		}
	}
}

func TestOutboundWriter_SkipsEmptyFrames(t *testing.T) {
	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame, 2)
	normal <- outboundFrame{}
	normal <- outboundFrame{textPayload: []byte(`{"type":"user_message","text":"hi"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{ws: ws, cfg: Config{PingInterval: time.Hour}, priority: priority, normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 1 {
		t.Fatalf("writes=%+v, want 1", writes)
	}
}

func TestOutboundWriter_ReturnsWriteError(t *testing.T) {
	normal := make(chan outboundFrame, 1)
	normal <- outboundFrame{textPayload: []byte(`{}`)}

	boom := errors.New("broken pipe")
	ws := &fakeWSWriter{writeErr: boom}
	w := outboundWriter{ws: ws, cfg: Config{PingInterval: time.Hour}, priority: make(chan outboundFrame), normal: normal}
	if err := w.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
}

func TestOutboundWriter_FlushesQueuedFramesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	priority <- outboundFrame{textPayload: []byte(`{"type":"interrupt_ack","interrupted":true}`)}
	normal <- outboundFrame{textPayload: []byte(`{"type":"error","message":"server is shutting down"}`)}

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) < 3 {
		t.Fatalf("writes=%+v, want ack, error, close", writes)
	}
	if !strings.Contains(writes[0].data, `"interrupt_ack"`) || !strings.Contains(writes[1].data, `shutting down`) {
		t.Fatalf("unexpected flush order: %+v", writes)
	}
	if writes[len(writes)-1].messageType != websocket.CloseMessage {
		t.Fatalf("last write=%d, want close frame", writes[len(writes)-1].messageType)
	}
	ws.mu.Lock()
	closed := ws.closed
	ws.mu.Unlock()
	if !closed {
		t.Fatalf("expected connection to be closed")
	}
}
