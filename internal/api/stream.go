package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"reportanalyzer/internal/llm"
	llmclient "reportanalyzer/internal/llm/client"
	"reportanalyzer/internal/pipeline"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamMessage is one frame sent to the client. Type is one of stage,
// call_started, call, result or error.
type streamMessage struct {
	Type    string               `json:"type"`
	Stage   *pipeline.StageEvent `json:"stage,omitempty"`
	Call    *pipeline.CallEvent  `json:"call,omitempty"`
	Purpose string               `json:"purpose,omitempty"`
	Result  *pipeline.Result     `json:"result,omitempty"`
	Status  int                  `json:"status,omitempty"`
	Message string               `json:"message,omitempty"`
}

// streamSink forwards pipeline progress to the socket writer. Once the
// writer is gone, messages are dropped and the analysis keeps running.
type streamSink struct {
	out  chan<- streamMessage
	done <-chan struct{}
}

func (s streamSink) push(m streamMessage) {
	select {
	case s.out <- m:
	case <-s.done:
	}
}

func (s streamSink) OnStage(e pipeline.StageEvent) {
	s.push(streamMessage{Type: "stage", Stage: &e})
}

func (s streamSink) OnCall(e pipeline.CallEvent) {
	s.push(streamMessage{Type: "call", Call: &e})
}

func (s streamSink) Before(_ context.Context, phase, _ string) {
	s.push(streamMessage{Type: "call_started", Purpose: phase})
}

func (s streamSink) After(context.Context, string, llmclient.Generation, error) {}

// analyzeStream upgrades to a websocket, reads one analysis request and
// streams stage and call events followed by the result.
func (h *Handler) analyzeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	var req pipeline.Request
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(streamMessage{Type: "error", Status: http.StatusBadRequest, Message: "invalid JSON message"})
		return
	}

	out := make(chan streamMessage, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case m, ok := <-out:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sink := streamSink{out: out, done: writerDone}
	ctx := llm.ContextWithHook(context.WithoutCancel(r.Context()), sink)
	res, err := h.analyzer.AnalyzeObserved(ctx, req, sink)
	if err != nil {
		status, detail := statusFor(err)
		h.log.Warn("api: streamed analysis failed", zap.Int("status", status), zap.Error(err))
		sink.push(streamMessage{Type: "error", Status: status, Message: detail})
	} else {
		sink.push(streamMessage{Type: "result", Result: res})
	}
	close(out)
	<-writerDone
}
