package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"assemblyline/internal/trace"
)

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPongWait  = 60 * time.Second
	eventsWSPingEvery = (eventsWSPongWait * 9) / 10
	eventsWSBuffer    = 64
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type eventsWSOutbound struct {
	Type    string       `json:"type"`
	RunID   string       `json:"runId,omitempty"`
	Event   *trace.Event `json:"event,omitempty"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

type eventsWSInbound struct {
	Type string `json:"type"`
}

// EventsHandler streams one run's events over a websocket. The socket is closed
// after the run's done event.
type EventsHandler struct {
	broker *trace.Broker
}

func NewEventsHandler(broker *trace.Broker) *EventsHandler {
	return &EventsHandler{broker: broker}
}

func (h *EventsHandler) HandleRunEventsWS(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}
	if h.broker == nil {
		http.Error(w, "event streaming is disabled", http.StatusNotFound)
		return
	}

	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(eventsWSPongWait)); err != nil {
		log.Printf("events ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsWSPongWait))
	})

	writeCh := make(chan eventsWSOutbound, eventsWSBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(eventsWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
				if out.Type == "closed" {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
						time.Now().Add(eventsWSWriteWait))
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	sub, unsubscribe := h.broker.Subscribe(runID)
	defer unsubscribe()
	pushEventsWS(ctx, writeCh, eventsWSOutbound{Type: "subscribed", RunID: runID})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					pushEventsWS(ctx, writeCh, eventsWSOutbound{Type: "closed", RunID: runID})
					return
				}
				if !pushEventsWS(ctx, writeCh, eventsWSOutbound{Type: "event", RunID: runID, Event: &ev}) {
					return
				}
			}
		}
	}()

	go func() {
		for {
			var in eventsWSInbound
			if err := conn.ReadJSON(&in); err != nil {
				cancel()
				return
			}
			switch strings.ToLower(strings.TrimSpace(in.Type)) {
			case "ping":
				pushEventsWS(ctx, writeCh, eventsWSOutbound{Type: "pong"})
			default:
				pushEventsWS(ctx, writeCh, eventsWSOutbound{
					Type:    "error",
					Code:    "invalid_argument",
					Message: "unsupported type: " + in.Type,
				})
			}
		}
	}()

	<-writerDone
}

// pushEventsWS hands out to the writer. The broker already drops events for a
// subscriber that falls behind, so this waits instead of dropping.
func pushEventsWS(ctx context.Context, writeCh chan<- eventsWSOutbound, out eventsWSOutbound) bool {
	select {
	case writeCh <- out:
		return true
	case <-ctx.Done():
		return false
	}
}
