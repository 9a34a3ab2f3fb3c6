package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// WSHandler wires websocket connections into the session use cases. A host
// connection creates and drives a session; player connections join by pin
// and submit answers. Everyone receives session events through the
// per-session subscription.
type WSHandler struct {
	service  *app.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID      string `json:"questionId"`
	TimeUsedMs      int64  `json:"timeUsedMs"`
	SelectedIndices []int  `json:"selectedIndices"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
}

type createdPayload struct {
	SessionID string `json:"sessionId"`
	Pin       string `json:"pin"`
}

type questionStartedPayload struct {
	QuestionID    string `json:"questionId"`
	QuestionIndex int    `json:"questionIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection loop. Hosts connect
// with ?role=host&quizId=...&hostId=...; players with
// ?pin=...&playerId=...&name=...[&guest=1].
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	isHost := r.URL.Query().Get("role") == "host"

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	var (
		pin      domain.SessionPin
		playerID domain.PlayerID
	)

	if isHost {
		quizID := domain.QuizID(r.URL.Query().Get("quizId"))
		hostID := domain.PlayerID(r.URL.Query().Get("hostId"))
		if quizID == "" || hostID == "" {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "missing quizId or hostId"}})
			return
		}
		session, err := h.service.Create(r.Context(), quizID, hostID)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		pin = session.Pin()
		playerID = hostID
		_ = conn.WriteJSON(outboundMessage[createdPayload]{Type: "created", Payload: createdPayload{
			SessionID: string(session.ID()),
			Pin:       string(pin),
		}})
	} else {
		pin = domain.SessionPin(r.URL.Query().Get("pin"))
		playerID = domain.PlayerID(r.URL.Query().Get("playerId"))
		nickname := r.URL.Query().Get("name")
		guest := r.URL.Query().Get("guest") == "1"
		if pin == "" || playerID == "" || nickname == "" {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "missing pin, playerId, or name"}})
			return
		}
		session, err := h.service.Join(r.Context(), pin, playerID, nickname, guest)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		_ = conn.WriteJSON(outboundMessage[domain.Leaderboard]{Type: "joined", Payload: session.Leaderboard()})
	}

	updates, cancel, err := h.service.Subscribe(r.Context(), pin)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(event.Type), Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(r, send, pin, playerID, isHost, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(r *http.Request, send chan outboundMessage[any], pin domain.SessionPin, playerID domain.PlayerID, isHost bool, inbound inboundMessage) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
			return
		}
		result, err := h.service.SubmitAnswer(r.Context(), pin, playerID, app.Submission{
			QuestionID:      domain.QuestionID(payload.QuestionID),
			TimeUsedMs:      payload.TimeUsedMs,
			SelectedIndices: payload.SelectedIndices,
		})
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			return
		}
		send <- outboundMessage[any]{Type: "answer_result", Payload: answerResult{
			QuestionID: payload.QuestionID,
			Correct:    result.Record.Correct,
			Awarded:    result.Record.Points,
			TotalScore: result.TotalScore,
		}}
	case "start_question":
		if !h.requireHost(send, isHost) {
			return
		}
		questionID, index, err := h.service.StartQuestion(r.Context(), pin, playerID)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			return
		}
		send <- outboundMessage[any]{Type: "question_started_ack", Payload: questionStartedPayload{
			QuestionID:    string(questionID),
			QuestionIndex: index,
		}}
	case "close_question":
		if !h.requireHost(send, isHost) {
			return
		}
		if _, err := h.service.CloseQuestion(r.Context(), pin, playerID); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		}
	case "end_session":
		if !h.requireHost(send, isHost) {
			return
		}
		snapshot, err := h.service.EndSession(r.Context(), pin, playerID)
		if err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			return
		}
		send <- outboundMessage[any]{Type: "archived", Payload: createdPayload{
			SessionID: string(snapshot.ID),
			Pin:       string(snapshot.Pin),
		}}
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

func (h *WSHandler) requireHost(send chan outboundMessage[any], isHost bool) bool {
	if !isHost {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "host-only command"}}
	}
	return isHost
}
