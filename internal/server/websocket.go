package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/franckalain/labelverdict/internal/models"
)

// WebSocket message types
const (
	TypeAnalyze  = "analyze"
	TypeAnalysis = "analysis"
	TypeError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the frontend is served from the same binary
	},
}

// Message is the envelope exchanged on /ws
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type socketRegistry struct {
	clients sync.Map
}

func newSocketRegistry() *socketRegistry {
	return &socketRegistry{}
}

func (r *socketRegistry) add(conn *websocket.Conn) func() {
	id := uuid.New().String()
	r.clients.Store(id, conn)
	return func() { r.clients.Delete(id) }
}

func (r *socketRegistry) closeAll() {
	r.clients.Range(func(key, value any) bool {
		conn := value.(*websocket.Conn)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return true
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.opts.MaxBodyBytes)
	defer s.sockets.add(conn)()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if _, ok := err.(*json.SyntaxError); ok {
				s.sendError(conn, "Invalid message format", models.CodeValidation)
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("WebSocket read ended", "error", err)
			}
			return
		}
		s.handleWebSocketMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case TypeAnalyze:
		s.handleAnalyzeMessage(ctx, conn, msg.Data)
	default:
		s.sendError(conn, "Unknown message type", models.CodeValidation)
	}
}

func (s *Server) handleAnalyzeMessage(ctx context.Context, conn *websocket.Conn, data json.RawMessage) {
	var body analyzeBody
	if err := json.Unmarshal(data, &body); err != nil {
		s.sendError(conn, "Invalid request body", models.CodeValidation)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	req, err := body.toRequest(s.opts.Persona)
	if err == nil {
		var result *models.AnalysisResult
		result, err = s.analyzer.Analyze(ctx, req)
		if err == nil {
			s.sendMessage(conn, TypeAnalysis, result)
			return
		}
	}

	_, message, code := classify(err)
	if code != models.CodeValidation {
		s.log.Error("Error analyzing product", "error", err, "code", code, "transport", "ws")
	}
	s.sendError(conn, message, code)
}

func (s *Server) sendMessage(conn *websocket.Conn, messageType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("Error encoding message", "type", messageType, "error", err)
		s.sendError(conn, messageFailed, models.CodeUpstream)
		return
	}
	if err := conn.WriteJSON(Message{Type: messageType, Data: raw}); err != nil {
		s.log.Warn("Error sending message", "type", messageType, "error", err)
	}
}

func (s *Server) sendError(conn *websocket.Conn, message, code string) {
	if err := conn.WriteJSON(Message{Type: TypeError, Message: message, Code: code}); err != nil {
		s.log.Warn("Error sending error message", "error", err)
	}
}
