package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"evrange/chat"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketWriteWait = 10 * time.Second
	socketIdleWait  = 10 * time.Minute
	socketMaxLine   = 4096
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Reply     *chat.Reply    `json:"reply,omitempty"`
	History   []chat.Message `json:"history,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	session := s.sessions.Resume(req.SessionID)
	reply, _ := session.Send(r.Context(), s.interpreter, req.Message)
	s.recordReply(r.Context(), reply)
	respondJSON(w, http.StatusOK, chatResponse{
		SessionID: session.ID,
		Reply:     &reply,
		History:   session.History(),
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{SessionID: session.ID, History: session.History()})
}

func (s *Server) recordReply(ctx context.Context, reply chat.Reply) {
	if reply.Row == nil {
		return
	}
	if reply.Prediction == nil {
		s.countPrediction("chat", errors.New(reply.Text))
		return
	}
	s.countPrediction("chat", nil)
	s.recordPrediction(ctx, "chat", reply.Row, *reply.Prediction, s.models.Status().Version)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(s.config.AllowedOrigins, origin)
		},
	}
}

// handleChatSocket speaks the same protocol as POST /api/chat over one
// connection. Each inbound frame is either a JSON chatRequest or a bare line.
// The first outbound frame carries the session id and its transcript.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(socketMaxLine)

	session := s.sessions.Resume(r.URL.Query().Get("session_id"))
	logger := s.logger.With(zap.String("session_id", session.ID))
	logger.Debug("chat socket opened")

	if err := writeFrame(conn, chatResponse{SessionID: session.ID, History: session.History()}); err != nil {
		return
	}

	for {
		conn.SetReadDeadline(time.Now().Add(socketIdleWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("chat socket error", zap.Error(err))
			}
			return
		}

		text := string(data)
		var req chatRequest
		if json.Unmarshal(data, &req) == nil && req.Message != "" {
			text = req.Message
		}
		reply, ok := session.Send(r.Context(), s.interpreter, text)
		if !ok {
			continue
		}
		s.recordReply(r.Context(), reply)
		if err := writeFrame(conn, chatResponse{SessionID: session.ID, Reply: &reply}); err != nil {
			logger.Warn("chat socket write failed", zap.Error(err))
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return conn.WriteJSON(v)
}
