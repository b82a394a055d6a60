package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yourorg/coinscope/internal/export"
	"github.com/yourorg/coinscope/internal/model"
	"github.com/yourorg/coinscope/internal/service"
	"github.com/yourorg/coinscope/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// SessionHandler handles display session HTTP requests
type SessionHandler struct {
	sessions *service.SessionManager
	tokens   *service.TokenService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionManager, tokens *service.TokenService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type queryRequest struct {
	Query *string `json:"query" binding:"required"`
}

type selectionRequest struct {
	Coin *model.Coin `json:"coin" binding:"required"`
}

type historyResponse struct {
	Status  model.HistoryStatus `json:"status"`
	Coin    *model.Coin         `json:"coin,omitempty"`
	Days    int                 `json:"days,omitempty"`
	History *model.History      `json:"history,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type streamFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// CreateSession starts a display session and issues its token
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session, err := h.sessions.Create()
	if err != nil {
		h.logger.Warn("Failed to create session", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	token, expiresAt, err := h.tokens.Issue(session.ID)
	if err != nil {
		_ = h.sessions.Close(session.ID)
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to issue session token")
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// DeleteSession ends a session and cancels its outstanding requests
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitQuery feeds a changed search query to the session
// PUT /api/v1/sessions/:id/query
func (h *SessionHandler) SubmitQuery(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var request queryRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	generation, accepted := session.OnQueryChanged(*request.Query)
	c.JSON(http.StatusAccepted, gin.H{
		"generation": generation,
		"accepted":   accepted,
	})
}

// GetResults returns the search state with the last published results
// GET /api/v1/sessions/:id/results
func (h *SessionHandler) GetResults(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.SearchState())
}

// SelectCoin starts loading the history of the selected coin
// POST /api/v1/sessions/:id/selection
func (h *SessionHandler) SelectCoin(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var request selectionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, "A coin with an id is required")
		return
	}

	started := session.SelectCoin(*request.Coin)
	c.JSON(http.StatusAccepted, gin.H{
		"coin_id": request.Coin.ID,
		"started": started,
	})
}

// GetHistory returns the history state, windowed to the requested period
// GET /api/v1/sessions/:id/history?days=N
func (h *SessionHandler) GetHistory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	days, err := utils.ParseChartPeriod(c)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, newHistoryResponse(session.History(), days))
}

// ExportHistory renders the loaded history window as CSV
// GET /api/v1/sessions/:id/history/export?days=N
func (h *SessionHandler) ExportHistory(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	days, err := utils.ParseChartPeriod(c)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	state := session.History()
	if state.Status != model.HistoryLoaded {
		utils.SendErrorResponse(c, http.StatusConflict, fmt.Sprintf("history is %s", state.Status))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHistoryCSV(&buf, *state.Coin, state.History.Window(days)); err != nil {
		h.logger.Error("Failed to render history export",
			zap.String("coinID", state.Coin.ID),
			zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to render export")
		return
	}

	filename := fmt.Sprintf("%s-%dd.csv", state.Coin.ID, days)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// Stream pushes search results and history states over a websocket
// GET /api/v1/sessions/:id/stream?days=N
func (h *SessionHandler) Stream(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	days, err := utils.ParseChartPeriod(c)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.String("sessionID", session.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	results, stopResults := session.SubscribeSearch()
	defer stopResults()
	states, stopHistory := session.SubscribeHistory()
	defer stopHistory()

	// Only control frames are expected from the client
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	h.logger.Debug("Stream opened", zap.String("sessionID", session.ID))
	defer h.logger.Debug("Stream closed", zap.String("sessionID", session.ID))

	for {
		var frame streamFrame
		select {
		case coins, ok := <-results:
			if !ok {
				closeStream(conn)
				return
			}
			frame = streamFrame{Type: "search_results", Payload: coins}
		case state, ok := <-states:
			if !ok {
				closeStream(conn)
				return
			}
			frame = streamFrame{Type: "history", Payload: newHistoryResponse(state, days)}
		case <-ticker.C:
			session.Touch()
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
			continue
		case <-closed:
			return
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(frame); err != nil {
			h.logger.Debug("Stream write failed", zap.String("sessionID", session.ID), zap.Error(err))
			return
		}
	}
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	session, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) sessionError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		utils.SendErrorResponse(c, http.StatusNotFound, "Session not found")
		return
	}
	h.logger.Error("Session lookup failed", zap.Error(err))
	utils.SendErrorResponse(c, http.StatusInternalServerError, "Session lookup failed")
}

func newHistoryResponse(state model.HistoryState, days int) historyResponse {
	response := historyResponse{
		Status: state.Status,
		Coin:   state.Coin,
	}

	switch state.Status {
	case model.HistoryLoaded:
		response.Days = days
		response.History = state.History.Window(days)
	case model.HistoryFailed:
		response.Error = state.Err.Error()
	}
	return response
}
