package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"datachat/internal/logx"
	"datachat/internal/models"
	"datachat/internal/service/assistant"
	"datachat/internal/tokenizer"
	"datachat/internal/worker"
)

// AskManager runs questions through the worker pool.
type AskManager interface {
	Ask(ctx context.Context, sessionID, question string) (*models.Answer, error)
	CancelSession(sessionID string)
}

// Handler wires HTTP routes to the assistant service and the question
// workers.
type Handler struct {
	assistant *assistant.Service
	workers   AskManager
	tokens    tokenizer.Counter
	titler    *assistant.Titler
	limiter   *askRateLimiter
}

// NewHandler constructs a Handler instance. The titler is optional;
// without one sessions keep their placeholder title.
func NewHandler(service *assistant.Service, workers AskManager, tokens tokenizer.Counter, titler *assistant.Titler) *Handler {
	if tokens == nil {
		tokens = tokenizer.HeuristicCounter{}
	}
	return &Handler{
		assistant: service,
		workers:   workers,
		tokens:    tokens,
		titler:    titler,
		limiter:   newAskRateLimiter(askRateLimit, askRateWindow),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.health)

	api := router.Group("/api")
	api.POST("/ask", h.ask)
	api.GET("/sessions", h.listSessions)
	api.GET("/sessions/:session_id/history", h.sessionHistory)
	api.POST("/sessions/:session_id/end", h.endSession)
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "it runs")
}

type askRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Query)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if !h.limiter.Allow(sessionID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many questions, please slow down"})
		return
	}

	if _, _, err := h.assistant.EnsureSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.workers.Ask(c.Request.Context(), sessionID, question)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "question timed out, please retry"})
		case errors.Is(err, worker.ErrSessionCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": "session was ended"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	tokensUsed := h.tokens.Count(question) + h.tokens.Count(answer.Text)
	if _, err := h.assistant.RecordExchange(c.Request.Context(), sessionID, question, answer.Text, tokensUsed); err != nil {
		logx.Error().Err(err).Str("session", sessionID).Msg("failed to record exchange")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist exchange"})
		return
	}
	if err := h.assistant.TitleSessionIfNew(c.Request.Context(), h.titler, sessionID, question, answer.Text); err != nil {
		logx.Warn().Err(err).Str("session", sessionID).Msg("failed to title session")
	}

	payload := answer.Text
	if answer.Type == models.AnswerImage {
		payload = "data:image/png;base64," + answer.Text
	}
	c.JSON(http.StatusOK, gin.H{
		"answer":     payload,
		"session_id": sessionID,
		"type":       answer.Type,
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.assistant.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = make([]models.Session, 0)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) sessionHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	session, err := h.assistant.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	exchanges, err := h.assistant.SessionExchanges(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if exchanges == nil {
		exchanges = make([]models.Exchange, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  session,
		"messages": exchanges,
	})
}

func (h *Handler) endSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.assistant.EndSession(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.workers.CancelSession(sessionID)
	h.limiter.Forget(sessionID)
	c.Status(http.StatusNoContent)
}
