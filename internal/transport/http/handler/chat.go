package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portalchat/internal/app"
	"portalchat/internal/model"
	"portalchat/internal/transport/http/response"
)

type ChatHandler struct {
	store app.ConversationStore
	log   zerolog.Logger
}

type CreateSessionRequest struct {
	ContactInfo map[string]interface{} `json:"contactInfo"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type AddMessageRequest struct {
	SessionID string     `json:"sessionId" binding:"required"`
	Role      string     `json:"role" binding:"required,oneof=user assistant"`
	Content   string     `json:"content" binding:"required"`
	Timestamp *time.Time `json:"timestamp"`
}

func NewChatHandler(store app.ConversationStore, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{store: store, log: log}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sessionID, err := h.store.CreateChatSession(c.Request.Context(), req.ContactInfo)
	if err != nil {
		h.log.Error().Err(err).Msg("create chat session failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to create chat session")
		return
	}

	response.Created(c, CreateSessionResponse{SessionID: sessionID})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	session, err := h.store.GetChatSession(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("get chat session failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to get chat session")
		return
	}
	if session == nil {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "Chat session not found")
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))

	messages, err := h.store.GetMessages(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("get messages failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to get messages")
		return
	}

	response.OK(c, messages)
}

func (h *ChatHandler) AddMessage(c *gin.Context) {
	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "sessionId, role and content are required")
		return
	}

	message := model.Message{
		SessionID: req.SessionID,
		Role:      req.Role,
		Content:   req.Content,
	}
	if req.Timestamp != nil {
		message.Timestamp = req.Timestamp.UTC()
	}

	stored, err := h.store.AddMessage(c.Request.Context(), message)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("add message failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to add message")
		}
		return
	}

	response.Created(c, stored)
}
