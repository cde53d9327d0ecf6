package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portalchat/internal/app"
	"portalchat/internal/model"
	"portalchat/internal/pkg/xlsxexport"
	"portalchat/internal/transport/http/middleware"
	"portalchat/internal/transport/http/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SupportHandler struct {
	store     app.ConversationStore
	adminRole string
	log       zerolog.Logger
}

type CreateSupportMessageRequest struct {
	Content  string `json:"content" binding:"required"`
	ThreadID string `json:"threadId" binding:"max=64"`
}

type MarkReadResponse struct {
	Success bool `json:"success"`
}

func NewSupportHandler(store app.ConversationStore, adminRole string, log zerolog.Logger) *SupportHandler {
	return &SupportHandler{store: store, adminRole: adminRole, log: log}
}

func (h *SupportHandler) List(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
		return
	}

	var (
		messages []model.SupportMessage
		err      error
	)
	if identity.HasRole(h.adminRole) {
		messages, err = h.store.GetSupportMessagesForAdmin(c.Request.Context())
	} else {
		messages, err = h.store.GetSupportMessages(c.Request.Context(), identity.UserID)
	}
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", identity.UserID).Msg("get support messages failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to get support messages")
		return
	}

	response.OK(c, messages)
}

func (h *SupportHandler) MarkRead(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
		return
	}

	messageID, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil || messageID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid message id")
		return
	}

	updated, err := h.store.MarkSupportMessageAsRead(c.Request.Context(), uint(messageID))
	if err != nil {
		h.log.Error().Err(err).Uint64("message_id", messageID).Uint("user_id", identity.UserID).Msg("mark support message read failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to mark message as read")
		return
	}
	if !updated {
		response.Error(c, http.StatusNotFound, response.CodeSupportMessageNotFound, app.ErrSupportMessageNotFound.Error())
		return
	}

	response.OK(c, MarkReadResponse{Success: true})
}

func (h *SupportHandler) Create(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
		return
	}

	var req CreateSupportMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "content is required")
		return
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	stored, err := h.store.AddSupportMessage(c.Request.Context(), model.SupportMessage{
		UserID:   identity.UserID,
		Content:  req.Content,
		ThreadID: threadID,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Uint("user_id", identity.UserID).Msg("add support message failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to send support message")
		}
		return
	}

	response.Created(c, stored)
}

// Export returns the whole support inbox as an XLSX workbook. Admins only.
func (h *SupportHandler) Export(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "authentication required")
		return
	}
	if !identity.HasRole(h.adminRole) {
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "admin role required")
		return
	}

	messages, err := h.store.GetSupportMessagesForAdmin(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("load support inbox for export failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to export support messages")
		return
	}

	var buf bytes.Buffer
	if err := xlsxexport.WriteSupportMessages(&buf, messages); err != nil {
		h.log.Error().Err(err).Msg("render support inbox export failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Failed to export support messages")
		return
	}

	filename := fmt.Sprintf("support_inbox_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
