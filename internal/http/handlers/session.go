package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"realtalk/internal/domain"
)

// SessionService is the application surface the handlers drive.
type SessionService interface {
	Connect() (domain.Status, error)
	Disconnect() (domain.Status, error)
	SetMuted(muted bool) (domain.Status, error)
	GetStatus() domain.Status
	Transcript() []domain.TranscriptItem
	ArchivedTranscript(ctx context.Context, sessionID string) ([]domain.TranscriptItem, error)
	GetRuntimeInfo() map[string]string
	Hello() map[string]any
}

type SessionHandler struct {
	Svc SessionService
}

func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{Svc: svc}
}

type muteReq struct {
	Muted *bool `json:"muted" binding:"required"`
}

type statusResp struct {
	State     string                  `json:"state"`
	Active    bool                    `json:"active"`
	Muted     bool                    `json:"muted"`
	SessionID string                  `json:"sessionId,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Items     []transcriptItemPayload `json:"transcript,omitempty"`
}

type transcriptItemPayload struct {
	ItemID   string `json:"itemId"`
	Role     string `json:"role"`
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

func (h *SessionHandler) Connect(c *gin.Context) {
	status, err := h.Svc.Connect()
	if err != nil {
		h.fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResp(status, nil))
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	status, err := h.Svc.Disconnect()
	if err != nil {
		h.fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResp(status, nil))
}

func (h *SessionHandler) Mute(c *gin.Context) {
	var req muteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	status, err := h.Svc.SetMuted(*req.Muted)
	if err != nil {
		h.fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, toStatusResp(status, nil))
}

func (h *SessionHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResp(h.Svc.GetStatus(), h.Svc.Transcript()))
}

type archivedResp struct {
	SessionID string                  `json:"sessionId"`
	Items     []transcriptItemPayload `json:"transcript"`
}

func (h *SessionHandler) ArchivedTranscript(c *gin.Context) {
	sessionID := c.Param("id")
	items, err := h.Svc.ArchivedTranscript(c.Request.Context(), sessionID)
	switch {
	case errors.Is(err, domain.ErrArchiveDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": "archive_disabled"})
		return
	case errors.Is(err, domain.ErrTranscriptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive_unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, archivedResp{SessionID: sessionID, Items: toStatusResp(domain.Status{}, items).Items})
}

func (h *SessionHandler) Runtime(c *gin.Context) {
	c.JSON(http.StatusOK, h.Svc.GetRuntimeInfo())
}

func (h *SessionHandler) fail(c *gin.Context, status domain.Status, err error) {
	kind := domain.KindOf(err)
	c.JSON(httpStatusFor(err), gin.H{
		"error":   string(kind),
		"message": err.Error(),
		"state":   string(status.State),
	})
}

func httpStatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrorKindMediaAcquisition:
		return http.StatusServiceUnavailable
	case domain.ErrorKindNegotiation, domain.ErrorKindSignaling, domain.ErrorKindTransport, domain.ErrorKindRemote:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toStatusResp(status domain.Status, items []domain.TranscriptItem) statusResp {
	resp := statusResp{
		State:     string(status.State),
		Active:    status.Active,
		Muted:     status.Muted,
		SessionID: status.SessionID,
		Message:   status.Message,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, transcriptItemPayload{
			ItemID:   item.ItemID,
			Role:     string(item.Role),
			Text:     item.Text,
			Complete: item.Complete,
		})
	}
	return resp
}
