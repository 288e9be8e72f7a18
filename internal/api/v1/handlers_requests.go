package v1

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fieldserve-io/fieldserve/internal/apierrors"
	"github.com/fieldserve-io/fieldserve/internal/middleware"
	"github.com/fieldserve-io/fieldserve/internal/models"
)

// handleCreateRequest creates a service request and notifies the chosen
// technicians with acknowledgment links.
func (router *APIRouter) handleCreateRequest(c *gin.Context) {
	var body struct {
		Title        string `json:"title" binding:"required"`
		Description  string `json:"description"`
		ClientID     int    `json:"client_id" binding:"required"`
		BusinessID   int    `json:"business_id" binding:"required"`
		LocationID   int    `json:"location_id"`
		RecipientIDs []int  `json:"recipient_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInvalidRequest, err.Error())
		return
	}

	req := &models.ServiceRequest{
		Title:       body.Title,
		Description: body.Description,
		ClientID:    body.ClientID,
		BusinessID:  body.BusinessID,
	}
	if body.LocationID > 0 {
		req.LocationID = sql.NullInt64{Int64: int64(body.LocationID), Valid: true}
	}

	id, err := router.workflow.CreateRequest(c.Request.Context(), req, body.RecipientIDs)
	if err != nil {
		router.sendServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":             id,
		"request_number": req.RequestNumber,
		"status":         models.RequestStatusPending,
	})
}

// handleGetState returns the workflow state with actor names and relative
// timestamps.
func (router *APIRouter) handleGetState(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apierrors.Error(c, apierrors.CodeInvalidID)
		return
	}

	view, err := router.workflow.GetState(c.Request.Context(), id)
	if err != nil {
		router.sendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleGetHistory returns the decoded event trail for a request.
func (router *APIRouter) handleGetHistory(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apierrors.Error(c, apierrors.CodeInvalidID)
		return
	}

	entries, err := router.history.ListForRequest(c.Request.Context(), id)
	if err != nil {
		router.logger.Printf("api: list history for request %d: %v", id, err)
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"id":           entry.ID,
			"history_type": entry.HistoryType,
			"name":         formatHistoryName(*entry),
			"created_by":   entry.CreatorFullName,
			"created_at":   entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// handleRunEscalation triggers one escalation sweep outside the schedule.
// An overlapping run is reported as skipped, not an error.
func (router *APIRouter) handleRunEscalation(c *gin.Context) {
	result, err := router.escalation.RunOnce(c.Request.Context())
	if err != nil {
		router.logger.Printf("api: manual escalation sweep: %v", err)
		apierrors.Error(c, apierrors.CodeInternalError)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"skipped":         result.Skipped,
		"ack_reminders":   result.AckReminders,
		"start_reminders": result.StartReminders,
		"flagged":         result.Flagged,
		"errors":          result.Errors,
	})
}

// handleWebsocket upgrades to the live request update feed.
func (router *APIRouter) handleWebsocket(c *gin.Context) {
	if router.hub == nil {
		apierrors.Error(c, apierrors.CodeNotFound)
		return
	}
	if err := router.hub.ServeWS(c.Writer, c.Request, middleware.EmployeeID(c)); err != nil {
		router.logger.Printf("api: websocket upgrade: %v", err)
	}
}
