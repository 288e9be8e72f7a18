package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldserve-io/fieldserve/internal/apierrors"
	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/service"
)

// handleAcknowledge consumes an acknowledgment token. A stale link on an
// already-claimed request reports who acknowledged first.
func (router *APIRouter) handleAcknowledge(c *gin.Context) {
	result, err := router.workflow.Acknowledge(c.Request.Context(), c.Param("token"))
	if err != nil {
		router.sendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service_request_id": result.ServiceRequestID,
		"state":              result.State,
		"acknowledged_by":    result.ActorName,
	})
}

// handleStart consumes a start token: the first start transitions the
// workflow, a later one resumes work after a stop.
func (router *APIRouter) handleStart(c *gin.Context) {
	result, err := router.workflow.Start(c.Request.Context(), c.Param("token"))
	if err != nil {
		router.sendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service_request_id": result.ServiceRequestID,
		"state":              result.State,
		"started_by":         result.ActorName,
	})
}

// handleStop consumes a stop token and reports the session durations.
func (router *APIRouter) handleStop(c *gin.Context) {
	result, err := router.workflow.Stop(c.Request.Context(), c.Param("token"))
	if err != nil {
		router.sendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service_request_id": result.ServiceRequestID,
		"state":              result.State,
		"session_minutes":    result.Session.DurationMinutes,
		"cumulative_minutes": result.Session.CumulativeMinutes,
	})
}

// handleClose consumes a close token. The close reason travels in the
// JSON body, not the link, so a bare click can never close a request.
func (router *APIRouter) handleClose(c *gin.Context) {
	var closeReq models.CloseRequest
	if err := c.ShouldBindJSON(&closeReq); err != nil {
		apierrors.Error(c, apierrors.CodeCloseReasonRequired)
		return
	}

	result, err := router.workflow.Close(c.Request.Context(), c.Param("token"), &closeReq)
	if err != nil {
		router.sendServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service_request_id": result.ServiceRequestID,
		"state":              result.State,
		"closed_by":          result.ActorName,
	})
}

// sendServiceError maps workflow service errors onto registered API error
// codes. Conflicts keep their human-readable message ("already
// acknowledged by Jane Doe").
func (router *APIRouter) sendServiceError(c *gin.Context, err error) {
	var conflict *service.StateConflictError
	if errors.As(err, &conflict) {
		apierrors.ErrorWithMessage(c, apierrors.CodeStateConflict, conflict.Error())
		return
	}

	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		apierrors.Error(c, apierrors.CodeTokenNotFound)
	case errors.Is(err, service.ErrTokenExpired):
		apierrors.Error(c, apierrors.CodeTokenExpired)
	case errors.Is(err, service.ErrTokenUsed):
		apierrors.Error(c, apierrors.CodeTokenUsed)
	case errors.Is(err, service.ErrWrongAction):
		apierrors.Error(c, apierrors.CodeWrongAction)
	case errors.Is(err, service.ErrWrongEmployee):
		apierrors.Error(c, apierrors.CodeWrongEmployee)
	case errors.Is(err, service.ErrRequestNotFound):
		apierrors.Error(c, apierrors.CodeRequestNotFound)
	case errors.Is(err, service.ErrCloseReasonRequired):
		apierrors.Error(c, apierrors.CodeCloseReasonRequired)
	case errors.Is(err, service.ErrSessionConflict), errors.Is(err, service.ErrNoOpenSession):
		apierrors.Error(c, apierrors.CodeSessionConflict)
	default:
		router.logger.Printf("api: workflow error: %v", err)
		apierrors.Error(c, apierrors.CodeInternalError)
	}
}
