// Package v1 exposes the workflow HTTP surface: the unauthenticated
// action-link endpoints that consume single-use tokens, the authenticated
// request/escalation endpoints, and the websocket feed.
package v1

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldserve-io/fieldserve/internal/history"
	"github.com/fieldserve-io/fieldserve/internal/middleware"
	"github.com/fieldserve-io/fieldserve/internal/models"
	"github.com/fieldserve-io/fieldserve/internal/notifications"
	"github.com/fieldserve-io/fieldserve/internal/service"
	"github.com/fieldserve-io/fieldserve/internal/services/escalation"
)

// workflowAPI is the slice of the workflow service the handlers call.
type workflowAPI interface {
	CreateRequest(ctx context.Context, req *models.ServiceRequest, recipientIDs []int) (int, error)
	Acknowledge(ctx context.Context, rawToken string) (*service.TransitionResult, error)
	Start(ctx context.Context, rawToken string) (*service.TransitionResult, error)
	Stop(ctx context.Context, rawToken string) (*service.TransitionResult, error)
	Close(ctx context.Context, rawToken string, closeReq *models.CloseRequest) (*service.TransitionResult, error)
	GetState(ctx context.Context, serviceRequestID int) (*service.WorkflowStateView, error)
}

type sweepRunner interface {
	RunOnce(ctx context.Context) (*escalation.SweepResult, error)
}

type historyLister interface {
	ListForRequest(ctx context.Context, serviceRequestID int) ([]*models.RequestHistoryEntry, error)
}

// APIRouter holds the dependencies shared by the v1 handlers.
type APIRouter struct {
	workflow   workflowAPI
	escalation sweepRunner
	history    historyLister
	hub        *notifications.Hub
	jwt        *middleware.JWTManager
	limiter    *middleware.RateLimiter
	logger     *log.Logger
}

// NewAPIRouter creates the v1 router.
func NewAPIRouter(workflow workflowAPI, esc sweepRunner, hist historyLister, hub *notifications.Hub, jwt *middleware.JWTManager, logger *log.Logger) *APIRouter {
	if logger == nil {
		logger = log.Default()
	}
	return &APIRouter{
		workflow:   workflow,
		escalation: esc,
		history:    hist,
		hub:        hub,
		jwt:        jwt,
		limiter:    middleware.NewRateLimiter(),
		logger:     logger,
	}
}

// RegisterRoutes mounts the v1 API under /api/v1.
func (router *APIRouter) RegisterRoutes(engine *gin.Engine) {
	api := engine.Group("/api/v1")

	// Action-link endpoints. The token in the path is the credential.
	actions := api.Group("/workflow")
	actions.Use(middleware.TokenActionRateLimit(router.limiter, 30, time.Minute))
	{
		actions.POST("/acknowledge/:token", router.handleAcknowledge)
		actions.POST("/start/:token", router.handleStart)
		actions.POST("/stop/:token", router.handleStop)
		actions.POST("/close/:token", router.handleClose)
	}

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(router.jwt))
	{
		authed.POST("/requests", router.handleCreateRequest)
		authed.GET("/requests/:id/workflow-state", router.handleGetState)
		authed.GET("/requests/:id/history", router.handleGetHistory)
		authed.POST("/escalation/run",
			middleware.RequireRole(models.RoleDispatcher, models.RoleAdmin),
			router.handleRunEscalation)
		authed.GET("/ws/requests", router.handleWebsocket)
	}
}

var formatHistoryName = history.FormatEntryName
