package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/transfer-approval/internal/application/engine"
	"github.com/garyjia/transfer-approval/internal/audit"
	"github.com/garyjia/transfer-approval/internal/domain/entity"
)

// ApprovalEngine is the engine surface served over HTTP
type ApprovalEngine interface {
	CreateChain(ctx context.Context, subject entity.SubjectID, group entity.GroupID) (*entity.ChainHandle, error)
	RecordDecision(ctx context.Context, instanceID int64, user entity.UserID, decision string) error
	PendingForUser(ctx context.Context, user entity.UserID) ([]*entity.StageAssignment, error)
	GetActiveInstance(ctx context.Context, subject entity.SubjectID) (*entity.ActiveInstanceView, error)
	GetChain(ctx context.Context, subject entity.SubjectID) (*entity.ChainHandle, error)
	GetDecisions(ctx context.Context, subject entity.SubjectID) ([]*entity.StageAssignment, error)
}

// AuditExporter renders a subject's chain as a workbook
type AuditExporter interface {
	Export(ctx context.Context, subject entity.SubjectID, w io.Writer) error
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   ApprovalEngine
	exporter AuditExporter
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine ApprovalEngine, exporter AuditExporter, logger Logger) *Handlers {
	return &Handlers{
		engine:   engine,
		exporter: exporter,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateChainRequest is the body of POST /api/v1/chains
type CreateChainRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	GroupID   string `json:"group_id" binding:"required"`
}

// DecisionRequest is the body of POST /api/v1/instances/:id/decisions
type DecisionRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Decision string `json:"decision" binding:"required"`
}

// DecisionResponse echoes an accepted decision
type DecisionResponse struct {
	InstanceID int64  `json:"instance_id"`
	UserID     string `json:"user_id"`
	Decision   string `json:"decision"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateChain handles POST /api/v1/chains
func (h *Handlers) CreateChain(c *gin.Context) {
	var req CreateChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid create chain request", "error", err)
		fail(c, http.StatusBadRequest, "subject_id and group_id are required")
		return
	}

	subject := entity.SubjectID(req.SubjectID)
	group := entity.GroupID(req.GroupID)

	chain, err := h.engine.CreateChain(c.Request.Context(), subject, group)
	if errors.Is(err, engine.ErrNoWorkflowAssigned) {
		h.logger.Info("No workflow assigned", "subject_id", subject, "group_id", group)
		noWorkflow := entity.NewChainHandle(subject, group, nil)
		noWorkflow.Instances = []*entity.WorkflowInstance{}
		c.JSON(http.StatusOK, Response{Success: true, Data: noWorkflow})
		return
	}
	if err != nil {
		h.writeError(c, "Failed to create chain", err, "subject_id", subject)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: chain})
}

// GetChain handles GET /api/v1/subjects/:subject_id/chain
func (h *Handlers) GetChain(c *gin.Context) {
	subject := entity.SubjectID(c.Param("subject_id"))

	chain, err := h.engine.GetChain(c.Request.Context(), subject)
	if err != nil {
		h.writeError(c, "Failed to get chain", err, "subject_id", subject)
		return
	}
	if chain.Instances == nil {
		chain.Instances = []*entity.WorkflowInstance{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: chain})
}

// GetActiveInstance handles GET /api/v1/subjects/:subject_id/active
func (h *Handlers) GetActiveInstance(c *gin.Context) {
	subject := entity.SubjectID(c.Param("subject_id"))

	view, err := h.engine.GetActiveInstance(c.Request.Context(), subject)
	if err != nil {
		h.writeError(c, "Failed to get active instance", err, "subject_id", subject)
		return
	}
	if view == nil {
		fail(c, http.StatusNotFound, "subject has no active workflow instance")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetDecisions handles GET /api/v1/subjects/:subject_id/decisions
func (h *Handlers) GetDecisions(c *gin.Context) {
	subject := entity.SubjectID(c.Param("subject_id"))

	rows, err := h.engine.GetDecisions(c.Request.Context(), subject)
	if err != nil {
		h.writeError(c, "Failed to get decisions", err, "subject_id", subject)
		return
	}
	if rows == nil {
		rows = []*entity.StageAssignment{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rows})
}

// RecordDecision handles POST /api/v1/instances/:id/decisions
func (h *Handlers) RecordDecision(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Error("Invalid instance ID", "id", idStr, "error", err)
		fail(c, http.StatusBadRequest, "invalid instance ID")
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid decision request", "error", err)
		fail(c, http.StatusBadRequest, "user_id and decision are required")
		return
	}

	err = h.engine.RecordDecision(c.Request.Context(), id, entity.UserID(req.UserID), req.Decision)
	if err != nil {
		h.writeError(c, "Failed to record decision", err,
			"instance_id", id, "user_id", req.UserID, "decision", req.Decision)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: DecisionResponse{
			InstanceID: id,
			UserID:     req.UserID,
			Decision:   req.Decision,
		},
	})
}

// PendingForUser handles GET /api/v1/users/:user_id/pending
func (h *Handlers) PendingForUser(c *gin.Context) {
	user := entity.UserID(c.Param("user_id"))

	rows, err := h.engine.PendingForUser(c.Request.Context(), user)
	if err != nil {
		h.writeError(c, "Failed to list pending work", err, "user_id", user)
		return
	}
	if rows == nil {
		rows = []*entity.StageAssignment{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rows})
}

// ExportAudit handles GET /api/v1/subjects/:subject_id/audit.xlsx
func (h *Handlers) ExportAudit(c *gin.Context) {
	subject := entity.SubjectID(c.Param("subject_id"))

	var buf bytes.Buffer
	if err := h.exporter.Export(c.Request.Context(), subject, &buf); err != nil {
		if errors.Is(err, audit.ErrNoChain) {
			fail(c, http.StatusNotFound, err.Error())
			return
		}
		h.writeError(c, "Failed to export audit workbook", err, "subject_id", subject)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-audit.xlsx"`, subject))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// writeError maps engine errors to status codes
func (h *Handlers) writeError(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status := statusFor(err)

	h.logger.Error(msg, append(keysAndValues, "status", status, "error", err)...)

	if status == http.StatusInternalServerError {
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}

func statusFor(err error) int {
	var cfgErr *engine.ConfigurationError
	switch {
	case errors.Is(err, engine.ErrInvalidArgument), errors.Is(err, engine.ErrInvalidDecision):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}
