package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/bago/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BatchMessageRequest is one message in a batch submission
type BatchMessageRequest struct {
	ID              string   `json:"id" binding:"required"`
	TargetAgentID   string   `json:"targetAgentId" binding:"required"`
	Content         string   `json:"content" binding:"required"`
	TargetProjectID string   `json:"targetProjectId"`
	DependencyIDs   []string `json:"dependencyIds"`
	TimeoutMs       int64    `json:"timeoutMs"`
}

// ExecuteBatchRequest represents a batch submission request
type ExecuteBatchRequest struct {
	Messages         []BatchMessageRequest `json:"messages" binding:"required"`
	SourceAgentID    string                `json:"sourceAgentId" binding:"required"`
	SourceProjectID  string                `json:"sourceProjectId" binding:"required"`
	WaitStrategy     string                `json:"waitStrategy"`
	ConcurrencyLimit int                   `json:"concurrencyLimit"`
	GlobalTimeoutMs  int64                 `json:"globalTimeoutMs"`
}

// ReplyRequest carries an out-of-band agent reply for a correlation id
type ReplyRequest struct {
	CorrelationID string `json:"correlationId" binding:"required"`
	Payload       any    `json:"payload"`
	Error         string `json:"error"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"executor":             "ok",
			"pending_correlations": s.tracker.Pending(),
		},
	})
}

// handleExecuteBatch handles batch submission
func (s *Server) handleExecuteBatch(c *gin.Context) {
	var req ExecuteBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	batchReq := toDomainRequest(req)

	resp, err := s.executor.ExecuteBatch(c.Request.Context(), batchReq, s.deliverer.Deliver)
	if err != nil {
		s.logger.Error("batch execution failed",
			zap.String("source_agent_id", req.SourceAgentID),
			zap.Error(err))

		// An aborted batch still carries a partial response
		if resp != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error":    rejectionCode(err),
				"message":  err.Error(),
				"response": resp,
			})
			return
		}

		c.JSON(rejectionStatus(err), ErrorResponse{
			Error: ErrorDetail{
				Code:    rejectionCode(err),
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// handleListBatches handles listing archived batch responses
func (s *Server) handleListBatches(c *gin.Context) {
	ids, err := s.responses.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "LIST_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches": ids,
		"total":   len(ids),
		"active":  s.executor.ActiveBatches(),
	})
}

// handleGetBatch handles getting an archived batch response
func (s *Server) handleGetBatch(c *gin.Context) {
	batchID := c.Param("id")

	resp, err := s.responses.Get(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Batch not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleAbortBatch handles aborting an active batch
func (s *Server) handleAbortBatch(c *gin.Context) {
	batchID := c.Param("id")

	if !s.executor.AbortBatch(c.Request.Context(), batchID) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "No active batch with that id",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": batchID,
		"status":   "aborted",
	})
}

// handleReply handles an out-of-band agent reply arriving on the side
// channel. Unknown correlation ids are accepted silently: the ticket may
// already have been resolved or timed out.
func (s *Server) handleReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	if req.Error != "" {
		s.tracker.Reject(req.CorrelationID, errors.New(req.Error))
	} else {
		s.tracker.Resolve(req.CorrelationID, req.Payload)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"correlation_id": req.CorrelationID,
	})
}

// toDomainRequest converts the wire request into the domain batch request
func toDomainRequest(req ExecuteBatchRequest) domain.BatchRequest {
	messages := make([]domain.BatchMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.BatchMessage{
			ID:              m.ID,
			TargetAgentID:   m.TargetAgentID,
			Content:         m.Content,
			TargetProjectID: m.TargetProjectID,
			DependencyIDs:   m.DependencyIDs,
			Timeout:         time.Duration(m.TimeoutMs) * time.Millisecond,
		})
	}

	return domain.BatchRequest{
		Messages:         messages,
		SourceAgentID:    req.SourceAgentID,
		SourceProjectID:  req.SourceProjectID,
		WaitStrategy:     domain.WaitStrategy(req.WaitStrategy),
		ConcurrencyLimit: req.ConcurrencyLimit,
		GlobalTimeout:    time.Duration(req.GlobalTimeoutMs) * time.Millisecond,
	}
}

// rejectionStatus maps pre-dispatch rejections to HTTP status codes
func rejectionStatus(err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBatchOperationsDisabled),
		errors.Is(err, domain.ErrProjectDisabled):
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

// rejectionCode maps rejections to stable error codes
func rejectionCode(err error) string {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, domain.ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, domain.ErrBatchOperationsDisabled):
		return "BATCH_OPERATIONS_DISABLED"
	case errors.Is(err, domain.ErrProjectDisabled):
		return "PROJECT_DISABLED"
	case errors.Is(err, domain.ErrCancelled):
		return "CANCELLED"
	case errors.Is(err, domain.ErrTimeout):
		return "TIMEOUT"
	default:
		return "EXECUTION_FAILED"
	}
}
