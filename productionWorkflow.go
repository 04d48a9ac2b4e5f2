package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"github.com/pipeworks/factory_backend/workflow"
	"gorm.io/gorm"
)

// httpStatusForWorkflowError maps the transition failure taxonomy onto HTTP:
// user-correctable input → 400, missing references → 404, state/stock/resource
// conflicts (including exhausted retries) → 409.
func httpStatusForWorkflowError(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, utils.ErrorRecordNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInsufficientStock),
		errors.Is(err, workflow.ErrResourceUnavailable),
		errors.Is(err, workflow.ErrAlreadyTerminal),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrTransientConflict),
		errors.Is(err, workflow.ErrIdempotencyInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondWorkflowError(c *gin.Context, err error) {
	c.JSON(httpStatusForWorkflowError(err), gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func startRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var input workflow.StartRunInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "production.start")
		defer span.End()
		run, err := workflow.StartRun(ctx, logger, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, run)
	}
}

func moveToCuringHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.MoveToCuringInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "production.curing")
		defer span.End()
		run, err := workflow.MoveRunToCuring(ctx, logger, id, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func completeCuringHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.CompleteCuringInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "production.complete")
		defer span.End()
		run, err := workflow.CompleteRunCuring(ctx, logger, id, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func allocateSecondaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input workflow.AllocateSecondaryInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "production.allocate")
		defer span.End()
		run, err := workflow.AllocateSecondary(ctx, logger, id, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter models.ProductionRunFilter
		if v := c.Query("status"); v != "" {
			status, err := models.ParseProductionRunStatus(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Status = &status
		}
		if v := c.Query("from"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
				return
			}
			filter.DateFrom = &t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
				return
			}
			// inclusive end of day
			end := t.Add(24*time.Hour - time.Nanosecond)
			filter.DateTo = &end
		}
		filter.Search = c.Query("q")
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := c.Query("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		runs, err := models.ListProductionRun(c.Request.Context(), filter)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.GetProductionRun(c.Request.Context(), id)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func updateRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateProductionRunInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := models.UpdateProductionRunDetails(c.Request.Context(), id, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// Deleting a run never reverses committed ledger effects; the movement trail
// keeps the history.
func deleteRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		run, err := models.DeleteProductionRun(c.Request.Context(), id)
		if err != nil {
			status := httpStatusForWorkflowError(err)
			if status == http.StatusInternalServerError {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func recordSupplyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		var input models.NewSupplyRecord
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "supply.record")
		defer span.End()
		record, err := workflow.RecordSupply(ctx, logger, &input)
		if err != nil {
			respondWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

type outboxReplayRequest struct {
	// Ids limits the replay; empty means every DEAD/FAILED row of the business.
	Ids []int `json:"ids"`
}

// outboxReplayHandler requeues the caller's DEAD/FAILED outbox rows for the
// dispatcher.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		db := config.GetDB()
		q := db.WithContext(c.Request.Context()).Model(&models.DomainEventRecord{}).
			Where("business_id = ? AND publish_status IN ?", businessId,
				[]string{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed})
		if len(req.Ids) > 0 {
			q = q.Where("id IN ?", req.Ids)
		}
		result := q.Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"requeued": result.RowsAffected})
	}
}
