package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vitalog/points-engine/middleware"
	"github.com/vitalog/points-engine/models"
	"github.com/vitalog/points-engine/services"
	"github.com/vitalog/points-engine/utils"
)

// PointsController serves summary and history reads. The same handlers back
// two surfaces: user-facing routes resolve the user from the JWT, internal
// routes take an explicit :id and are guarded by the service token.
type PointsController struct {
	queries *services.QueryService
}

// NewPointsController creates a new controller instance.
func NewPointsController(db *gorm.DB) *PointsController {
	return &PointsController{queries: services.NewQueryService(db)}
}

// GetMySummary returns the authenticated user's points summary.
func (p *PointsController) GetMySummary(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	p.summary(ctx, userID)
}

// GetUserSummary returns any user's summary for internal callers.
func (p *PointsController) GetUserSummary(ctx *gin.Context) {
	userID, ok := paramUserID(ctx)
	if !ok {
		return
	}
	p.summary(ctx, userID)
}

func (p *PointsController) summary(ctx *gin.Context, userID uint) {
	sum, err := p.queries.Summary(userID, ctx.Query("timezone"))
	if err != nil {
		if errors.Is(err, utils.ErrBadDate) {
			utils.Error(ctx, http.StatusBadRequest, 40005, "unknown timezone")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to load summary")
		return
	}
	utils.Success(ctx, sum)
}

// GetMyTransactions returns the authenticated user's ledger history.
func (p *PointsController) GetMyTransactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40120, "unauthorized")
		return
	}
	p.transactions(ctx, userID)
}

// GetUserTransactions returns any user's ledger history for internal callers.
func (p *PointsController) GetUserTransactions(ctx *gin.Context) {
	userID, ok := paramUserID(ctx)
	if !ok {
		return
	}
	p.transactions(ctx, userID)
}

func (p *PointsController) transactions(ctx *gin.Context, userID uint) {
	page, size := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	history, err := p.queries.Transactions(userID, services.HistoryFilter{
		ActionType: models.ActionType(ctx.Query("action_type")),
		FromDate:   ctx.Query("from"),
		ToDate:     ctx.Query("to"),
		Page:       page,
		Size:       size,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAction):
			utils.Error(ctx, http.StatusBadRequest, 40003, "unknown action type")
		case errors.Is(err, utils.ErrBadDate):
			utils.Error(ctx, http.StatusBadRequest, 40005, "invalid date filter")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to load transactions")
		}
		return
	}

	utils.Success(ctx, gin.H{
		"items": history.Transactions,
		"pagination": gin.H{
			"page":        history.Page,
			"page_size":   history.Size,
			"total":       history.Total,
			"total_pages": int((history.Total + int64(history.Size) - 1) / int64(history.Size)),
		},
	})
}

func paramUserID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40007, "invalid user id")
		return 0, false
	}
	return uint(id), true
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}
