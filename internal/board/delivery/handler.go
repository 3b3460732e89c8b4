package delivery

import (
	"errors"
	"net/http"
	"strconv"

	authDelivery "crmboard/internal/auth/delivery"
	"crmboard/internal/board/domain"
	"crmboard/internal/board/dto"
	"crmboard/internal/board/usecase"

	"github.com/gin-gonic/gin"
)

const defaultSearchLimit = 20

type BoardHandler struct {
	boardUsecase usecase.BoardUsecase
}

func NewBoardHandler(boardUsecase usecase.BoardUsecase) *BoardHandler {
	return &BoardHandler{boardUsecase: boardUsecase}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput), errors.Is(err, usecase.ErrDuplicateOrder):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrStageNotFound), errors.Is(err, usecase.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrStageNotEmpty), errors.Is(err, usecase.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// board returns the tenant and board type of the request path
func board(c *gin.Context) (string, domain.BoardType) {
	return c.Param("tenant_id"), domain.BoardType(c.Param("board_type"))
}

func (h *BoardHandler) GetBoard(c *gin.Context) {
	tenantID, bt := board(c)
	resp, err := h.boardUsecase.GetBoard(c.Request.Context(), tenantID, bt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BoardHandler) ListStages(c *gin.Context) {
	tenantID, bt := board(c)
	stages, err := h.boardUsecase.ListStages(c.Request.Context(), tenantID, bt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *BoardHandler) CreateStage(c *gin.Context) {
	var req dto.StageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	stage, err := h.boardUsecase.CreateStage(c.Request.Context(), tenantID, bt, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, stage)
}

func (h *BoardHandler) UpdateStage(c *gin.Context) {
	var req dto.StagePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	stage, err := h.boardUsecase.UpdateStage(c.Request.Context(), tenantID, bt, c.Param("stage_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

func (h *BoardHandler) ReorderStages(c *gin.Context) {
	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	stages, err := h.boardUsecase.ReorderStages(c.Request.Context(), tenantID, bt, req.Orders)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stages)
}

func (h *BoardHandler) DeleteStage(c *gin.Context) {
	tenantID, bt := board(c)
	if err := h.boardUsecase.DeleteStage(c.Request.Context(), tenantID, bt, c.Param("stage_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stage deleted"})
}

func (h *BoardHandler) ListCards(c *gin.Context) {
	tenantID, bt := board(c)
	cards, err := h.boardUsecase.ListCards(c.Request.Context(), tenantID, bt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *BoardHandler) CreateCard(c *gin.Context) {
	var req dto.CardInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	card, err := h.boardUsecase.CreateCard(c.Request.Context(), tenantID, bt, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *BoardHandler) UpdateCard(c *gin.Context) {
	var req dto.CardPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	card, err := h.boardUsecase.UpdateCard(c.Request.Context(), tenantID, bt, c.Param("card_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *BoardHandler) MoveCard(c *gin.Context) {
	var req dto.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, bt := board(c)
	actorID := c.GetString(authDelivery.ContextUserID)
	card, err := h.boardUsecase.MoveCard(c.Request.Context(), tenantID, bt, actorID, c.Param("card_id"), req.ToStageID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *BoardHandler) DeleteCard(c *gin.Context) {
	tenantID, bt := board(c)
	if err := h.boardUsecase.DeleteCard(c.Request.Context(), tenantID, bt, c.Param("card_id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "card deleted"})
}

func (h *BoardHandler) CardHistory(c *gin.Context) {
	tenantID, bt := board(c)
	history, err := h.boardUsecase.CardHistory(c.Request.Context(), tenantID, bt, c.Param("card_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// SearchCards handles GET .../cards/search?q=...&limit=...
func (h *BoardHandler) SearchCards(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}
	limit := defaultSearchLimit
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	tenantID, bt := board(c)
	results, err := h.boardUsecase.SearchCards(c.Request.Context(), tenantID, bt, query, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results, "count": len(results)})
}

func snapshotKey(c *gin.Context) domain.SnapshotKey {
	tenantID, bt := board(c)
	return domain.SnapshotKey{UserID: c.GetString(authDelivery.ContextUserID), TenantID: tenantID, BoardType: bt}
}

func (h *BoardHandler) GetSnapshot(c *gin.Context) {
	snap, err := h.boardUsecase.GetSnapshot(c.Request.Context(), snapshotKey(c))
	if err != nil {
		fail(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *BoardHandler) SaveSnapshot(c *gin.Context) {
	var req dto.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.boardUsecase.SaveSnapshot(c.Request.Context(), snapshotKey(c), req.Columns)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
