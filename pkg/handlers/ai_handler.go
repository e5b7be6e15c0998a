package handlers

import (
	"net/http"

	"smartcart-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// AIHandler 生成AI系エンドポイントのハンドラ
type AIHandler struct {
	concierge *services.ConciergeService
	catalog   *services.CatalogService
}

// NewAIHandler 新しいAIHandlerを作成
func NewAIHandler(concierge *services.ConciergeService, catalog *services.CatalogService) *AIHandler {
	return &AIHandler{
		concierge: concierge,
		catalog:   catalog,
	}
}

// SearchProducts カタログを部分一致で検索します。
func (h *AIHandler) SearchProducts(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	products := h.catalog.SearchCatalog(query)
	c.JSON(http.StatusOK, gin.H{
		"query":    query,
		"products": products,
	})
}

// GetRecommendations パーソナライズされたレコメンドを返します。
func (h *AIHandler) GetRecommendations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	mood := c.Query("mood")
	recommendations := h.concierge.GenerateRecommendations(c.Request.Context(), userID, mood)
	c.JSON(http.StatusOK, gin.H{"recommendations": recommendations})
}

// GetPredictions 買い足し予測を返します。
func (h *AIHandler) GetPredictions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	predictions := h.concierge.PredictRestockNeeds(c.Request.Context(), userID)
	c.JSON(http.StatusOK, gin.H{"predictions": predictions})
}

// GetWeeklyDeals 週替わりセールを返します。
func (h *AIHandler) GetWeeklyDeals(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	mood := c.Query("mood")
	deals := h.concierge.GenerateWeeklyDeals(c.Request.Context(), userID, mood)
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}
