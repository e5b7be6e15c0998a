package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"

	"github.com/gin-gonic/gin"
)

// CheckoutHandler チェックアウトのハンドラ
type CheckoutHandler struct {
	store store.Store
}

// NewCheckoutHandler 新しいCheckoutHandlerを作成
func NewCheckoutHandler(st store.Store) *CheckoutHandler {
	return &CheckoutHandler{
		store: st,
	}
}

// Checkout カートの内容から注文を確定します。注文作成後の購入履歴
// 書き込みに失敗した場合は、作成済みの注文を削除して巻き戻します。
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if len(req.CartItems) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		return
	}

	// バリデーションと合計金額の計算
	total := 0.0
	items := make([]models.CartItem, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		if item.Name == "" || item.Price <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid cart item: %q", item.Name)})
			return
		}
		if item.Quantity < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid quantity for %q", item.Name)})
			return
		}
		// 数量未指定（ゼロ値）は1として扱う
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		total += item.Price * float64(item.Quantity)
		items = append(items, item)
	}

	ctx := c.Request.Context()

	order, err := h.store.CreateOrder(ctx, req.UserID, total)
	if err != nil {
		log.Printf("注文の作成に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の作成に失敗しました。"})
		return
	}

	// 購入履歴の記録
	records := make([]models.PurchaseRecord, 0, len(items))
	for _, item := range items {
		records = append(records, models.PurchaseRecord{
			UserID:       req.UserID,
			ProductName:  item.Name,
			Price:        item.Price,
			Quantity:     item.Quantity,
			Image:        item.Image,
			PurchaseDate: time.Now(),
			OrderID:      order.ID,
		})
	}
	if err := h.store.InsertPurchases(ctx, records); err != nil {
		// 補償トランザクション: 作成済みの注文を取り消す
		if delErr := h.store.DeleteOrder(ctx, order.ID); delErr != nil {
			log.Printf("注文の取り消しにも失敗: order_id=%s, err=%v", order.ID, delErr)
		}
		log.Printf("購入履歴の保存に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の確定に失敗しました。"})
		return
	}

	// 確定後はカートを空にする（失敗しても注文自体は成立している）
	if err := h.store.ClearCart(ctx, req.UserID); err != nil {
		log.Printf("チェックアウト後のカートのクリアに失敗: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Order placed successfully!",
		"order": models.CheckoutOrder{
			ID:        order.ID,
			Total:     total,
			Status:    order.Status,
			CreatedAt: order.CreatedAt,
			Items:     items,
		},
	})
}
