package handlers

import (
	"log"
	"net/http"
	"sync"

	"smartcart-api/pkg/cart"
	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"

	"github.com/gin-gonic/gin"
)

// CartHandler カート操作のハンドラ。ユーザーごとのシンクロナイザーを
// 保持し、初回アクセス時にリモートの内容で初期化します。
type CartHandler struct {
	store store.Store

	mu    sync.Mutex
	carts map[string]*cart.Synchronizer
}

// NewCartHandler 新しいCartHandlerを作成
func NewCartHandler(st store.Store) *CartHandler {
	return &CartHandler{
		store: st,
		carts: make(map[string]*cart.Synchronizer),
	}
}

// synchronizer ユーザーのシンクロナイザーを取得（なければ作成しハイドレート）
func (h *CartHandler) synchronizer(c *gin.Context, userID string) (*cart.Synchronizer, bool) {
	h.mu.Lock()
	cartSync, exists := h.carts[userID]
	if !exists {
		cartSync = cart.NewSynchronizer(userID, h.store)
		h.carts[userID] = cartSync
	}
	h.mu.Unlock()

	if !exists {
		if _, err := cartSync.Hydrate(c.Request.Context()); err != nil {
			log.Printf("カートの初期化に失敗: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "カートの読み込みに失敗しました。"})
			return nil, false
		}
	}
	return cartSync, true
}

// GetCart 現在のカート内容を返します。
func (h *CartHandler) GetCart(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	cartSync, ok := h.synchronizer(c, userID)
	if !ok {
		return
	}

	state, err := cartSync.Hydrate(c.Request.Context())
	if err != nil {
		log.Printf("カートの取得に失敗: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "カートの読み込みに失敗しました。"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// MutateCart カートへの変更（add / remove / set_quantity / clear）を適用します。
func (h *CartHandler) MutateCart(c *gin.Context) {
	var req models.CartMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が正しくありません: " + err.Error()})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	cartSync, ok := h.synchronizer(c, req.UserID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		state models.CartState
		err   error
	)

	switch req.Action {
	case "add":
		if req.Item == nil || req.Item.Name == "" || req.Item.Price <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item with name and positive price is required"})
			return
		}
		state, err = cartSync.Add(ctx, *req.Item)
	case "remove":
		if req.Item == nil || req.Item.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item name is required"})
			return
		}
		state, err = cartSync.Remove(ctx, req.Item.Name)
	case "set_quantity":
		if req.Item == nil || req.Item.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item name is required"})
			return
		}
		state, err = cartSync.SetQuantity(ctx, req.Item.Name, req.Item.Quantity)
	case "clear":
		state, err = cartSync.Clear(ctx)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	if err != nil {
		if err == store.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found in cart"})
			return
		}
		log.Printf("カート操作に失敗: action=%s, err=%v", req.Action, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "カートの更新に失敗しました。"})
		return
	}

	c.JSON(http.StatusOK, state)
}
