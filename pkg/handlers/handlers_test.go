package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/services"
	"smartcart-api/pkg/store"
	"smartcart-api/pkg/xai"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- テスト用フェイク ---

// memStore はインメモリのStore実装です。
type memStore struct {
	cartItems  []models.CartItem
	purchases  []models.PurchaseRecord
	favorites  []string
	orders     []models.Order
	insights   []models.AIInsight
	profile    *models.UserProfile
	prefs      []string
	deletedIDs []string

	failInsertPurchases bool
	failAddCartItem     bool
}

func (m *memStore) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	items := make([]models.CartItem, len(m.cartItems))
	copy(items, m.cartItems)
	return items, nil
}

func (m *memStore) AddCartItem(ctx context.Context, userID string, item models.CartItem) error {
	if m.failAddCartItem {
		return assert.AnError
	}
	quantity := item.Quantity
	if quantity < 1 {
		quantity = 1
	}
	for i := range m.cartItems {
		if m.cartItems[i].Name == item.Name {
			m.cartItems[i].Quantity += quantity
			return nil
		}
	}
	item.Quantity = quantity
	m.cartItems = append(m.cartItems, item)
	return nil
}

func (m *memStore) RemoveCartItem(ctx context.Context, userID, name string, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	for i := range m.cartItems {
		if m.cartItems[i].Name == name {
			m.cartItems[i].Quantity -= quantity
			if m.cartItems[i].Quantity <= 0 {
				m.cartItems = append(m.cartItems[:i], m.cartItems[i+1:]...)
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) ClearCart(ctx context.Context, userID string) error {
	m.cartItems = nil
	return nil
}

func (m *memStore) RecentPurchases(ctx context.Context, userID string, limit int) ([]models.PurchaseRecord, error) {
	if limit < len(m.purchases) {
		return m.purchases[:limit], nil
	}
	return m.purchases, nil
}

func (m *memStore) SearchPurchases(ctx context.Context, userID, fragment string) ([]models.PurchaseRecord, error) {
	matched := make([]models.PurchaseRecord, 0)
	for _, p := range m.purchases {
		if strings.Contains(strings.ToLower(p.ProductName), strings.ToLower(fragment)) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (m *memStore) InsertPurchases(ctx context.Context, records []models.PurchaseRecord) error {
	if m.failInsertPurchases {
		return assert.AnError
	}
	m.purchases = append(m.purchases, records...)
	return nil
}

func (m *memStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	return m.favorites, nil
}

func (m *memStore) AddFavorite(ctx context.Context, userID, productName string) error {
	m.favorites = append(m.favorites, productName)
	return nil
}

func (m *memStore) RemoveFavorite(ctx context.Context, userID, productName string) error {
	for i, name := range m.favorites {
		if name == productName {
			m.favorites = append(m.favorites[:i], m.favorites[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if m.profile == nil {
		return nil, store.ErrNotFound
	}
	return m.profile, nil
}

func (m *memStore) AppendPreference(ctx context.Context, userID, preference string) (bool, error) {
	for _, p := range m.prefs {
		if p == preference {
			return false, nil
		}
	}
	m.prefs = append(m.prefs, preference)
	return true, nil
}

func (m *memStore) CreateOrder(ctx context.Context, userID string, total float64) (*models.Order, error) {
	order := models.Order{ID: uuid.New().String(), UserID: userID, Total: total, Status: "placed"}
	m.orders = append(m.orders, order)
	return &order, nil
}

func (m *memStore) DeleteOrder(ctx context.Context, orderID string) error {
	m.deletedIDs = append(m.deletedIDs, orderID)
	for i, order := range m.orders {
		if order.ID == orderID {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) SaveInsight(ctx context.Context, insight models.AIInsight) error {
	m.insights = append(m.insights, insight)
	return nil
}

// stubGenerator は固定の応答を返すGeneratorです。
type stubGenerator struct {
	completion string
	fragments  []string
	err        error
}

func (g *stubGenerator) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	return g.completion, g.err
}

func (g *stubGenerator) StreamComplete(ctx context.Context, systemPrompt string, messages []xai.ChatMessage) (<-chan string, error) {
	if g.err != nil {
		return nil, g.err
	}
	ch := make(chan string, len(g.fragments))
	for _, f := range g.fragments {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func postJSON(r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getPath(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- チャット ---

func newChatRouter(st store.Store, gen services.Generator) *gin.Engine {
	catalog := services.NewCatalogService(st, nil)
	concierge := services.NewConciergeService(gen, st)
	intentRouter := services.NewIntentRouter(catalog, st, concierge)
	handler := NewChatHandler(intentRouter)

	r := gin.New()
	r.POST("/api/v1/chat", handler.Chat)
	return r
}

func TestChatReturnsStructuredIntent(t *testing.T) {
	r := newChatRouter(&memStore{}, &stubGenerator{})

	w := postJSON(r, "/api/v1/chat", models.ChatRequest{UserID: "user-1", Message: "add milk to my cart"})
	assert.Equal(t, http.StatusOK, w.Code)

	var outcome models.IntentOutcome
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, models.IntentAddToCart, outcome.Type)
	if assert.NotNil(t, outcome.Product) {
		assert.Equal(t, "Milk", outcome.Product.Name)
	}
}

func TestChatStreamsFallback(t *testing.T) {
	r := newChatRouter(&memStore{}, &stubGenerator{fragments: []string{"Try ", "the pasta."}})

	w := postJSON(r, "/api/v1/chat", models.ChatRequest{UserID: "user-1", Message: "what should i cook tonight?"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Try the pasta.", w.Body.String())
}

func TestChatErrorResponseIsTagged(t *testing.T) {
	// 生成側が落ちている場合は error タイプの結果で500を返す
	r := newChatRouter(&memStore{}, &stubGenerator{err: assert.AnError})

	w := postJSON(r, "/api/v1/chat", models.ChatRequest{UserID: "user-1", Message: "any ideas for dinner?"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var outcome models.IntentOutcome
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, models.IntentError, outcome.Type)
	assert.NotEmpty(t, outcome.Message)
}

func TestChatValidatesRequest(t *testing.T) {
	r := newChatRouter(&memStore{}, &stubGenerator{})

	// user_id と message はbindingで必須
	w := postJSON(r, "/api/v1/chat", gin.H{"message": "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/v1/chat", gin.H{"user_id": "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- カート ---

func newCartRouter(st store.Store) *gin.Engine {
	handler := NewCartHandler(st)
	r := gin.New()
	r.GET("/api/v1/cart", handler.GetCart)
	r.POST("/api/v1/cart", handler.MutateCart)
	return r
}

func TestCartAddAndGet(t *testing.T) {
	st := &memStore{}
	r := newCartRouter(st)

	body := models.CartMutationRequest{
		Action: "add",
		UserID: "user-1",
		Item:   &models.CartItem{Name: "Milk", Price: 3.68},
	}
	w := postJSON(r, "/api/v1/cart", body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/api/v1/cart", body)
	assert.Equal(t, http.StatusOK, w.Code)

	var state models.CartState
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Len(t, state.Items, 1)
	assert.Equal(t, 2, state.Items[0].Quantity)

	w = getPath(r, "/api/v1/cart?user_id=user-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 2, state.ItemCount)
}

func TestCartRemoveMissingItemReturns404(t *testing.T) {
	r := newCartRouter(&memStore{})

	w := postJSON(r, "/api/v1/cart", models.CartMutationRequest{
		Action: "remove",
		UserID: "user-1",
		Item:   &models.CartItem{Name: "Milk"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCartValidation(t *testing.T) {
	r := newCartRouter(&memStore{})

	// user_id なし
	w := postJSON(r, "/api/v1/cart", gin.H{"action": "clear"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 不明なアクション
	w = postJSON(r, "/api/v1/cart", gin.H{"action": "explode", "userId": "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 価格なしの追加
	w = postJSON(r, "/api/v1/cart", models.CartMutationRequest{
		Action: "add",
		UserID: "user-1",
		Item:   &models.CartItem{Name: "Milk"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = getPath(r, "/api/v1/cart")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartRollbackOnStoreFailure(t *testing.T) {
	st := &memStore{}
	r := newCartRouter(st)

	// 1回目の追加は成功させてから書き込みを失敗させる
	w := postJSON(r, "/api/v1/cart", models.CartMutationRequest{
		Action: "add",
		UserID: "user-1",
		Item:   &models.CartItem{Name: "Milk", Price: 3.68},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	st.failAddCartItem = true
	w = postJSON(r, "/api/v1/cart", models.CartMutationRequest{
		Action: "add",
		UserID: "user-1",
		Item:   &models.CartItem{Name: "Milk", Price: 3.68},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// ローカル状態は変更前のまま
	st.failAddCartItem = false
	w = getPath(r, "/api/v1/cart?user_id=user-1")
	var state models.CartState
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 1, state.ItemCount)
}

// --- チェックアウト ---

func newCheckoutRouter(st store.Store) *gin.Engine {
	handler := NewCheckoutHandler(st)
	r := gin.New()
	r.POST("/api/v1/checkout", handler.Checkout)
	return r
}

func TestCheckoutPlacesOrder(t *testing.T) {
	st := &memStore{cartItems: []models.CartItem{{Name: "Milk", Price: 3.68, Quantity: 2}}}
	r := newCheckoutRouter(st)

	w := postJSON(r, "/api/v1/checkout", models.CheckoutRequest{
		UserID: "user-1",
		CartItems: []models.CartItem{
			{Name: "Milk", Price: 3.68, Quantity: 2},
			{Name: "Bread", Price: 1.98}, // 数量未指定は1扱い
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Order   models.CheckoutOrder `json:"order"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.InDelta(t, 3.68*2+1.98, resp.Order.Total, 0.001)

	// 注文・購入履歴が記録され、カートは空になる
	assert.Len(t, st.orders, 1)
	assert.Len(t, st.purchases, 2)
	assert.Empty(t, st.cartItems)
	assert.Equal(t, st.orders[0].ID, st.purchases[0].OrderID)
}

func TestCheckoutCompensatesOnHistoryFailure(t *testing.T) {
	st := &memStore{failInsertPurchases: true}
	r := newCheckoutRouter(st)

	w := postJSON(r, "/api/v1/checkout", models.CheckoutRequest{
		UserID:    "user-1",
		CartItems: []models.CartItem{{Name: "Milk", Price: 3.68, Quantity: 1}},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// 作成された注文は補償処理で取り消される
	assert.Empty(t, st.orders)
	assert.Len(t, st.deletedIDs, 1)
}

func TestCheckoutValidation(t *testing.T) {
	r := newCheckoutRouter(&memStore{})

	w := postJSON(r, "/api/v1/checkout", models.CheckoutRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/v1/checkout", models.CheckoutRequest{
		UserID:    "user-1",
		CartItems: []models.CartItem{{Name: "Milk", Price: -1, Quantity: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/api/v1/checkout", models.CheckoutRequest{
		CartItems: []models.CartItem{{Name: "Milk", Price: 3.68}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutRejectsNegativeQuantity(t *testing.T) {
	st := &memStore{}
	r := newCheckoutRouter(st)

	// 明示的な負の数量は400で拒否され、注文は作られない
	w := postJSON(r, "/api/v1/checkout", models.CheckoutRequest{
		UserID:    "user-1",
		CartItems: []models.CartItem{{Name: "Milk", Price: 3.68, Quantity: -5}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, st.orders)
	assert.Empty(t, st.purchases)
}

// --- 生成AI系エンドポイント ---

func newAIRouter(st store.Store, gen services.Generator) *gin.Engine {
	catalog := services.NewCatalogService(st, nil)
	concierge := services.NewConciergeService(gen, st)
	handler := NewAIHandler(concierge, catalog)

	r := gin.New()
	r.GET("/api/v1/search", handler.SearchProducts)
	r.GET("/api/v1/recommendations", handler.GetRecommendations)
	r.GET("/api/v1/predictions", handler.GetPredictions)
	r.GET("/api/v1/weekly-deals", handler.GetWeeklyDeals)
	return r
}

func TestSearchProducts(t *testing.T) {
	r := newAIRouter(&memStore{}, &stubGenerator{})

	w := getPath(r, "/api/v1/search?q=milk")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Products []models.Product `json:"products"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Products, 1)

	w = getPath(r, "/api/v1/search")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendationsEndpoint(t *testing.T) {
	gen := &stubGenerator{completion: `[{"id": 1, "name": "Greek Yogurt", "price": 5.48, "confidence": 90, "reason": "test"}]`}
	r := newAIRouter(&memStore{}, gen)

	w := getPath(r, "/api/v1/recommendations?user_id=user-1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Recommendations, 1)

	w = getPath(r, "/api/v1/recommendations")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWeeklyDealsEndpoint(t *testing.T) {
	// 生成結果が壊れていてもフォールバックで200を返す
	r := newAIRouter(&memStore{}, &stubGenerator{completion: "not json"})

	w := getPath(r, "/api/v1/weekly-deals?user_id=user-1&mood=tired")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Deals []models.WeeklyDeal `json:"deals"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Deals)
}

func TestPredictionsEndpoint(t *testing.T) {
	gen := &stubGenerator{completion: `[{"item": "Coffee", "daysLeft": 2, "confidence": "High", "action": "Order now", "urgency_level": "high"}]`}
	r := newAIRouter(&memStore{}, gen)

	w := getPath(r, "/api/v1/predictions?user_id=user-1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Predictions []models.RestockPrediction `json:"predictions"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Predictions, 1)
}
