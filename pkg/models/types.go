package models

import "time"

// ChatMessage 会話の1ターン（作成後は不変）
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	UserID              string        `json:"userId" binding:"required"`
	Message             string        `json:"message" binding:"required"`
	ConversationHistory []ChatMessage `json:"conversationHistory,omitempty"`
}

// IntentType 意図ルーターが返す結果の種別
type IntentType string

const (
	IntentAddToCart           IntentType = "add_to_cart"
	IntentRemoveFromCart      IntentType = "remove_from_cart"
	IntentCheckout            IntentType = "checkout"
	IntentAddFavorite         IntentType = "add_favorite"
	IntentRemoveFavorite      IntentType = "remove_favorite"
	IntentShowFavorites       IntentType = "show_favorites"
	IntentSetPreference       IntentType = "set_preference"
	IntentProductSearch       IntentType = "product_search"
	IntentWeeklyDeals         IntentType = "weekly_deals"
	IntentOrderHistory        IntentType = "order_history"
	IntentCartContents        IntentType = "cart_contents"
	IntentProductNotAvailable IntentType = "product_not_available"
	IntentError               IntentType = "error"
)

// IntentOutcome 1メッセージにつき必ず1つだけ生成されるタグ付き結果。
// Type に応じて使用されるフィールドが決まります（未使用フィールドは省略）。
type IntentOutcome struct {
	Type        IntentType       `json:"type"`
	Product     *Product         `json:"product,omitempty"`     // add_to_cart / remove_from_cart
	Result      *Product         `json:"result,omitempty"`      // product_search（nullあり）
	ProductName string           `json:"productName,omitempty"` // favorites / not_available
	Preference  string           `json:"preference,omitempty"`  // set_preference
	Favorites   []string         `json:"favorites,omitempty"`   // show_favorites
	Deals       []WeeklyDeal     `json:"deals,omitempty"`       // weekly_deals
	Orders      []PurchaseRecord `json:"orders,omitempty"`      // order_history
	Items       []CartItem       `json:"items,omitempty"`       // cart_contents
	Message     string           `json:"message,omitempty"`     // ユーザー向け確認・エラーメッセージ
}

// Product 商品（静的カタログまたは購入履歴のいずれかに由来）
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
}

// CartItem カート内の1行。商品名そのものがキーになります
// （同名の商品は区別されません）。
type CartItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"` // 常に1以上。0になる場合は行ごと削除される
	Image    string  `json:"image,omitempty"`
}

// CartState セッションが所有するカートの状態。
// Total と ItemCount は常に Items から再計算される派生値です。
type CartState struct {
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	ItemCount int        `json:"itemCount"`
}

// Recompute Items から Total / ItemCount を再計算します。
func (s *CartState) Recompute() {
	total := 0.0
	count := 0
	for _, item := range s.Items {
		total += item.Price * float64(item.Quantity)
		count += item.Quantity
	}
	s.Total = total
	s.ItemCount = count
}

// PurchaseRecord 購入履歴の1行
type PurchaseRecord struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ProductName  string    `json:"product_name"`
	Category     string    `json:"product_category,omitempty"`
	Price        float64   `json:"price"`
	Quantity     int       `json:"quantity"`
	Image        string    `json:"image,omitempty"`
	PurchaseDate time.Time `json:"purchase_date"`
	OrderID      string    `json:"order_id,omitempty"`
}

// UserProfile ユーザープロファイル
type UserProfile struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Email               string   `json:"email,omitempty"`
	ShoppingPreferences []string `json:"shopping_preferences"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Location            string   `json:"location,omitempty"`
}

// Order 注文レコード
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Total     float64   `json:"total"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AIInsight 生成AIの出力を記録する行（レコメンド・予測・セール情報）
type AIInsight struct {
	ID              string    `json:"id,omitempty"`
	UserID          string    `json:"user_id"`
	InsightType     string    `json:"insight_type"` // "recommendation" | "prediction" | "deal"
	Content         string    `json:"content"`
	ConfidenceScore float64   `json:"confidence_score"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// Recommendation パーソナライズされたレコメンド1件
type Recommendation struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	Price      float64 `json:"price"`
	Image      string  `json:"image"`
	Confidence int     `json:"confidence"`
	Reason     string  `json:"reason"`
}

// RestockPrediction 買い足し予測1件
type RestockPrediction struct {
	Item         string `json:"item"`
	DaysLeft     int    `json:"daysLeft"`
	Confidence   string `json:"confidence"` // "High" | "Medium" | "Low"
	Action       string `json:"action"`
	UrgencyLevel string `json:"urgency_level,omitempty"`
}

// WeeklyDeal 週替わりセール1件
type WeeklyDeal struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	OriginalPrice float64 `json:"originalPrice"`
	SalePrice     float64 `json:"salePrice"`
	Savings       float64 `json:"savings"`
	Image         string  `json:"image"`
	DealReason    string  `json:"deal_reason,omitempty"`
}

// CartMutationRequest カートAPIへの変更リクエスト
type CartMutationRequest struct {
	Action string    `json:"action" binding:"required"` // "add" | "remove" | "set_quantity" | "clear"
	UserID string    `json:"userId" binding:"required"`
	Item   *CartItem `json:"item,omitempty"`
}

// CheckoutRequest チェックアウトリクエスト
type CheckoutRequest struct {
	UserID    string     `json:"userId" binding:"required"`
	CartItems []CartItem `json:"cartItems" binding:"required"`
}

// CheckoutOrder チェックアウト成功時に返す注文サマリー
type CheckoutOrder struct {
	ID        string     `json:"id"`
	Total     float64    `json:"total"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []CartItem `json:"items"`
}
