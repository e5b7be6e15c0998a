package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"
	"smartcart-api/pkg/xai"
)

// Generator は生成テキストコラボレーターの操作一式です。
// xai.Client がこれを満たします。
type Generator interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
	StreamComplete(ctx context.Context, systemPrompt string, messages []xai.ChatMessage) (<-chan string, error)
}

// ConciergeService は生成AIによるレコメンド・買い足し予測・週替わり
// セール・チャット補完を提供します。生成に失敗してもユーザー向けの
// フローは停止させず、固定のフォールバックを返します。
type ConciergeService struct {
	generator Generator
	store     store.Store
}

// NewConciergeService は新しいConciergeServiceを作成します。
func NewConciergeService(generator Generator, st store.Store) *ConciergeService {
	return &ConciergeService{
		generator: generator,
		store:     st,
	}
}

// GenerateRecommendations パーソナライズされたレコメンドを5件生成します。
func (s *ConciergeService) GenerateRecommendations(ctx context.Context, userID, mood string) []models.Recommendation {
	profile, purchases := s.userContext(ctx, userID, 50)

	prompt := fmt.Sprintf(`Generate exactly 5 personalized product recommendations based on this user's data.

User Profile: %s
Recent Purchases: %s

IMPORTANT: Return ONLY a valid JSON array with this exact structure:
[
  {
    "id": 1,
    "name": "Product Name",
    "category": "Category",
    "price": 9.99,
    "image": "/placeholder.svg?height=120&width=120",
    "confidence": 85,
    "reason": "Brief reason for recommendation"
  }
]

Do not include any explanatory text, only the JSON array.`, toJSON(profile), toJSON(purchases))
	prompt += moodBias(mood)

	text, err := s.generator.Complete(ctx, jsonOnlySystemPrompt("product recommendations"), prompt)
	if err != nil {
		log.Printf("レコメンド生成に失敗しました。フォールバックを返します: %v", err)
		return fallbackRecommendations()
	}

	var recommendations []models.Recommendation
	if err := unmarshalJSONArray(text, &recommendations); err != nil {
		log.Printf("レコメンドのJSON解析に失敗しました。フォールバックを返します: %v", err)
		return fallbackRecommendations()
	}

	// 生成結果をインサイトとして記録
	for _, rec := range recommendations {
		s.saveInsight(ctx, userID, "recommendation", rec, float64(rec.Confidence)/100)
	}

	return recommendations
}

// PredictRestockNeeds 購入履歴から買い足しが必要になりそうな商品を予測します。
func (s *ConciergeService) PredictRestockNeeds(ctx context.Context, userID string) []models.RestockPrediction {
	_, purchases := s.userContext(ctx, userID, 50)

	prompt := fmt.Sprintf(`Analyze purchase history to predict restock needs.

Purchase History: %s

IMPORTANT: Return ONLY a valid JSON array with this exact structure:
[
  {
    "item": "Product Name",
    "daysLeft": 3,
    "confidence": "High",
    "action": "Order now for delivery tomorrow",
    "urgency_level": "high"
  }
]

Generate 2-3 predictions. Do not include any explanatory text, only the JSON array.`, toJSON(purchases))

	text, err := s.generator.Complete(ctx, jsonOnlySystemPrompt("restock predictions"), prompt)
	if err != nil {
		log.Printf("買い足し予測の生成に失敗しました。フォールバックを返します: %v", err)
		return fallbackPredictions()
	}

	var predictions []models.RestockPrediction
	if err := unmarshalJSONArray(text, &predictions); err != nil {
		log.Printf("買い足し予測のJSON解析に失敗しました。フォールバックを返します: %v", err)
		return fallbackPredictions()
	}

	for _, pred := range predictions {
		s.saveInsight(ctx, userID, "prediction", pred, confidenceScore(pred.Confidence))
	}

	return predictions
}

// GenerateWeeklyDeals 週替わりセールを3〜4件生成します。mood は検出された
// ムード修飾子（空文字なら無視）。
func (s *ConciergeService) GenerateWeeklyDeals(ctx context.Context, userID, mood string) []models.WeeklyDeal {
	profile, purchases := s.userContext(ctx, userID, 50)

	prompt := fmt.Sprintf(`Generate personalized weekly deals for this customer.

User Profile: %s
Purchase History: %s

IMPORTANT: Return ONLY a valid JSON array with this exact structure:
[
  {
    "id": 1,
    "name": "Product Name",
    "originalPrice": 6.98,
    "salePrice": 4.98,
    "savings": 2.00,
    "image": "/placeholder.svg?height=80&width=80",
    "deal_reason": "Because you bought similar items"
  }
]

Generate 3-4 deals. Do not include any explanatory text, only the JSON array.`, toJSON(profile), toJSON(purchases))
	prompt += moodBias(mood)

	text, err := s.generator.Complete(ctx, jsonOnlySystemPrompt("weekly deals"), prompt)
	if err != nil {
		log.Printf("週替わりセールの生成に失敗しました。フォールバックを返します: %v", err)
		return fallbackDeals()
	}

	var deals []models.WeeklyDeal
	if err := unmarshalJSONArray(text, &deals); err != nil {
		log.Printf("週替わりセールのJSON解析に失敗しました。フォールバックを返します: %v", err)
		return fallbackDeals()
	}

	for _, deal := range deals {
		s.saveInsight(ctx, userID, "deal", deal, 0.8)
	}

	return deals
}

// StreamChat は生成フォールバック用のストリーミング補完を開始します。
// システムプロンプトにはプロファイルと直近10件の購入履歴を埋め込みます。
func (s *ConciergeService) StreamChat(ctx context.Context, userID, message string, history []models.ChatMessage) (<-chan string, error) {
	profile, purchases := s.userContext(ctx, userID, 10)

	systemPrompt := fmt.Sprintf(`You are SmartCart's AI shopping assistant. You help users with:
- Product recommendations
- Price comparisons
- Shopping list suggestions
- Nutritional information
- Recipe ideas based on purchases
- Order placement and tracking

User Context:
Profile: %s
Recent Purchases: %s

Be helpful, friendly, and concise. Always prioritize store products and services.
Keep responses under 100 words unless specifically asked for detailed information.`, toJSON(profile), toJSON(purchases))

	messages := make([]xai.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, xai.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, xai.ChatMessage{Role: "user", Content: message})

	return s.generator.StreamComplete(ctx, systemPrompt, messages)
}

// userContext プロファイルと直近の購入履歴を取得します。
// どちらも取得失敗は致命的ではありません（プロンプトが薄くなるだけ）。
func (s *ConciergeService) userContext(ctx context.Context, userID string, limit int) (*models.UserProfile, []models.PurchaseRecord) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil && err != store.ErrNotFound {
		log.Printf("プロファイルの取得に失敗: %v", err)
	}
	purchases, err := s.store.RecentPurchases(ctx, userID, limit)
	if err != nil {
		log.Printf("購入履歴の取得に失敗: %v", err)
	}
	return profile, purchases
}

func (s *ConciergeService) saveInsight(ctx context.Context, userID, insightType string, content interface{}, confidence float64) {
	insight := models.AIInsight{
		UserID:          userID,
		InsightType:     insightType,
		Content:         toJSON(content),
		ConfidenceScore: confidence,
		IsActive:        true,
	}
	if err := s.store.SaveInsight(ctx, insight); err != nil {
		log.Printf("インサイトの保存に失敗: %v", err)
	}
}

// --- ヘルパー ---

// extractJSONArray はモデル出力から最初の '[' と最後の ']' の間を
// 取り出します。モデルが前後に説明文を付けてしまう場合への対処です。
func extractJSONArray(text string) (string, error) {
	cleaned := strings.TrimSpace(text)
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("応答にJSON配列が見つかりません")
	}
	return cleaned[start : end+1], nil
}

func unmarshalJSONArray(text string, v interface{}) error {
	jsonString, err := extractJSONArray(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(jsonString), v)
}

func jsonOnlySystemPrompt(subject string) string {
	return fmt.Sprintf("You are a JSON API that returns only valid JSON arrays for %s. Never include explanatory text.", subject)
}

// moodBias 検出されたムードをプロンプトに反映します。
func moodBias(mood string) string {
	if mood == "" {
		return ""
	}
	return fmt.Sprintf("\n\nThe shopper mentioned they are feeling %s. Bias the selection toward products that suit that mood.", mood)
}

func toJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func confidenceScore(confidence string) float64 {
	switch confidence {
	case "High":
		return 0.9
	case "Medium":
		return 0.7
	default:
		return 0.5
	}
}

// --- フォールバックデータ ---

func fallbackRecommendations() []models.Recommendation {
	return []models.Recommendation{
		{ID: 1, Name: "Great Value Organic Bananas", Price: 2.48, Image: "/placeholder.svg?height=120&width=120", Confidence: 95, Reason: "You buy these every week"},
		{ID: 2, Name: "Tide Laundry Detergent", Price: 12.97, Image: "/placeholder.svg?height=120&width=120", Confidence: 88, Reason: "Based on your purchase history"},
		{ID: 3, Name: "Honey Nut Cheerios", Price: 4.98, Image: "/placeholder.svg?height=120&width=120", Confidence: 82, Reason: "Popular with similar shoppers"},
	}
}

func fallbackPredictions() []models.RestockPrediction {
	return []models.RestockPrediction{
		{Item: "Toilet Paper", DaysLeft: 3, Confidence: "High", Action: "Order now for delivery tomorrow", UrgencyLevel: "high"},
		{Item: "Dog Food", DaysLeft: 5, Confidence: "Medium", Action: "Add to your next order", UrgencyLevel: "medium"},
	}
}

func fallbackDeals() []models.WeeklyDeal {
	return []models.WeeklyDeal{
		{ID: 1, Name: "Coca-Cola 12-pack", OriginalPrice: 6.98, SalePrice: 4.98, Savings: 2.0, Image: "/placeholder.svg?height=80&width=80", DealReason: "Popular choice"},
		{ID: 2, Name: "Lay's Potato Chips", OriginalPrice: 4.48, SalePrice: 2.98, Savings: 1.5, Image: "/placeholder.svg?height=80&width=80", DealReason: "Great snack deal"},
	}
}
