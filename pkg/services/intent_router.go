package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"
)

// IntentRouter はチャットメッセージを構造化インテントに振り分けます。
// ルールは先頭から順に評価され、最初にマッチしたものだけが実行されます。
// どのルールにもマッチしない場合は生成テキストのストリーミングに
// フォールバックします。
type IntentRouter struct {
	catalog   *CatalogService
	store     store.Store
	concierge *ConciergeService
}

// NewIntentRouter は新しいIntentRouterを作成します。
func NewIntentRouter(catalog *CatalogService, st store.Store, concierge *ConciergeService) *IntentRouter {
	return &IntentRouter{
		catalog:   catalog,
		store:     st,
		concierge: concierge,
	}
}

// Route はメッセージを解釈し、構造化された結果かストリーミング
// チャンネルのどちらかを返します。チャンネルが非nilの場合、呼び出し側は
// それを読み切る責任を持ちます。
func (r *IntentRouter) Route(ctx context.Context, userID, message string, history []models.ChatMessage) (*models.IntentOutcome, <-chan string, error) {
	text := strings.ToLower(strings.TrimSpace(message))

	// ルール1: カートに追加（お気に入り系のフレーズは後段ルールへ譲る）
	if name, ok := matchCommand(text, "add ", "favorite", " to my cart", " to the cart", " to cart"); ok {
		outcome, err := r.resolveCartMutation(ctx, userID, name, models.IntentAddToCart)
		return outcome, nil, err
	}

	// ルール2: カートから削除
	if name, ok := matchCommand(text, "remove ", "favorite", " from my cart", " from the cart", " from cart"); ok {
		outcome, err := r.resolveCartMutation(ctx, userID, name, models.IntentRemoveFromCart)
		return outcome, nil, err
	}

	// ルール3: チェックアウト（完全一致のみ）
	switch text {
	case "checkout", "check out", "place my order", "place order":
		return &models.IntentOutcome{
			Type:    models.IntentCheckout,
			Message: "Taking you to checkout now!",
		}, nil, nil
	}

	// ルール4: お気に入りに追加（単数形 "favorite" も受け付ける）
	if name, ok := matchFavorite(text, "add ", " to my favorites", " to favorites", " to my favorite", " to favorite"); ok {
		outcome, err := r.addFavorite(ctx, userID, name)
		return outcome, nil, err
	}

	// ルール5: お気に入りから削除
	if name, ok := matchFavorite(text, "remove ", " from my favorites", " from favorites", " from my favorite", " from favorite"); ok {
		outcome, err := r.removeFavorite(ctx, userID, name)
		return outcome, nil, err
	}

	// ルール6: お気に入り一覧
	if strings.Contains(text, "show my favorites") || strings.Contains(text, "show favorites") {
		outcome, err := r.listFavorites(ctx, userID)
		return outcome, nil, err
	}

	// ルール7: カートの中身
	if containsAny(text, "show my cart", "what's in my cart", "whats in my cart", "cart contents", "my cart") {
		outcome, err := r.cartContents(ctx, userID)
		return outcome, nil, err
	}

	// ルール8: 好みの設定
	if strings.HasPrefix(text, "set my preference to ") {
		preference := strings.TrimSpace(strings.TrimPrefix(text, "set my preference to "))
		if preference != "" {
			outcome, err := r.setPreference(ctx, userID, preference)
			return outcome, nil, err
		}
	}

	// ルール9: 商品検索
	if strings.HasPrefix(text, "find ") {
		query := strings.TrimPrefix(text, "find ")
		query = stripFillers(query, " for me", " please")
		outcome, err := r.searchProduct(ctx, userID, query)
		return outcome, nil, err
	}

	// ルール10: 週替わりセール（ムード修飾込み）
	if strings.Contains(text, "weekly deals") || strings.Contains(text, "deals this week") {
		mood := DetectMood(text)
		deals := r.concierge.GenerateWeeklyDeals(ctx, userID, mood)
		return &models.IntentOutcome{
			Type:    models.IntentWeeklyDeals,
			Deals:   deals,
			Message: "Here are this week's deals for you!",
		}, nil, nil
	}

	// ルール11: 注文履歴
	if containsAny(text, "order history", "my orders", "past orders") {
		outcome, err := r.orderHistory(ctx, userID)
		return outcome, nil, err
	}

	// ルール12: 生成テキストへのフォールバック
	fragments, err := r.concierge.StreamChat(ctx, userID, message, history)
	if err != nil {
		log.Printf("ストリーミング補完の開始に失敗: %v", err)
		return nil, nil, fmt.Errorf("チャット応答の生成に失敗: %w", err)
	}
	return nil, fragments, nil
}

// resolveCartMutation カタログ解決つきのカート操作インテントを構築します。
func (r *IntentRouter) resolveCartMutation(ctx context.Context, userID, name string, intent models.IntentType) (*models.IntentOutcome, error) {
	product, err := r.catalog.Lookup(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("商品の解決に失敗: %w", err)
	}
	if product == nil {
		return notAvailable(name), nil
	}

	verb := "added to"
	if intent == models.IntentRemoveFromCart {
		verb = "removed from"
	}
	return &models.IntentOutcome{
		Type:    intent,
		Product: product,
		Message: fmt.Sprintf("%s %s your cart!", product.Name, verb),
	}, nil
}

func (r *IntentRouter) addFavorite(ctx context.Context, userID, name string) (*models.IntentOutcome, error) {
	product, err := r.catalog.Lookup(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("商品の解決に失敗: %w", err)
	}
	if product == nil {
		return notAvailable(name), nil
	}

	if err := r.store.AddFavorite(ctx, userID, product.Name); err != nil {
		return nil, fmt.Errorf("お気に入りの登録に失敗: %w", err)
	}
	return &models.IntentOutcome{
		Type:        models.IntentAddFavorite,
		Result:      product,
		ProductName: product.Name,
		Message:     fmt.Sprintf("%s added to your favorites!", product.Name),
	}, nil
}

func (r *IntentRouter) removeFavorite(ctx context.Context, userID, name string) (*models.IntentOutcome, error) {
	product, err := r.catalog.Lookup(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("商品の解決に失敗: %w", err)
	}

	// 解決できなければ入力された名前のまま削除を試みる
	target := name
	if product != nil {
		target = product.Name
	}

	if err := r.store.RemoveFavorite(ctx, userID, target); err != nil {
		if err == store.ErrNotFound {
			return &models.IntentOutcome{
				Type:        models.IntentRemoveFavorite,
				ProductName: target,
				Message:     fmt.Sprintf("%s wasn't in your favorites.", target),
			}, nil
		}
		return nil, fmt.Errorf("お気に入りの削除に失敗: %w", err)
	}
	return &models.IntentOutcome{
		Type:        models.IntentRemoveFavorite,
		ProductName: target,
		Message:     fmt.Sprintf("%s removed from your favorites.", target),
	}, nil
}

func (r *IntentRouter) listFavorites(ctx context.Context, userID string) (*models.IntentOutcome, error) {
	favorites, err := r.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗: %w", err)
	}

	message := "Here are your favorites!"
	if len(favorites) == 0 {
		message = "You don't have any favorites yet. Try 'add milk to my favorites'."
	}
	return &models.IntentOutcome{
		Type:      models.IntentShowFavorites,
		Favorites: favorites,
		Message:   message,
	}, nil
}

func (r *IntentRouter) cartContents(ctx context.Context, userID string) (*models.IntentOutcome, error) {
	items, err := r.store.ListCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カートの取得に失敗: %w", err)
	}

	message := "Here's what's in your cart."
	if len(items) == 0 {
		message = "Your cart is empty. Try 'add milk' to get started."
	}
	return &models.IntentOutcome{
		Type:    models.IntentCartContents,
		Items:   items,
		Message: message,
	}, nil
}

func (r *IntentRouter) setPreference(ctx context.Context, userID, preference string) (*models.IntentOutcome, error) {
	added, err := r.store.AppendPreference(ctx, userID, preference)
	if err != nil {
		return nil, fmt.Errorf("好みの保存に失敗: %w", err)
	}

	message := fmt.Sprintf("Got it! I'll keep '%s' in mind.", preference)
	if !added {
		message = fmt.Sprintf("'%s' is already one of your preferences.", preference)
	}
	return &models.IntentOutcome{
		Type:       models.IntentSetPreference,
		Preference: preference,
		Message:    message,
	}, nil
}

func (r *IntentRouter) searchProduct(ctx context.Context, userID, query string) (*models.IntentOutcome, error) {
	product, err := r.catalog.Lookup(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("商品検索に失敗: %w", err)
	}
	if product == nil {
		return notAvailable(query), nil
	}
	return &models.IntentOutcome{
		Type:    models.IntentProductSearch,
		Result:  product,
		Message: fmt.Sprintf("Found %s for $%.2f!", product.Name, product.Price),
	}, nil
}

func (r *IntentRouter) orderHistory(ctx context.Context, userID string) (*models.IntentOutcome, error) {
	orders, err := r.store.RecentPurchases(ctx, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("注文履歴の取得に失敗: %w", err)
	}

	message := "Here are your recent orders."
	if len(orders) == 0 {
		message = "You haven't placed any orders yet."
	}
	return &models.IntentOutcome{
		Type:    models.IntentOrderHistory,
		Orders:  orders,
		Message: message,
	}, nil
}

func notAvailable(name string) *models.IntentOutcome {
	return &models.IntentOutcome{
		Type:        models.IntentProductNotAvailable,
		ProductName: name,
		Message:     fmt.Sprintf("Sorry, I couldn't find '%s' in our store. Can I help you find something else?", name),
	}
}

// matchCommand は「<verb> <商品名>」形式のコマンドを切り出します。
// guard を含むメッセージはマッチさせません（お気に入りルールと
// 衝突しないようにするため）。
func matchCommand(text, verb, guard string, fillers ...string) (string, bool) {
	if !strings.HasPrefix(text, verb) || strings.Contains(text, guard) {
		return "", false
	}
	name := strings.TrimPrefix(text, verb)
	name = stripFillers(name, fillers...)
	name = stripFillers(name, " please")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return name, true
}

// matchFavorite お気に入り操作のフレーズを切り出します。
func matchFavorite(text, verb string, suffixes ...string) (string, bool) {
	if !strings.HasPrefix(text, verb) || !strings.Contains(text, "favorite") {
		return "", false
	}
	name := strings.TrimPrefix(text, verb)
	name = stripFillers(name, " please")
	name = stripFillers(name, suffixes...)
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, "favorite") {
		return "", false
	}
	return name, true
}

func stripFillers(text string, fillers ...string) string {
	for _, filler := range fillers {
		text = strings.TrimSuffix(strings.TrimSpace(text), filler)
	}
	return strings.TrimSpace(text)
}

func containsAny(text string, phrases ...string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
