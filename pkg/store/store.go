package store

import (
	"context"
	"errors"

	"smartcart-api/pkg/models"
)

// ErrNotFound は対象レコードが存在しないことを表します。
// ルーターやハンドラー側では「型付きの否定的結果」として扱い、
// 障害としては扱いません。
var ErrNotFound = errors.New("record not found")

// Store はユーザーIDをキーとする永続化コラボレーターの操作一式です。
// カート行の加算・減算セマンティクスに注意:「数量を直接セットする」
// プリミティブは存在せず、add による加算と remove による減算のみです。
type Store interface {
	// cart_items
	ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
	// AddCartItem は同名行があれば数量を加算し、なければ新規行を挿入します。
	AddCartItem(ctx context.Context, userID string, item models.CartItem) error
	// RemoveCartItem は数量を減算し、残量が無くなれば行を削除します。
	// 行が存在しない場合は ErrNotFound。
	RemoveCartItem(ctx context.Context, userID, name string, quantity int) error
	ClearCart(ctx context.Context, userID string) error

	// purchase_history
	RecentPurchases(ctx context.Context, userID string, limit int) ([]models.PurchaseRecord, error)
	// SearchPurchases は商品名の大文字小文字を区別しない部分一致で検索し、
	// 購入日の降順で返します。
	SearchPurchases(ctx context.Context, userID, fragment string) ([]models.PurchaseRecord, error)
	InsertPurchases(ctx context.Context, records []models.PurchaseRecord) error

	// favorites
	ListFavorites(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, productName string) error
	RemoveFavorite(ctx context.Context, userID, productName string) error

	// user_profiles
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	// AppendPreference は未登録の場合のみ末尾に追加します（挿入順を保つ集合）。
	// 追加された場合は true を返します。
	AppendPreference(ctx context.Context, userID, preference string) (bool, error)

	// orders
	CreateOrder(ctx context.Context, userID string, total float64) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error

	// ai_insights
	SaveInsight(ctx context.Context, insight models.AIInsight) error
}
