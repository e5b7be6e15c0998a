package services

import (
	"context"
	"strings"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"
)

// fakeStore はテスト用のインメモリStore実装です。
type fakeStore struct {
	purchases   []models.PurchaseRecord
	favorites   []string
	cartItems   []models.CartItem
	profile     *models.UserProfile
	preferences []string
	insights    []models.AIInsight

	err error // 非nilなら全操作がこのエラーを返す
}

func (f *fakeStore) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cartItems, nil
}

func (f *fakeStore) AddCartItem(ctx context.Context, userID string, item models.CartItem) error {
	if f.err != nil {
		return f.err
	}
	f.cartItems = append(f.cartItems, item)
	return nil
}

func (f *fakeStore) RemoveCartItem(ctx context.Context, userID, name string, quantity int) error {
	return f.err
}

func (f *fakeStore) ClearCart(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.cartItems = nil
	return nil
}

func (f *fakeStore) RecentPurchases(ctx context.Context, userID string, limit int) ([]models.PurchaseRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.purchases) {
		return f.purchases[:limit], nil
	}
	return f.purchases, nil
}

func (f *fakeStore) SearchPurchases(ctx context.Context, userID, fragment string) ([]models.PurchaseRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	matched := make([]models.PurchaseRecord, 0)
	for _, p := range f.purchases {
		if strings.Contains(strings.ToLower(p.ProductName), strings.ToLower(fragment)) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (f *fakeStore) InsertPurchases(ctx context.Context, records []models.PurchaseRecord) error {
	if f.err != nil {
		return f.err
	}
	f.purchases = append(f.purchases, records...)
	return nil
}

func (f *fakeStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.favorites, nil
}

func (f *fakeStore) AddFavorite(ctx context.Context, userID, productName string) error {
	if f.err != nil {
		return f.err
	}
	for _, name := range f.favorites {
		if name == productName {
			return nil
		}
	}
	f.favorites = append(f.favorites, productName)
	return nil
}

func (f *fakeStore) RemoveFavorite(ctx context.Context, userID, productName string) error {
	if f.err != nil {
		return f.err
	}
	for i, name := range f.favorites {
		if name == productName {
			f.favorites = append(f.favorites[:i], f.favorites[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil {
		return nil, store.ErrNotFound
	}
	return f.profile, nil
}

func (f *fakeStore) AppendPreference(ctx context.Context, userID, preference string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, p := range f.preferences {
		if p == preference {
			return false, nil
		}
	}
	f.preferences = append(f.preferences, preference)
	return true, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, userID string, total float64) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: "order-1", UserID: userID, Total: total, Status: "placed"}, nil
}

func (f *fakeStore) DeleteOrder(ctx context.Context, orderID string) error {
	return f.err
}

func (f *fakeStore) SaveInsight(ctx context.Context, insight models.AIInsight) error {
	if f.err != nil {
		return f.err
	}
	f.insights = append(f.insights, insight)
	return nil
}
