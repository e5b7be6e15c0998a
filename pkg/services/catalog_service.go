package services

import (
	"context"
	"fmt"
	"strings"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"
)

// CatalogService は自由入力の商品名を商品レコードに解決します。
// 検索は2段構え: まずユーザーの購入履歴、次に静的カタログ。
// どちらも読み取り専用で副作用はありません。
// synonymRule 検索語に含まれるキーと、引き直しに使う候補の組
type synonymRule struct {
	key        string
	candidates []string
}

type CatalogService struct {
	store    store.Store
	catalog  []models.Product
	synonyms []synonymRule
}

// DefaultCatalog はストアフロントの静的商品カタログを返します。
func DefaultCatalog() []models.Product {
	return []models.Product{
		{ID: "1", Name: "Milk", Category: "Dairy", Price: 3.68, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "2", Name: "Bread", Category: "Bakery", Price: 1.98, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "3", Name: "Eggs", Category: "Dairy", Price: 2.78, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "4", Name: "Coffee", Category: "Beverages", Price: 8.98, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "5", Name: "Coca-Cola 12-pack", Category: "Beverages", Price: 4.98, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "6", Name: "Lay's Potato Chips", Category: "Snacks", Price: 2.98, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "7", Name: "Tide Laundry Detergent", Category: "Household", Price: 12.97, Image: "/placeholder.svg?height=60&width=60"},
		{ID: "8", Name: "Great Value Organic Bananas", Category: "Produce", Price: 2.48, Image: "/placeholder.svg?height=60&width=60"},
	}
}

// NewCatalogService は新しいCatalogServiceを作成します。
// catalog が nil の場合は DefaultCatalog を使用します。
func NewCatalogService(st store.Store, catalog []models.Product) *CatalogService {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &CatalogService{
		store:   st,
		catalog: catalog,
		// 固定のシノニム表。キーを含む検索語を候補で引き直す。
		// 定義順に評価されるため、複数キーに一致しても結果は決定的
		synonyms: []synonymRule{
			{"chips", []string{"potato chips", "lays", "lay's"}},
			{"coke", []string{"coca-cola", "coca cola"}},
			{"soda", []string{"coca-cola"}},
			{"detergent", []string{"tide"}},
			{"laundry", []string{"tide"}},
		},
	}
}

// Lookup は名前の断片から商品を高々1件解決します。見つからない場合は
// (nil, nil) を返します（エラーではなく型付きの否定的結果）。
//
// 解決順序（先勝ち）:
//  1. 購入履歴の部分一致（複数一致時は最も最近の購入）
//  2. 静的カタログの部分一致
//  3. 末尾の複数形 "s" を除去して再試行
//  4. シノニム表で引き直して再試行
func (s *CatalogService) Lookup(ctx context.Context, userID, query string) (*models.Product, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil, nil
	}

	product, err := s.lookupTerm(ctx, userID, term)
	if err != nil || product != nil {
		return product, err
	}

	// 複数形フォールバック
	if stripped := strings.TrimSuffix(term, "s"); stripped != term && stripped != "" {
		product, err = s.lookupTerm(ctx, userID, stripped)
		if err != nil || product != nil {
			return product, err
		}
	}

	// シノニムフォールバック
	for _, rule := range s.synonyms {
		if !strings.Contains(term, rule.key) {
			continue
		}
		for _, candidate := range rule.candidates {
			product, err = s.lookupTerm(ctx, userID, candidate)
			if err != nil || product != nil {
				return product, err
			}
		}
	}

	return nil, nil
}

// lookupTerm 1つの検索語を両ティアに対して順に照合します。
func (s *CatalogService) lookupTerm(ctx context.Context, userID, term string) (*models.Product, error) {
	// ティア1: 購入履歴（購入日の降順なので先頭が最新）
	if userID != "" {
		records, err := s.store.SearchPurchases(ctx, userID, term)
		if err != nil {
			return nil, fmt.Errorf("購入履歴の照合に失敗: %w", err)
		}
		if len(records) > 0 {
			r := records[0]
			return &models.Product{
				ID:       r.ID,
				Name:     r.ProductName,
				Category: r.Category,
				Price:    r.Price,
				Image:    r.Image,
			}, nil
		}
	}

	// ティア2: 静的カタログ
	for i := range s.catalog {
		if strings.Contains(strings.ToLower(s.catalog[i].Name), term) {
			product := s.catalog[i]
			return &product, nil
		}
	}

	return nil, nil
}

// SearchCatalog は静的カタログを部分一致で検索し、一致した全件を返します。
// 検索エンドポイント用で、解決ロジック（履歴ティアやシノニム）は通しません。
func (s *CatalogService) SearchCatalog(query string) []models.Product {
	term := strings.ToLower(strings.TrimSpace(query))
	results := make([]models.Product, 0)
	if term == "" {
		return results
	}
	for _, p := range s.catalog {
		if strings.Contains(strings.ToLower(p.Name), term) {
			results = append(results, p)
		}
	}
	return results
}
