package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"smartcart-api/pkg/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStore はPostgreSQLをバックエンドとするStore実装です。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はデータベースへ接続し、準備完了までリトライします。
func NewPostgresStore(host, port, user, password, dbname string) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	// コネクションプールの設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// データベースが完全に起動するまでリトライしながら疎通確認を行う
	maxRetries := 30
	for i := 0; i < maxRetries; i++ {
		if err = db.Ping(); err == nil {
			log.Println("データベースへの接続が確立されました")
			return &PostgresStore{db: db}, nil
		}
		log.Printf("データベース接続の確認に失敗しました (試行 %d/%d): %v", i+1, maxRetries, err)
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("データベースへの接続に失敗しました（リトライ上限到達）: %w", err)
}

// Close はデータベース接続をクローズします。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- cart_items ---

// ListCartItems ユーザーのカート行を全件取得
func (s *PostgresStore) ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, price, quantity, COALESCE(image, '')
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("カート行の取得に失敗: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.Name, &item.Price, &item.Quantity, &item.Image); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AddCartItem 同名行があれば数量を加算、なければ新規挿入
func (s *PostgresStore) AddCartItem(ctx context.Context, userID string, item models.CartItem) error {
	quantity := item.Quantity
	if quantity < 1 {
		quantity = 1
	}

	var id string
	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, quantity FROM cart_items
		WHERE user_id = $1 AND name = $2
	`, userID, item.Name).Scan(&id, &existing)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO cart_items (id, user_id, name, price, image, quantity, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())
		`, uuid.New().String(), userID, item.Name, item.Price, item.Image, quantity)
		if err != nil {
			return fmt.Errorf("カート行の挿入に失敗: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("カート行の確認に失敗: %w", err)
	default:
		_, err = s.db.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1 WHERE id = $2
		`, existing+quantity, id)
		if err != nil {
			return fmt.Errorf("カート数量の更新に失敗: %w", err)
		}
		return nil
	}
}

// RemoveCartItem 数量を減算し、残量が無くなれば行を削除
func (s *PostgresStore) RemoveCartItem(ctx context.Context, userID, name string, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	var id string
	var existing int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, quantity FROM cart_items
		WHERE user_id = $1 AND name = $2
	`, userID, name).Scan(&id, &existing)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("カート行の確認に失敗: %w", err)
	}

	if existing > quantity {
		_, err = s.db.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1 WHERE id = $2
		`, existing-quantity, id)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	}
	if err != nil {
		return fmt.Errorf("カート行の更新に失敗: %w", err)
	}
	return nil
}

// ClearCart ユーザーのカート行を全削除
func (s *PostgresStore) ClearCart(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("カートのクリアに失敗: %w", err)
	}
	return nil
}

// --- purchase_history ---

// RecentPurchases 購入日の降順で最近の購入履歴を取得
func (s *PostgresStore) RecentPurchases(ctx context.Context, userID string, limit int) ([]models.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_name, COALESCE(product_category, ''), price, quantity,
		       COALESCE(image, ''), purchase_date, COALESCE(order_id::text, '')
		FROM purchase_history
		WHERE user_id = $1
		ORDER BY purchase_date DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("購入履歴の取得に失敗: %w", err)
	}
	defer rows.Close()

	return scanPurchases(rows)
}

// SearchPurchases 商品名の部分一致（大文字小文字を区別しない）で購入履歴を検索
func (s *PostgresStore) SearchPurchases(ctx context.Context, userID, fragment string) ([]models.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_name, COALESCE(product_category, ''), price, quantity,
		       COALESCE(image, ''), purchase_date, COALESCE(order_id::text, '')
		FROM purchase_history
		WHERE user_id = $1 AND product_name ILIKE '%' || $2 || '%'
		ORDER BY purchase_date DESC
	`, userID, fragment)
	if err != nil {
		return nil, fmt.Errorf("購入履歴の検索に失敗: %w", err)
	}
	defer rows.Close()

	return scanPurchases(rows)
}

// InsertPurchases 購入履歴行を一括挿入
func (s *PostgresStore) InsertPurchases(ctx context.Context, records []models.PurchaseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_history
				(id, user_id, product_name, product_category, price, quantity, image, purchase_date, order_id)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, '')::uuid)
		`, uuid.New().String(), r.UserID, r.ProductName, r.Category, r.Price, r.Quantity,
			r.Image, r.PurchaseDate, r.OrderID)
		if err != nil {
			return fmt.Errorf("購入履歴の挿入に失敗: %w", err)
		}
	}

	return tx.Commit()
}

func scanPurchases(rows *sql.Rows) ([]models.PurchaseRecord, error) {
	var records []models.PurchaseRecord
	for rows.Next() {
		var r models.PurchaseRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.ProductName, &r.Category, &r.Price,
			&r.Quantity, &r.Image, &r.PurchaseDate, &r.OrderID); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- favorites ---

// ListFavorites お気に入りの商品名を登録順で取得
func (s *PostgresStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_name FROM favorites
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの取得に失敗: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AddFavorite お気に入りに追加（既登録なら何もしない）
func (s *PostgresStore) AddFavorite(ctx context.Context, userID, productName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (id, user_id, product_name, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, product_name) DO NOTHING
	`, uuid.New().String(), userID, productName)
	if err != nil {
		return fmt.Errorf("お気に入りの登録に失敗: %w", err)
	}
	return nil
}

// RemoveFavorite お気に入りから削除。未登録なら ErrNotFound
func (s *PostgresStore) RemoveFavorite(ctx context.Context, userID, productName string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE user_id = $1 AND product_name = $2
	`, userID, productName)
	if err != nil {
		return fmt.Errorf("お気に入りの削除に失敗: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- user_profiles ---

// GetProfile ユーザープロファイルを取得
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(email, ''),
		       COALESCE(shopping_preferences, '{}'),
		       COALESCE(dietary_restrictions, '{}'),
		       COALESCE(location, '')
		FROM user_profiles
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Name, &p.Email,
		pq.Array(&p.ShoppingPreferences), pq.Array(&p.DietaryRestrictions), &p.Location)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロファイルの取得に失敗: %w", err)
	}
	return &p, nil
}

// AppendPreference 未登録の場合のみ買い物嗜好を末尾に追加
func (s *PostgresStore) AppendPreference(ctx context.Context, userID, preference string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_profiles
		SET shopping_preferences = array_append(shopping_preferences, $2)
		WHERE id = $1 AND NOT ($2 = ANY(COALESCE(shopping_preferences, '{}')))
	`, userID, preference)
	if err != nil {
		return false, fmt.Errorf("嗜好の追加に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// --- orders ---

// CreateOrder 注文レコードを作成
func (s *PostgresStore) CreateOrder(ctx context.Context, userID string, total float64) (*models.Order, error) {
	order := &models.Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Total:     total,
		Status:    "placed",
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.UserID, order.Total, order.Status, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("注文の作成に失敗: %w", err)
	}
	return order, nil
}

// DeleteOrder 注文レコードを削除（チェックアウト失敗時の補償処理）
func (s *PostgresStore) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("注文の削除に失敗: %w", err)
	}
	return nil
}

// --- ai_insights ---

// SaveInsight 生成AIの出力を記録
func (s *PostgresStore) SaveInsight(ctx context.Context, insight models.AIInsight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_insights (id, user_id, insight_type, content, confidence_score, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.New().String(), insight.UserID, insight.InsightType, insight.Content,
		insight.ConfidenceScore, insight.IsActive)
	if err != nil {
		return fmt.Errorf("インサイトの保存に失敗: %w", err)
	}
	return nil
}
