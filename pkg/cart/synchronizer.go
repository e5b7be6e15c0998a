// Package cart はローカルのカート状態とリモート永続化の同期を担当します。
// 変更はまずローカルに楽観的に適用し、リモートへの反映に失敗した場合は
// 変更前のスナップショットへ正確に巻き戻します。
package cart

import (
	"context"
	"fmt"
	"sync"

	"smartcart-api/pkg/models"
	"smartcart-api/pkg/store"
)

// Remote はシンクロナイザーが必要とする永続化操作の部分集合です。
type Remote interface {
	ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
	AddCartItem(ctx context.Context, userID string, item models.CartItem) error
	RemoveCartItem(ctx context.Context, userID, name string, quantity int) error
	ClearCart(ctx context.Context, userID string) error
}

// Synchronizer は単一ユーザーのカートを管理します。全メソッドは
// 排他制御されており、複数のゴルーチンから安全に呼び出せます。
type Synchronizer struct {
	mu     sync.Mutex
	userID string
	remote Remote
	state  models.CartState
}

// NewSynchronizer は新しいSynchronizerを作成します。
func NewSynchronizer(userID string, remote Remote) *Synchronizer {
	return &Synchronizer{
		userID: userID,
		remote: remote,
	}
}

// State は現在のカート状態のコピーを返します。
func (s *Synchronizer) State() models.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Add は商品を1単位追加します。同名の行があれば数量を増やします。
func (s *Synchronizer) Add(ctx context.Context, item models.CartItem) (models.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.snapshot()

	found := false
	for i := range s.state.Items {
		if s.state.Items[i].Name == item.Name {
			s.state.Items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		added := item
		added.Quantity = 1
		s.state.Items = append(s.state.Items, added)
	}
	s.state.Recompute()

	if err := s.remote.AddCartItem(ctx, s.userID, models.CartItem{
		Name:  item.Name,
		Price: item.Price,
		Image: item.Image,
	}); err != nil {
		s.restore(backup)
		return s.snapshot(), fmt.Errorf("カートへの追加を永続化できませんでした: %w", err)
	}
	return s.snapshot(), nil
}

// Remove は商品を1単位減らします。最後の1つを減らすと行ごと消えます。
func (s *Synchronizer) Remove(ctx context.Context, name string) (models.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.snapshot()

	index := s.indexOf(name)
	if index == -1 {
		return s.snapshot(), store.ErrNotFound
	}
	if s.state.Items[index].Quantity > 1 {
		s.state.Items[index].Quantity--
	} else {
		s.state.Items = append(s.state.Items[:index], s.state.Items[index+1:]...)
	}
	s.state.Recompute()

	if err := s.remote.RemoveCartItem(ctx, s.userID, name, 1); err != nil {
		s.restore(backup)
		return s.snapshot(), fmt.Errorf("カートからの削除を永続化できませんでした: %w", err)
	}
	return s.snapshot(), nil
}

// SetQuantity は商品の数量を目標値に合わせます。リモートへは差分を
// 相対的な追加・削除として送ります。0以下を指定すると行を削除します。
func (s *Synchronizer) SetQuantity(ctx context.Context, name string, quantity int) (models.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.snapshot()

	index := s.indexOf(name)
	if index == -1 {
		return s.snapshot(), store.ErrNotFound
	}

	current := s.state.Items[index].Quantity
	delta := quantity - current
	if delta == 0 {
		return s.snapshot(), nil
	}

	item := s.state.Items[index]
	if quantity <= 0 {
		s.state.Items = append(s.state.Items[:index], s.state.Items[index+1:]...)
	} else {
		s.state.Items[index].Quantity = quantity
	}
	s.state.Recompute()

	var err error
	if delta > 0 {
		err = s.remote.AddCartItem(ctx, s.userID, models.CartItem{
			Name:     item.Name,
			Price:    item.Price,
			Image:    item.Image,
			Quantity: delta,
		})
	} else {
		err = s.remote.RemoveCartItem(ctx, s.userID, name, -delta)
	}
	if err != nil {
		s.restore(backup)
		return s.snapshot(), fmt.Errorf("数量変更を永続化できませんでした: %w", err)
	}
	return s.snapshot(), nil
}

// Clear はカートを空にします。
func (s *Synchronizer) Clear(ctx context.Context) (models.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.snapshot()

	s.state.Items = nil
	s.state.Recompute()

	if err := s.remote.ClearCart(ctx, s.userID); err != nil {
		s.restore(backup)
		return s.snapshot(), fmt.Errorf("カートのクリアを永続化できませんでした: %w", err)
	}
	return s.snapshot(), nil
}

// Hydrate はリモートの内容でローカル状態を置き換えます。起動時や
// 別セッションでの変更を取り込むときに使います。
func (s *Synchronizer) Hydrate(ctx context.Context) (models.CartState, error) {
	items, err := s.remote.ListCartItems(ctx, s.userID)
	if err != nil {
		return s.State(), fmt.Errorf("カートの読み込みに失敗: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Items = nil
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		s.state.Items = append(s.state.Items, item)
	}
	s.state.Recompute()
	return s.snapshot(), nil
}

func (s *Synchronizer) indexOf(name string) int {
	for i := range s.state.Items {
		if s.state.Items[i].Name == name {
			return i
		}
	}
	return -1
}

// snapshot 呼び出し側がロックを保持している前提のディープコピーです。
func (s *Synchronizer) snapshot() models.CartState {
	copied := s.state
	copied.Items = make([]models.CartItem, len(s.state.Items))
	copy(copied.Items, s.state.Items)
	return copied
}

func (s *Synchronizer) restore(backup models.CartState) {
	s.state = backup
}
