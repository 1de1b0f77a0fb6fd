package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type Cart struct {
	Items    []model.CartItem `json:"items"`
	Subtotal int64            `json:"subtotal"`
	Count    int              `json:"count"`
}

type CartService interface {
	Add(ctx context.Context, userID, productID uint, qty int) error
	SetQty(ctx context.Context, userID, productID uint, qty int) error
	Remove(ctx context.Context, userID, productID uint) error
	Get(ctx context.Context, userID uint) (Cart, error)
	Clear(ctx context.Context, userID uint) error
}

type cartService struct{ db *gorm.DB }

func NewCartService(db *gorm.DB) CartService { return &cartService{db: db} }

func (s *cartService) Add(ctx context.Context, userID, productID uint, qty int) error {
	if qty <= 0 {
		return Errorf(ErrInvalid, "qty must be > 0")
	}
	db := s.db.WithContext(ctx)
	p, err := activeProduct(db, productID)
	if err != nil {
		return err
	}

	var it model.CartItem
	err = db.Where("user_id = ? AND product_id = ?", userID, productID).First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if qty > p.Stock {
			return Errorf(ErrInsufficientStock, "only %d left of %s", p.Stock, p.Name)
		}
		it = model.CartItem{UserID: userID, ProductID: productID, Qty: qty}
		err = db.Create(&it).Error
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		// a concurrent add created the line first
	} else if err != nil {
		return err
	}
	return mergeCartLine(db, userID, p, qty)
}

// mergeCartLine adds qty to an existing line as long as stock covers it.
func mergeCartLine(db *gorm.DB, userID uint, p model.Product, qty int) error {
	res := db.Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ? AND qty + ? <= ?", userID, p.ID, qty, p.Stock).
		Update("qty", gorm.Expr("qty + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrInsufficientStock, "only %d left of %s", p.Stock, p.Name)
	}
	return nil
}

// SetQty replaces the quantity; zero removes the line.
func (s *cartService) SetQty(ctx context.Context, userID, productID uint, qty int) error {
	if qty < 0 {
		return Errorf(ErrInvalid, "qty must be >= 0")
	}
	if qty == 0 {
		return s.Remove(ctx, userID, productID)
	}
	db := s.db.WithContext(ctx)
	p, err := activeProduct(db, productID)
	if err != nil {
		return err
	}
	if qty > p.Stock {
		return Errorf(ErrInsufficientStock, "only %d left of %s", p.Stock, p.Name)
	}
	res := db.Model(&model.CartItem{}).Where("user_id = ? AND product_id = ?", userID, productID).Update("qty", qty)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "item not in cart")
	}
	return nil
}

func (s *cartService) Remove(ctx context.Context, userID, productID uint) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Delete(&model.CartItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "item not in cart")
	}
	return nil
}

func (s *cartService) Get(ctx context.Context, userID uint) (Cart, error) {
	items, err := loadCart(s.db.WithContext(ctx), userID)
	if err != nil {
		return Cart{}, err
	}
	c := Cart{Items: items}
	for _, it := range items {
		c.Subtotal += it.Product.Price * int64(it.Qty)
		c.Count += it.Qty
	}
	return c, nil
}

func (s *cartService) Clear(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
}

func loadCart(db *gorm.DB, userID uint) ([]model.CartItem, error) {
	items := []model.CartItem{}
	return items, db.Preload("Product").Where("user_id = ?", userID).Order("id asc").Find(&items).Error
}

func activeProduct(db *gorm.DB, id uint) (model.Product, error) {
	var p model.Product
	if err := db.Where("is_active = ?", true).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, Errorf(ErrNotFound, "product not found")
		}
		return p, err
	}
	return p, nil
}
