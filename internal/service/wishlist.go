package service

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/storefront/internal/model"
)

type WishlistService interface {
	List(ctx context.Context, userID uint) ([]model.WishlistItem, error)
	Add(ctx context.Context, userID, productID uint) error
	Remove(ctx context.Context, userID, productID uint) error
}

type wishlistService struct{ db *gorm.DB }

func NewWishlistService(db *gorm.DB) WishlistService { return &wishlistService{db: db} }

func (s *wishlistService) List(ctx context.Context, userID uint) ([]model.WishlistItem, error) {
	items := []model.WishlistItem{}
	err := s.db.WithContext(ctx).Preload("Product").
		Where("user_id = ?", userID).Order("id desc").Find(&items).Error
	return items, err
}

// Add is idempotent.
func (s *wishlistService) Add(ctx context.Context, userID, productID uint) error {
	db := s.db.WithContext(ctx)
	if _, err := activeProduct(db, productID); err != nil {
		return err
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.WishlistItem{UserID: userID, ProductID: productID}).Error
}

func (s *wishlistService) Remove(ctx context.Context, userID, productID uint) error {
	res := s.db.WithContext(ctx).Where("user_id = ? AND product_id = ?", userID, productID).Delete(&model.WishlistItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "product not in wishlist")
	}
	return nil
}
