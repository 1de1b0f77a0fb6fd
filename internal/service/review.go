package service

import (
	"context"
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type ReviewInput struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

type ReviewService interface {
	ListForProduct(ctx context.Context, productID uint, p Page) ([]model.Review, int64, error)
	Create(ctx context.Context, userID, productID uint, in ReviewInput) (model.Review, error)
	Update(ctx context.Context, userID, reviewID uint, in ReviewInput) (model.Review, error)
	Delete(ctx context.Context, userID, reviewID uint) error

	List(ctx context.Context, productID uint, p Page) ([]model.Review, int64, error)
	AdminDelete(ctx context.Context, reviewID uint) error
}

type reviewService struct {
	db     *gorm.DB
	policy *bluemonday.Policy
}

func NewReviewService(db *gorm.DB) ReviewService {
	return &reviewService{db: db, policy: bluemonday.StrictPolicy()}
}

func (s *reviewService) ListForProduct(ctx context.Context, productID uint, p Page) ([]model.Review, int64, error) {
	if _, err := activeProduct(s.db.WithContext(ctx), productID); err != nil {
		return nil, 0, err
	}
	return s.List(ctx, productID, p)
}

func (s *reviewService) List(ctx context.Context, productID uint, p Page) ([]model.Review, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Review{})
	if productID != 0 {
		tx = tx.Where("product_id = ?", productID)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rs := []model.Review{}
	err := tx.Preload("User", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "full_name")
	}).Order("id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rs).Error
	return rs, total, err
}

// Create requires a delivered order containing the product.
func (s *reviewService) Create(ctx context.Context, userID, productID uint, in ReviewInput) (model.Review, error) {
	r := model.Review{UserID: userID, ProductID: productID, Rating: in.Rating, Comment: s.clean(in.Comment)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := activeProduct(tx, productID); err != nil {
			return err
		}
		var bought int64
		err := tx.Model(&model.OrderItem{}).
			Joins("JOIN orders ON orders.id = order_items.order_id").
			Where("orders.user_id = ? AND orders.status = ? AND order_items.product_id = ?", userID, model.OrderDelivered, productID).
			Count(&bought).Error
		if err != nil {
			return err
		}
		if bought == 0 {
			return Errorf(ErrForbidden, "only customers who received this product can review it")
		}
		var n int64
		if err := tx.Model(&model.Review{}).Where("user_id = ? AND product_id = ?", userID, productID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return Errorf(ErrConflict, "you have already reviewed this product")
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		return refreshRating(tx, productID)
	})
	return r, err
}

func (s *reviewService) Update(ctx context.Context, userID, reviewID uint, in ReviewInput) (model.Review, error) {
	var r model.Review
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if r, err = findReview(tx, reviewID); err != nil {
			return err
		}
		if r.UserID != userID {
			return Errorf(ErrForbidden, "not your review")
		}
		r.Rating = in.Rating
		r.Comment = s.clean(in.Comment)
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		return refreshRating(tx, r.ProductID)
	})
	return r, err
}

func (s *reviewService) Delete(ctx context.Context, userID, reviewID uint) error {
	return s.delete(ctx, reviewID, func(r model.Review) error {
		if r.UserID != userID {
			return Errorf(ErrForbidden, "not your review")
		}
		return nil
	})
}

func (s *reviewService) AdminDelete(ctx context.Context, reviewID uint) error {
	return s.delete(ctx, reviewID, nil)
}

func (s *reviewService) delete(ctx context.Context, reviewID uint, check func(model.Review) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := findReview(tx, reviewID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(r); err != nil {
				return err
			}
		}
		if err := tx.Delete(&r).Error; err != nil {
			return err
		}
		return refreshRating(tx, r.ProductID)
	})
}

func (s *reviewService) clean(comment string) string {
	return strings.TrimSpace(s.policy.Sanitize(comment))
}

func findReview(tx *gorm.DB, id uint) (model.Review, error) {
	var r model.Review
	if err := tx.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r, Errorf(ErrNotFound, "review not found")
		}
		return r, err
	}
	return r, nil
}

// refreshRating recomputes the product's rating aggregate from its reviews.
func refreshRating(tx *gorm.DB, productID uint) error {
	var agg struct {
		Avg float64
		Cnt int
	}
	err := tx.Model(&model.Review{}).Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS cnt").
		Where("product_id = ?", productID).Scan(&agg).Error
	if err != nil {
		return err
	}
	return tx.Model(&model.Product{}).Unscoped().Where("id = ?", productID).
		Updates(map[string]any{"rating_avg": agg.Avg, "rating_count": agg.Cnt}).Error
}
