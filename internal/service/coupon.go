package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type CouponInput struct {
	Code        string     `json:"code" binding:"required,max=50"`
	Type        string     `json:"type" binding:"required,oneof=percent fixed"`
	Value       int64      `json:"value" binding:"required,gt=0"`
	MinOrder    int64      `json:"min_order" binding:"gte=0"`
	MaxDiscount int64      `json:"max_discount" binding:"gte=0"`
	UsageLimit  int        `json:"usage_limit" binding:"gte=0"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	IsActive    *bool      `json:"is_active"`
}

type CouponQuote struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Total    int64  `json:"total"`
}

type CouponService interface {
	Validate(ctx context.Context, code string, subtotal int64) (CouponQuote, error)
	List(ctx context.Context, p Page) ([]model.Coupon, int64, error)
	Create(ctx context.Context, in CouponInput) (model.Coupon, error)
	Update(ctx context.Context, id uint, in CouponInput) (model.Coupon, error)
	Delete(ctx context.Context, id uint) error
}

type couponService struct{ db *gorm.DB }

func NewCouponService(db *gorm.DB) CouponService { return &couponService{db: db} }

func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// Discount computes what c takes off subtotal at now. Percentage discounts are
// floored to whole VND and capped by MaxDiscount; no discount exceeds subtotal.
func Discount(c model.Coupon, subtotal int64, now time.Time) (int64, error) {
	switch {
	case !c.IsActive:
		return 0, Errorf(ErrCouponInvalid, "coupon %s is not active", c.Code)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return 0, Errorf(ErrCouponInvalid, "coupon %s is not yet valid", c.Code)
	case c.EndsAt != nil && now.After(*c.EndsAt):
		return 0, Errorf(ErrCouponInvalid, "coupon %s has expired", c.Code)
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return 0, Errorf(ErrCouponInvalid, "coupon %s has been fully redeemed", c.Code)
	case subtotal < c.MinOrder:
		return 0, Errorf(ErrCouponInvalid, "order must be at least %d to use %s", c.MinOrder, c.Code)
	}

	var d int64
	switch c.Type {
	case model.CouponPercent:
		d = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(100)).
			Floor().IntPart()
		if c.MaxDiscount > 0 && d > c.MaxDiscount {
			d = c.MaxDiscount
		}
	case model.CouponFixed:
		d = c.Value
	default:
		return 0, Errorf(ErrCouponInvalid, "coupon %s has unknown type", c.Code)
	}
	if d > subtotal {
		d = subtotal
	}
	if d < 0 {
		d = 0
	}
	return d, nil
}

func findCoupon(db *gorm.DB, code string) (model.Coupon, error) {
	var c model.Coupon
	if err := db.Where("code = ?", NormalizeCode(code)).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, Errorf(ErrCouponInvalid, "coupon %s does not exist", NormalizeCode(code))
		}
		return c, err
	}
	return c, nil
}

func (s *couponService) Validate(ctx context.Context, code string, subtotal int64) (CouponQuote, error) {
	c, err := findCoupon(s.db.WithContext(ctx), code)
	if err != nil {
		return CouponQuote{}, err
	}
	d, err := Discount(c, subtotal, time.Now())
	if err != nil {
		return CouponQuote{}, err
	}
	return CouponQuote{Code: c.Code, Subtotal: subtotal, Discount: d, Total: subtotal - d}, nil
}

func (s *couponService) List(ctx context.Context, p Page) ([]model.Coupon, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Coupon{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cs []model.Coupon
	err := tx.Order("id desc").Offset(p.Offset()).Limit(p.Limit).Find(&cs).Error
	return cs, total, err
}

func (s *couponService) Create(ctx context.Context, in CouponInput) (model.Coupon, error) {
	c := model.Coupon{IsActive: true}
	if err := applyCouponInput(&c, in); err != nil {
		return c, err
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&model.Coupon{}).Where("code = ?", c.Code).Count(&n).Error; err != nil {
		return c, err
	}
	if n > 0 {
		return c, Errorf(ErrConflict, "coupon %s already exists", c.Code)
	}
	return c, db.Create(&c).Error
}

func (s *couponService) Update(ctx context.Context, id uint, in CouponInput) (model.Coupon, error) {
	db := s.db.WithContext(ctx)
	var c model.Coupon
	if err := db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, Errorf(ErrNotFound, "coupon not found")
		}
		return c, err
	}
	if err := applyCouponInput(&c, in); err != nil {
		return c, err
	}
	var n int64
	if err := db.Model(&model.Coupon{}).Where("code = ? AND id <> ?", c.Code, c.ID).Count(&n).Error; err != nil {
		return c, err
	}
	if n > 0 {
		return c, Errorf(ErrConflict, "coupon %s already exists", c.Code)
	}
	return c, db.Save(&c).Error
}

func (s *couponService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Coupon{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "coupon not found")
	}
	return nil
}

func applyCouponInput(c *model.Coupon, in CouponInput) error {
	if in.Type == model.CouponPercent && in.Value > 100 {
		return Errorf(ErrInvalid, "percent value must be between 1 and 100")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return Errorf(ErrInvalid, "ends_at must be after starts_at")
	}
	c.Code = NormalizeCode(in.Code)
	c.Type = in.Type
	c.Value = in.Value
	c.MinOrder = in.MinOrder
	c.MaxDiscount = in.MaxDiscount
	c.UsageLimit = in.UsageLimit
	c.StartsAt = in.StartsAt
	c.EndsAt = in.EndsAt
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	return nil
}
