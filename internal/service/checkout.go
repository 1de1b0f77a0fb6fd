package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"example.com/storefront/internal/metrics"
	"example.com/storefront/internal/model"
)

const (
	ShippingFee       int64 = 30000
	FreeShippingFrom  int64 = 500000
	orderCodeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type ShippingInput struct {
	Name    string `json:"name" binding:"required,max=120"`
	Phone   string `json:"phone" binding:"required,max=20"`
	Address string `json:"address" binding:"required,max=500"`
}

type CheckoutInput struct {
	AddressID     uint           `json:"address_id"`
	Shipping      *ShippingInput `json:"shipping"`
	CouponCode    string         `json:"coupon_code" binding:"max=50"`
	PaymentMethod string         `json:"payment_method" binding:"required,oneof=cod momo vnpay"`
	Note          string         `json:"note" binding:"max=500"`
	ClientIP      string         `json:"-"`
}

type CheckoutResult struct {
	Order      model.Order `json:"order"`
	PaymentURL string      `json:"payment_url,omitempty"`
}

type CheckoutService interface {
	Checkout(ctx context.Context, userID uint, in CheckoutInput) (CheckoutResult, error)
}

type checkoutService struct {
	db       *gorm.DB
	email    EmailService
	payments PaymentService
	log      *zap.Logger
	now      func() time.Time
}

func NewCheckoutService(db *gorm.DB, email EmailService, payments PaymentService, log *zap.Logger) CheckoutService {
	return &checkoutService{db: db, email: email, payments: payments, log: log, now: time.Now}
}

// ShippingFor returns the flat fee, waived from FreeShippingFrom upwards.
func ShippingFor(subtotal int64) int64 {
	if subtotal >= FreeShippingFrom {
		return 0
	}
	return ShippingFee
}

func (s *checkoutService) Checkout(ctx context.Context, userID uint, in CheckoutInput) (CheckoutResult, error) {
	if err := s.payments.Available(in.PaymentMethod); err != nil {
		return CheckoutResult{}, err
	}
	var (
		order model.Order
		pay   model.Payment
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		name, phone, addr, err := s.shippingFor(tx, userID, in)
		if err != nil {
			return err
		}

		items, err := loadCart(tx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return Errorf(ErrCartEmpty, "cart is empty")
		}

		var subtotal int64
		oitems := make([]model.OrderItem, 0, len(items))
		for _, it := range items {
			if it.Product.ID == 0 || !it.Product.IsActive {
				return Errorf(ErrInvalid, "product %d is no longer available", it.ProductID)
			}
			res := tx.Model(&model.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Qty).
				Updates(map[string]any{
					"stock":      gorm.Expr("stock - ?", it.Qty),
					"sold_count": gorm.Expr("sold_count + ?", it.Qty),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return Errorf(ErrInsufficientStock, "not enough stock for %s", it.Product.Name)
			}
			subtotal += it.Product.Price * int64(it.Qty)
			oitems = append(oitems, model.OrderItem{
				ProductID: it.ProductID,
				Name:      it.Product.Name,
				Price:     it.Product.Price,
				Qty:       it.Qty,
			})
		}

		var discount int64
		var coupon *model.Coupon
		if strings.TrimSpace(in.CouponCode) != "" {
			c, err := findCoupon(tx, in.CouponCode)
			if err != nil {
				return err
			}
			if discount, err = Discount(c, subtotal, s.now()); err != nil {
				return err
			}
			res := tx.Model(&model.Coupon{}).
				Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", c.ID).
				Update("used_count", gorm.Expr("used_count + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return Errorf(ErrCouponInvalid, "coupon %s has been fully redeemed", c.Code)
			}
			coupon = &c
		}

		ship := ShippingFor(subtotal)
		order = model.Order{
			Code:            newOrderCode(s.now()),
			UserID:          userID,
			Status:          model.OrderPending,
			Subtotal:        subtotal,
			Discount:        discount,
			ShippingFee:     ship,
			Total:           subtotal - discount + ship,
			PaymentMethod:   in.PaymentMethod,
			PaymentStatus:   model.PayUnpaid,
			ShippingName:    name,
			ShippingPhone:   phone,
			ShippingAddress: addr,
			Note:            strings.TrimSpace(in.Note),
			Items:           oitems,
		}
		if coupon != nil {
			order.CouponID = &coupon.ID
			order.CouponCode = coupon.Code
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		if order.PaymentMethod != model.MethodCOD {
			if pay, err = s.payments.Open(tx, order); err != nil {
				return err
			}
			order.Payments = []model.Payment{pay}
		}
		return tx.Where("user_id = ?", userID).Delete(&model.CartItem{}).Error
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	metrics.OrdersCreated.WithLabelValues(order.PaymentMethod).Inc()

	res := CheckoutResult{Order: order}
	if order.PaymentMethod != model.MethodCOD {
		payURL, err := s.payments.Redirect(ctx, order, pay, in.ClientIP)
		if err != nil {
			// the order stands; the customer can retry from the order page
			s.log.Warn("payment initiation failed", zap.String("order", order.Code), zap.Error(err))
		}
		res.PaymentURL = payURL
	}

	// best-effort confirmation
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err == nil {
		if err := s.email.Send(u.Email, "Order confirmation "+order.Code,
			fmt.Sprintf("Thanks! Your order %s with total %d VND has been received.", order.Code, order.Total)); err != nil {
			s.log.Warn("order confirmation mail failed", zap.String("order", order.Code), zap.Error(err))
		}
	}
	return res, nil
}

func (s *checkoutService) shippingFor(tx *gorm.DB, userID uint, in CheckoutInput) (name, phone, addr string, err error) {
	if in.AddressID != 0 {
		var a model.Address
		if err := tx.Where("id = ? AND user_id = ?", in.AddressID, userID).First(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", "", "", Errorf(ErrNotFound, "address not found")
			}
			return "", "", "", err
		}
		return a.FullName, a.Phone, a.Full(), nil
	}
	if in.Shipping != nil {
		return strings.TrimSpace(in.Shipping.Name), strings.TrimSpace(in.Shipping.Phone), strings.TrimSpace(in.Shipping.Address), nil
	}
	var a model.Address
	err = tx.Where("user_id = ? AND is_default = ?", userID, true).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", "", "", Errorf(ErrInvalid, "shipping address is required")
	}
	if err != nil {
		return "", "", "", err
	}
	return a.FullName, a.Phone, a.Full(), nil
}

// newOrderCode renders ORD-YYYYMMDD-XXXXXX.
func newOrderCode(now time.Time) string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = orderCodeAlphabet[int(b[i])%len(orderCodeAlphabet)]
	}
	return "ORD-" + now.Format("20060102") + "-" + string(b)
}
