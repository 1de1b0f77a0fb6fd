package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"example.com/storefront/internal/metrics"
	"example.com/storefront/internal/model"
)

type OrderFilter struct {
	UserID uint
	Status string
	Query  string
}

type OrderService interface {
	ListMine(ctx context.Context, userID uint, status string, p Page) ([]model.Order, int64, error)
	GetMine(ctx context.Context, userID, orderID uint) (model.Order, error)
	Cancel(ctx context.Context, userID, orderID uint, reason string) (model.Order, error)
	Pay(ctx context.Context, userID, orderID uint, clientIP string) (string, error)

	List(ctx context.Context, f OrderFilter, p Page) ([]model.Order, int64, error)
	Get(ctx context.Context, orderID uint) (model.Order, error)
	UpdateStatus(ctx context.Context, orderID uint, status, reason string) (model.Order, error)
}

type orderService struct {
	db       *gorm.DB
	payments PaymentService
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderService(db *gorm.DB, payments PaymentService, log *zap.Logger) OrderService {
	return &orderService{db: db, payments: payments, log: log, now: time.Now}
}

// transitions lists the statuses an admin may move an order to.
var transitions = map[string][]string{
	model.OrderPending:   {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed: {model.OrderShipping, model.OrderCancelled},
	model.OrderShipping:  {model.OrderDelivered},
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func Cancellable(status string) bool {
	return status == model.OrderPending || status == model.OrderConfirmed
}

func (s *orderService) ListMine(ctx context.Context, userID uint, status string, p Page) ([]model.Order, int64, error) {
	return s.List(ctx, OrderFilter{UserID: userID, Status: status}, p)
}

func (s *orderService) GetMine(ctx context.Context, userID, orderID uint) (model.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return o, err
	}
	if o.UserID != userID {
		return model.Order{}, Errorf(ErrNotFound, "order not found")
	}
	return o, nil
}

func (s *orderService) Cancel(ctx context.Context, userID, orderID uint, reason string) (model.Order, error) {
	if _, err := s.GetMine(ctx, userID, orderID); err != nil {
		return model.Order{}, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by customer"
	}
	return s.cancel(ctx, orderID, reason)
}

func (s *orderService) Pay(ctx context.Context, userID, orderID uint, clientIP string) (string, error) {
	o, err := s.GetMine(ctx, userID, orderID)
	if err != nil {
		return "", err
	}
	return s.payments.Initiate(ctx, o, clientIP)
}

func (s *orderService) List(ctx context.Context, f OrderFilter, p Page) ([]model.Order, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Order{})
	if f.UserID != 0 {
		tx = tx.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		tx = tx.Where("code LIKE ?", "%"+strings.ToUpper(q)+"%")
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	orders := []model.Order{}
	err := tx.Preload("Items").Order("created_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&orders).Error
	return orders, total, err
}

func (s *orderService) Get(ctx context.Context, orderID uint) (model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items").Preload("Payments").First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return o, Errorf(ErrNotFound, "order not found")
	}
	return o, err
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID uint, status, reason string) (model.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return o, err
	}
	if !CanTransition(o.Status, status) {
		return o, Errorf(ErrConflict, "cannot move order from %s to %s", o.Status, status)
	}
	if status == model.OrderCancelled {
		if strings.TrimSpace(reason) == "" {
			reason = "cancelled by shop"
		}
		return s.cancel(ctx, orderID, reason)
	}

	upd := map[string]any{"status": status}
	// cash is collected on delivery
	if status == model.OrderDelivered && o.PaymentMethod == model.MethodCOD {
		upd["payment_status"] = model.PayPaid
	}
	res := s.db.WithContext(ctx).Model(&model.Order{}).Where("id = ? AND status = ?", o.ID, o.Status).Updates(upd)
	if res.Error != nil {
		return o, res.Error
	}
	if res.RowsAffected == 0 {
		return o, Errorf(ErrConflict, "order changed concurrently, retry")
	}
	return s.Get(ctx, orderID)
}

// cancel restores stock and coupon usage, refunds captured payments and marks
// the order cancelled, all in one transaction.
func (s *orderService) cancel(ctx context.Context, orderID uint, reason string) (model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		if err := tx.Preload("Items").First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(ErrNotFound, "order not found")
			}
			return err
		}
		if !Cancellable(o.Status) {
			return Errorf(ErrConflict, "order %s can no longer be cancelled", o.Code)
		}

		for _, it := range o.Items {
			err := tx.Model(&model.Product{}).Unscoped().Where("id = ?", it.ProductID).
				Updates(map[string]any{
					"stock":      gorm.Expr("stock + ?", it.Qty),
					"sold_count": gorm.Expr("CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END", it.Qty, it.Qty),
				}).Error
			if err != nil {
				return err
			}
		}

		if o.CouponID != nil {
			err := tx.Model(&model.Coupon{}).Where("id = ? AND used_count > 0", *o.CouponID).
				Update("used_count", gorm.Expr("used_count - 1")).Error
			if err != nil {
				return err
			}
		}

		payStatus := o.PaymentStatus
		if o.PaymentStatus == model.PayPaid {
			payStatus = model.PayRefunded
			err := tx.Model(&model.Payment{}).Where("order_id = ? AND status = ?", o.ID, model.PayPaid).
				Update("status", model.PayRefunded).Error
			if err != nil {
				return err
			}
		}
		// abandon gateway sessions that never completed
		if err := tx.Model(&model.Payment{}).Where("order_id = ? AND status = ?", o.ID, model.PayPending).
			Update("status", model.PayFailed).Error; err != nil {
			return err
		}

		now := s.now()
		res := tx.Model(&model.Order{}).Where("id = ? AND status = ?", o.ID, o.Status).Updates(map[string]any{
			"status":         model.OrderCancelled,
			"payment_status": payStatus,
			"cancel_reason":  reason,
			"cancelled_at":   now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Errorf(ErrConflict, "order changed concurrently, retry")
		}
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	metrics.OrdersCancelled.Inc()
	s.log.Info("order cancelled", zap.Uint("order_id", orderID), zap.String("reason", reason))
	return s.Get(ctx, orderID)
}
