package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"example.com/storefront/internal/metrics"
	"example.com/storefront/internal/model"
	"example.com/storefront/internal/payment"
)

type PaymentService interface {
	// Available rejects online methods whose gateway is not configured.
	Available(method string) error
	// Open supersedes the order's pending payments and records a new pending
	// one inside tx.
	Open(tx *gorm.DB, order model.Order) (model.Payment, error)
	// Redirect asks the gateway for the URL the customer pays p at. A gateway
	// error marks p failed.
	Redirect(ctx context.Context, order model.Order, p model.Payment, clientIP string) (string, error)
	// Initiate opens a fresh payment for an unpaid order and returns its URL.
	Initiate(ctx context.Context, order model.Order, clientIP string) (string, error)
	HandleMoMo(ctx context.Context, r payment.MoMoResult) (model.Payment, error)
	VerifyMoMoReturn(ctx context.Context, q url.Values) (payment.MoMoResult, error)
	HandleVNPayIPN(ctx context.Context, q url.Values) (code, message string)
	VerifyVNPayReturn(ctx context.Context, q url.Values) (payment.VNPayResult, error)
}

type paymentService struct {
	db    *gorm.DB
	momo  *payment.MoMo
	vnpay *payment.VNPay
	log   *zap.Logger
	now   func() time.Time
}

func NewPaymentService(db *gorm.DB, momo *payment.MoMo, vnpay *payment.VNPay, log *zap.Logger) PaymentService {
	return &paymentService{db: db, momo: momo, vnpay: vnpay, log: log, now: time.Now}
}

func (s *paymentService) Available(method string) error {
	switch method {
	case model.MethodCOD:
		return nil
	case model.MethodMoMo:
		if !s.momo.Enabled() {
			return Errorf(ErrInvalid, "momo payments are not available")
		}
	case model.MethodVNPay:
		if !s.vnpay.Enabled() {
			return Errorf(ErrInvalid, "vnpay payments are not available")
		}
	default:
		return Errorf(ErrInvalid, "unknown payment method %q", method)
	}
	return nil
}

func (s *paymentService) Open(tx *gorm.DB, order model.Order) (model.Payment, error) {
	// an older link left open at the gateway could still be paid
	err := tx.Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", order.ID, model.PayPending).
		Updates(map[string]any{"status": model.PayFailed, "raw_response": "superseded"}).Error
	if err != nil {
		return model.Payment{}, err
	}
	p := model.Payment{
		OrderID:   order.ID,
		Provider:  order.PaymentMethod,
		Reference: uuid.NewString(),
		Amount:    order.Total,
		Status:    model.PayPending,
	}
	return p, tx.Create(&p).Error
}

func (s *paymentService) Redirect(ctx context.Context, order model.Order, p model.Payment, clientIP string) (string, error) {
	info := fmt.Sprintf("Payment for order %s", order.Code)
	var (
		payURL string
		err    error
	)
	if p.Provider == model.MethodMoMo {
		payURL, err = s.momo.CreatePayment(ctx, payment.MoMoCreate{
			OrderID:   p.Reference,
			RequestID: uuid.NewString(),
			Amount:    p.Amount,
			OrderInfo: info,
		})
	} else {
		payURL, err = s.vnpay.PaymentURL(payment.VNPayRequest{
			TxnRef:    p.Reference,
			Amount:    p.Amount,
			OrderInfo: info,
			IPAddr:    clientIP,
			CreatedAt: s.now(),
		})
	}
	if err != nil {
		s.db.WithContext(ctx).Model(&model.Payment{}).
			Where("id = ? AND status = ?", p.ID, model.PayPending).
			Updates(map[string]any{"status": model.PayFailed, "raw_response": err.Error()})
		return "", fmt.Errorf("initiate %s payment: %w", p.Provider, err)
	}
	return payURL, nil
}

func (s *paymentService) Initiate(ctx context.Context, order model.Order, clientIP string) (string, error) {
	if order.Status == model.OrderCancelled || order.PaymentStatus == model.PayPaid {
		return "", Errorf(ErrConflict, "order %s cannot be paid", order.Code)
	}
	if order.PaymentMethod == model.MethodCOD {
		return "", Errorf(ErrInvalid, "order %s is not paid online", order.Code)
	}
	if err := s.Available(order.PaymentMethod); err != nil {
		return "", err
	}
	var p model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = s.Open(tx, order)
		return err
	})
	if err != nil {
		return "", err
	}
	return s.Redirect(ctx, order, p, clientIP)
}

func (s *paymentService) HandleMoMo(ctx context.Context, r payment.MoMoResult) (model.Payment, error) {
	if !s.momo.Verify(r) {
		return model.Payment{}, ErrBadSignature
	}
	raw, _ := json.Marshal(r)
	return s.settle(ctx, r.OrderID, r.Amount, r.Success(), fmt.Sprint(r.TransID), string(raw))
}

func (s *paymentService) VerifyMoMoReturn(ctx context.Context, q url.Values) (payment.MoMoResult, error) {
	r, err := payment.ParseMoMoQuery(q)
	if err != nil {
		return r, Errorf(ErrInvalid, "malformed momo return")
	}
	if !s.momo.Verify(r) {
		return r, ErrBadSignature
	}
	return r, nil
}

func (s *paymentService) HandleVNPayIPN(ctx context.Context, q url.Values) (string, string) {
	if !s.vnpay.Verify(q) {
		return payment.VNPayRspBadChecksum, "Invalid Checksum"
	}
	r, err := payment.ParseVNPay(q)
	if errors.Is(err, payment.ErrVNPayAmount) {
		return payment.VNPayRspInvalidAmount, "Invalid amount"
	}
	if err != nil {
		return payment.VNPayRspUnknown, "Unknow error"
	}
	raw, _ := json.Marshal(r)
	_, err = s.settle(ctx, r.TxnRef, r.Amount, r.Success(), r.TransactionNo, string(raw))
	switch {
	case err == nil:
		return payment.VNPayRspSuccess, "Confirm Success"
	case errors.Is(err, ErrNotFound):
		return payment.VNPayRspOrderNotFound, "Order not found"
	case errors.Is(err, ErrInvalid):
		return payment.VNPayRspInvalidAmount, "Invalid amount"
	case errors.Is(err, ErrConflict):
		return payment.VNPayRspAlreadyHandled, "Order already confirmed"
	default:
		s.log.Error("vnpay ipn", zap.String("txn_ref", r.TxnRef), zap.Error(err))
		return payment.VNPayRspUnknown, "Unknow error"
	}
}

func (s *paymentService) VerifyVNPayReturn(ctx context.Context, q url.Values) (payment.VNPayResult, error) {
	if !s.vnpay.Verify(q) {
		return payment.VNPayResult{}, ErrBadSignature
	}
	r, err := payment.ParseVNPay(q)
	if err != nil {
		return r, Errorf(ErrInvalid, "malformed vnpay return")
	}
	return r, nil
}

// settle records a gateway outcome for the payment with the given reference.
// A payment that is no longer pending yields ErrConflict and is left as is,
// unless money arrives for one that was abandoned. Money the order does not
// need is recorded as refunded.
func (s *paymentService) settle(ctx context.Context, ref string, amount int64, ok bool, txnID, raw string) (model.Payment, error) {
	var p model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("reference = ?", ref).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(ErrNotFound, "payment %s not found", ref)
			}
			return err
		}
		if p.Amount != amount {
			return Errorf(ErrInvalid, "amount mismatch for payment %s", ref)
		}
		var o model.Order
		if err := tx.First(&o, p.OrderID).Error; err != nil {
			return err
		}
		// cancelling an order or re-issuing its payment abandons pending
		// payments; money that still arrives for one of them is recorded
		lateCapture := ok && p.Status == model.PayFailed
		if p.Status != model.PayPending && !lateCapture {
			return Errorf(ErrConflict, "payment %s already %s", ref, p.Status)
		}

		status := model.PayFailed
		if ok {
			status = model.PayPaid
			// the order was cancelled or paid through another payment
			if o.Status == model.OrderCancelled || o.PaymentStatus == model.PayPaid {
				status = model.PayRefunded
			}
		}
		now := s.now()
		upd := map[string]any{"status": status, "transaction_id": txnID, "raw_response": raw}
		if ok {
			upd["paid_at"] = now
		}
		res := tx.Model(&model.Payment{}).Where("id = ? AND status = ?", p.ID, p.Status).Updates(upd)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Errorf(ErrConflict, "payment %s already settled", ref)
		}

		switch {
		case status == model.PayPaid:
			orderUpd := map[string]any{"payment_status": model.PayPaid}
			if o.Status == model.OrderPending {
				orderUpd["status"] = model.OrderConfirmed
			}
			res := tx.Model(&model.Order{}).
				Where("id = ? AND payment_status <> ?", o.ID, model.PayPaid).
				Updates(orderUpd)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// a concurrent capture paid the order first
				status = model.PayRefunded
				if err := tx.Model(&model.Payment{}).Where("id = ?", p.ID).Update("status", status).Error; err != nil {
					return err
				}
			}
		case status == model.PayRefunded && o.Status == model.OrderCancelled:
			if err := tx.Model(&model.Order{}).Where("id = ?", o.ID).
				Update("payment_status", model.PayRefunded).Error; err != nil {
				return err
			}
		case status == model.PayFailed && o.PaymentStatus == model.PayUnpaid:
			if err := tx.Model(&model.Order{}).Where("id = ?", o.ID).
				Update("payment_status", model.PayFailed).Error; err != nil {
				return err
			}
		}
		if status == model.PayRefunded {
			s.log.Warn("payment captured for cancelled or already paid order, refund required",
				zap.String("reference", ref), zap.Uint("order_id", o.ID), zap.Int64("amount", amount))
		}
		metrics.Payments.WithLabelValues(p.Provider, status).Inc()
		return tx.First(&p, p.ID).Error
	})
	if err != nil {
		return model.Payment{}, err
	}
	s.log.Info("payment settled",
		zap.String("provider", p.Provider),
		zap.String("reference", p.Reference),
		zap.String("status", p.Status),
		zap.Uint("order_id", p.OrderID))
	return p, nil
}
