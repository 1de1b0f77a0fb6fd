package service

import (
	"context"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/storefront/internal/model"
	"example.com/storefront/internal/payment"
)

func signedVNPayQuery(ref string, amount int64, code string) url.Values {
	_, v := testGateways()
	q := url.Values{
		"vnp_TxnRef":            {ref},
		"vnp_Amount":            {strconv.FormatInt(amount*100, 10)},
		"vnp_ResponseCode":      {code},
		"vnp_TransactionStatus": {code},
		"vnp_TransactionNo":     {"14226112"},
		"vnp_BankCode":          {"NCB"},
	}
	q.Set("vnp_SecureHash", v.Sign(q.Encode()))
	return q
}

// placeVNPayOrder checks out one item with VNPay and returns the order and its
// pending payment.
func placeVNPayOrder(t *testing.T, f checkoutFixture) (model.Order, model.Payment) {
	t.Helper()
	ctx := context.Background()
	p := createProduct(t, f.db, "Watch", 400000, 3)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))
	res, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, PaymentMethod: model.MethodVNPay})
	require.NoError(t, err)
	var pay model.Payment
	require.NoError(t, f.db.Where("order_id = ?", res.Order.ID).First(&pay).Error)
	return res.Order, pay
}

func TestVNPayIPN(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	o, pay := placeVNPayOrder(t, f)

	code, _ := f.payments.HandleVNPayIPN(ctx, signedVNPayQuery("missing", pay.Amount, "00"))
	assert.Equal(t, payment.VNPayRspOrderNotFound, code)

	code, _ = f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(pay.Reference, pay.Amount-1, "00"))
	assert.Equal(t, payment.VNPayRspInvalidAmount, code)

	// a fraction of a dong must not round down onto the expected amount
	fractional := signedVNPayQuery(pay.Reference, pay.Amount, "00")
	fractional.Set("vnp_Amount", strconv.FormatInt(pay.Amount*100+99, 10))
	fractional.Del("vnp_SecureHash")
	_, v := testGateways()
	fractional.Set("vnp_SecureHash", v.Sign(fractional.Encode()))
	code, _ = f.payments.HandleVNPayIPN(ctx, fractional)
	assert.Equal(t, payment.VNPayRspInvalidAmount, code)
	assert.Equal(t, model.PayPending, reload[model.Payment](t, f.db, pay.ID).Status)

	bad := signedVNPayQuery(pay.Reference, pay.Amount, "00")
	bad.Set("vnp_SecureHash", "deadbeef")
	code, _ = f.payments.HandleVNPayIPN(ctx, bad)
	assert.Equal(t, payment.VNPayRspBadChecksum, code)

	code, _ = f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(pay.Reference, pay.Amount, "00"))
	assert.Equal(t, payment.VNPayRspSuccess, code)

	got := reload[model.Payment](t, f.db, pay.ID)
	assert.Equal(t, model.PayPaid, got.Status)
	assert.Equal(t, "14226112", got.TransactionID)
	assert.NotNil(t, got.PaidAt)
	order := reload[model.Order](t, f.db, o.ID)
	assert.Equal(t, model.PayPaid, order.PaymentStatus)
	assert.Equal(t, model.OrderConfirmed, order.Status)

	// replays are acknowledged without changing anything
	code, _ = f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(pay.Reference, pay.Amount, "00"))
	assert.Equal(t, payment.VNPayRspAlreadyHandled, code)
}

func TestVNPayIPNFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	o, pay := placeVNPayOrder(t, f)

	code, _ := f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(pay.Reference, pay.Amount, "24"))
	assert.Equal(t, payment.VNPayRspSuccess, code)
	assert.Equal(t, model.PayFailed, reload[model.Payment](t, f.db, pay.ID).Status)
	order := reload[model.Order](t, f.db, o.ID)
	assert.Equal(t, model.PayFailed, order.PaymentStatus)
	assert.Equal(t, model.OrderPending, order.Status)

	// the customer may retry with a fresh payment
	payURL, err := f.orders.Pay(ctx, f.user.ID, o.ID, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, payURL)
	var n int64
	f.db.Model(&model.Payment{}).Where("order_id = ?", o.ID).Count(&n)
	assert.Equal(t, int64(2), n)
}

func TestPaymentAfterCancellationIsRefunded(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	o, pay := placeVNPayOrder(t, f)

	_, err := f.orders.Cancel(ctx, f.user.ID, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PayFailed, reload[model.Payment](t, f.db, pay.ID).Status)

	code, _ := f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(pay.Reference, pay.Amount, "00"))
	assert.Equal(t, payment.VNPayRspSuccess, code)
	assert.Equal(t, model.PayRefunded, reload[model.Payment](t, f.db, pay.ID).Status)
	order := reload[model.Order](t, f.db, o.ID)
	assert.Equal(t, model.OrderCancelled, order.Status)
	assert.Equal(t, model.PayRefunded, order.PaymentStatus)
}

func TestVerifyVNPayReturn(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	r, err := f.payments.VerifyVNPayReturn(ctx, signedVNPayQuery("ref-1", 120000, "00"))
	require.NoError(t, err)
	assert.True(t, r.Success())
	assert.Equal(t, int64(120000), r.Amount)

	q := signedVNPayQuery("ref-1", 120000, "00")
	q.Set("vnp_ResponseCode", "24")
	_, err = f.payments.VerifyVNPayReturn(ctx, q)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestHandleMoMo(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	momo, _ := testGateways()

	o, _ := placeVNPayOrder(t, f)
	pay := model.Payment{OrderID: o.ID, Provider: model.MethodMoMo, Reference: "momo-ref", Amount: o.Total, Status: model.PayPending}
	require.NoError(t, f.db.Create(&pay).Error)

	r := payment.MoMoResult{
		PartnerCode: "MOMO", OrderID: "momo-ref", RequestID: "req", Amount: o.Total,
		TransID: 777, ResultCode: 0, Message: "Successful.", ResponseTime: 1,
	}
	r.Signature = momo.ResultSignature(r)

	forged := r
	forged.Signature = "00"
	_, err := f.payments.HandleMoMo(ctx, forged)
	assert.ErrorIs(t, err, ErrBadSignature)

	got, err := f.payments.HandleMoMo(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, model.PayPaid, got.Status)
	assert.Equal(t, "777", got.TransactionID)

	_, err = f.payments.HandleMoMo(ctx, r)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestInitiateRejectsUnpayableOrders(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.payments.Initiate(ctx, model.Order{Code: "ORD-1", PaymentMethod: model.MethodCOD, Status: model.OrderPending}, "")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.payments.Initiate(ctx, model.Order{Code: "ORD-2", PaymentMethod: model.MethodVNPay, Status: model.OrderCancelled}, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.payments.Initiate(ctx, model.Order{Code: "ORD-3", PaymentMethod: model.MethodVNPay, PaymentStatus: model.PayPaid}, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReissuedPaymentCannotChargeTwice(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	o, first := placeVNPayOrder(t, f)

	_, err := f.orders.Pay(ctx, f.user.ID, o.ID, "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, model.PayFailed, reload[model.Payment](t, f.db, first.ID).Status, "superseded")
	var second model.Payment
	require.NoError(t, f.db.Where("order_id = ? AND status = ?", o.ID, model.PayPending).First(&second).Error)
	assert.NotEqual(t, first.Reference, second.Reference)

	// the customer completes both links at the gateway
	code, _ := f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(second.Reference, second.Amount, "00"))
	assert.Equal(t, payment.VNPayRspSuccess, code)
	code, _ = f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(first.Reference, first.Amount, "00"))
	assert.Equal(t, payment.VNPayRspSuccess, code)

	assert.Equal(t, model.PayPaid, reload[model.Payment](t, f.db, second.ID).Status)
	assert.Equal(t, model.PayRefunded, reload[model.Payment](t, f.db, first.ID).Status)
	order := reload[model.Order](t, f.db, o.ID)
	assert.Equal(t, model.PayPaid, order.PaymentStatus)
	assert.Equal(t, model.OrderConfirmed, order.Status)

	code, _ = f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(first.Reference, first.Amount, "00"))
	assert.Equal(t, payment.VNPayRspAlreadyHandled, code)
}

func TestSupersededPaymentStillSettlesUnpaidOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	o, first := placeVNPayOrder(t, f)
	_, err := f.orders.Pay(ctx, f.user.ID, o.ID, "127.0.0.1")
	require.NoError(t, err)

	code, _ := f.payments.HandleVNPayIPN(ctx, signedVNPayQuery(first.Reference, first.Amount, "00"))
	assert.Equal(t, payment.VNPayRspSuccess, code)
	assert.Equal(t, model.PayPaid, reload[model.Payment](t, f.db, first.ID).Status)
	assert.Equal(t, model.PayPaid, reload[model.Order](t, f.db, o.ID).PaymentStatus)

	// paying again is refused once the order is settled
	_, err = f.orders.Pay(ctx, f.user.ID, o.ID, "127.0.0.1")
	assert.ErrorIs(t, err, ErrConflict)
}
