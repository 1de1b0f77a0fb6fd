package service

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
	"example.com/storefront/internal/payment"
)

type checkoutFixture struct {
	db       *gorm.DB
	mail     *mailbox
	cart     CartService
	checkout CheckoutService
	orders   OrderService
	payments PaymentService
	user     model.User
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	db := newTestDB(t)
	mail := &mailbox{}
	payments := newPayments(db)
	return checkoutFixture{
		db:       db,
		mail:     mail,
		cart:     NewCartService(db),
		checkout: NewCheckoutService(db, mail, payments, zap.NewNop()),
		orders:   NewOrderService(db, payments, zap.NewNop()),
		payments: payments,
		user:     createUser(t, db, "buyer@example.com"),
	}
}

var shipTo = &ShippingInput{Name: "Nguyen Van A", Phone: "0901234567", Address: "1 Le Loi, District 1, HCMC"}

func TestShippingFor(t *testing.T) {
	assert.Equal(t, ShippingFee, ShippingFor(0))
	assert.Equal(t, ShippingFee, ShippingFor(FreeShippingFrom-1))
	assert.Equal(t, int64(0), ShippingFor(FreeShippingFrom))
}

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	shirt := createProduct(t, f.db, "Shirt", 150000, 10)
	hat := createProduct(t, f.db, "Cap", 50000, 5)
	coupon := createCoupon(t, f.db, model.Coupon{Code: "TEN", Type: model.CouponPercent, Value: 10, UsageLimit: 5})

	require.NoError(t, f.cart.Add(ctx, f.user.ID, shirt.ID, 2))
	require.NoError(t, f.cart.Add(ctx, f.user.ID, hat.ID, 1))

	res, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{
		Shipping: shipTo, CouponCode: "ten", PaymentMethod: model.MethodCOD,
	})
	require.NoError(t, err)
	o := res.Order
	assert.Empty(t, res.PaymentURL)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[A-Z2-9]{6}$`), o.Code)
	assert.Equal(t, int64(350000), o.Subtotal)
	assert.Equal(t, int64(35000), o.Discount)
	assert.Equal(t, ShippingFee, o.ShippingFee)
	assert.Equal(t, int64(350000-35000+30000), o.Total)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, model.PayUnpaid, o.PaymentStatus)
	assert.Equal(t, "TEN", o.CouponCode)
	assert.Len(t, o.Items, 2)

	assert.Equal(t, 8, reload[model.Product](t, f.db, shirt.ID).Stock)
	assert.Equal(t, 2, reload[model.Product](t, f.db, shirt.ID).SoldCount)
	assert.Equal(t, 4, reload[model.Product](t, f.db, hat.ID).Stock)
	assert.Equal(t, 1, reload[model.Coupon](t, f.db, coupon.ID).UsedCount)

	cart, err := f.cart.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	assert.Equal(t, "buyer@example.com", f.mail.last().To)
	assert.Contains(t, f.mail.last().Subject, o.Code)
}

func TestCheckoutFreeShipping(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	p := createProduct(t, f.db, "Sneakers", 699000, 3)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))

	res, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, PaymentMethod: model.MethodCOD})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Order.ShippingFee)
	assert.Equal(t, int64(699000), res.Order.Total)
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	a := createProduct(t, f.db, "Plenty", 10000, 10)
	b := createProduct(t, f.db, "Scarce", 10000, 2)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, a.ID, 3))
	require.NoError(t, f.cart.Add(ctx, f.user.ID, b.ID, 2))

	// someone else bought the last units in the meantime
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", b.ID).Update("stock", 1).Error)

	_, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, PaymentMethod: model.MethodCOD})
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 10, reload[model.Product](t, f.db, a.ID).Stock)
	var orders int64
	f.db.Model(&model.Order{}).Count(&orders)
	assert.Zero(t, orders)
	cart, _ := f.cart.Get(ctx, f.user.ID)
	assert.Len(t, cart.Items, 2)
}

func TestCheckoutRejects(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, PaymentMethod: model.MethodCOD})
	assert.ErrorIs(t, err, ErrCartEmpty)

	p := createProduct(t, f.db, "Mug", 90000, 5)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))

	_, err = f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{PaymentMethod: model.MethodCOD})
	assert.ErrorIs(t, err, ErrInvalid, "no shipping and no default address")

	_, err = f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{AddressID: 999, PaymentMethod: model.MethodCOD})
	assert.ErrorIs(t, err, ErrNotFound)

	createCoupon(t, f.db, model.Coupon{Code: "BIGSPEND", Type: model.CouponFixed, Value: 5000, MinOrder: 1000000})
	_, err = f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, CouponCode: "BIGSPEND", PaymentMethod: model.MethodCOD})
	assert.ErrorIs(t, err, ErrCouponInvalid)
	assert.Equal(t, 5, reload[model.Product](t, f.db, p.ID).Stock)
}

func TestCheckoutUsesDefaultAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	addr, err := NewAddressService(f.db).Create(ctx, f.user.ID, AddressInput{
		FullName: "Tran B", Phone: "0911111111", Line1: "5 Hai Ba Trung", District: "District 3", City: "HCMC",
	})
	require.NoError(t, err)
	p := createProduct(t, f.db, "Lamp", 120000, 5)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))

	res, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{PaymentMethod: model.MethodCOD})
	require.NoError(t, err)
	assert.Equal(t, "Tran B", res.Order.ShippingName)
	assert.Equal(t, addr.Full(), res.Order.ShippingAddress)
}

func TestCheckoutVNPayReturnsPaymentURL(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	p := createProduct(t, f.db, "Headphones", 300000, 5)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))

	res, err := f.checkout.Checkout(ctx, f.user.ID, CheckoutInput{
		Shipping: shipTo, PaymentMethod: model.MethodVNPay, ClientIP: "10.1.2.3",
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.PaymentURL, "https://vnpay.test/pay?"))

	var pay model.Payment
	require.NoError(t, f.db.Where("order_id = ?", res.Order.ID).First(&pay).Error)
	assert.Equal(t, model.PayPending, pay.Status)
	assert.Equal(t, res.Order.Total, pay.Amount)
	assert.Contains(t, res.PaymentURL, "vnp_TxnRef="+pay.Reference)
	require.Len(t, res.Order.Payments, 1)
	assert.Equal(t, pay.Reference, res.Order.Payments[0].Reference)
}

func TestCheckoutRejectsUnconfiguredGateway(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	_, vnpay := testGateways()
	payments := NewPaymentService(f.db, payment.NewMoMo(payment.MoMoConfig{}, nil), vnpay, zap.NewNop())
	checkout := NewCheckoutService(f.db, f.mail, payments, zap.NewNop())
	p := createProduct(t, f.db, "Kettle", 250000, 1)
	require.NoError(t, f.cart.Add(ctx, f.user.ID, p.ID, 1))

	_, err := checkout.Checkout(ctx, f.user.ID, CheckoutInput{Shipping: shipTo, PaymentMethod: model.MethodMoMo})
	assert.ErrorIs(t, err, ErrInvalid)

	var orders, pays int64
	f.db.Model(&model.Order{}).Count(&orders)
	f.db.Model(&model.Payment{}).Count(&pays)
	assert.Zero(t, orders)
	assert.Zero(t, pays)
	assert.Equal(t, 1, reload[model.Product](t, f.db, p.ID).Stock)
	cart, err := f.cart.Get(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}
