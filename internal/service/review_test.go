package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

func deliveredOrder(t *testing.T, db *gorm.DB, userID, productID uint, code string) {
	t.Helper()
	o := model.Order{
		Code: code, UserID: userID, Status: model.OrderDelivered,
		PaymentMethod: model.MethodCOD, PaymentStatus: model.PayPaid,
		Items: []model.OrderItem{{ProductID: productID, Name: "item", Price: 1000, Qty: 1}},
	}
	require.NoError(t, db.Create(&o).Error)
}

func TestReviewRequiresDeliveredPurchase(t *testing.T) {
	db := newTestDB(t)
	s := NewReviewService(db)
	ctx := context.Background()
	u := createUser(t, db, "reviewer@example.com")
	p := createProduct(t, db, "Desk", 1500000, 3)

	_, err := s.Create(ctx, u.ID, p.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrForbidden)

	pending := model.Order{Code: "ORD-P", UserID: u.ID, Status: model.OrderShipping, PaymentMethod: model.MethodCOD,
		PaymentStatus: model.PayUnpaid, Items: []model.OrderItem{{ProductID: p.ID, Qty: 1}}}
	require.NoError(t, db.Create(&pending).Error)
	_, err = s.Create(ctx, u.ID, p.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrForbidden, "order not delivered yet")

	deliveredOrder(t, db, u.ID, p.ID, "ORD-D")
	r, err := s.Create(ctx, u.ID, p.ID, ReviewInput{Rating: 4, Comment: `Solid <script>alert(1)</script><b>desk</b>`})
	require.NoError(t, err)
	assert.NotContains(t, r.Comment, "<")
	assert.Contains(t, r.Comment, "desk")

	_, err = s.Create(ctx, u.ID, p.ID, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Create(ctx, u.ID, 9999, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewAggregates(t *testing.T) {
	db := newTestDB(t)
	s := NewReviewService(db)
	ctx := context.Background()
	p := createProduct(t, db, "Chair", 900000, 3)
	a := createUser(t, db, "a@example.com")
	b := createUser(t, db, "b@example.com")
	deliveredOrder(t, db, a.ID, p.ID, "ORD-A")
	deliveredOrder(t, db, b.ID, p.ID, "ORD-B")

	ra, err := s.Create(ctx, a.ID, p.ID, ReviewInput{Rating: 5})
	require.NoError(t, err)
	_, err = s.Create(ctx, b.ID, p.ID, ReviewInput{Rating: 2})
	require.NoError(t, err)

	got := reload[model.Product](t, db, p.ID)
	assert.Equal(t, 2, got.RatingCount)
	assert.InDelta(t, 3.5, got.RatingAvg, 0.001)

	_, err = s.Update(ctx, b.ID, ra.ID, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.Update(ctx, a.ID, ra.ID, ReviewInput{Rating: 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, reload[model.Product](t, db, p.ID).RatingAvg, 0.001)

	assert.ErrorIs(t, s.Delete(ctx, b.ID, ra.ID), ErrForbidden)
	require.NoError(t, s.Delete(ctx, a.ID, ra.ID))
	got = reload[model.Product](t, db, p.ID)
	assert.Equal(t, 1, got.RatingCount)
	assert.InDelta(t, 2.0, got.RatingAvg, 0.001)

	list, total, err := s.ListForProduct(ctx, p.ID, NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].User)
	assert.Equal(t, "Test User", list[0].User.FullName)
	assert.Empty(t, list[0].User.Email)

	all, total, err := s.List(ctx, 0, NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.NoError(t, s.AdminDelete(ctx, all[0].ID))
	got = reload[model.Product](t, db, p.ID)
	assert.Equal(t, 0, got.RatingCount)
	assert.Zero(t, got.RatingAvg)
	assert.ErrorIs(t, s.AdminDelete(ctx, all[0].ID), ErrNotFound)
}
