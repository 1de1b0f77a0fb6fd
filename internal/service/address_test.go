package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

func defaults(t *testing.T, db *gorm.DB, userID uint) []uint {
	t.Helper()
	var ids []uint
	require.NoError(t, db.Model(&model.Address{}).Where("user_id = ? AND is_default = ?", userID, true).Pluck("id", &ids).Error)
	return ids
}

func TestAddressDefaults(t *testing.T) {
	db := newTestDB(t)
	s := NewAddressService(db)
	ctx := context.Background()
	u := createUser(t, db, "home@example.com")
	in := AddressInput{FullName: "Le C", Phone: "0900000000", Line1: "10 Nguyen Hue", City: "HCMC"}

	first, err := s.Create(ctx, u.ID, in)
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first address becomes default")

	second, err := s.Create(ctx, u.ID, in)
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
	assert.Equal(t, []uint{first.ID}, defaults(t, db, u.ID))

	in.IsDefault = true
	third, err := s.Create(ctx, u.ID, in)
	require.NoError(t, err)
	assert.Equal(t, []uint{third.ID}, defaults(t, db, u.ID))

	_, err = s.SetDefault(ctx, u.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{first.ID}, defaults(t, db, u.ID))

	// the default flag cannot be dropped by an update
	in.IsDefault = false
	in.City = "Hanoi"
	updated, err := s.Update(ctx, u.ID, first.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.IsDefault)
	assert.Equal(t, "Hanoi", updated.City)

	// deleting the default promotes the newest remaining address
	require.NoError(t, s.Delete(ctx, u.ID, first.ID))
	assert.Equal(t, []uint{third.ID}, defaults(t, db, u.ID))

	list, err := s.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, third.ID, list[0].ID)
}

func TestAddressOwnership(t *testing.T) {
	db := newTestDB(t)
	s := NewAddressService(db)
	ctx := context.Background()
	owner := createUser(t, db, "owner@example.com")
	intruder := createUser(t, db, "intruder@example.com")

	a, err := s.Create(ctx, owner.ID, AddressInput{FullName: "Pham D", Phone: "0912", Line1: "1 A", City: "Da Nang"})
	require.NoError(t, err)

	_, err = s.Update(ctx, intruder.ID, a.ID, AddressInput{FullName: "x", Phone: "1", Line1: "x", City: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, intruder.ID, a.ID), ErrNotFound)
	_, err = s.SetDefault(ctx, intruder.ID, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.List(ctx, intruder.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddressFull(t *testing.T) {
	a := model.Address{Line1: "12 Ly Tu Trong", Ward: "Ben Nghe", District: "District 1", City: "HCMC"}
	assert.Equal(t, "12 Ly Tu Trong, Ben Nghe, District 1, HCMC", a.Full())
	assert.Equal(t, "1 A, Hue", model.Address{Line1: "1 A", City: "Hue"}.Full())
}
