package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type AddressInput struct {
	FullName  string `json:"full_name" binding:"required,max=120"`
	Phone     string `json:"phone" binding:"required,max=20"`
	Line1     string `json:"line1" binding:"required,max=255"`
	Ward      string `json:"ward" binding:"max=100"`
	District  string `json:"district" binding:"max=100"`
	City      string `json:"city" binding:"required,max=100"`
	IsDefault bool   `json:"is_default"`
}

type AddressService interface {
	List(ctx context.Context, userID uint) ([]model.Address, error)
	Create(ctx context.Context, userID uint, in AddressInput) (model.Address, error)
	Update(ctx context.Context, userID, id uint, in AddressInput) (model.Address, error)
	Delete(ctx context.Context, userID, id uint) error
	SetDefault(ctx context.Context, userID, id uint) (model.Address, error)
}

type addressService struct{ db *gorm.DB }

func NewAddressService(db *gorm.DB) AddressService { return &addressService{db: db} }

func (s *addressService) List(ctx context.Context, userID uint) ([]model.Address, error) {
	as := []model.Address{}
	return as, s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default desc, id desc").Find(&as).Error
}

func (s *addressService) Create(ctx context.Context, userID uint, in AddressInput) (model.Address, error) {
	a := model.Address{UserID: userID}
	applyAddressInput(&a, in)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Address{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		// the first address is always the default
		if n == 0 {
			a.IsDefault = true
		}
		if a.IsDefault {
			if err := clearDefault(tx, userID); err != nil {
				return err
			}
		}
		return tx.Create(&a).Error
	})
	return a, err
}

func (s *addressService) Update(ctx context.Context, userID, id uint, in AddressInput) (model.Address, error) {
	var a model.Address
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if a, err = ownedAddress(tx, userID, id); err != nil {
			return err
		}
		wasDefault := a.IsDefault
		applyAddressInput(&a, in)
		// unsetting goes through deleting or choosing another default
		if wasDefault {
			a.IsDefault = true
		}
		if a.IsDefault && !wasDefault {
			if err := clearDefault(tx, userID); err != nil {
				return err
			}
		}
		return tx.Save(&a).Error
	})
	return a, err
}

func (s *addressService) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := ownedAddress(tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&a).Error; err != nil {
			return err
		}
		if !a.IsDefault {
			return nil
		}
		var next model.Address
		err = tx.Where("user_id = ?", userID).Order("id desc").First(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_default", true).Error
	})
}

func (s *addressService) SetDefault(ctx context.Context, userID, id uint) (model.Address, error) {
	var a model.Address
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if a, err = ownedAddress(tx, userID, id); err != nil {
			return err
		}
		if err := clearDefault(tx, userID); err != nil {
			return err
		}
		a.IsDefault = true
		return tx.Model(&a).Update("is_default", true).Error
	})
	return a, err
}

func ownedAddress(tx *gorm.DB, userID, id uint) (model.Address, error) {
	var a model.Address
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, Errorf(ErrNotFound, "address not found")
		}
		return a, err
	}
	return a, nil
}

func clearDefault(tx *gorm.DB, userID uint) error {
	return tx.Model(&model.Address{}).Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func applyAddressInput(a *model.Address, in AddressInput) {
	a.FullName = strings.TrimSpace(in.FullName)
	a.Phone = strings.TrimSpace(in.Phone)
	a.Line1 = strings.TrimSpace(in.Line1)
	a.Ward = strings.TrimSpace(in.Ward)
	a.District = strings.TrimSpace(in.District)
	a.City = strings.TrimSpace(in.City)
	a.IsDefault = in.IsDefault
}
