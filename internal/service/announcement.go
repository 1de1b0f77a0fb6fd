package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type AnnouncementInput struct {
	Title    string     `json:"title" binding:"required,max=200"`
	Content  string     `json:"content"`
	IsActive *bool      `json:"is_active"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type AnnouncementService interface {
	Active(ctx context.Context) ([]model.Announcement, error)
	List(ctx context.Context, p Page) ([]model.Announcement, int64, error)
	Create(ctx context.Context, in AnnouncementInput) (model.Announcement, error)
	Update(ctx context.Context, id uint, in AnnouncementInput) (model.Announcement, error)
	Delete(ctx context.Context, id uint) error
}

type announcementService struct {
	db     *gorm.DB
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewAnnouncementService(db *gorm.DB) AnnouncementService {
	return &announcementService{db: db, policy: bluemonday.UGCPolicy(), now: time.Now}
}

func (s *announcementService) Active(ctx context.Context) ([]model.Announcement, error) {
	now := s.now()
	as := []model.Announcement{}
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at >= ?", now).
		Order("id desc").Find(&as).Error
	return as, err
}

func (s *announcementService) List(ctx context.Context, p Page) ([]model.Announcement, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Announcement{})
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	as := []model.Announcement{}
	err := tx.Order("id desc").Offset(p.Offset()).Limit(p.Limit).Find(&as).Error
	return as, total, err
}

func (s *announcementService) Create(ctx context.Context, in AnnouncementInput) (model.Announcement, error) {
	a := model.Announcement{IsActive: true}
	if err := s.apply(&a, in); err != nil {
		return a, err
	}
	return a, s.db.WithContext(ctx).Create(&a).Error
}

func (s *announcementService) Update(ctx context.Context, id uint, in AnnouncementInput) (model.Announcement, error) {
	db := s.db.WithContext(ctx)
	var a model.Announcement
	if err := db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, Errorf(ErrNotFound, "announcement not found")
		}
		return a, err
	}
	if err := s.apply(&a, in); err != nil {
		return a, err
	}
	return a, db.Save(&a).Error
}

func (s *announcementService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Announcement{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "announcement not found")
	}
	return nil
}

func (s *announcementService) apply(a *model.Announcement, in AnnouncementInput) error {
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return Errorf(ErrInvalid, "ends_at must be after starts_at")
	}
	a.Title = strings.TrimSpace(in.Title)
	a.Content = s.policy.Sanitize(in.Content)
	a.StartsAt = in.StartsAt
	a.EndsAt = in.EndsAt
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	return nil
}
