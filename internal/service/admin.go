package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type AdminService interface {
	Login(ctx context.Context, email, password string) (string, model.Admin, error)
	Authenticate(ctx context.Context, token string) (uint, error)
	Me(ctx context.Context, adminID uint) (model.Admin, error)
	EnsureBootstrap(ctx context.Context, email, password string) error
	ListUsers(ctx context.Context, q string, p Page) ([]model.User, int64, error)
	SetUserActive(ctx context.Context, userID uint, active bool) (model.User, error)
}

type adminService struct {
	db     *gorm.DB
	tokens *Tokens
	log    *zap.Logger
}

func NewAdminService(db *gorm.DB, tokens *Tokens, log *zap.Logger) AdminService {
	return &adminService{db: db, tokens: tokens, log: log}
}

func (s *adminService) Login(ctx context.Context, email, password string) (string, model.Admin, error) {
	db := s.db.WithContext(ctx)
	var a model.Admin
	err := db.Where("email = ?", normEmail(email)).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", model.Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.Admin{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", model.Admin{}, ErrInvalidCredentials
	}
	if !a.IsActive {
		return "", model.Admin{}, ErrInactive
	}
	now := time.Now()
	if err := db.Model(&a).Update("last_login_at", now).Error; err != nil {
		return "", model.Admin{}, err
	}
	a.LastLoginAt = &now
	tok, err := s.tokens.Issue(TokenAdmin, a.ID, 0)
	if err != nil {
		return "", model.Admin{}, err
	}
	return tok, a, nil
}

// Authenticate resolves an admin token. A valid customer session token is
// reported as ErrForbidden so callers can answer 403 instead of 401.
func (s *adminService) Authenticate(ctx context.Context, token string) (uint, error) {
	id, err := s.tokens.Parse(token, TokenAdmin)
	if err != nil {
		if _, uerr := s.tokens.Parse(token, TokenSession); uerr == nil {
			return 0, ErrForbidden
		}
		return 0, err
	}
	var a model.Admin
	if err := s.db.WithContext(ctx).Select("id", "is_active").First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}
	if !a.IsActive {
		return 0, ErrInactive
	}
	return a.ID, nil
}

func (s *adminService) Me(ctx context.Context, adminID uint) (model.Admin, error) {
	var a model.Admin
	if err := s.db.WithContext(ctx).First(&a, adminID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, Errorf(ErrNotFound, "admin not found")
		}
		return a, err
	}
	return a, nil
}

// EnsureBootstrap creates the first superadmin when the table is empty.
func (s *adminService) EnsureBootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&model.Admin{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a := model.Admin{
		Email:        normEmail(email),
		PasswordHash: string(hash),
		Name:         "Administrator",
		Role:         model.AdminRoleSuperAdmin,
		IsActive:     true,
	}
	if err := db.Create(&a).Error; err != nil {
		return err
	}
	s.log.Info("bootstrap admin created", zap.String("email", a.Email))
	return nil
}

func (s *adminService) ListUsers(ctx context.Context, q string, p Page) ([]model.User, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []model.User
	err := tx.Order("id desc").Offset(p.Offset()).Limit(p.Limit).Find(&users).Error
	return users, total, err
}

func (s *adminService) SetUserActive(ctx context.Context, userID uint, active bool) (model.User, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&model.User{}).Where("id = ?", userID).Update("is_active", active)
	if res.Error != nil {
		return model.User{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.User{}, Errorf(ErrNotFound, "user not found")
	}
	var u model.User
	return u, db.First(&u, userID).Error
}
