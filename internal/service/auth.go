package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

const verifyTTL = 24 * time.Hour

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
	FullName string `json:"full_name" binding:"max=120"`
}

type ProfileInput struct {
	FullName string `json:"full_name" binding:"required,max=120"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) error
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (string, model.User, error) // returns JWT
	Authenticate(ctx context.Context, token string) (uint, error)                  // returns userID
	Me(ctx context.Context, userID uint) (model.User, error)
	UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (model.User, error)
	ChangePassword(ctx context.Context, userID uint, current, next string) error
}

type authService struct {
	db         *gorm.DB
	tokens     *Tokens
	email      EmailService
	log        *zap.Logger
	publicBase string
}

func NewAuthService(db *gorm.DB, tokens *Tokens, email EmailService, log *zap.Logger, publicBase string) AuthService {
	if publicBase == "" {
		publicBase = "http://localhost:8080"
	}
	return &authService{db: db, tokens: tokens, email: email, log: log, publicBase: strings.TrimRight(publicBase, "/")}
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// ---------------------------------------------------
// Register
// ---------------------------------------------------

func (a *authService) Register(ctx context.Context, in RegisterInput) error {
	email := normEmail(in.Email)
	db := a.db.WithContext(ctx)

	var existed model.User
	err := db.Where("email = ?", email).First(&existed).Error
	if err == nil {
		if !existed.Verified {
			if err := a.sendVerifyMail(existed.ID, existed.Email); err != nil {
				return err
			}
			return ErrExistsUnverified
		}
		return ErrExistsVerified
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		IsActive:     true,
	}
	if err := db.Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Errorf(ErrConflict, "email already registered")
		}
		return err
	}
	return a.sendVerifyMail(u.ID, u.Email)
}

func (a *authService) sendVerifyMail(userID uint, to string) error {
	token, err := a.tokens.Issue(TokenVerify, userID, verifyTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/api/auth/verify?token=%s", a.publicBase, url.QueryEscape(token))
	body := "Hello,\n\nPlease confirm your account by opening the link below:\n" + link + "\n\nThanks."
	if err := a.email.Send(to, "Verify your account", body); err != nil {
		a.log.Warn("verification mail failed", zap.String("to", to), zap.Error(err))
	}
	return nil
}

// ---------------------------------------------------
// VerifyEmail
// ---------------------------------------------------

func (a *authService) VerifyEmail(ctx context.Context, token string) error {
	id, err := a.tokens.Parse(token, TokenVerify)
	if err != nil {
		return err
	}
	now := time.Now()
	res := a.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"verified": true, "verified_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}

// ResendVerification never reports whether the address exists.
func (a *authService) ResendVerification(ctx context.Context, email string) error {
	var u model.User
	err := a.db.WithContext(ctx).Where("email = ?", normEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && u.Verified) {
		return nil
	}
	if err != nil {
		return err
	}
	return a.sendVerifyMail(u.ID, u.Email)
}

// ---------------------------------------------------
// Login
// ---------------------------------------------------

func (a *authService) Login(ctx context.Context, email, password string) (string, model.User, error) {
	var u model.User
	err := a.db.WithContext(ctx).Where("email = ?", normEmail(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", model.User{}, ErrInvalidCredentials
	}
	if !u.Verified {
		return "", model.User{}, ErrNotVerified
	}
	if !u.IsActive {
		return "", model.User{}, ErrInactive
	}
	tok, err := a.tokens.Issue(TokenSession, u.ID, 0)
	if err != nil {
		return "", model.User{}, err
	}
	return tok, u, nil
}

func (a *authService) Authenticate(ctx context.Context, token string) (uint, error) {
	id, err := a.tokens.Parse(token, TokenSession)
	if err != nil {
		return 0, err
	}
	var u model.User
	if err := a.db.WithContext(ctx).Select("id", "is_active").First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrInvalidToken
		}
		return 0, err
	}
	if !u.IsActive {
		return 0, ErrInactive
	}
	return u.ID, nil
}

func (a *authService) Me(ctx context.Context, userID uint) (model.User, error) {
	var u model.User
	if err := a.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return u, Errorf(ErrNotFound, "user not found")
		}
		return u, err
	}
	return u, nil
}

func (a *authService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (model.User, error) {
	err := a.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]any{"full_name": strings.TrimSpace(in.FullName), "phone": strings.TrimSpace(in.Phone)}).Error
	if err != nil {
		return model.User{}, err
	}
	return a.Me(ctx, userID)
}

func (a *authService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	u, err := a.Me(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return Errorf(ErrInvalid, "current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("password_hash", string(hash)).Error
}
