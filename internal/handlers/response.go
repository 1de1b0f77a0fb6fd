package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"example.com/storefront/internal/service"
)

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func respondOK(c *gin.Context, data any, msg string) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: msg, Data: data})
}

func respondCreated(c *gin.Context, data any, msg string) {
	c.JSON(http.StatusCreated, envelope{Success: true, Message: msg, Data: data})
}

func respondPage(c *gin.Context, data any, p service.Page, total int64) {
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    data,
		Pagination: &pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: p.TotalPages(total),
		},
	})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: msg})
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{service.ErrInvalid, http.StatusBadRequest},
	{service.ErrCouponInvalid, http.StatusBadRequest},
	{service.ErrCartEmpty, http.StatusBadRequest},
	{service.ErrBadSignature, http.StatusBadRequest},
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrNotVerified, http.StatusForbidden},
	{service.ErrInactive, http.StatusForbidden},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrConflict, http.StatusConflict},
	{service.ErrExistsVerified, http.StatusConflict},
	{service.ErrInsufficientStock, http.StatusConflict},
	{gorm.ErrDuplicatedKey, http.StatusConflict},
}

// respondErr answers with the status mapped from err's kind; unknown errors are
// logged and reported generically.
func respondErr(c *gin.Context, log *zap.Logger, err error) {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			msg := service.Message(err)
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				msg = "already exists"
			}
			fail(c, m.status, msg)
			return
		}
	}
	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Error(err))
	fail(c, http.StatusInternalServerError, "internal server error")
}

// bind decodes the JSON body into dst and answers 400 with the first
// validation message on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "email":
			return field + " must be a valid email"
		case "url":
			return field + " must be a valid URL"
		case "min", "gte":
			if fe.Kind() == reflect.String {
				return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
			}
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max", "lte":
			if fe.Kind() == reflect.String {
				return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
			}
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "gt":
			return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "oneof":
			return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		default:
			return field + " is invalid"
		}
	}
	return "invalid JSON body"
}

var registerTagName sync.Once

// UseJSONFieldNames makes validation errors report json field names.
func UseJSONFieldNames() {
	registerTagName.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})
		}
	})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func pageParams(c *gin.Context) service.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return service.NewPage(page, limit)
}
