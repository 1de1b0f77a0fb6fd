package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/storefront/internal/service"
)

// AdminHTTP serves the back office. Every route except Login sits behind
// RequireAdmin.
type AdminHTTP struct {
	Admins        service.AdminService
	Products      service.ProductService
	Orders        service.OrderService
	Coupons       service.CouponService
	Reviews       service.ReviewService
	Announcements service.AnnouncementService
	Dashboard     service.DashboardService
	Log           *zap.Logger
	SessionTTL    time.Duration
	SecureCookie  bool
}

func (h *AdminHTTP) Login(c *gin.Context) {
	var in loginReq
	if !bind(c, &in) {
		return
	}
	tok, a, err := h.Admins.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	setSessionCookie(c, AdminSessionCookie, tok, int(h.SessionTTL.Seconds()), h.SecureCookie)
	respondOK(c, gin.H{"token": tok, "token_type": "Bearer", "admin": a}, "logged in")
}

func (h *AdminHTTP) Logout(c *gin.Context) {
	setSessionCookie(c, AdminSessionCookie, "", -1, h.SecureCookie)
	respondOK(c, nil, "logged out")
}

func (h *AdminHTTP) Me(c *gin.Context) {
	a, err := h.Admins.Me(c.Request.Context(), adminID(c))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, a, "")
}

func (h *AdminHTTP) Summary(c *gin.Context) {
	d, err := h.Dashboard.Summary(c.Request.Context())
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, d, "")
}

// --- products ---

func (h *AdminHTTP) ListProducts(c *gin.Context) {
	p := pageParams(c)
	f := productFilter(c)
	f.IncludeInactive = true
	ps, total, err := h.Products.List(c.Request.Context(), f, p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, ps, p, total)
}

func (h *AdminHTTP) CreateProduct(c *gin.Context) {
	var in service.ProductInput
	if !bind(c, &in) {
		return
	}
	p, err := h.Products.Create(c.Request.Context(), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, p, "product created")
}

func (h *AdminHTTP) UpdateProduct(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.ProductInput
	if !bind(c, &in) {
		return
	}
	p, err := h.Products.Update(c.Request.Context(), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, p, "product updated")
}

func (h *AdminHTTP) DeleteProduct(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Products.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "product deleted")
}

type stockReq struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *AdminHTTP) AdjustStock(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in stockReq
	if !bind(c, &in) {
		return
	}
	p, err := h.Products.AdjustStock(c.Request.Context(), id, in.Delta)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, p, "stock updated")
}

func (h *AdminHTTP) Seed(c *gin.Context) {
	if err := h.Products.Seed(c.Request.Context()); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "demo products seeded")
}

// --- orders ---

func (h *AdminHTTP) ListOrders(c *gin.Context) {
	p := pageParams(c)
	f := service.OrderFilter{Status: c.Query("status"), Query: c.Query("q")}
	orders, total, err := h.Orders.List(c.Request.Context(), f, p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, orders, p, total)
}

func (h *AdminHTTP) GetOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	o, err := h.Orders.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, o, "")
}

type orderStatusReq struct {
	Status string `json:"status" binding:"required,oneof=confirmed shipping delivered cancelled"`
	Reason string `json:"reason" binding:"max=500"`
}

func (h *AdminHTTP) UpdateOrderStatus(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in orderStatusReq
	if !bind(c, &in) {
		return
	}
	o, err := h.Orders.UpdateStatus(c.Request.Context(), id, in.Status, in.Reason)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	h.Log.Info("order status changed",
		zap.Uint("admin_id", adminID(c)), zap.Uint("order_id", id), zap.String("status", o.Status))
	respondOK(c, o, "order updated")
}

// --- coupons ---

func (h *AdminHTTP) ListCoupons(c *gin.Context) {
	p := pageParams(c)
	cs, total, err := h.Coupons.List(c.Request.Context(), p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, cs, p, total)
}

func (h *AdminHTTP) CreateCoupon(c *gin.Context) {
	var in service.CouponInput
	if !bind(c, &in) {
		return
	}
	cp, err := h.Coupons.Create(c.Request.Context(), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, cp, "coupon created")
}

func (h *AdminHTTP) UpdateCoupon(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.CouponInput
	if !bind(c, &in) {
		return
	}
	cp, err := h.Coupons.Update(c.Request.Context(), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, cp, "coupon updated")
}

func (h *AdminHTTP) DeleteCoupon(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Coupons.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "coupon deleted")
}

// --- reviews ---

func (h *AdminHTTP) ListReviews(c *gin.Context) {
	p := pageParams(c)
	var productID uint
	if v := c.Query("product_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "product_id must be a positive integer")
			return
		}
		productID = uint(id)
	}
	rs, total, err := h.Reviews.List(c.Request.Context(), productID, p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, rs, p, total)
}

func (h *AdminHTTP) DeleteReview(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Reviews.AdminDelete(c.Request.Context(), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "review deleted")
}

// --- announcements ---

func (h *AdminHTTP) ListAnnouncements(c *gin.Context) {
	p := pageParams(c)
	as, total, err := h.Announcements.List(c.Request.Context(), p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, as, p, total)
}

func (h *AdminHTTP) CreateAnnouncement(c *gin.Context) {
	var in service.AnnouncementInput
	if !bind(c, &in) {
		return
	}
	a, err := h.Announcements.Create(c.Request.Context(), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, a, "announcement created")
}

func (h *AdminHTTP) UpdateAnnouncement(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.AnnouncementInput
	if !bind(c, &in) {
		return
	}
	a, err := h.Announcements.Update(c.Request.Context(), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, a, "announcement updated")
}

func (h *AdminHTTP) DeleteAnnouncement(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Announcements.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "announcement deleted")
}

// --- users ---

func (h *AdminHTTP) ListUsers(c *gin.Context) {
	p := pageParams(c)
	us, total, err := h.Admins.ListUsers(c.Request.Context(), c.Query("q"), p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, us, p, total)
}

type activeReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *AdminHTTP) SetUserActive(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in activeReq
	if !bind(c, &in) {
		return
	}
	u, err := h.Admins.SetUserActive(c.Request.Context(), id, *in.IsActive)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, u, "user updated")
}
