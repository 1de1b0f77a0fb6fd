package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/storefront/internal/service"
)

// ShopHTTP serves the signed-in customer's cart, checkout, orders and
// address book, plus the public coupon and announcement endpoints.
type ShopHTTP struct {
	Cart          service.CartService
	Checkout      service.CheckoutService
	Orders        service.OrderService
	Addresses     service.AddressService
	Coupons       service.CouponService
	Announcements service.AnnouncementService
	Log           *zap.Logger
}

type cartAddReq struct {
	ProductID uint `json:"product_id" binding:"required"`
	Qty       int  `json:"qty" binding:"required,gt=0"`
}

type cartQtyReq struct {
	Qty *int `json:"qty" binding:"required,gte=0"`
}

func (h *ShopHTTP) GetCart(c *gin.Context) {
	cart, err := h.Cart.Get(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, cart, "")
}

func (h *ShopHTTP) AddToCart(c *gin.Context) {
	var in cartAddReq
	if !bind(c, &in) {
		return
	}
	if err := h.Cart.Add(c.Request.Context(), userID(c), in.ProductID, in.Qty); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	h.GetCart(c)
}

func (h *ShopHTTP) SetCartQty(c *gin.Context) {
	pid, valid := idParam(c, "productId")
	if !valid {
		return
	}
	var in cartQtyReq
	if !bind(c, &in) {
		return
	}
	if err := h.Cart.SetQty(c.Request.Context(), userID(c), pid, *in.Qty); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	h.GetCart(c)
}

func (h *ShopHTTP) RemoveFromCart(c *gin.Context) {
	pid, valid := idParam(c, "productId")
	if !valid {
		return
	}
	if err := h.Cart.Remove(c.Request.Context(), userID(c), pid); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	h.GetCart(c)
}

func (h *ShopHTTP) ClearCart(c *gin.Context) {
	if err := h.Cart.Clear(c.Request.Context(), userID(c)); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "cart cleared")
}

func (h *ShopHTTP) PlaceOrder(c *gin.Context) {
	var in service.CheckoutInput
	if !bind(c, &in) {
		return
	}
	in.ClientIP = c.ClientIP()
	res, err := h.Checkout.Checkout(c.Request.Context(), userID(c), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, res, "order placed")
}

func (h *ShopHTTP) ListOrders(c *gin.Context) {
	p := pageParams(c)
	orders, total, err := h.Orders.ListMine(c.Request.Context(), userID(c), c.Query("status"), p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, orders, p, total)
}

func (h *ShopHTTP) GetOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	o, err := h.Orders.GetMine(c.Request.Context(), userID(c), id)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, o, "")
}

type cancelReq struct {
	Reason string `json:"reason" binding:"max=500"`
}

func (h *ShopHTTP) CancelOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in cancelReq
	// the body is optional
	if c.Request.ContentLength > 0 && !bind(c, &in) {
		return
	}
	o, err := h.Orders.Cancel(c.Request.Context(), userID(c), id, in.Reason)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, o, "order cancelled")
}

func (h *ShopHTTP) PayOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	url, err := h.Orders.Pay(c.Request.Context(), userID(c), id, c.ClientIP())
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, gin.H{"payment_url": url}, "")
}

func (h *ShopHTTP) ListAddresses(c *gin.Context) {
	as, err := h.Addresses.List(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, as, "")
}

func (h *ShopHTTP) CreateAddress(c *gin.Context) {
	var in service.AddressInput
	if !bind(c, &in) {
		return
	}
	a, err := h.Addresses.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, a, "address saved")
}

func (h *ShopHTTP) UpdateAddress(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.AddressInput
	if !bind(c, &in) {
		return
	}
	a, err := h.Addresses.Update(c.Request.Context(), userID(c), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, a, "address updated")
}

func (h *ShopHTTP) DeleteAddress(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Addresses.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "address deleted")
}

func (h *ShopHTTP) DefaultAddress(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	a, err := h.Addresses.SetDefault(c.Request.Context(), userID(c), id)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, a, "default address updated")
}

type couponCheckReq struct {
	Code     string `json:"code" binding:"required"`
	Subtotal int64  `json:"subtotal" binding:"gte=0"`
}

func (h *ShopHTTP) ValidateCoupon(c *gin.Context) {
	var in couponCheckReq
	if !bind(c, &in) {
		return
	}
	q, err := h.Coupons.Validate(c.Request.Context(), in.Code, in.Subtotal)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, q, "coupon applied")
}

func (h *ShopHTTP) ActiveAnnouncements(c *gin.Context) {
	as, err := h.Announcements.Active(c.Request.Context())
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, as, "")
}
