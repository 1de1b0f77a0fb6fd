package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/storefront/internal/service"
)

// CatalogHTTP serves products, their reviews and the wishlist.
type CatalogHTTP struct {
	Products service.ProductService
	Reviews  service.ReviewService
	Wishlist service.WishlistService
	Log      *zap.Logger
}

func productFilter(c *gin.Context) service.ProductFilter {
	minP, _ := strconv.ParseInt(c.Query("min_price"), 10, 64)
	maxP, _ := strconv.ParseInt(c.Query("max_price"), 10, 64)
	return service.ProductFilter{
		Category: c.Query("category"),
		Query:    c.Query("q"),
		MinPrice: minP,
		MaxPrice: maxP,
		Sort:     c.Query("sort"),
	}
}

func (h *CatalogHTTP) ListProducts(c *gin.Context) {
	p := pageParams(c)
	ps, total, err := h.Products.List(c.Request.Context(), productFilter(c), p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, ps, p, total)
}

func (h *CatalogHTTP) Categories(c *gin.Context) {
	cats, err := h.Products.Categories(c.Request.Context())
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, cats, "")
}

func (h *CatalogHTTP) GetProduct(c *gin.Context) {
	p, err := h.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, p, "")
}

func (h *CatalogHTTP) ListReviews(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	p := pageParams(c)
	rs, total, err := h.Reviews.ListForProduct(c.Request.Context(), id, p)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondPage(c, rs, p, total)
}

func (h *CatalogHTTP) CreateReview(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.ReviewInput
	if !bind(c, &in) {
		return
	}
	r, err := h.Reviews.Create(c.Request.Context(), userID(c), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondCreated(c, r, "review posted")
}

func (h *CatalogHTTP) UpdateReview(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var in service.ReviewInput
	if !bind(c, &in) {
		return
	}
	r, err := h.Reviews.Update(c.Request.Context(), userID(c), id, in)
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, r, "review updated")
}

func (h *CatalogHTTP) DeleteReview(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.Reviews.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "review deleted")
}

type productRef struct {
	ProductID uint `json:"product_id" binding:"required"`
}

func (h *CatalogHTTP) ListWishlist(c *gin.Context) {
	items, err := h.Wishlist.List(c.Request.Context(), userID(c))
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, items, "")
}

func (h *CatalogHTTP) AddWishlist(c *gin.Context) {
	var in productRef
	if !bind(c, &in) {
		return
	}
	if err := h.Wishlist.Add(c.Request.Context(), userID(c), in.ProductID); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "added to wishlist")
}

func (h *CatalogHTTP) RemoveWishlist(c *gin.Context) {
	id, valid := idParam(c, "productId")
	if !valid {
		return
	}
	if err := h.Wishlist.Remove(c.Request.Context(), userID(c), id); err != nil {
		respondErr(c, h.Log, err)
		return
	}
	respondOK(c, nil, "removed from wishlist")
}
