package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"example.com/storefront/internal/payment"
	"example.com/storefront/internal/service"
)

// PaymentHTTP receives gateway callbacks. These routes are unauthenticated;
// trust comes from the gateway signatures.
type PaymentHTTP struct {
	S           service.PaymentService
	Log         *zap.Logger
	FrontendURL string
}

// MoMoIPN acknowledges with 204, including for notifications already applied.
func (h *PaymentHTTP) MoMoIPN(c *gin.Context) {
	var r payment.MoMoResult
	if err := c.ShouldBindJSON(&r); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, err := h.S.HandleMoMo(c.Request.Context(), r)
	switch {
	case err == nil, errors.Is(err, service.ErrConflict):
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrBadSignature):
		h.Log.Warn("momo ipn with bad signature", zap.String("order_id", r.OrderID))
		fail(c, http.StatusBadRequest, "invalid signature")
	default:
		respondErr(c, h.Log, err)
	}
}

func (h *PaymentHTTP) MoMoReturn(c *gin.Context) {
	r, err := h.S.VerifyMoMoReturn(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondErr(c, h.Log, err)
		return
	}
	status := "failed"
	if r.Success() {
		status = "success"
	}
	respondOK(c, gin.H{"reference": r.OrderID, "status": status, "message": r.Message}, "")
}

func (h *PaymentHTTP) VNPayIPN(c *gin.Context) {
	code, msg := h.S.HandleVNPayIPN(c.Request.Context(), c.Request.URL.Query())
	c.JSON(http.StatusOK, gin.H{"RspCode": code, "Message": msg})
}

func (h *PaymentHTTP) VNPayReturn(c *gin.Context) {
	q := url.Values{"provider": {"vnpay"}}
	r, err := h.S.VerifyVNPayReturn(c.Request.Context(), c.Request.URL.Query())
	switch {
	case err != nil:
		q.Set("status", "invalid")
	case r.Success():
		q.Set("status", "success")
		q.Set("ref", r.TxnRef)
	default:
		q.Set("status", "failed")
		q.Set("ref", r.TxnRef)
	}
	c.Redirect(http.StatusFound, h.FrontendURL+"/payment-result?"+q.Encode())
}
