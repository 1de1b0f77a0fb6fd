package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	vnpVersion = "2.1.0"
	vnpLayout  = "20060102150405"
	vnpExpiry  = 15 * time.Minute
)

// VNPay timestamps are always Vietnam local time.
var vnTZ = time.FixedZone("ICT", 7*60*60)

type VNPayConfig struct {
	PayURL     string
	TmnCode    string
	HashSecret string
	ReturnURL  string
}

type VNPay struct {
	cfg VNPayConfig
}

func NewVNPay(cfg VNPayConfig) *VNPay { return &VNPay{cfg: cfg} }

func (v *VNPay) Enabled() bool {
	return v.cfg.PayURL != "" && v.cfg.TmnCode != "" && v.cfg.HashSecret != ""
}

type VNPayRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	IPAddr    string
	Locale    string
	CreatedAt time.Time
}

// Sign returns the lowercase hex HMAC-SHA512 of data under the hash secret.
func (v *VNPay) Sign(data string) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentURL builds the signed redirect URL. The hash covers the key-sorted,
// form-encoded vnp_* parameters, which is exactly url.Values.Encode.
func (v *VNPay) PaymentURL(r VNPayRequest) (string, error) {
	if !v.Enabled() {
		return "", fmt.Errorf("vnpay: not configured")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	locale := r.Locale
	if locale == "" {
		locale = "vn"
	}
	ip := r.IPAddr
	if ip == "" {
		ip = "127.0.0.1"
	}
	q := url.Values{}
	q.Set("vnp_Version", vnpVersion)
	q.Set("vnp_Command", "pay")
	q.Set("vnp_TmnCode", v.cfg.TmnCode)
	q.Set("vnp_Amount", strconv.FormatInt(r.Amount*100, 10))
	q.Set("vnp_CurrCode", "VND")
	q.Set("vnp_TxnRef", r.TxnRef)
	q.Set("vnp_OrderInfo", r.OrderInfo)
	q.Set("vnp_OrderType", "other")
	q.Set("vnp_Locale", locale)
	q.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	q.Set("vnp_IpAddr", ip)
	q.Set("vnp_CreateDate", created.In(vnTZ).Format(vnpLayout))
	q.Set("vnp_ExpireDate", created.Add(vnpExpiry).In(vnTZ).Format(vnpLayout))

	data := q.Encode()
	return v.cfg.PayURL + "?" + data + "&vnp_SecureHash=" + v.Sign(data), nil
}

// Verify checks vnp_SecureHash on a return or IPN query.
func (v *VNPay) Verify(q url.Values) bool {
	got := strings.ToLower(q.Get("vnp_SecureHash"))
	if v.cfg.HashSecret == "" || got == "" {
		return false
	}
	params := url.Values{}
	for k, vs := range q {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		params[k] = vs
	}
	return hmac.Equal([]byte(v.Sign(params.Encode())), []byte(got))
}

type VNPayResult struct {
	TxnRef            string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
}

func (r VNPayResult) Success() bool {
	return r.ResponseCode == "00" && r.TransactionStatus == "00"
}

// ParseVNPay reads the result fields; Amount is converted back to VND.
// ErrVNPayAmount reports a vnp_Amount that is not a whole number of dong.
var ErrVNPayAmount = errors.New("vnpay: amount is not a multiple of 100")

func ParseVNPay(q url.Values) (VNPayResult, error) {
	amt, err := strconv.ParseInt(q.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return VNPayResult{}, fmt.Errorf("vnpay: amount: %w", err)
	}
	if amt%100 != 0 {
		return VNPayResult{}, ErrVNPayAmount
	}
	return VNPayResult{
		TxnRef:            q.Get("vnp_TxnRef"),
		Amount:            amt / 100,
		ResponseCode:      q.Get("vnp_ResponseCode"),
		TransactionStatus: q.Get("vnp_TransactionStatus"),
		TransactionNo:     q.Get("vnp_TransactionNo"),
		BankCode:          q.Get("vnp_BankCode"),
	}, nil
}

// IPN reply codes.
const (
	VNPayRspSuccess        = "00"
	VNPayRspOrderNotFound  = "01"
	VNPayRspAlreadyHandled = "02"
	VNPayRspInvalidAmount  = "04"
	VNPayRspBadChecksum    = "97"
	VNPayRspUnknown        = "99"
)
