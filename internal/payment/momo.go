// Package payment talks to the MoMo and VNPay gateways: building signed
// payment requests and verifying the signatures on their callbacks.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const momoCreatePath = "/v2/gateway/api/create"

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
}

type MoMo struct {
	cfg    MoMoConfig
	client *http.Client
}

func NewMoMo(cfg MoMoConfig, client *http.Client) *MoMo {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &MoMo{cfg: cfg, client: client}
}

func (m *MoMo) Enabled() bool {
	return m.cfg.Endpoint != "" && m.cfg.PartnerCode != "" && m.cfg.SecretKey != ""
}

type MoMoCreate struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
}

type momoCreateBody struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

type momoCreateResp struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
}

// Sign returns the lowercase hex HMAC-SHA256 of raw under the secret key.
func (m *MoMo) Sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MoMo) createSignature(b momoCreateBody) string {
	raw := "accessKey=" + m.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(b.Amount, 10) +
		"&extraData=" + b.ExtraData +
		"&ipnUrl=" + b.IPNURL +
		"&orderId=" + b.OrderID +
		"&orderInfo=" + b.OrderInfo +
		"&partnerCode=" + b.PartnerCode +
		"&redirectUrl=" + b.RedirectURL +
		"&requestId=" + b.RequestID +
		"&requestType=" + b.RequestType
	return m.Sign(raw)
}

// CreatePayment registers the payment with MoMo and returns the pay URL the
// customer must be sent to.
func (m *MoMo) CreatePayment(ctx context.Context, in MoMoCreate) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("momo: not configured")
	}
	body := momoCreateBody{
		PartnerCode: m.cfg.PartnerCode,
		AccessKey:   m.cfg.AccessKey,
		RequestID:   in.RequestID,
		Amount:      in.Amount,
		OrderID:     in.OrderID,
		OrderInfo:   in.OrderInfo,
		RedirectURL: m.cfg.RedirectURL,
		IPNURL:      m.cfg.IPNURL,
		ExtraData:   in.ExtraData,
		RequestType: "captureWallet",
		Lang:        "vi",
	}
	body.Signature = m.createSignature(body)

	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint+momoCreatePath, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("momo: create: %w", err)
	}
	defer resp.Body.Close()

	var out momoCreateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("momo: decode create response (http %d): %w", resp.StatusCode, err)
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return "", fmt.Errorf("momo: create rejected: %d %s", out.ResultCode, out.Message)
	}
	return out.PayURL, nil
}

// MoMoResult is the payload of both the IPN body and the redirect query.
type MoMoResult struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

func (r MoMoResult) Success() bool { return r.ResultCode == 0 }

// ParseMoMoQuery reads a MoMo redirect query string.
func ParseMoMoQuery(q url.Values) (MoMoResult, error) {
	var r MoMoResult
	var err error
	r.PartnerCode = q.Get("partnerCode")
	r.OrderID = q.Get("orderId")
	r.RequestID = q.Get("requestId")
	r.OrderInfo = q.Get("orderInfo")
	r.OrderType = q.Get("orderType")
	r.Message = q.Get("message")
	r.PayType = q.Get("payType")
	r.ExtraData = q.Get("extraData")
	r.Signature = q.Get("signature")
	if r.Amount, err = strconv.ParseInt(q.Get("amount"), 10, 64); err != nil {
		return r, fmt.Errorf("momo: amount: %w", err)
	}
	if r.TransID, err = strconv.ParseInt(q.Get("transId"), 10, 64); err != nil {
		return r, fmt.Errorf("momo: transId: %w", err)
	}
	if r.ResultCode, err = strconv.Atoi(q.Get("resultCode")); err != nil {
		return r, fmt.Errorf("momo: resultCode: %w", err)
	}
	if r.ResponseTime, err = strconv.ParseInt(q.Get("responseTime"), 10, 64); err != nil {
		return r, fmt.Errorf("momo: responseTime: %w", err)
	}
	return r, nil
}

// ResultSignature computes the signature MoMo puts on r.
func (m *MoMo) ResultSignature(r MoMoResult) string {
	raw := fmt.Sprintf("accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s"+
		"&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
		m.cfg.AccessKey, r.Amount, r.ExtraData, r.Message, r.OrderID, r.OrderInfo,
		r.OrderType, r.PartnerCode, r.PayType, r.RequestID, r.ResponseTime, r.ResultCode, r.TransID)
	return m.Sign(raw)
}

func (m *MoMo) Verify(r MoMoResult) bool {
	if m.cfg.SecretKey == "" || r.Signature == "" {
		return false
	}
	want := m.ResultSignature(r)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(r.Signature)))
}
