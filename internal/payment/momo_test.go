package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMoMo(endpoint string) *MoMo {
	return NewMoMo(MoMoConfig{
		Endpoint:    endpoint,
		PartnerCode: "MOMOTEST",
		AccessKey:   "access",
		SecretKey:   "secret",
		RedirectURL: "http://shop.test/api/payments/momo/return",
		IPNURL:      "http://shop.test/api/payments/momo/ipn",
	}, nil)
}

func signedResult(m *MoMo) MoMoResult {
	r := MoMoResult{
		PartnerCode:  "MOMOTEST",
		OrderID:      "ref-1",
		RequestID:    "req-1",
		Amount:       150000,
		OrderInfo:    "Payment for order ORD-1",
		OrderType:    "momo_wallet",
		TransID:      4088878653,
		ResultCode:   0,
		Message:      "Successful.",
		PayType:      "qr",
		ResponseTime: 1721720663942,
	}
	r.Signature = m.ResultSignature(r)
	return r
}

func TestMoMoVerify(t *testing.T) {
	m := testMoMo("https://momo.test")
	r := signedResult(m)
	assert.True(t, m.Verify(r))

	tampered := r
	tampered.Amount = 1
	assert.False(t, m.Verify(tampered))

	unsigned := r
	unsigned.Signature = ""
	assert.False(t, m.Verify(unsigned))

	other := NewMoMo(MoMoConfig{Endpoint: "https://momo.test", PartnerCode: "MOMOTEST", AccessKey: "access", SecretKey: "other"}, nil)
	assert.False(t, other.Verify(r))
}

func TestParseMoMoQuery(t *testing.T) {
	m := testMoMo("https://momo.test")
	r := signedResult(m)
	q := url.Values{
		"partnerCode":  {r.PartnerCode},
		"orderId":      {r.OrderID},
		"requestId":    {r.RequestID},
		"amount":       {strconv.FormatInt(r.Amount, 10)},
		"orderInfo":    {r.OrderInfo},
		"orderType":    {r.OrderType},
		"transId":      {strconv.FormatInt(r.TransID, 10)},
		"resultCode":   {"0"},
		"message":      {r.Message},
		"payType":      {r.PayType},
		"responseTime": {strconv.FormatInt(r.ResponseTime, 10)},
		"extraData":    {""},
		"signature":    {r.Signature},
	}
	got, err := ParseMoMoQuery(q)
	require.NoError(t, err)
	assert.Equal(t, r, got)
	assert.True(t, m.Verify(got))

	q.Set("amount", "abc")
	_, err = ParseMoMoQuery(q)
	assert.Error(t, err)
}

func TestMoMoCreatePayment(t *testing.T) {
	var got momoCreateBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, momoCreatePath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(momoCreateResp{
			OrderID:    got.OrderID,
			ResultCode: 0,
			PayURL:     "https://pay.momo.test/" + got.OrderID,
		})
	}))
	defer srv.Close()

	m := testMoMo(srv.URL)
	payURL, err := m.CreatePayment(context.Background(), MoMoCreate{
		OrderID: "ref-9", RequestID: "req-9", Amount: 99000, OrderInfo: "Order ORD-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.momo.test/ref-9", payURL)
	assert.Equal(t, "captureWallet", got.RequestType)
	assert.Equal(t, int64(99000), got.Amount)
	assert.Equal(t, m.createSignature(got), got.Signature)
}

func TestMoMoCreatePaymentRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(momoCreateResp{ResultCode: 22, Message: "amount out of range"})
	}))
	defer srv.Close()

	_, err := testMoMo(srv.URL).CreatePayment(context.Background(), MoMoCreate{OrderID: "x", RequestID: "y", Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount out of range")
}

func TestMoMoDisabled(t *testing.T) {
	m := NewMoMo(MoMoConfig{}, nil)
	assert.False(t, m.Enabled())
	_, err := m.CreatePayment(context.Background(), MoMoCreate{})
	assert.Error(t, err)
}
