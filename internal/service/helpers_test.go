package service

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"example.com/storefront/internal/model"
	"example.com/storefront/internal/payment"
)

// newTestDB opens a private in-memory database for t.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

type sentMail struct{ To, Subject, Body string }

type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *mailbox) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *mailbox) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

var verifyLink = regexp.MustCompile(`token=(\S+)`)

func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	m := verifyLink.FindStringSubmatch(body)
	require.Len(t, m, 2, "no verification link in %q", body)
	tok, err := url.QueryUnescape(m[1])
	require.NoError(t, err)
	return tok
}

func createUser(t *testing.T, db *gorm.DB, email string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	u := model.User{Email: email, PasswordHash: string(hash), FullName: "Test User", Verified: true, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createProduct(t *testing.T, db *gorm.DB, name string, price int64, stock int) model.Product {
	t.Helper()
	p := model.Product{Name: name, Slug: Slugify(name), Category: "test", Price: price, Stock: stock, IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func createCoupon(t *testing.T, db *gorm.DB, c model.Coupon) model.Coupon {
	t.Helper()
	c.IsActive = true
	require.NoError(t, db.Create(&c).Error)
	return c
}

func reload[T any](t *testing.T, db *gorm.DB, id uint) T {
	t.Helper()
	var v T
	require.NoError(t, db.Unscoped().First(&v, id).Error)
	return v
}

const testVNPaySecret = "vnp-secret"

func testGateways() (*payment.MoMo, *payment.VNPay) {
	momo := payment.NewMoMo(payment.MoMoConfig{
		Endpoint: "http://momo.invalid", PartnerCode: "MOMO", AccessKey: "ak", SecretKey: "momo-secret",
	}, nil)
	vnpay := payment.NewVNPay(payment.VNPayConfig{
		PayURL: "https://vnpay.test/pay", TmnCode: "TMN", HashSecret: testVNPaySecret, ReturnURL: "http://shop.test/return",
	})
	return momo, vnpay
}

func newPayments(db *gorm.DB) PaymentService {
	momo, vnpay := testGateways()
	return NewPaymentService(db, momo, vnpay, zap.NewNop())
}

// afterFirstMiss runs insert the first time a lookup into a T finds nothing,
// standing in for a concurrent request that writes the row first.
func afterFirstMiss[T any](t *testing.T, db *gorm.DB, insert func()) {
	t.Helper()
	done := false
	err := db.Callback().Query().After("gorm:query").Register("test:after_first_miss", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*T); !ok || done || !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return
		}
		done = true
		insert()
	})
	require.NoError(t, err)
}
