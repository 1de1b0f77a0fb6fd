package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"example.com/storefront/internal/handlers"
	"example.com/storefront/internal/metrics"
	"example.com/storefront/internal/model"
	"example.com/storefront/internal/payment"
	"example.com/storefront/internal/ratelimit"
	"example.com/storefront/internal/service"
)

const devJWTSecret = "dev-only-insecure-secret"

// OpenDB connects to Postgres and migrates the schema.
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// Options overrides collaborators that are otherwise built from Config.
type Options struct {
	Email      service.EmailService
	Limiter    ratelimit.Limiter
	HTTPClient *http.Client
}

// NewServer wires services and routes onto db. The returned cleanup releases
// the connections the server opened itself.
func NewServer(cfg Config, db *gorm.DB, log *zap.Logger, opts Options) (*gin.Engine, func(), error) {
	switch cfg.Env {
	case Production:
		gin.SetMode(gin.ReleaseMode)
	case Testing:
		gin.SetMode(gin.TestMode)
	}
	handlers.UseJSONFieldNames()

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn("JWT_SECRET not set, using an insecure development secret")
		secret = devJWTSecret
	}
	tokens := service.NewTokens(secret, cfg.JWTTTL)

	email := opts.Email
	if email == nil {
		email = service.NewEmailService(cfg.SMTP, log)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	var closers []func()
	limiter := opts.Limiter
	if limiter == nil && cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := ratelimit.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, login rate limiting disabled", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			limiter = ratelimit.NewSlidingWindow(rdb, "ratelimit:login", cfg.LoginRateLimit, time.Minute)
		}
	}

	payments := service.NewPaymentService(db, payment.NewMoMo(cfg.MoMo, client), payment.NewVNPay(cfg.VNPay), log)
	auth := service.NewAuthService(db, tokens, email, log, cfg.PublicBaseURL)
	admins := service.NewAdminService(db, tokens, log)
	products := service.NewProductService(db)
	reviews := service.NewReviewService(db)
	orders := service.NewOrderService(db, payments, log)
	coupons := service.NewCouponService(db)
	announcements := service.NewAnnouncementService(db)

	bootCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := admins.EnsureBootstrap(bootCtx, cfg.AdminEmail, cfg.AdminPassword)
	cancel()
	if err != nil {
		return nil, nil, err
	}

	secure := cfg.Env == Production
	authH := handlers.NewAuthHTTP(auth, log, tokens.TTL(), secure)
	catalogH := &handlers.CatalogHTTP{
		Products: products,
		Reviews:  reviews,
		Wishlist: service.NewWishlistService(db),
		Log:      log,
	}
	shopH := &handlers.ShopHTTP{
		Cart:          service.NewCartService(db),
		Checkout:      service.NewCheckoutService(db, email, payments, log),
		Orders:        orders,
		Addresses:     service.NewAddressService(db),
		Coupons:       coupons,
		Announcements: announcements,
		Log:           log,
	}
	payH := &handlers.PaymentHTTP{S: payments, Log: log, FrontendURL: cfg.FrontendURL}
	adminH := &handlers.AdminHTTP{
		Admins:        admins,
		Products:      products,
		Orders:        orders,
		Coupons:       coupons,
		Reviews:       reviews,
		Announcements: announcements,
		Dashboard:     service.NewDashboardService(db),
		Log:           log,
		SessionTTL:    tokens.TTL(),
		SecureCookie:  secure,
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(log, true))
	r.Use(handlers.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(metrics.Middleware())

	r.GET("/health", func(c *gin.Context) {
		status, dbOK := http.StatusOK, true
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, dbOK = http.StatusServiceUnavailable, false
		}
		c.JSON(status, gin.H{"ok": dbOK, "db": dbOK, "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	loginLimit := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		loginLimit = ratelimit.Middleware(limiter, log, time.Minute)
	}
	requireUser := handlers.RequireUser(auth, log)
	requireAdmin := handlers.RequireAdmin(admins, log)

	api := r.Group("/api", handlers.NoStore())

	a := api.Group("/auth")
	a.POST("/register", loginLimit, authH.Register)
	a.GET("/verify", authH.Verify)
	a.POST("/resend", loginLimit, authH.Resend)
	a.POST("/login", loginLimit, authH.Login)
	a.POST("/logout", authH.Logout)
	a.GET("/me", requireUser, authH.Me)
	a.PUT("/me", requireUser, authH.UpdateMe)
	a.PUT("/password", requireUser, authH.ChangePassword)

	p := api.Group("/products")
	p.GET("", catalogH.ListProducts)
	p.GET("/categories", catalogH.Categories)
	p.GET("/:id", catalogH.GetProduct)
	p.GET("/:id/reviews", catalogH.ListReviews)
	p.POST("/:id/reviews", requireUser, catalogH.CreateReview)

	rv := api.Group("/reviews", requireUser)
	rv.PUT("/:id", catalogH.UpdateReview)
	rv.DELETE("/:id", catalogH.DeleteReview)

	w := api.Group("/wishlist", requireUser)
	w.GET("", catalogH.ListWishlist)
	w.POST("", catalogH.AddWishlist)
	w.DELETE("/:productId", catalogH.RemoveWishlist)

	cart := api.Group("/cart", requireUser)
	cart.GET("", shopH.GetCart)
	cart.DELETE("", shopH.ClearCart)
	cart.POST("/add", shopH.AddToCart)
	cart.PUT("/items/:productId", shopH.SetCartQty)
	cart.DELETE("/items/:productId", shopH.RemoveFromCart)

	api.POST("/coupons/validate", shopH.ValidateCoupon)
	api.GET("/announcements", shopH.ActiveAnnouncements)
	api.POST("/checkout", requireUser, shopH.PlaceOrder)

	o := api.Group("/orders", requireUser)
	o.GET("", shopH.ListOrders)
	o.GET("/:id", shopH.GetOrder)
	o.POST("/:id/cancel", shopH.CancelOrder)
	o.POST("/:id/pay", shopH.PayOrder)

	ad := api.Group("/addresses", requireUser)
	ad.GET("", shopH.ListAddresses)
	ad.POST("", shopH.CreateAddress)
	ad.PUT("/:id", shopH.UpdateAddress)
	ad.DELETE("/:id", shopH.DeleteAddress)
	ad.POST("/:id/default", shopH.DefaultAddress)

	pay := api.Group("/payments")
	pay.POST("/momo/ipn", payH.MoMoIPN)
	pay.GET("/momo/return", payH.MoMoReturn)
	pay.GET("/vnpay/ipn", payH.VNPayIPN)
	pay.GET("/vnpay/return", payH.VNPayReturn)

	api.POST("/admin/auth/login", loginLimit, adminH.Login)
	admin := api.Group("/admin", requireAdmin)
	admin.POST("/auth/logout", adminH.Logout)
	admin.GET("/auth/me", adminH.Me)
	admin.GET("/dashboard", adminH.Summary)
	admin.POST("/seed", adminH.Seed)

	admin.GET("/products", adminH.ListProducts)
	admin.POST("/products", adminH.CreateProduct)
	admin.PUT("/products/:id", adminH.UpdateProduct)
	admin.DELETE("/products/:id", adminH.DeleteProduct)
	admin.PATCH("/products/:id/stock", adminH.AdjustStock)

	admin.GET("/coupons", adminH.ListCoupons)
	admin.POST("/coupons", adminH.CreateCoupon)
	admin.PUT("/coupons/:id", adminH.UpdateCoupon)
	admin.DELETE("/coupons/:id", adminH.DeleteCoupon)

	admin.GET("/orders", adminH.ListOrders)
	admin.GET("/orders/:id", adminH.GetOrder)
	admin.PATCH("/orders/:id/status", adminH.UpdateOrderStatus)

	admin.GET("/reviews", adminH.ListReviews)
	admin.DELETE("/reviews/:id", adminH.DeleteReview)

	admin.GET("/announcements", adminH.ListAnnouncements)
	admin.POST("/announcements", adminH.CreateAnnouncement)
	admin.PUT("/announcements/:id", adminH.UpdateAnnouncement)
	admin.DELETE("/announcements/:id", adminH.DeleteAnnouncement)

	admin.GET("/users", adminH.ListUsers)
	admin.PATCH("/users/:id/active", adminH.SetUserActive)

	mountWeb(r, cfg.WebDir)

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return r, cleanup, nil
}

// mountWeb serves the storefront pages from dir and falls back to index.html
// for client-side routes. Unknown /api paths always get a JSON 404.
func mountWeb(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	_, err := os.Stat(index)
	hasWeb := dir != "" && err == nil
	if hasWeb {
		r.Static("/assets", filepath.Join(dir, "assets"))
		r.GET("/", func(c *gin.Context) { c.File(index) })
	}
	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if !hasWeb || strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/assets/") {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "not found"})
			return
		}
		c.File(index)
	})
}
