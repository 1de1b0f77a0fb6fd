package app

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"example.com/storefront/internal/payment"
	"example.com/storefront/internal/service"
)

type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// ParseEnvironment maps unknown values (and the old "dev"/"prod") onto the
// known environments, defaulting to development.
func ParseEnvironment(v string) Environment {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return Production
	case "staging":
		return Staging
	case "testing", "test":
		return Testing
	default:
		return Development
	}
}

type Config struct {
	Env           Environment
	Port          string
	LogLevel      string
	DBDSN         string
	JWTSecret     string
	JWTTTL        time.Duration
	PublicBaseURL string
	FrontendURL   string
	CORSOrigins   []string
	WebDir        string

	SMTP service.SMTPConfig

	RedisURL       string
	LoginRateLimit int

	AdminEmail    string
	AdminPassword string

	MoMo  payment.MoMoConfig
	VNPay payment.VNPayConfig
}

func defaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:8080")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8080")
	v.SetDefault("WEB_DIR", "./web")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_FROM", "shop@localhost")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("MOMO_ENDPOINT", "https://test-payment.momo.vn")
	v.SetDefault("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	defaults(v)
	// a missing .env is fine, the environment still applies
	_ = v.ReadInConfig()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	base := strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")
	cfg := Config{
		Env:           ParseEnvironment(v.GetString("APP_ENV")),
		Port:          v.GetString("APP_PORT"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		DBDSN:         v.GetString("DB_DSN"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTTTL:        v.GetDuration("JWT_TTL"),
		PublicBaseURL: base,
		FrontendURL:   strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		CORSOrigins:   splitList(v.GetString("CORS_ORIGINS")),
		WebDir:        v.GetString("WEB_DIR"),
		SMTP: service.SMTPConfig{
			Host: v.GetString("SMTP_HOST"),
			Port: v.GetString("SMTP_PORT"),
			From: v.GetString("SMTP_FROM"),
		},
		RedisURL:       v.GetString("REDIS_URL"),
		LoginRateLimit: v.GetInt("LOGIN_RATE_LIMIT"),
		AdminEmail:     v.GetString("ADMIN_EMAIL"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		MoMo: payment.MoMoConfig{
			Endpoint:    v.GetString("MOMO_ENDPOINT"),
			PartnerCode: v.GetString("MOMO_PARTNER_CODE"),
			AccessKey:   v.GetString("MOMO_ACCESS_KEY"),
			SecretKey:   v.GetString("MOMO_SECRET_KEY"),
			RedirectURL: orDefault(v.GetString("MOMO_REDIRECT_URL"), base+"/api/payments/momo/return"),
			IPNURL:      orDefault(v.GetString("MOMO_IPN_URL"), base+"/api/payments/momo/ipn"),
		},
		VNPay: payment.VNPayConfig{
			PayURL:     v.GetString("VNPAY_URL"),
			TmnCode:    v.GetString("VNPAY_TMN_CODE"),
			HashSecret: v.GetString("VNPAY_HASH_SECRET"),
			ReturnURL:  orDefault(v.GetString("VNPAY_RETURN_URL"), base+"/api/payments/vnpay/return"),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Env != Production {
		return nil
	}
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required in production"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(v, d string) string {
	if v != "" {
		return v
	}
	return d
}
