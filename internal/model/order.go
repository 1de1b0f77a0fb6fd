package model

import "time"

const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipping  = "shipping"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

const (
	PayUnpaid   = "unpaid"
	PayPaid     = "paid"
	PayRefunded = "refunded"
	PayFailed   = "failed"
	PayPending  = "pending"
)

const (
	MethodCOD   = "cod"
	MethodMoMo  = "momo"
	MethodVNPay = "vnpay"
)

const (
	CouponPercent = "percent"
	CouponFixed   = "fixed"
)

type Coupon struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Code        string     `gorm:"uniqueIndex;not null" json:"code"`
	Type        string     `gorm:"not null" json:"type"`
	Value       int64      `gorm:"not null" json:"value"`
	MinOrder    int64      `gorm:"not null;default:0" json:"min_order"`
	MaxDiscount int64      `gorm:"not null;default:0" json:"max_discount"`
	UsageLimit  int        `gorm:"not null;default:0" json:"usage_limit"`
	UsedCount   int        `gorm:"not null;default:0" json:"used_count"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Order struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Code            string      `gorm:"uniqueIndex;not null" json:"code"`
	UserID          uint        `gorm:"index;not null" json:"user_id"`
	Status          string      `gorm:"index;not null" json:"status"`
	Subtotal        int64       `gorm:"not null" json:"subtotal"`
	Discount        int64       `gorm:"not null;default:0" json:"discount"`
	ShippingFee     int64       `gorm:"not null;default:0" json:"shipping_fee"`
	Total           int64       `gorm:"not null" json:"total"`
	CouponID        *uint       `json:"coupon_id,omitempty"`
	CouponCode      string      `json:"coupon_code,omitempty"`
	PaymentMethod   string      `gorm:"not null" json:"payment_method"`
	PaymentStatus   string      `gorm:"not null" json:"payment_status"`
	ShippingName    string      `json:"shipping_name"`
	ShippingPhone   string      `json:"shipping_phone"`
	ShippingAddress string      `json:"shipping_address"`
	Note            string      `json:"note,omitempty"`
	CancelReason    string      `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time  `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Items           []OrderItem `json:"items,omitempty"`
	Payments        []Payment   `json:"payments,omitempty"`
}

type OrderItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	ProductID uint      `gorm:"index;not null" json:"product_id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Qty       int       `json:"qty"`
	CreatedAt time.Time `json:"created_at"`
}

type Payment struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OrderID       uint       `gorm:"index;not null" json:"order_id"`
	Provider      string     `gorm:"not null" json:"provider"`
	Reference     string     `gorm:"uniqueIndex;not null" json:"reference"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Status        string     `gorm:"not null" json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	RawResponse   string     `json:"-"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Admin{}, &Address{},
		&Product{}, &CartItem{}, &Review{}, &WishlistItem{},
		&Coupon{}, &Order{}, &OrderItem{}, &Payment{},
		&Announcement{},
	}
}
