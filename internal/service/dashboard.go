package service

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

const lowStockThreshold = 5

type Dashboard struct {
	Users          int64            `json:"users"`
	Products       int64            `json:"products"`
	Orders         int64            `json:"orders"`
	Revenue        int64            `json:"revenue"`
	PaidOrders     int64            `json:"paid_orders"`
	AvgOrderValue  int64            `json:"avg_order_value"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	LowStock       []model.Product  `json:"low_stock"`
	RecentOrders   []model.Order    `json:"recent_orders"`
}

type DashboardService interface {
	Summary(ctx context.Context) (Dashboard, error)
}

type dashboardService struct{ db *gorm.DB }

func NewDashboardService(db *gorm.DB) DashboardService { return &dashboardService{db: db} }

func (s *dashboardService) Summary(ctx context.Context) (Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := Dashboard{OrdersByStatus: map[string]int64{}}

	if err := db.Model(&model.User{}).Count(&d.Users).Error; err != nil {
		return d, err
	}
	if err := db.Model(&model.Product{}).Count(&d.Products).Error; err != nil {
		return d, err
	}
	if err := db.Model(&model.Order{}).Count(&d.Orders).Error; err != nil {
		return d, err
	}

	var rev struct {
		Total int64
		Cnt   int64
	}
	err := db.Model(&model.Order{}).Select("COALESCE(SUM(total), 0) AS total, COUNT(*) AS cnt").
		Where("payment_status = ?", model.PayPaid).Scan(&rev).Error
	if err != nil {
		return d, err
	}
	d.Revenue, d.PaidOrders = rev.Total, rev.Cnt
	if rev.Cnt > 0 {
		d.AvgOrderValue = decimal.NewFromInt(rev.Total).
			Div(decimal.NewFromInt(rev.Cnt)).
			Round(0).IntPart()
	}

	var byStatus []struct {
		Status string
		Cnt    int64
	}
	if err := db.Model(&model.Order{}).Select("status, COUNT(*) AS cnt").Group("status").Scan(&byStatus).Error; err != nil {
		return d, err
	}
	for _, r := range byStatus {
		d.OrdersByStatus[r.Status] = r.Cnt
	}

	d.LowStock = []model.Product{}
	if err := db.Where("stock <= ?", lowStockThreshold).Order("stock asc, id asc").Limit(20).Find(&d.LowStock).Error; err != nil {
		return d, err
	}
	d.RecentOrders = []model.Order{}
	err = db.Order("created_at desc, id desc").Limit(5).Find(&d.RecentOrders).Error
	return d, err
}
