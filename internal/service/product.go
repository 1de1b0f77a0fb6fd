package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"example.com/storefront/internal/model"
)

type ProductFilter struct {
	Category string
	Query    string
	MinPrice int64
	MaxPrice int64
	Sort     string
	// IncludeInactive is only honoured for admin listings.
	IncludeInactive bool
}

type ProductInput struct {
	Name        string `json:"name" binding:"required,max=200"`
	Slug        string `json:"slug" binding:"omitempty,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"max=100"`
	Price       int64  `json:"price" binding:"gte=0"`
	Stock       int    `json:"stock" binding:"gte=0"`
	ImageURL    string `json:"image_url" binding:"omitempty,url"`
	IsActive    *bool  `json:"is_active"`
}

type ProductService interface {
	List(ctx context.Context, f ProductFilter, p Page) ([]model.Product, int64, error)
	Get(ctx context.Context, idOrSlug string) (model.Product, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, in ProductInput) (model.Product, error)
	Update(ctx context.Context, id uint, in ProductInput) (model.Product, error)
	Delete(ctx context.Context, id uint) error
	AdjustStock(ctx context.Context, id uint, delta int) (model.Product, error)
	Seed(ctx context.Context) error
}

type productService struct{ db *gorm.DB }

func NewProductService(db *gorm.DB) ProductService { return &productService{db: db} }

var productSorts = map[string]string{
	"newest":     "created_at desc, id desc",
	"price_asc":  "price asc, id asc",
	"price_desc": "price desc, id desc",
	"popular":    "sold_count desc, id desc",
	"rating":     "rating_avg desc, rating_count desc, id desc",
}

func (s *productService) List(ctx context.Context, f ProductFilter, p Page) ([]model.Product, int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Product{})
	if !f.IncludeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	if f.Category != "" {
		tx = tx.Where("category = ?", f.Category)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if f.MinPrice > 0 {
		tx = tx.Where("price >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		tx = tx.Where("price <= ?", f.MaxPrice)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	order, ok := productSorts[f.Sort]
	if !ok {
		order = productSorts["newest"]
	}
	var ps []model.Product
	err := tx.Order(order).Offset(p.Offset()).Limit(p.Limit).Find(&ps).Error
	return ps, total, err
}

func (s *productService) Get(ctx context.Context, idOrSlug string) (model.Product, error) {
	var p model.Product
	tx := s.db.WithContext(ctx).Where("is_active = ?", true)
	if id, err := strconv.ParseUint(idOrSlug, 10, 64); err == nil {
		tx = tx.Where("id = ?", id)
	} else {
		tx = tx.Where("slug = ?", idOrSlug)
	}
	if err := tx.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, Errorf(ErrNotFound, "product not found")
		}
		return p, err
	}
	return p, nil
}

func (s *productService) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("is_active = ? AND category <> ''", true).
		Distinct("category").Order("category").Pluck("category", &cats).Error
	return cats, err
}

func (s *productService) Create(ctx context.Context, in ProductInput) (model.Product, error) {
	db := s.db.WithContext(ctx)
	p := model.Product{IsActive: true}
	applyProductInput(&p, in)
	if err := s.ensureSlugFree(db, p.Slug, 0); err != nil {
		return p, err
	}
	return p, db.Create(&p).Error
}

func (s *productService) Update(ctx context.Context, id uint, in ProductInput) (model.Product, error) {
	db := s.db.WithContext(ctx)
	var p model.Product
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, Errorf(ErrNotFound, "product not found")
		}
		return p, err
	}
	applyProductInput(&p, in)
	if err := s.ensureSlugFree(db, p.Slug, p.ID); err != nil {
		return p, err
	}
	return p, db.Save(&p).Error
}

func (s *productService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(ErrNotFound, "product not found")
	}
	return nil
}

// AdjustStock adds delta to the stock, refusing to go below zero.
func (s *productService) AdjustStock(ctx context.Context, id uint, delta int) (model.Product, error) {
	db := s.db.WithContext(ctx)
	var p model.Product
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, Errorf(ErrNotFound, "product not found")
		}
		return p, err
	}
	res := db.Model(&model.Product{}).Where("id = ? AND stock + ? >= 0", id, delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return p, res.Error
	}
	if res.RowsAffected == 0 {
		return p, Errorf(ErrInsufficientStock, "stock cannot go below zero")
	}
	return p, db.First(&p, id).Error
}

func (s *productService) Seed(ctx context.Context) error {
	data := []ProductInput{
		{Name: "Blue T-Shirt", Category: "apparel", Price: 199000, Stock: 50, ImageURL: "https://picsum.photos/seed/blue/600/400"},
		{Name: "Red Hoodie", Category: "apparel", Price: 459000, Stock: 30, ImageURL: "https://picsum.photos/seed/red/600/400"},
		{Name: "Sneakers", Category: "shoes", Price: 699000, Stock: 20, ImageURL: "https://picsum.photos/seed/shoes/600/400"},
		{Name: "Canvas Tote", Category: "accessories", Price: 129000, Stock: 80, ImageURL: "https://picsum.photos/seed/tote/600/400"},
	}
	db := s.db.WithContext(ctx)
	for _, in := range data {
		p := model.Product{IsActive: true}
		applyProductInput(&p, in)
		if err := db.Where(model.Product{Slug: p.Slug}).FirstOrCreate(&p).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *productService) ensureSlugFree(db *gorm.DB, slug string, selfID uint) error {
	var n int64
	if err := db.Unscoped().Model(&model.Product{}).Where("slug = ? AND id <> ?", slug, selfID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return Errorf(ErrConflict, "slug %q already in use", slug)
	}
	return nil
}

func applyProductInput(p *model.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	// an existing product keeps its slug so links stay valid
	if slug := Slugify(in.Slug); slug != "" {
		p.Slug = slug
	} else if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	p.Description = in.Description
	p.Category = strings.TrimSpace(in.Category)
	p.Price = in.Price
	p.Stock = in.Stock
	p.ImageURL = in.ImageURL
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// Slugify lowercases s and joins its letter/digit runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
