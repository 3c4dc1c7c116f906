package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// CatalogData: начальное содержимое in-memory каталога.
type CatalogData struct {
	Categories []domain.Category
	// Metadata: id категории → фильтры категории.
	Metadata map[int64][]domain.CategoryMetadata
	Products []domain.Product
	Banners  []domain.Banner
}

// catalogRepositoryInMemory: каталог только для чтения, хранится целиком в памяти.
type catalogRepositoryInMemory struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
	metadata   map[int64][]domain.CategoryMetadata
	products   map[int64]domain.Product
	banners    []domain.Banner
}

// NewCatalogRepository создаёт каталог из переданных данных.
func NewCatalogRepository(data CatalogData) domain.CatalogRepository {
	repo := &catalogRepositoryInMemory{
		categories: make(map[int64]domain.Category, len(data.Categories)),
		metadata:   make(map[int64][]domain.CategoryMetadata, len(data.Metadata)),
		products:   make(map[int64]domain.Product, len(data.Products)),
		banners:    append([]domain.Banner(nil), data.Banners...),
	}
	for _, c := range data.Categories {
		repo.categories[c.ID] = c
	}
	for categoryID, list := range data.Metadata {
		repo.metadata[categoryID] = append([]domain.CategoryMetadata(nil), list...)
	}
	for _, p := range data.Products {
		images := append([]domain.ProductImage(nil), p.Images...)
		sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
		p.Images = images
		repo.products[p.ID] = p
	}
	return repo
}

// NewDemoCatalogRepository возвращает каталог, заполненный демонстрационными данными.
func NewDemoCatalogRepository() domain.CatalogRepository {
	return NewCatalogRepository(DemoCatalog())
}

func (r *catalogRepositoryInMemory) GetCategoryBySlug(_ context.Context, slug string) (domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return domain.Category{}, domain.ErrCategoryNotFound
}

func (r *catalogRepositoryInMemory) GetCategory(_ context.Context, id int64) (domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return c, nil
}

func (r *catalogRepositoryInMemory) ListCategoryMetadata(_ context.Context, categoryID int64) ([]domain.CategoryMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.metadata[categoryID]
	result := make([]domain.CategoryMetadata, 0, len(src))
	for _, m := range src {
		m.Values = append([]domain.MetadataValue(nil), m.Values...)
		result = append(result, m)
	}
	return result, nil
}

func (r *catalogRepositoryInMemory) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *catalogRepositoryInMemory) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Matches(p) {
			result = append(result, cloneProduct(p))
		}
	}
	sortProducts(result, filter.OrderBy)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *catalogRepositoryInMemory) ListRelatedProducts(_ context.Context, productID int64, limit int) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base, ok := r.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	result := make([]domain.Product, 0)
	for _, p := range r.products {
		if p.ID == productID || p.CategoryID != base.CategoryID {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	sortProducts(result, domain.ProductOrderViews)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *catalogRepositoryInMemory) ListBanners(_ context.Context) ([]domain.Banner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.Banner(nil), r.banners...), nil
}

// sortProducts: views/selling по убыванию, price по возрастанию, иначе по id.
func sortProducts(list []domain.Product, order domain.ProductOrder) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch order {
		case domain.ProductOrderViews:
			if a.ViewsCount != b.ViewsCount {
				return a.ViewsCount > b.ViewsCount
			}
		case domain.ProductOrderSelling:
			if a.SalesCount != b.SalesCount {
				return a.SalesCount > b.SalesCount
			}
		case domain.ProductOrderPrice:
			if a.PriceMinor != b.PriceMinor {
				return a.PriceMinor < b.PriceMinor
			}
		}
		return a.ID < b.ID
	})
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Images = append([]domain.ProductImage(nil), src.Images...)
	if src.Metadata != nil {
		dst.Metadata = make(map[string]string, len(src.Metadata))
		for k, v := range src.Metadata {
			dst.Metadata[k] = v
		}
	}
	return dst
}

// DemoCatalog повторяет демонстрационный набор, который накатывает миграция 0003.
func DemoCatalog() CatalogData {
	const shirts int64 = 1

	labels := []struct {
		price float64
		value string
	}{
		{89.9, "night"},
		{94.5, "beach"},
		{79.99, "mountain"},
		{69.9, "tree"},
	}

	products := make([]domain.Product, 0, len(labels))
	var imageID int64
	for i, l := range labels {
		id := int64(i + 1)
		images := make([]domain.ProductImage, 0, 2)
		for n := 1; n <= 2; n++ {
			imageID++
			images = append(images, domain.ProductImage{
				ID:        imageID,
				ProductID: id,
				URL:       fmt.Sprintf("product_%d_%d.jpg", id, n),
			})
		}
		products = append(products, domain.Product{
			ID:          id,
			CategoryID:  shirts,
			Label:       fmt.Sprintf("Shirt %d", id),
			PriceMinor:  domain.MinorFromDecimal(l.price),
			Description: fmt.Sprintf("Test shirt %d", id),
			Images:      images,
			Metadata:    map[string]string{"minimalist": l.value},
		})
	}

	return CatalogData{
		Categories: []domain.Category{{ID: shirts, Slug: "shirts", Name: "Shirts"}},
		Metadata: map[int64][]domain.CategoryMetadata{
			shirts: {{
				ID:   "minimalist",
				Name: "Minimalist",
				Values: []domain.MetadataValue{
					{ID: "night", Label: "Night"},
					{ID: "beach", Label: "Beach"},
					{ID: "mountain", Label: "Mountain"},
					{ID: "tree", Label: "Tree"},
				},
			}},
		},
		Products: products,
		Banners: []domain.Banner{
			{Img: "banner_promo_1.jpg", Link: "/categories/shirts"},
			{Img: "banner_promo_2.jpg", Link: "/categories/test"},
		},
	}
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
