package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

const productColumns = `p.id, p.category_id, p.label, p.price_minor, p.description, p.views_count, p.sales_count`

func (r *catalogRepository) GetCategoryBySlug(ctx context.Context, slug string) (domain.Category, error) {
	return r.getCategory(ctx, `SELECT id, slug, name FROM categories WHERE slug = $1`, slug)
}

func (r *catalogRepository) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	return r.getCategory(ctx, `SELECT id, slug, name FROM categories WHERE id = $1`, id)
}

func (r *catalogRepository) getCategory(ctx context.Context, query string, arg any) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var c domain.Category
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Slug, &c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return c, nil
}

func (r *catalogRepository) ListCategoryMetadata(ctx context.Context, categoryID int64) ([]domain.CategoryMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT cm.id, cm.name, mv.id, mv.label
		FROM category_metadata cm
		LEFT JOIN metadata_values mv ON mv.category_metadata_id = cm.id
		WHERE cm.category_id = $1
		ORDER BY cm.id, mv.id
	`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list category metadata: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CategoryMetadata, 0)
	for rows.Next() {
		var (
			metaID, metaName    string
			valueID, valueLabel sql.NullString
		)
		if err := rows.Scan(&metaID, &metaName, &valueID, &valueLabel); err != nil {
			return nil, fmt.Errorf("scan category metadata: %w", err)
		}
		if n := len(result); n == 0 || result[n-1].ID != metaID {
			result = append(result, domain.CategoryMetadata{ID: metaID, Name: metaName, Values: []domain.MetadataValue{}})
		}
		if valueID.Valid {
			last := &result[len(result)-1]
			last.Values = append(last.Values, domain.MetadataValue{ID: valueID.String, Label: valueLabel.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category metadata: %w", err)
	}
	return result, nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	list := []domain.Product{p}
	if err := r.attachDetails(ctx, list); err != nil {
		return domain.Product{}, err
	}
	return list[0], nil
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id = $%d", len(args)))
	}

	keys := make([]string, 0, len(filter.Metadata))
	for key := range filter.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, key, filter.Metadata[key])
		where = append(where, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM product_metadata pm
			WHERE pm.product_id = p.id AND pm.category_metadata_id = $%d AND pm.metadata_value_id = $%d
		)`, len(args)-1, len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + productOrderClause(filter.OrderBy)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.queryProducts(ctx, query, args...)
}

func (r *catalogRepository) ListRelatedProducts(ctx context.Context, productID int64, limit int) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var categoryID int64
	if err := r.db.QueryRowContext(ctx, `SELECT category_id FROM products WHERE id = $1`, productID).Scan(&categoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product category: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products p
		WHERE p.category_id = $1 AND p.id <> $2
		ORDER BY ` + productOrderClause(domain.ProductOrderViews)
	args := []any{categoryID, productID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	return r.queryProducts(ctx, query, args...)
}

func (r *catalogRepository) ListBanners(ctx context.Context) ([]domain.Banner, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT img, link FROM banners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list banners: %w", err)
	}
	defer rows.Close()

	banners := make([]domain.Banner, 0)
	for rows.Next() {
		var b domain.Banner
		if err := rows.Scan(&b.Img, &b.Link); err != nil {
			return nil, fmt.Errorf("scan banner: %w", err)
		}
		banners = append(banners, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate banners: %w", err)
	}
	return banners, nil
}

func (r *catalogRepository) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	rows.Close()

	if err := r.attachDetails(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// attachDetails догружает изображения и metadata одним запросом на таблицу.
func (r *catalogRepository) attachDetails(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(products))
	index := make(map[int64]int, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
		index[products[i].ID] = i
		products[i].Images = []domain.ProductImage{}
		products[i].Metadata = map[string]string{}
	}

	imageRows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, url
		FROM product_images
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("load product images: %w", err)
	}
	defer imageRows.Close()

	for imageRows.Next() {
		var img domain.ProductImage
		if err := imageRows.Scan(&img.ID, &img.ProductID, &img.URL); err != nil {
			return fmt.Errorf("scan product image: %w", err)
		}
		p := &products[index[img.ProductID]]
		p.Images = append(p.Images, img)
	}
	if err := imageRows.Err(); err != nil {
		return fmt.Errorf("iterate product images: %w", err)
	}
	imageRows.Close()

	metaRows, err := r.db.QueryContext(ctx, `
		SELECT product_id, category_metadata_id, metadata_value_id
		FROM product_metadata
		WHERE product_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("load product metadata: %w", err)
	}
	defer metaRows.Close()

	for metaRows.Next() {
		var (
			productID  int64
			key, value string
		)
		if err := metaRows.Scan(&productID, &key, &value); err != nil {
			return fmt.Errorf("scan product metadata: %w", err)
		}
		products[index[productID]].Metadata[key] = value
	}
	if err := metaRows.Err(); err != nil {
		return fmt.Errorf("iterate product metadata: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Label, &p.PriceMinor, &p.Description, &p.ViewsCount, &p.SalesCount)
	return p, err
}

func productOrderClause(order domain.ProductOrder) string {
	switch order {
	case domain.ProductOrderViews:
		return "p.views_count DESC, p.id ASC"
	case domain.ProductOrderSelling:
		return "p.sales_count DESC, p.id ASC"
	case domain.ProductOrderPrice:
		return "p.price_minor ASC, p.id ASC"
	default:
		return "p.id ASC"
	}
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
