package domain

// Category — раздел каталога, адресуется по slug.
type Category struct {
	ID   int64
	Slug string
	Name string
}

// MetadataValue — одно значение фильтра категории.
type MetadataValue struct {
	ID    string
	Label string
}

// CategoryMetadata — фильтр категории с допустимыми значениями.
type CategoryMetadata struct {
	ID     string
	Name   string
	Values []MetadataValue
}

// ProductImage хранит относительный путь к изображению товара.
type ProductImage struct {
	ID        int64
	ProductID int64
	URL       string
}

// Product — товар каталога. Цена хранится в центах.
type Product struct {
	ID          int64
	CategoryID  int64
	Label       string
	PriceMinor  int64
	Description string
	ViewsCount  int64
	SalesCount  int64
	Images      []ProductImage
	// Metadata: id фильтра категории → id значения.
	Metadata map[string]string
}

// Banner — промо-баннер главной страницы.
type Banner struct {
	Img  string
	Link string
}

// ProductOrder задаёт сортировку списка товаров.
type ProductOrder string

const (
	ProductOrderViews   ProductOrder = "views"
	ProductOrderSelling ProductOrder = "selling"
	ProductOrderPrice   ProductOrder = "price"
)

// ProductFilter — параметры выборки товаров.
type ProductFilter struct {
	CategoryID int64
	Metadata   map[string]string
	OrderBy    ProductOrder
	Limit      int
}

// Matches проверяет товар на соответствие фильтру (без сортировки и лимита).
func (f ProductFilter) Matches(p Product) bool {
	if f.CategoryID > 0 && p.CategoryID != f.CategoryID {
		return false
	}
	for key, value := range f.Metadata {
		if p.Metadata[key] != value {
			return false
		}
	}
	return true
}
