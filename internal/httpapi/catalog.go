package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const defaultRelatedLimit = 4

type productSummary struct {
	ID    int64   `json:"id"`
	Label string  `json:"label"`
	Price float64 `json:"price"`
	Image *string `json:"image"`
}

type productDetail struct {
	ID          int64    `json:"id"`
	Label       string   `json:"label"`
	Price       float64  `json:"price"`
	Description string   `json:"description"`
	CategoryID  int64    `json:"categoryId"`
	Images      []string `json:"images"`
}

type categoryBody struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type productsQuery struct {
	Category string `form:"category" binding:"omitempty,max=100"`
	Metadata string `form:"metadata" binding:"omitempty,max=1024"`
	OrderBy  string `form:"orderBy" binding:"omitempty,oneof=views selling price"`
	Limit    int    `form:"limit" binding:"omitempty,gt=0,lte=100"`
}

type limitQuery struct {
	Limit int `form:"limit" binding:"omitempty,gt=0,lte=50"`
}

func (a *api) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pong": true})
}

func (a *api) banners(c *gin.Context) {
	list, err := a.catalog.ListBanners(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}

	out := make([]gin.H, 0, len(list))
	for _, b := range list {
		out = append(out, gin.H{"img": a.mediaURL("banners", b.Img), "link": b.Link})
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "banners": out})
}

func (a *api) listProducts(c *gin.Context) {
	var q productsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalid(c, "Invalid query")
		return
	}

	filter := domain.ProductFilter{OrderBy: domain.ProductOrder(q.OrderBy), Limit: q.Limit}
	if q.Metadata != "" {
		if err := json.Unmarshal([]byte(q.Metadata), &filter.Metadata); err != nil {
			invalid(c, "Invalid metadata")
			return
		}
	}
	if q.Category != "" {
		category, err := a.catalog.GetCategoryBySlug(c.Request.Context(), q.Category)
		if err != nil {
			a.fail(c, err)
			return
		}
		filter.CategoryID = category.ID
	}

	list, err := a.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "products": a.summaries(list)})
}

func (a *api) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	product, err := a.catalog.GetProduct(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	category, err := a.catalog.GetCategory(ctx, product.CategoryID)
	if err != nil {
		a.fail(c, err)
		return
	}

	images := make([]string, 0, len(product.Images))
	for _, img := range product.Images {
		images = append(images, a.mediaURL("products", img.URL))
	}
	c.JSON(http.StatusOK, gin.H{
		"error": nil,
		"product": productDetail{
			ID:          product.ID,
			Label:       product.Label,
			Price:       domain.DecimalFromMinor(product.PriceMinor),
			Description: product.Description,
			CategoryID:  product.CategoryID,
			Images:      images,
		},
		"category": categoryBody{ID: category.ID, Name: category.Name, Slug: category.Slug},
	})
}

func (a *api) relatedProducts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var q limitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalid(c, "Invalid limit")
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultRelatedLimit
	}

	list, err := a.catalog.ListRelatedProducts(c.Request.Context(), id, q.Limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": nil, "products": a.summaries(list)})
}

func (a *api) categoryMetadata(c *gin.Context) {
	ctx := c.Request.Context()
	category, err := a.catalog.GetCategoryBySlug(ctx, c.Param("slug"))
	if err != nil {
		a.fail(c, err)
		return
	}
	metadata, err := a.catalog.ListCategoryMetadata(ctx, category.ID)
	if err != nil {
		a.fail(c, err)
		return
	}

	type valueBody struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	type metadataBody struct {
		ID     string      `json:"id"`
		Name   string      `json:"name"`
		Values []valueBody `json:"values"`
	}
	out := make([]metadataBody, 0, len(metadata))
	for _, m := range metadata {
		values := make([]valueBody, 0, len(m.Values))
		for _, v := range m.Values {
			values = append(values, valueBody{ID: v.ID, Label: v.Label})
		}
		out = append(out, metadataBody{ID: m.ID, Name: m.Name, Values: values})
	}

	c.JSON(http.StatusOK, gin.H{
		"error":    nil,
		"category": categoryBody{ID: category.ID, Name: category.Name, Slug: category.Slug},
		"metadata": out,
	})
}

func (a *api) summaries(list []domain.Product) []productSummary {
	out := make([]productSummary, 0, len(list))
	for _, p := range list {
		item := productSummary{ID: p.ID, Label: p.Label, Price: domain.DecimalFromMinor(p.PriceMinor)}
		if len(p.Images) > 0 {
			item.Image = a.optionalMedia("products", p.Images[0].URL)
		}
		out = append(out, item)
	}
	return out
}

func (a *api) optionalMedia(kind, file string) *string {
	if file == "" {
		return nil
	}
	url := a.mediaURL(kind, file)
	return &url
}

// pathID разбирает положительный :id; при ошибке отвечает 400.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		invalid(c, "Invalid id")
		return 0, false
	}
	return id, true
}
