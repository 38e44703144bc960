package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/es"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
	"github.com/Skotchmaster/storefront/internal/slug"
	"github.com/Skotchmaster/storefront/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	ES       *elasticsearch.Client
	Index    string
}

// productRequest uses pointers for the fields where a PATCH must tell an
// omitted field apart from an explicit zero value.
type productRequest struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	Price        float64  `json:"price"`
	ComparePrice float64  `json:"compare_price"`
	SKU          string   `json:"sku"`
	Inventory    *uint    `json:"inventory"`
	Images       []string `json:"images"`
	CategoryID   uint     `json:"category_id"`
	Featured     *bool    `json:"featured"`
	Published    *bool    `json:"published"`
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

// syncIndex mirrors the product into Elasticsearch. Index errors are logged
// and never fail the admin request.
func (h *ProductHandler) syncIndex(c echo.Context, p models.Product) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.IndexProduct(ctx, h.ES, h.Index, p); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index error", "error", err)
	}
}

func (h *ProductHandler) dropIndex(c echo.Context, id uint) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.DeleteProduct(ctx, h.ES, h.Index, id); err != nil {
		logging.FromContext(c.Request().Context()).Error("es delete error", "error", err)
	}
}

// GetProducts lists published products with optional category/featured/search
// filters and pagination metadata.
func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	q := h.DB.Model(&models.Product{}).Where("products.published = ?", true)

	if category := c.QueryParam("category"); category != "" {
		q = q.Joins("JOIN categories ON categories.id = products.category_id").
			Where("categories.slug = ?", category)
	}
	if c.QueryParam("featured") == "true" {
		q = q.Where("products.featured = ?", true)
	}
	if search := c.QueryParam("search"); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(products.name) LIKE ? OR LOWER(products.description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch products")
	}

	var items []models.Product
	if err := q.Order("products.created_at DESC, products.id DESC").
		Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch products")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid product id")
	}

	var product models.Product
	if err := h.DB.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "product not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch product")
	}

	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProductBySlug(c echo.Context) error {
	var product models.Product
	if err := h.DB.Where("slug = ? AND published = ?", c.Param("slug"), true).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "product not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch product")
	}

	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}
	if req.Name == "" || req.SKU == "" {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "name and sku are required")
	}
	if req.Price <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "price must be positive")
	}

	var category models.Category
	if err := h.DB.First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusBadRequest, ErrInvalidInput, "category not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create product")
	}

	uniqueSlug, err := h.uniqueProductSlug(req.Name)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create product")
	}

	published := true
	if req.Published != nil {
		published = *req.Published
	}
	var description string
	if req.Description != nil {
		description = *req.Description
	}
	var inventory uint
	if req.Inventory != nil {
		inventory = *req.Inventory
	}
	var featured bool
	if req.Featured != nil {
		featured = *req.Featured
	}

	prod := models.Product{
		CategoryID:   req.CategoryID,
		Name:         req.Name,
		Slug:         uniqueSlug,
		SKU:          req.SKU,
		Description:  description,
		Price:        req.Price,
		ComparePrice: req.ComparePrice,
		Inventory:    inventory,
		Images:       req.Images,
		Featured:     featured,
		Published:    published,
	}
	if err := h.DB.Create(&prod).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create product")
	}

	h.syncIndex(c, prod)
	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid product id")
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}

	var prod models.Product
	if err := h.DB.First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "product not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update product")
	}

	if req.CategoryID != 0 && req.CategoryID != prod.CategoryID {
		var category models.Category
		if err := h.DB.First(&category, req.CategoryID).Error; err != nil {
			return fail(c, http.StatusBadRequest, ErrInvalidInput, "category not found")
		}
		prod.CategoryID = req.CategoryID
	}
	if req.Name != "" && req.Name != prod.Name {
		prod.Name = req.Name
		newSlug, err := h.uniqueProductSlug(req.Name)
		if err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update product")
		}
		prod.Slug = newSlug
	}
	if req.SKU != "" {
		prod.SKU = req.SKU
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Price > 0 {
		prod.Price = req.Price
	}
	if req.ComparePrice > 0 {
		prod.ComparePrice = req.ComparePrice
	}
	if req.Images != nil {
		prod.Images = req.Images
	}
	if req.Inventory != nil {
		prod.Inventory = *req.Inventory
	}
	if req.Featured != nil {
		prod.Featured = *req.Featured
	}
	if req.Published != nil {
		prod.Published = *req.Published
	}

	if err := h.DB.Save(&prod).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update product")
	}

	h.syncIndex(c, prod)
	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})

	return c.JSON(http.StatusOK, prod)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid product id")
	}

	if err := h.DB.Delete(&models.Product{}, id).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to delete product")
	}

	h.dropIndex(c, uint(id))
	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) uniqueProductSlug(name string) (string, error) {
	var existing []string
	if err := h.DB.Model(&models.Product{}).Pluck("slug", &existing).Error; err != nil {
		return "", err
	}
	return slug.MakeUnique(slug.Generate(name), existing), nil
}
