package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
	"github.com/Skotchmaster/storefront/internal/slug"
)

type CategoryHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

// categoryRequest keeps description and image as pointers so a PATCH can
// clear them with an explicit empty string while leaving omitted fields
// untouched.
type categoryRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

type categoryView struct {
	models.Category
	ProductCount int64 `json:"product_count"`
}

func (h *CategoryHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["categoryID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *CategoryHandler) GetCategories(c echo.Context) error {
	var categories []models.Category
	if err := h.DB.Order("name ASC").Find(&categories).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch categories")
	}

	views := make([]categoryView, 0, len(categories))
	for _, cat := range categories {
		var count int64
		if err := h.DB.Model(&models.Product{}).
			Where("category_id = ?", cat.ID).Count(&count).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "failed to fetch categories")
		}
		views = append(views, categoryView{Category: cat, ProductCount: count})
	}

	return c.JSON(http.StatusOK, views)
}

func (h *CategoryHandler) CreateCategory(c echo.Context) error {
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}
	if req.Name == "" {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "category name is required")
	}

	var existing []string
	if err := h.DB.Model(&models.Category{}).Pluck("slug", &existing).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create category")
	}

	var description, image string
	if req.Description != nil {
		description = *req.Description
	}
	if req.Image != nil {
		image = *req.Image
	}

	category := models.Category{
		Name:        req.Name,
		Slug:        slug.MakeUnique(slug.Generate(req.Name), existing),
		Description: description,
		Image:       image,
	}
	if err := h.DB.Create(&category).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to create category")
	}

	h.publish(c, map[string]any{
		"type":       "category_created",
		"categoryID": category.ID,
		"name":       category.Name,
	})

	return c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) PatchCategory(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid category id")
	}

	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid request body")
	}

	var category models.Category
	if err := h.DB.First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, http.StatusNotFound, ErrNotFound, "category not found")
		}
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update category")
	}

	if req.Name != "" && req.Name != category.Name {
		var existing []string
		if err := h.DB.Model(&models.Category{}).
			Where("id <> ?", category.ID).Pluck("slug", &existing).Error; err != nil {
			logging.FromContext(c.Request().Context()).Error("db error", "error", err)
			return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update category")
		}
		category.Name = req.Name
		category.Slug = slug.MakeUnique(slug.Generate(req.Name), existing)
	}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if req.Image != nil {
		category.Image = *req.Image
	}

	if err := h.DB.Save(&category).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to update category")
	}

	h.publish(c, map[string]any{
		"type":       "category_updated",
		"categoryID": category.ID,
		"name":       category.Name,
	})

	return c.JSON(http.StatusOK, category)
}

// DeleteCategory refuses to remove a category that products still reference.
func (h *CategoryHandler) DeleteCategory(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return fail(c, http.StatusBadRequest, ErrInvalidInput, "invalid category id")
	}

	var count int64
	if err := h.DB.Model(&models.Product{}).
		Where("category_id = ?", id).Count(&count).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to delete category")
	}
	if count > 0 {
		return fail(c, http.StatusBadRequest, ErrConflict, "category still has products")
	}

	if err := h.DB.Delete(&models.Category{}, id).Error; err != nil {
		logging.FromContext(c.Request().Context()).Error("db error", "error", err)
		return fail(c, http.StatusInternalServerError, ErrInternal, "failed to delete category")
	}

	h.publish(c, map[string]any{
		"type":       "category_deleted",
		"categoryID": id,
	})

	return c.NoContent(http.StatusNoContent)
}
