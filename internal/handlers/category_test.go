package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/mykafka"
)

func newCategoryHandler(db *gorm.DB) *CategoryHandler {
	return &CategoryHandler{DB: db, Producer: &mykafka.Producer{}}
}

func TestCreateCategorySlugCollision(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/admin/categories",
		map[string]string{"name": "Summer Sale"})
	require.NoError(t, h.CreateCategory(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var first models.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, "summer-sale", first.Slug)

	c, rec = newJSONContext(t, e, http.MethodPost, "/api/v1/admin/categories",
		map[string]string{"name": "Summer SALE"})
	require.NoError(t, h.CreateCategory(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var second models.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, "summer-sale-1", second.Slug)
}

func TestCreateCategoryRequiresName(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/admin/categories",
		map[string]string{"description": "no name"})
	require.NoError(t, h.CreateCategory(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, ErrInvalidInput, decodeError(t, rec).Error)
}

func TestGetCategoriesIncludesProductCount(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	shirts := seedCategory(t, db, "Shirts", "shirts")
	seedCategory(t, db, "Accessories", "accessories")
	require.NoError(t, db.Create(&models.Product{
		CategoryID: shirts.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Price: 10, Published: true,
	}).Error)

	c, rec := newJSONContext(t, e, http.MethodGet, "/api/v1/categories", nil)
	require.NoError(t, h.GetCategories(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		Name         string `json:"name"`
		ProductCount int64  `json:"product_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	// Alphabetical order.
	require.Equal(t, "Accessories", views[0].Name)
	require.EqualValues(t, 0, views[0].ProductCount)
	require.Equal(t, "Shirts", views[1].Name)
	require.EqualValues(t, 1, views[1].ProductCount)
}

func TestPatchCategoryPartialUpdate(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	category := models.Category{
		Name: "Shirts", Slug: "shirts",
		Description: "tops", Image: "shirts.png",
	}
	require.NoError(t, db.Create(&category).Error)

	// Omitted fields stay put; an explicit empty string clears.
	c, rec := newJSONContext(t, e, http.MethodPatch, "/api/v1/admin/categories/1",
		map[string]any{"description": ""})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.PatchCategory(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Category
	require.NoError(t, db.First(&updated, category.ID).Error)
	require.Empty(t, updated.Description)
	require.Equal(t, "shirts.png", updated.Image)
	require.Equal(t, "Shirts", updated.Name)
}

func TestDeleteCategoryBlockedByProducts(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	shirts := seedCategory(t, db, "Shirts", "shirts")
	require.NoError(t, db.Create(&models.Product{
		CategoryID: shirts.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Price: 10, Published: true,
	}).Error)

	c, rec := newJSONContext(t, e, http.MethodDelete, "/api/v1/admin/categories/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.DeleteCategory(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, ErrConflict, decodeError(t, rec).Error)

	var count int64
	require.NoError(t, db.Model(&models.Category{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDeleteCategoryEmpty(t *testing.T) {
	db := newTestDB(t)
	h := newCategoryHandler(db)
	e := echo.New()

	seedCategory(t, db, "Shirts", "shirts")

	c, rec := newJSONContext(t, e, http.MethodDelete, "/api/v1/admin/categories/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.DeleteCategory(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.Category{}).Count(&count).Error)
	require.Zero(t, count)
}
