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

func newProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{DB: db, Producer: &mykafka.Producer{}}
}

func seedCategory(t *testing.T, db *gorm.DB, name, slug string) models.Category {
	category := models.Category{Name: name, Slug: slug}
	require.NoError(t, db.Create(&category).Error)
	return category
}

func TestCreateProductGeneratesUniqueSlug(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")

	body := map[string]any{
		"name":        "Blue Shirt",
		"sku":         "SKU-1",
		"price":       19.99,
		"inventory":   5,
		"category_id": category.ID,
	}
	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/admin/products", body)
	require.NoError(t, h.CreateProduct(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var first models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, "blue-shirt", first.Slug)
	require.True(t, first.Published)

	// Same name again picks up a numeric suffix.
	body["sku"] = "SKU-2"
	c, rec = newJSONContext(t, e, http.MethodPost, "/api/v1/admin/products", body)
	require.NoError(t, h.CreateProduct(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var second models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, "blue-shirt-1", second.Slug)
}

func TestCreateProductRequiresExistingCategory(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/admin/products", map[string]any{
		"name":        "Blue Shirt",
		"sku":         "SKU-1",
		"price":       19.99,
		"category_id": 42,
	})
	require.NoError(t, h.CreateProduct(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, ErrInvalidInput, decodeError(t, rec).Error)
}

func TestCreateProductRejectsNonPositivePrice(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	seedCategory(t, db, "Shirts", "shirts")

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/admin/products", map[string]any{
		"name":        "Blue Shirt",
		"sku":         "SKU-1",
		"price":       0,
		"category_id": 1,
	})
	require.NoError(t, h.CreateProduct(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProductsFiltersUnpublished(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")
	require.NoError(t, db.Create(&models.Product{
		CategoryID: category.ID, Name: "Visible", Slug: "visible",
		SKU: "SKU-1", Price: 10, Published: true,
	}).Error)
	hidden := models.Product{
		CategoryID: category.ID, Name: "Hidden", Slug: "hidden",
		SKU: "SKU-2", Price: 10, Published: true,
	}
	require.NoError(t, db.Create(&hidden).Error)
	require.NoError(t, db.Model(&hidden).Update("published", false).Error)

	c, rec := newJSONContext(t, e, http.MethodGet, "/api/v1/products", nil)
	require.NoError(t, h.GetProducts(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Product `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "Visible", resp.Data[0].Name)
	require.EqualValues(t, 1, resp.Meta.Total)
}

func TestGetProductBySlugHidesUnpublished(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")
	hidden := models.Product{
		CategoryID: category.ID, Name: "Hidden", Slug: "hidden",
		SKU: "SKU-1", Price: 10, Published: true,
	}
	require.NoError(t, db.Create(&hidden).Error)
	require.NoError(t, db.Model(&hidden).Update("published", false).Error)

	c, rec := newJSONContext(t, e, http.MethodGet, "/api/v1/products/slug/hidden", nil)
	c.SetParamNames("slug")
	c.SetParamValues("hidden")
	require.NoError(t, h.GetProductBySlug(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchProductPriceOnlyLeavesOtherFieldsAlone(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")
	prod := models.Product{
		CategoryID: category.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Description: "soft cotton", Price: 10,
		Inventory: 42, Featured: true, Published: true,
	}
	require.NoError(t, db.Create(&prod).Error)

	c, rec := newJSONContext(t, e, http.MethodPatch, "/api/v1/admin/products/1",
		map[string]any{"price": 24.99})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.PatchProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Product
	require.NoError(t, db.First(&updated, prod.ID).Error)
	require.InDelta(t, 24.99, updated.Price, 1e-9)
	require.Equal(t, uint(42), updated.Inventory)
	require.True(t, updated.Featured)
	require.Equal(t, "soft cotton", updated.Description)
}

func TestPatchProductClearsDescription(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")
	prod := models.Product{
		CategoryID: category.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Description: "soft cotton", Price: 10,
		Inventory: 5, Published: true,
	}
	require.NoError(t, db.Create(&prod).Error)

	// Explicit empty string clears; it is not treated as absent.
	c, rec := newJSONContext(t, e, http.MethodPatch, "/api/v1/admin/products/1",
		map[string]any{"description": ""})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.PatchProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Product
	require.NoError(t, db.First(&updated, prod.ID).Error)
	require.Empty(t, updated.Description)
	require.Equal(t, uint(5), updated.Inventory)
}

func TestPatchProductRenameReslugs(t *testing.T) {
	db := newTestDB(t)
	h := newProductHandler(db)
	e := echo.New()

	category := seedCategory(t, db, "Shirts", "shirts")
	prod := models.Product{
		CategoryID: category.ID, Name: "Blue Shirt", Slug: "blue-shirt",
		SKU: "SKU-1", Price: 10, Inventory: 5, Published: true,
	}
	require.NoError(t, db.Create(&prod).Error)

	c, rec := newJSONContext(t, e, http.MethodPatch, "/api/v1/admin/products/1", map[string]any{
		"name":      "Red Shirt",
		"price":     12.50,
		"inventory": 5,
	})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, h.PatchProduct(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.Product
	require.NoError(t, db.First(&updated, prod.ID).Error)
	require.Equal(t, "Red Shirt", updated.Name)
	require.Equal(t, "red-shirt", updated.Slug)
	require.InDelta(t, 12.50, updated.Price, 1e-9)
}
