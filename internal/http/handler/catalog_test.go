package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"towerdocs/internal/apperr"
	"towerdocs/internal/model"
	"towerdocs/internal/service"
	serviceMocks "towerdocs/internal/service/mocks"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateCategory(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Post("/categories", CreateCategory(mockSvc))

	t.Run("created", func(t *testing.T) {
		in := service.CategoryInput{Name: "Monopole Tower", Description: "single pole"}
		mockSvc.On("CreateCategory", mock.Anything, in).
			Return(&model.Category{ID: uuid.New().String(), Name: in.Name}, nil).Once()

		resp, err := app.Test(jsonRequest(http.MethodPost, "/categories", `{"name":"Monopole Tower","description":"single pole"}`))
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		var cat model.Category
		json.NewDecoder(resp.Body).Decode(&cat)
		assert.Equal(t, "Monopole Tower", cat.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/categories", `{"name":`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("duplicate name", func(t *testing.T) {
		mockSvc.On("CreateCategory", mock.Anything, service.CategoryInput{Name: "Guyed"}).
			Return(nil, apperr.Conflict("category %q already exists", "Guyed")).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/categories", `{"name":"Guyed"}`))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, `category "Guyed" already exists`, decodeError(t, resp).Error.Message)
	})

	mockSvc.AssertExpectations(t)
}

func TestGetCategory(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Get("/categories/:id", GetCategory(mockSvc))

	id := uuid.New().String()
	detail := &model.CategoryDetail{
		Category: model.Category{ID: id, Name: "Monopole Tower", VariantCount: 2},
		Variants: []model.Variant{{TowerCode: "MP-20", Height: 20}, {TowerCode: "MP-30", Height: 30}},
	}
	mockSvc.On("GetCategory", mock.Anything, id).Return(detail, nil).Once()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/categories/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.CategoryDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got.VariantCount)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "MP-20", got.Variants[0].TowerCode)
	mockSvc.AssertExpectations(t)
}

func TestUpdateCategory(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Put("/categories/:id", UpdateCategory(mockSvc))

	id := uuid.New().String()
	mockSvc.On("UpdateCategory", mock.Anything, id, service.CategoryInput{Name: "x"}).
		Return(nil, apperr.Validation("name must be 2 to 100 characters")).Once()

	resp, _ := app.Test(jsonRequest(http.MethodPut, "/categories/"+id, `{"name":"x"}`))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "name must be 2 to 100 characters", body.Error.Message)
	mockSvc.AssertExpectations(t)
}

func TestDeleteCategory(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		policy service.DeletePolicy
		err    error
		status int
	}{
		{name: "default policy", policy: "", status: http.StatusNoContent},
		{name: "cascade", query: "?policy=cascade", policy: service.PolicyCascade, status: http.StatusNoContent},
		{name: "restrict with variants", query: "?policy=restrict", policy: service.PolicyRestrict, err: apperr.Conflict("category still has 3 variants"), status: http.StatusConflict},
		{name: "unknown policy", query: "?policy=silent", policy: "silent", err: apperr.Validation(`unknown delete policy "silent"`), status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockCatalogService)
			app := fiber.New()
			app.Delete("/categories/:id", DeleteCategory(mockSvc))

			id := uuid.New().String()
			mockSvc.On("DeleteCategory", mock.Anything, id, tt.policy).Return(tt.err).Once()

			resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/categories/"+id+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestListVariants(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Get("/variants", ListVariants(mockSvc))

	t.Run("paged", func(t *testing.T) {
		mockSvc.On("ListVariants", mock.Anything, 5, 10).
			Return(&service.VariantListResult{Items: []model.Variant{{TowerCode: "SST-42"}}, Total: 11}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/variants?limit=5&offset=10", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res service.VariantListResult
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, 11, res.Total)
		assert.Len(t, res.Items, 1)
	})

	t.Run("invalid offset", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/variants?offset=ten", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestGetVariant(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Get("/variants/:id", GetVariant(mockSvc))

	t.Run("with active document", func(t *testing.T) {
		id := uuid.New().String()
		detail := &model.VariantDetail{
			Variant:        model.Variant{ID: id, TowerCode: "MP-30", StructuralType: model.StructuralMonopole},
			ActiveDocument: &model.Document{Version: 2, IsActive: true, URL: "https://cdn.example.com/documents/a.pdf"},
		}
		mockSvc.On("GetVariant", mock.Anything, id).Return(detail, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/variants/"+id, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got model.VariantDetail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.NotNil(t, got.ActiveDocument)
		assert.Equal(t, 2, got.ActiveDocument.Version)
		assert.Equal(t, detail.ActiveDocument.URL, got.ActiveDocument.URL)
	})

	t.Run("unknown variant", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("GetVariant", mock.Anything, id).Return(nil, apperr.NotFound("variant")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/variants/"+id, nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "variant not found", decodeError(t, resp).Error.Message)
	})

	mockSvc.AssertExpectations(t)
}

func TestCreateAndUpdateVariant(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Post("/variants", CreateVariant(mockSvc))
	app.Put("/variants/:id", UpdateVariant(mockSvc))

	catID := uuid.New().String()
	in := service.VariantInput{TowerCode: "MP-30", Height: 30, StructuralType: model.StructuralMonopole, CategoryID: catID}
	body := `{"tower_code":"MP-30","height":30,"structural_type":"monopole","category_id":"` + catID + `"}`

	mockSvc.On("CreateVariant", mock.Anything, in).Return(&model.Variant{ID: uuid.New().String(), TowerCode: "MP-30"}, nil).Once()
	resp, err := app.Test(jsonRequest(http.MethodPost, "/variants", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	id := uuid.New().String()
	mockSvc.On("UpdateVariant", mock.Anything, id, in).Return(nil, apperr.Conflict(`tower code "MP-30" already exists`)).Once()
	resp, err = app.Test(jsonRequest(http.MethodPut, "/variants/"+id, body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestDeleteVariant(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Delete("/variants/:id", DeleteVariant(mockSvc))

	t.Run("refused while documents remain", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("DeleteVariant", mock.Anything, id, false).Return(apperr.Conflict("variant still has 2 documents")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/variants/"+id, nil))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("purge", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("DeleteVariant", mock.Anything, id, true).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/variants/"+id+"?purge=true", nil))
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("blob delete fails", func(t *testing.T) {
		id := uuid.New().String()
		mockSvc.On("DeleteVariant", mock.Anything, id, true).
			Return(apperr.Storage("delete documents/a.pdf", errors.New("timeout"))).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/variants/"+id+"?purge=true", nil))
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "STORAGE_ERROR", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestSearch(t *testing.T) {
	mockSvc := new(serviceMocks.MockCatalogService)
	app := fiber.New()
	app.Get("/search", Search(mockSvc))

	mockSvc.On("Search", mock.Anything, "mono").
		Return(&model.SearchResult{Query: "mono", Categories: []model.Category{{Name: "Monopole Tower"}}}, nil).Once()
	mockSvc.On("Search", mock.Anything, "").Return(nil, apperr.Validation("query must not be empty")).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/search?q=mono", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/search", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestLogin(t *testing.T) {
	mockSvc := new(serviceMocks.MockAuthService)
	app := fiber.New()
	app.Post("/login", Login(mockSvc))

	t.Run("issues token", func(t *testing.T) {
		exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mockSvc.On("Login", mock.Anything, "admin", "s3cret").Return(&service.Token{Token: "abc.def.ghi", ExpiresAt: exp}, nil).Once()

		resp, err := app.Test(jsonRequest(http.MethodPost, "/login", `{"username":"admin","password":"s3cret"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var tok service.Token
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
		assert.Equal(t, "abc.def.ghi", tok.Token)
		assert.True(t, exp.Equal(tok.ExpiresAt))
	})

	t.Run("missing password", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/login", `{"username":"admin"}`))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", decodeError(t, resp).Error.Code)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		mockSvc.On("Login", mock.Anything, "admin", "nope").Return(nil, apperr.ErrUnauthorized).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/login", `{"username":"admin","password":"nope"}`))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}
