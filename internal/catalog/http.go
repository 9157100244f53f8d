package catalog

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ProductCatalog/pkg/kit"
)

type Server struct {
	Store Store
	Log   *zap.Logger
}

const maxBodyBytes = 1 << 20

var validate = validator.New()

type createProductReq struct {
	Name        *string      `json:"name" validate:"required,min=1"`
	Description *string      `json:"description"`
	Price       *json.Number `json:"price" validate:"required"`
	Stock       *json.Number `json:"stock"`
	Category    *string      `json:"category"`
}

type updateProductReq struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Price       *json.Number `json:"price"`
	Stock       *json.Number `json:"stock"`
	Category    *string      `json:"category"`
}

type createCategoryReq struct {
	Name *string `json:"name" validate:"required,min=1"`
}

type categoryConflict struct {
	Message  string   `json:"message"`
	Category Category `json:"category"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			kit.WriteError(w, r, http.StatusBadRequest, "missing data (name, price required)")
			return
		}
		kit.WriteError(w, r, http.StatusBadRequest, decodeErrorMessage(err))
		return
	}
	if err := validate.Struct(req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "missing data (name, price required)")
		return
	}

	np := NewProduct{Name: *req.Name, Description: req.Description}

	price, err := req.Price.Float64()
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "price must be a number")
		return
	}
	if price < 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "price must be a non-negative number")
		return
	}
	np.Price = price

	if req.Stock != nil {
		n, err := req.Stock.Int64()
		if err != nil {
			kit.WriteError(w, r, http.StatusBadRequest, "stock must be an integer")
			return
		}
		np.Stock = int(n)
	}

	if req.Category != nil && *req.Category != "" {
		np.Category = req.Category
	}

	p, err := s.Store.CreateProduct(r.Context(), np)
	if err != nil {
		s.serverError(w, r, "create product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	f := ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	}

	products, err := s.Store.ListProducts(r.Context(), f)
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, found, err := s.Store.GetProduct(r.Context(), id)
	if err != nil {
		s.serverError(w, r, "get product failed", err)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "product not found")
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, found, err := s.Store.GetProduct(r.Context(), id)
	if err != nil {
		s.serverError(w, r, "update product failed", err)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "product not found")
		return
	}

	var req updateProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			kit.WriteError(w, r, http.StatusBadRequest, "request body is required for update")
			return
		}
		kit.WriteError(w, r, http.StatusBadRequest, decodeErrorMessage(err))
		return
	}

	patch, errMsg := req.patch()
	if errMsg != "" {
		kit.WriteError(w, r, http.StatusBadRequest, errMsg)
		return
	}
	if patch.Empty() {
		kit.WriteError(w, r, http.StatusBadRequest, "request body is required for update")
		return
	}

	p, found, err := s.Store.UpdateProduct(r.Context(), id, patch)
	if err != nil {
		s.serverError(w, r, "update product failed", err)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "product not found")
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

// patch converts the request into a ProductPatch, coercing price and stock.
// A non-empty second return is the 400 message for a failed coercion.
func (req updateProductReq) patch() (ProductPatch, string) {
	p := ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	}

	if req.Price != nil {
		v, err := req.Price.Float64()
		if err != nil {
			return ProductPatch{}, "price must be a number"
		}
		if v < 0 {
			return ProductPatch{}, "price must be a non-negative number"
		}
		p.Price = &v
	}

	if req.Stock != nil {
		n, err := req.Stock.Int64()
		if err != nil {
			return ProductPatch{}, "stock must be an integer"
		}
		v := int(n)
		p.Stock = &v
	}

	return p, ""
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	found, err := s.Store.DeleteProduct(r.Context(), id)
	if err != nil {
		s.serverError(w, r, "delete product failed", err)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "product not found")
		return
	}
	kit.WriteMessage(w, http.StatusOK, "product deleted successfully")
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryReq
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		kit.WriteError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "category name required")
		return
	}

	c, err := s.Store.CreateCategory(r.Context(), *req.Name)
	if errors.Is(err, ErrCategoryExists) {
		kit.WriteJSON(w, http.StatusConflict, categoryConflict{
			Message:  "category already exists",
			Category: c,
		})
		return
	}
	if err != nil {
		s.serverError(w, r, "create category failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, c)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Store.ListCategories(r.Context())
	if err != nil {
		s.serverError(w, r, "list categories failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, categories)
}

func (s *Server) categorySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Store.CategorySummary(r.Context())
	if err != nil {
		s.serverError(w, r, "category summary failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) averagePriceByCategory(w http.ResponseWriter, r *http.Request) {
	averages, err := s.Store.AveragePriceByCategory(r.Context())
	if err != nil {
		s.serverError(w, r, "average price by category failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, averages)
}

func (s *Server) highStock(w http.ResponseWriter, r *http.Request) {
	minStock, err := strconv.Atoi(chi.URLParam(r, "minStock"))
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "not found")
		return
	}

	products, err := s.Store.HighStock(r.Context(), minStock)
	if err != nil {
		s.serverError(w, r, "high stock filter failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error")
}

// decodeJSON reads one JSON value. Unknown fields are ignored, matching the
// lenient request handling this API has always had.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after json object")
	}
	return nil
}

func decodeErrorMessage(err error) string {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		switch ute.Field {
		case "price":
			return "price must be a number"
		case "stock":
			return "stock must be an integer"
		}
	}
	return "invalid json body"
}
