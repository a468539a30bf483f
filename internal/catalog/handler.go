package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/opslane/access-portal/internal/transport"
	"github.com/opslane/access-portal/pkg/logger"
)

type ServiceAPI interface {
	CreateService(dto CreateServiceDTO) (*Service, error)
	GetService(id string) (*Service, error)
	ListServices(search string, limit, offset int) ([]*Service, int64, error)
	UpdateService(id string, dto UpdateServiceDTO) (*Service, error)
	DeleteService(id string) error
	CreateProduct(dto CreateProductDTO) (*Product, error)
	GetProduct(id string) (*Product, error)
	ListProducts(search string, limit, offset int) ([]*Product, int64, error)
	UpdateProduct(id string, dto UpdateProductDTO) (*Product, error)
	DeleteProduct(id string) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.L()),
		Service:     service,
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 1 {
			offset = (p - 1) * limit
		}
	}
	return limit, offset
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	services, total, err := h.Service.ListServices(r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		h.Logger.Error("ListServices: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  services,
		"total": total,
	})
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var dto CreateServiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateService: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc, err := h.Service.CreateService(dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, svc)
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Service.GetService(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var dto UpdateServiceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svc, err := h.Service.UpdateService(chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, svc)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteService(chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	products, total, err := h.Service.ListProducts(r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  products,
		"total": total,
	})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var dto CreateProductDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.CreateProduct(dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProduct(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var dto UpdateProductDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.UpdateProduct(chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteProduct(chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}
