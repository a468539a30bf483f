package audit

import (
	"net/http"
	"strconv"

	"github.com/opslane/access-portal/internal/transport"
	"github.com/opslane/access-portal/pkg/logger"
)

type ServiceAPI interface {
	List(filter ListFilter) ([]*Entry, int64, error)
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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ListFilter{
		ActorEmail: q.Get("actor"),
		Action:     q.Get("action"),
		TargetID:   q.Get("target_id"),
		Limit:      50,
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			filter.Limit = l
		}
	}
	if pageStr := q.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 1 {
			filter.Offset = (p - 1) * filter.Limit
		}
	}

	entries, total, err := h.Service.List(filter)
	if err != nil {
		h.Logger.Error("List: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  entries,
		"total": total,
	})
}
