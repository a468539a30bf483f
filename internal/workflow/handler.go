package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/transport"
	"github.com/opslane/access-portal/pkg/logger"
)

// uploads are buffered to 10 MiB in memory before spilling to disk
const maxUploadMemory = 10 << 20

type ServiceAPI interface {
	IntakeOnboarding(sig OnboardingSignal) (*IntakeResult, error)
	IntakeOffboarding(sig OffboardingSignal) (*IntakeResult, error)
	List(status TaskStatus, limit, offset int) ([]*Task, int64, error)
	Get(id string) (*TaskView, error)
	Update(actor, id string, dto UpdateTaskDTO) (*Task, error)
	AttachChecklist(actor, id, filename string, content io.Reader) (*Task, error)
	Attachment(id string) (io.ReadCloser, string, error)
	Complete(actor, id string) (*Task, error)
	Delete(actor, id string) error
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

func actorEmail(r *http.Request) string {
	if actor, ok := internal.ActorFromContext(r.Context()); ok {
		return actor.Email
	}
	return ""
}

func (h *Handler) OnboardingWebhook(w http.ResponseWriter, r *http.Request) {
	var sig OnboardingSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.Logger.Error("OnboardingWebhook: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.IntakeOnboarding(sig)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, result)
}

func (h *Handler) OffboardingWebhook(w http.ResponseWriter, r *http.Request) {
	var sig OffboardingSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.Logger.Error("OffboardingWebhook: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.IntakeOffboarding(sig)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
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

	status := TaskStatus(r.URL.Query().Get("status"))
	if status != "" && status != StatusPending && status != StatusCompleted {
		h.WriteError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	tasks, total, err := h.Service.List(status, limit, offset)
	if err != nil {
		h.Logger.Error("List: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  tasks,
		"total": total,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var dto UpdateTaskDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.Service.Update(actorEmail(r), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	task, err := h.Service.AttachChecklist(actorEmail(r), chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	rc, name, err := h.Service.Attachment(chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", contentTypeByName(name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Error("DownloadAttachment: stream failed", "error", err)
	}
}

func contentTypeByName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			if ct := mime.TypeByExtension(name[i:]); ct != "" {
				return ct
			}
			break
		}
	}
	return "application/octet-stream"
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.Complete(actorEmail(r), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(actorEmail(r), chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}
