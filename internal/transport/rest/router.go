package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/audit"
	"github.com/opslane/access-portal/internal/auth"
	"github.com/opslane/access-portal/internal/catalog"
	"github.com/opslane/access-portal/internal/department"
	"github.com/opslane/access-portal/internal/directory"
	"github.com/opslane/access-portal/internal/transport/middleware"
	"github.com/opslane/access-portal/internal/transport/swagger"
	"github.com/opslane/access-portal/internal/workflow"
)

type Handlers struct {
	Directory  *directory.Handler
	Department *department.Handler
	Catalog    *catalog.Handler
	Workflow   *workflow.Handler
	Audit      *audit.Handler
}

// RegisterAllRoutes mounts the portal API under /api/v1. Every route except
// health and the HR webhook sits behind the actor middleware and a role
// guard; the webhook authenticates with the shared key instead.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, guard *auth.Guard, webhookKey, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORSWithOrigins(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// HR intake, authenticated by shared key rather than actor identity
		r.Group(func(wr chi.Router) {
			wr.Use(auth.VerifyWebhookKey(webhookKey, logger))
			wr.Post("/webhooks/hr/onboarding", h.Workflow.OnboardingWebhook)
			wr.Post("/webhooks/hr/offboarding", h.Workflow.OffboardingWebhook)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(auth.ActorContext)

			// Audit trail is readable by the wider viewer tier
			pr.Group(func(ar chi.Router) {
				ar.Use(guard.RequireAnyRole(internal.RoleAdmin, internal.RoleAuditViewer))
				ar.Get("/audit", h.Audit.List)
			})

			pr.Group(func(ar chi.Router) {
				ar.Use(guard.RequireAdmin())

				ar.Route("/users", func(ur chi.Router) {
					ur.Get("/", h.Directory.List)
					ur.Post("/", h.Directory.Create)
					ur.Get("/{id}", h.Directory.Get)
					ur.Patch("/{id}", h.Directory.Update)
					ur.Put("/{id}/permissions", h.Directory.UpdateGrants)
					ur.Delete("/{id}", h.Directory.Delete)
				})

				ar.Route("/departments", func(dr chi.Router) {
					dr.Get("/", h.Department.List)
					dr.Post("/", h.Department.Create)
					dr.Get("/{id}", h.Department.Get)
					dr.Patch("/{id}", h.Department.Update)
					dr.Delete("/{id}", h.Department.Delete)
					dr.Get("/{id}/products", h.Department.GetProducts)
					dr.Put("/{id}/products", h.Department.SetProducts)
				})

				ar.Route("/services", func(sr chi.Router) {
					sr.Get("/", h.Catalog.ListServices)
					sr.Post("/", h.Catalog.CreateService)
					sr.Get("/{id}", h.Catalog.GetService)
					sr.Patch("/{id}", h.Catalog.UpdateService)
					sr.Delete("/{id}", h.Catalog.DeleteService)
				})

				ar.Route("/products", func(pdr chi.Router) {
					pdr.Get("/", h.Catalog.ListProducts)
					pdr.Post("/", h.Catalog.CreateProduct)
					pdr.Get("/{id}", h.Catalog.GetProduct)
					pdr.Patch("/{id}", h.Catalog.UpdateProduct)
					pdr.Delete("/{id}", h.Catalog.DeleteProduct)
				})

				ar.Route("/tasks", func(tr chi.Router) {
					tr.Get("/", h.Workflow.List)
					tr.Get("/{id}", h.Workflow.Get)
					tr.Patch("/{id}", h.Workflow.Update)
					tr.Post("/{id}/attachment", h.Workflow.UploadAttachment)
					tr.Get("/{id}/attachment", h.Workflow.DownloadAttachment)
					tr.Post("/{id}/complete", h.Workflow.Complete)
					tr.Delete("/{id}", h.Workflow.Delete)
				})
			})
		})
	})
}
