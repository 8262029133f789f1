package router

import (
	"net/http"

	"github.com/lumagen/backend/internal/catalog"
	"github.com/lumagen/backend/internal/handlers"
)

// Middleware wraps a handler; Auth and Admin decide who gets through,
// Quota enforces the per-tier daily submit cap.
type Middleware func(http.Handler) http.Handler

// Deps carries everything the API surface needs.
type Deps struct {
	Generation *handlers.GenerationHandler
	Account    *handlers.AccountHandler
	APIKeys    *handlers.APIKeyHandler
	Catalog    *catalog.Handler

	Auth  Middleware
	Quota Middleware
	Admin Middleware
}

// New returns the /api/v1 handler. Submit is the only route behind the
// quota; admin routes skip user auth and use the operator token instead.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.Handle("POST "+base+"/generate", d.Auth(d.Quota(http.HandlerFunc(d.Generation.Generate))))
	mux.Handle("GET "+base+"/generation-requests", d.Auth(http.HandlerFunc(d.Generation.ListRequests)))
	mux.Handle("GET "+base+"/generation-requests/{id}", d.Auth(http.HandlerFunc(d.Generation.GetRequest)))
	mux.Handle("POST "+base+"/generation-requests/{id}/cancel", d.Auth(http.HandlerFunc(d.Generation.CancelRequest)))

	mux.Handle("GET "+base+"/models", d.Auth(http.HandlerFunc(d.Catalog.ListModels)))

	// Collaborator-facing catalog listing; carries no endpoint URLs or
	// other secrets, so no credential is required.
	mux.HandleFunc("GET /api/models", d.Catalog.ListModels)

	mux.Handle("GET "+base+"/account/me", d.Auth(http.HandlerFunc(d.Account.Me)))
	mux.Handle("GET "+base+"/credit-ledger", d.Auth(http.HandlerFunc(d.Account.CreditLedger)))

	mux.Handle("GET "+base+"/api-keys", d.Auth(http.HandlerFunc(d.APIKeys.List)))
	mux.Handle("POST "+base+"/api-keys", d.Auth(http.HandlerFunc(d.APIKeys.Create)))
	mux.Handle("DELETE "+base+"/api-keys/{id}", d.Auth(http.HandlerFunc(d.APIKeys.Revoke)))

	mux.Handle("POST "+base+"/credits/grant", d.Admin(http.HandlerFunc(d.Account.GrantCredits)))
	mux.Handle("POST "+base+"/admin/models", d.Admin(http.HandlerFunc(d.Catalog.RegisterModel)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}
