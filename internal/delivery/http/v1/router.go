package v1

import (
	"context"
	"net/http"

	"cod-fulfillment/internal/delivery/http/middleware"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/utils"
)

// Handlers is everything the API mounts.
type Handlers struct {
	COD     *CODHandler
	Agent   *AgentHandler
	Admin   *AdminCODHandler
	FeeRule *FeeRuleHandler
	Config  *ConfigHandler
	// Ping reports database reachability for the health check. Optional.
	Ping func(ctx context.Context) error
}

func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	authed := func(fn http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(fn)
	}
	agentOnly := func(fn http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.RequireRole(domain.RoleAgent, domain.RoleAdmin)(fn))
	}
	adminOnly := func(fn http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.RequireRole(domain.RoleAdmin)(fn))
	}

	// Config (Public)
	mux.HandleFunc("GET /api/v1/config/cod-enums", h.Config.GetEnums)

	// Checkout
	mux.Handle("GET /api/v1/cod/quote", authed(h.COD.Quote))
	mux.Handle("POST /api/v1/cod/orders", authed(h.COD.CreateCODOrder))
	mux.Handle("GET /api/v1/cod/orders/{orderId}", authed(h.COD.GetCODOrder))

	// Delivery agents
	mux.Handle("POST /api/v1/agent/cod/orders/{orderId}/dispatch", agentOnly(h.Agent.Dispatch))
	mux.Handle("POST /api/v1/agent/cod/orders/{orderId}/outcome", agentOnly(h.Agent.RecordOutcome))
	mux.Handle("POST /api/v1/agent/cod/proofs", agentOnly(h.Agent.UploadProof))

	// Admin COD
	mux.Handle("GET /api/v1/admin/cod/orders", adminOnly(h.Admin.ListOrders))
	mux.Handle("GET /api/v1/admin/cod/orders/{orderId}/verifications", adminOnly(h.Admin.ListVerifications))
	mux.Handle("POST /api/v1/admin/cod/orders/{orderId}/verifications", adminOnly(h.Admin.RecordVerification))
	mux.Handle("GET /api/v1/admin/cod/orders/{orderId}/history", adminOnly(h.Admin.ListHistory))
	mux.Handle("POST /api/v1/admin/cod/orders/{orderId}/reschedule", adminOnly(h.Admin.Reschedule))
	mux.Handle("PATCH /api/v1/admin/cod/collections/{id}/discrepancy", adminOnly(h.Admin.ResolveDiscrepancy))
	mux.Handle("PATCH /api/v1/admin/cod/collections/{id}/pending-deposit", adminOnly(h.Admin.MarkPendingDeposit))
	mux.Handle("PATCH /api/v1/admin/cod/collections/{id}/deposit", adminOnly(h.Admin.RecordDeposit))

	// Admin fee rules
	mux.Handle("GET /api/v1/admin/cod/fee-rules", adminOnly(h.FeeRule.List))
	mux.Handle("POST /api/v1/admin/cod/fee-rules", adminOnly(h.FeeRule.Create))
	mux.Handle("GET /api/v1/admin/cod/fee-rules/{id}", adminOnly(h.FeeRule.Get))
	mux.Handle("PUT /api/v1/admin/cod/fee-rules/{id}", adminOnly(h.FeeRule.Update))
	mux.Handle("DELETE /api/v1/admin/cod/fee-rules/{id}", adminOnly(h.FeeRule.Delete))

	// Health Check
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		if h.Ping != nil {
			if err := h.Ping(r.Context()); err != nil {
				utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "connected"})
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // Root health check for load balancers

	return mux
}
