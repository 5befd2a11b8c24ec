package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/handlers"
	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/version"
)

// setupRoutes configures all API routes. Route groups whose component is
// missing from Deps are not mounted.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	if s.deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	// WebSocket endpoint (no JSON content-type requirement)
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.deps.Variants != nil {
			variantHandler := handlers.NewVariantHandler(s.deps.Variants)
			r.Route("/variants", func(r chi.Router) {
				r.Get("/", variantHandler.GetVariants)
				r.Post("/refresh", variantHandler.RefreshVariants)
			})
		}

		if s.deps.Instances != nil {
			instanceHandler := handlers.NewInstanceHandler(s.deps.Instances)
			r.Route("/instances", func(r chi.Router) {
				r.Get("/", instanceHandler.GetInstances)
				r.Patch("/", instanceHandler.UpdateDetails)
				r.Post("/status", instanceHandler.UpdateStatus)
				r.Delete("/{id}", instanceHandler.DeleteInstance)
				r.Post("/{id}/exclusions", instanceHandler.UpdateExclusions)
			})
		}

		if s.deps.Tags != nil && s.deps.Variants != nil && s.deps.Instances != nil {
			tagHandler := handlers.NewTagHandler(s.deps.Tags, s.deps.Variants, s.deps.Instances)
			r.Route("/tags", func(r chi.Router) {
				r.Get("/", tagHandler.GetTags)
				r.Get("/foreign", tagHandler.GetForeignTags)
				r.Get("/{status}", tagHandler.GetByStatus)
			})
		}

		if s.deps.Trades != nil {
			tradeHandler := handlers.NewTradeHandler(s.deps.Trades)
			r.Route("/trades", func(r chi.Router) {
				r.Get("/", tradeHandler.GetTrades)
				r.Post("/", tradeHandler.ProposeTrade)
				r.Post("/{id}/accept", tradeHandler.AcceptTrade)
				r.Post("/{id}/complete", tradeHandler.CompleteTrade)
				r.Post("/{id}/cancel", tradeHandler.CancelTrade)
				r.Post("/{id}/rate", tradeHandler.RateTrade)
			})
		}

		if s.deps.Queue != nil {
			syncHandler := handlers.NewSyncHandler(s.deps.Queue)
			r.Route("/sync", func(r chi.Router) {
				r.Post("/flush", syncHandler.Flush)
				r.Get("/pending", syncHandler.GetPending)
			})
		}
	})
}

// healthCheck returns the health status of the API.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":    "healthy",
		"version":   version.GetVersion(),
		"wsClients": s.wsHub.ClientCount(),
		"sync":      s.deps.Metrics.GetStats(),
	}
	if s.deps.Variants != nil {
		status["variantsLoading"] = s.deps.Variants.Loading()
	}
	if s.deps.Instances != nil {
		status["instancesLoading"] = s.deps.Instances.Loading()
	}
	response.Success(w, status)
}
