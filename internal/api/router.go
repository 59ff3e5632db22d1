package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/binderkeep/internal/api/handlers"
	"github.com/ramonehamilton/binderkeep/internal/api/response"
	"github.com/ramonehamilton/binderkeep/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// WebSocket endpoint for import progress
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		binderHandler := handlers.NewBinderHandler(s.services.Binders, s.services.Cards, s.logger)
		importHandler := handlers.NewImportHandler(s.services.Imports, s.wsHub, s.logger)
		r.Route("/binders", func(r chi.Router) {
			r.Post("/", binderHandler.CreateBinder)
			r.Get("/", binderHandler.ListBinders)
			r.Get("/{binderID}", binderHandler.GetBinder)
			r.Get("/{binderID}/export", binderHandler.ExportBinder)
			r.Delete("/{binderID}", binderHandler.DeleteBinder)
			r.Post("/{binderID}/cards", binderHandler.AddCard)
			r.Post("/{binderID}/move", binderHandler.MoveCard)
			r.Post("/{binderID}/rearrange", binderHandler.Rearrange)
			r.Post("/{binderID}/import", importHandler.ImportCSV)
			r.Delete("/{binderID}/pages/{page}/slots/{position}", binderHandler.RemoveCard)
		})

		tradeHandler := handlers.NewTradeHandler(s.services.Trades)
		r.Route("/trades", func(r chi.Router) {
			r.Post("/", tradeHandler.ProposeTrade)
			r.Get("/", tradeHandler.ListTrades)
			r.Get("/{tradeID}", tradeHandler.GetTrade)
			r.Post("/{tradeID}/status", tradeHandler.UpdateStatus)
		})

		if s.services.Metrics != nil {
			r.Get("/metrics", s.importMetrics)
		}
	})
}

func (s *Server) importMetrics(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, s.services.Metrics.Stats())
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "binderkeep-api",
		"version": version.Version,
	})
}
