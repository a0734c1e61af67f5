// internal/wire/wire.go
package wire

import (
	"net/http"

	"cinema-reservation/internal/adaptor"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/internal/worker"
	"cinema-reservation/pkg/middleware"
	"cinema-reservation/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type App struct {
	Router *chi.Mux
}

// SweeperStatus reports the expiry sweeper's counters on /health.
type SweeperStatus interface {
	Stats() *worker.SweeperStats
}

// Wiring builds the handlers and routes on top of the services.
func Wiring(service *usecase.Service, sweeper SweeperStatus, config *utils.Config, logger *zap.Logger) *App {
	handler := adaptor.NewHandler(service, logger)
	verifier := middleware.NewTokenVerifier(config.JWT)

	return &App{
		Router: setupRouter(handler, verifier, sweeper, logger),
	}
}

func setupRouter(handler *adaptor.Handler, verifier *middleware.TokenVerifier, sweeper SweeperStatus, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))

	wireBooking(r, handler.Booking, verifier, logger)
	wirePayment(r, handler.Payment)

	r.Get("/health", healthHandler(sweeper))

	return r
}

func healthHandler(sweeper SweeperStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			utils.ResponseSuccess(w, "OK", nil)
			return
		}
		utils.ResponseSuccess(w, "OK", map[string]any{"sweeper": sweeper.Stats()})
	}
}
