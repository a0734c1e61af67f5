package usecase

import (
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/event"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Reservation ReservationService
	Settlement  SettlementService
	Refund      RefundService
	Sweeper     HoldSweeper
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Repo      *repository.Repository
	Tx        database.Transactor
	Gateways  *gateway.Registry
	Publisher event.Publisher
	Policy    utils.BookingConfig
	Log       *zap.Logger
}

func NewService(deps Deps) *Service {
	tickets := newTicketIssuer(deps.Repo, deps.Publisher, deps.Log)

	return &Service{
		Reservation: NewReservationService(deps),
		Settlement:  NewSettlementService(deps, tickets),
		Refund:      NewRefundService(deps),
		Sweeper:     NewHoldSweeper(deps.Repo, deps.Tx, deps.Log),
	}
}
