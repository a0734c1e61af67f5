package usecase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/event"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/pkg/utils"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// fakeTx runs fn directly and records whether it would have committed.
type fakeTx struct {
	commits   int
	rollbacks int
}

func (t *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type mockShowtimeRepo struct{ mock.Mock }

func (m *mockShowtimeRepo) FindByID(ctx context.Context, id int64) (*entity.Showtime, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*entity.Showtime)
	return s, args.Error(1)
}

type mockSeatRepo struct{ mock.Mock }

func (m *mockSeatRepo) FindByIDs(ctx context.Context, ids []int64) ([]*entity.Seat, error) {
	args := m.Called(ctx, ids)
	s, _ := args.Get(0).([]*entity.Seat)
	return s, args.Error(1)
}

type mockBookingRepo struct{ mock.Mock }

func (m *mockBookingRepo) Create(ctx context.Context, b *entity.Booking, holdFor time.Duration) error {
	return m.Called(ctx, b, holdFor).Error(0)
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id int64) (*entity.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*entity.Booking)
	return b, args.Error(1)
}

func (m *mockBookingRepo) FindByIDForUpdate(ctx context.Context, id int64) (*entity.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*entity.Booking)
	return b, args.Error(1)
}

func (m *mockBookingRepo) FindByCode(ctx context.Context, code string) (*entity.Booking, error) {
	args := m.Called(ctx, code)
	b, _ := args.Get(0).(*entity.Booking)
	return b, args.Error(1)
}

func (m *mockBookingRepo) FindByUserID(ctx context.Context, userID int64, limit, offset int) ([]*entity.Booking, error) {
	args := m.Called(ctx, userID, limit, offset)
	b, _ := args.Get(0).([]*entity.Booking)
	return b, args.Error(1)
}

func (m *mockBookingRepo) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBookingRepo) TransitionStatus(ctx context.Context, id int64, from, to entity.BookingStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockBookingRepo) SetTicket(ctx context.Context, id int64, token, payload string) (bool, error) {
	args := m.Called(ctx, id, token, payload)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingRepo) LockSeatKeys(ctx context.Context, showtimeID int64, seatIDs []int64) error {
	return m.Called(ctx, showtimeID, seatIDs).Error(0)
}

func (m *mockBookingRepo) FindSeatHolders(ctx context.Context, showtimeID int64, seatIDs []int64) ([]entity.SeatHolder, error) {
	args := m.Called(ctx, showtimeID, seatIDs)
	h, _ := args.Get(0).([]entity.SeatHolder)
	return h, args.Error(1)
}

func (m *mockBookingRepo) ExpireLapsedHolds(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockBookingSeatRepo struct{ mock.Mock }

func (m *mockBookingSeatRepo) CreateBatch(ctx context.Context, bookingID int64, seats []*entity.BookingSeat) error {
	return m.Called(ctx, bookingID, seats).Error(0)
}

func (m *mockBookingSeatRepo) FindByBookingID(ctx context.Context, bookingID int64) ([]*entity.BookingSeat, error) {
	args := m.Called(ctx, bookingID)
	s, _ := args.Get(0).([]*entity.BookingSeat)
	return s, args.Error(1)
}

func (m *mockBookingSeatRepo) FindByBookingIDs(ctx context.Context, bookingIDs []int64) (map[int64][]*entity.BookingSeat, error) {
	args := m.Called(ctx, bookingIDs)
	s, _ := args.Get(0).(map[int64][]*entity.BookingSeat)
	return s, args.Error(1)
}

type mockPaymentRepo struct{ mock.Mock }

func (m *mockPaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPaymentRepo) FindByCode(ctx context.Context, code string) (*entity.Payment, error) {
	args := m.Called(ctx, code)
	p, _ := args.Get(0).(*entity.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentRepo) FindLatestPending(ctx context.Context, bookingID int64) (*entity.Payment, error) {
	args := m.Called(ctx, bookingID)
	p, _ := args.Get(0).(*entity.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentRepo) FindLatestPaid(ctx context.Context, bookingID int64, forUpdate bool) (*entity.Payment, error) {
	args := m.Called(ctx, bookingID, forUpdate)
	p, _ := args.Get(0).(*entity.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentRepo) MarkPaid(ctx context.Context, p *entity.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPaymentRepo) RefreshPending(ctx context.Context, p *entity.Payment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPaymentRepo) TransitionStatus(ctx context.Context, id int64, from, to entity.PaymentStatus) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockPaymentRepo) CancelPendingByBooking(ctx context.Context, bookingID int64) (int64, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPaymentRepo) ExpireLapsedPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockGateway struct {
	mock.Mock
	name string
}

func (m *mockGateway) Name() string { return m.name }

func (m *mockGateway) CreateCharge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*gateway.ChargeResponse)
	return r, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, header http.Header) (*gateway.WebhookEvent, error) {
	args := m.Called(payload, header)
	e, _ := args.Get(0).(*gateway.WebhookEvent)
	return e, args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResponse, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*gateway.RefundResponse)
	return r, args.Error(1)
}

func (m *mockGateway) QueryTransaction(ctx context.Context, code string) (*gateway.TransactionInfo, error) {
	args := m.Called(ctx, code)
	r, _ := args.Get(0).(*gateway.TransactionInfo)
	return r, args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	showtimes    *mockShowtimeRepo
	seats        *mockSeatRepo
	bookings     *mockBookingRepo
	bookingSeats *mockBookingSeatRepo
	payments     *mockPaymentRepo
	gateway      *mockGateway
	publisher    *recordingPublisher
	tx           *fakeTx
	deps         Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{
		showtimes:    new(mockShowtimeRepo),
		seats:        new(mockSeatRepo),
		bookings:     new(mockBookingRepo),
		bookingSeats: new(mockBookingSeatRepo),
		payments:     new(mockPaymentRepo),
		gateway:      &mockGateway{name: "sandbox"},
		publisher:    &recordingPublisher{},
		tx:           &fakeTx{},
	}

	env.deps = Deps{
		Repo: &repository.Repository{
			Showtime:    env.showtimes,
			Seat:        env.seats,
			Booking:     env.bookings,
			BookingSeat: env.bookingSeats,
			Payment:     env.payments,
		},
		Tx:        env.tx,
		Gateways:  gateway.NewRegistry(env.gateway),
		Publisher: env.publisher,
		Policy: utils.BookingConfig{
			HoldDuration:    120 * time.Second,
			SweepInterval:   time.Minute,
			RefundMinLead:   2 * time.Hour,
			ProviderTimeout: time.Second,
			Currency:        "vnd",
		},
		Log: zap.NewNop(),
	}
	return env
}

func int64Ptr(v int64) *int64 { return &v }

func heldBooking(id int64) *entity.Booking {
	expire := time.Now().Add(time.Minute)
	return &entity.Booking{
		Base:        entity.Base{ID: id},
		UserID:      int64Ptr(7),
		ShowtimeID:  10,
		BookingCode: "code-" + string(rune('a'+id%26)),
		TotalPrice:  150000,
		Status:      entity.BookingStatusHeld,
		ExpireAt:    &expire,
	}
}
