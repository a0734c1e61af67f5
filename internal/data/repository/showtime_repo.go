package repository

import (
	"context"
	"errors"
	"fmt"

	"cinema-reservation/internal/data/entity"
	"cinema-reservation/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ShowtimeRepository is a read-only view of the catalog's showtimes.
type ShowtimeRepository interface {
	FindByID(ctx context.Context, id int64) (*entity.Showtime, error)
}

type showtimeRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewShowtimeRepository(db database.PgxIface, log *zap.Logger) ShowtimeRepository {
	return &showtimeRepository{
		db:  db,
		log: log.With(zap.String("repository", "showtime")),
	}
}

func (r *showtimeRepository) FindByID(ctx context.Context, id int64) (*entity.Showtime, error) {
	query := `
		SELECT id, movie_id, hall_id, start_time, end_time, base_price,
			FLOOR(EXTRACT(EPOCH FROM (start_time - ` + dbNow + `)))::bigint AS seconds_until_start
		FROM showtimes
		WHERE id = $1
	`

	var s entity.Showtime
	err := database.Conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.MovieID,
		&s.HallID,
		&s.StartTime,
		&s.EndTime,
		&s.BasePrice,
		&s.SecondsUntilStart,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find showtime by ID", zap.Error(err), zap.Int64("showtime_id", id))
		return nil, fmt.Errorf("find showtime by ID %d: %w", id, err)
	}

	return &s, nil
}
