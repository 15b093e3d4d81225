package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joshtmags/reservation-system/internal/domain/reservation"
	"github.com/joshtmags/reservation-system/internal/domain/transaction"
)

type reservationRow struct {
	ID              int64      `db:"id"`
	FirstName       string     `db:"first_name"`
	LastName        string     `db:"last_name"`
	Phone           string     `db:"phone"`
	ReservationTime time.Time  `db:"reservation_time"`
	PinCode         string     `db:"pin_code"`
	PinActiveFrom   time.Time  `db:"pin_active_from"`
	PinActiveUntil  time.Time  `db:"pin_active_until"`
	ConfirmedAt     *time.Time `db:"confirmed_at"`
	ExtendedAt      *time.Time `db:"extended_at"`
	ProcessedAt     *time.Time `db:"processed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

const reservationColumns = `id, first_name, last_name, phone, reservation_time, pin_code, pin_active_from, pin_active_until, confirmed_at, extended_at, processed_at, created_at, updated_at`

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが不正です")
	}
	query := `INSERT INTO reservations (first_name, last_name, phone, reservation_time, pin_code, pin_active_from, pin_active_until, extended_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query,
		res.FirstName, res.LastName, res.Phone, res.ReservationTime,
		res.PinCode, res.PinActiveFrom, res.PinActiveUntil,
		res.ExtendedAt, res.CreatedAt, res.UpdatedAt,
	).Scan(&res.ID); err != nil {
		// pin_code の一意制約で衝突を検出する（事前チェックだけには頼らない）
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return reservation.ErrPinCodeTaken
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByPinCode(ctx context.Context, pinCode string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE pin_code = $1`
	if err := r.db.GetContext(ctx, &row, query, pinCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrPinNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return r.toEntity(&row), nil
}

func (r *ReservationRepository) PinCodeExists(ctx context.Context, pinCode string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reservations WHERE pin_code = $1)`, pinCode); err != nil {
		return false, fmt.Errorf("PINコードの照会に失敗: %w", err)
	}
	return exists, nil
}

func (r *ReservationRepository) CountInWindow(ctx context.Context, from, until time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reservations WHERE reservation_time >= $1 AND reservation_time <= $2`
	if err := r.db.GetContext(ctx, &count, query, from, until); err != nil {
		return 0, fmt.Errorf("予約件数の取得に失敗: %w", err)
	}
	return count, nil
}

func (r *ReservationRepository) List(ctx context.Context, limit, offset int) ([]*reservation.Reservation, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reservations`); err != nil {
		return nil, 0, fmt.Errorf("予約総数の取得に失敗: %w", err)
	}

	var rows []reservationRow
	// id の昇順をタイブレークに使い、ページングを安定させる
	query := `SELECT ` + reservationColumns + ` FROM reservations ORDER BY reservation_time ASC, id ASC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}

	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = r.toEntity(&rows[i])
	}
	return result, total, nil
}

func (r *ReservationRepository) ConfirmByPinCode(ctx context.Context, pinCode string, now time.Time) (bool, error) {
	// confirmed_at IS NULL を条件に含めた単一UPDATEで、二重確定の競合を
	// ストア側で排除する。confirmed_at と processed_at は同時に設定する
	query := `UPDATE reservations SET confirmed_at = $2, processed_at = $2, updated_at = $2 WHERE pin_code = $1 AND confirmed_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, pinCode, now)
	if err != nil {
		return false, fmt.Errorf("予約確定に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	return rows == 1, nil
}

func (r *ReservationRepository) CountByPhase(ctx context.Context, now time.Time) (map[reservation.Phase]int, error) {
	query := `SELECT
		CASE
			WHEN confirmed_at IS NOT NULL THEN 'confirmed'
			WHEN $1 >= pin_active_from AND $1 <= pin_active_until THEN 'active'
			WHEN $1 > pin_active_until THEN 'expired'
			ELSE 'inactive'
		END AS phase,
		COUNT(*) AS count
	FROM reservations
	GROUP BY phase`

	rows, err := r.db.QueryxContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("フェーズ別件数の取得に失敗: %w", err)
	}
	defer rows.Close()

	counts := make(map[reservation.Phase]int)
	for rows.Next() {
		var phase string
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, fmt.Errorf("フェーズ別件数の読み取りに失敗: %w", err)
		}
		counts[reservation.Phase(phase)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェーズ別件数の走査に失敗: %w", err)
	}
	return counts, nil
}

func (r *ReservationRepository) toEntity(row *reservationRow) *reservation.Reservation {
	return &reservation.Reservation{
		ID: row.ID, FirstName: row.FirstName, LastName: row.LastName,
		Phone: row.Phone, ReservationTime: row.ReservationTime,
		PinCode: row.PinCode, PinActiveFrom: row.PinActiveFrom, PinActiveUntil: row.PinActiveUntil,
		ConfirmedAt: row.ConfirmedAt, ExtendedAt: row.ExtendedAt, ProcessedAt: row.ProcessedAt,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
