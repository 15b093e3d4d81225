package handler

import (
	"context"

	"github.com/joshtmags/reservation-system/internal/application"
	"github.com/joshtmags/reservation-system/internal/domain/reservation"
)

// ReservationServiceInterface はハンドラーが必要とする予約サービスの操作
type ReservationServiceInterface interface {
	CreateReservation(ctx context.Context, input application.CreateReservationInput) (*reservation.Reservation, error)
	ConfirmPin(ctx context.Context, pinCode string) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, page, perPage int) ([]*reservation.Reservation, int, error)
}
