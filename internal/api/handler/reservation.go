package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joshtmags/reservation-system/internal/application"
	"github.com/joshtmags/reservation-system/internal/domain/reservation"
)

type ReservationHandler struct {
	service ReservationServiceInterface
	now     func() time.Time
}

func NewReservationHandler(s ReservationServiceInterface) *ReservationHandler {
	return &ReservationHandler{service: s, now: time.Now}
}

type CreateReservationRequest struct {
	FirstName       string    `json:"first_name" validate:"required,max=100"`
	LastName        string    `json:"last_name" validate:"required,max=100"`
	Phone           string    `json:"phone" validate:"required,max=32"`
	ReservationTime time.Time `json:"reservation_time" validate:"required"`
}

type CreateReservationResponse struct {
	PinCode string `json:"pin_code"`
}

type ConfirmPinRequest struct {
	PinCode string `json:"pin_code" validate:"required,max=8"`
}

type ConfirmPinResponse struct {
	Message     string            `json:"message"`
	Reservation ReservationDetail `json:"reservation"`
}

type ReservationDetail struct {
	ID              int64      `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           string     `json:"phone"`
	ReservationTime time.Time  `json:"reservation_time"`
	PinCode         string     `json:"pin_code"`
	PinActiveFrom   time.Time  `json:"pin_active_from"`
	PinActiveUntil  time.Time  `json:"pin_active_until"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	ExtendedAt      *time.Time `json:"extended_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	Status          string     `json:"status"`
	Extended        bool       `json:"extended"`
}

type ListReservationsResponse struct {
	Data    []ReservationDetail `json:"data"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// toDetail はレスポンス用の表現に変換する
// 状態はリクエスト時点の時刻で導出したスナップショット
func (h *ReservationHandler) toDetail(r *reservation.Reservation) ReservationDetail {
	status := r.StatusAt(h.now())
	return ReservationDetail{
		ID: r.ID, FirstName: r.FirstName, LastName: r.LastName,
		Phone: r.Phone, ReservationTime: r.ReservationTime,
		PinCode: r.PinCode, PinActiveFrom: r.PinActiveFrom, PinActiveUntil: r.PinActiveUntil,
		ConfirmedAt: r.ConfirmedAt, ExtendedAt: r.ExtendedAt, ProcessedAt: r.ProcessedAt,
		Status: string(status.Phase), Extended: status.Extended,
	}
}

// Create は予約を作成し、発行されたPINコードを返す
func (h *ReservationHandler) Create(c echo.Context) error {
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.CreateReservation(c.Request().Context(), application.CreateReservationInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		ReservationTime: req.ReservationTime,
	})
	if err != nil {
		if errors.Is(err, reservation.ErrTimeNotFuture) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, CreateReservationResponse{PinCode: r.PinCode})
}

// Confirm はPINコードで予約を確定する
func (h *ReservationHandler) Confirm(c echo.Context) error {
	var req ConfirmPinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.service.ConfirmPin(c.Request().Context(), req.PinCode)
	if err != nil {
		return confirmErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, ConfirmPinResponse{
		Message:     "Reservation confirmed.",
		Reservation: h.toDetail(r),
	})
}

// confirmErrorToHTTP は確定エラーをHTTPエラーに変換する
// メッセージはドメインエラーの固定文言をそのまま使う
func confirmErrorToHTTP(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, reservation.ErrPinNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrPinAlreadyConfirmed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, reservation.ErrPinAlreadyExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, reservation.ErrPinNotYetActive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, reservation.ErrTooManyPinAttempts):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// List は予約一覧をページ単位で返す
func (h *ReservationHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	reservations, total, err := h.service.ListReservations(c.Request().Context(), page, perPage)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	data := make([]ReservationDetail, len(reservations))
	for i, r := range reservations {
		data[i] = h.toDetail(r)
	}
	return c.JSON(http.StatusOK, ListReservationsResponse{
		Data: data, Total: total, Page: page, PerPage: perPage,
	})
}
