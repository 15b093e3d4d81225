package reservation

import "time"

// Phase は予約ライフサイクルの排他的なフェーズを表す
type Phase string

const (
	PhaseInactive  Phase = "inactive"
	PhaseActive    Phase = "active"
	PhaseExpired   Phase = "expired"
	PhaseConfirmed Phase = "confirmed"
)

// Status は導出された予約状態
// Extended はフェーズとは独立したフラグ（窓が延長されたか）であり、
// 5つ目の排他的フェーズとしては扱わない
type Status struct {
	Phase    Phase
	Extended bool
}

// Message は状態に対応するユーザー向けメッセージを返す
func (s Status) Message() string {
	if s.Extended && s.Phase == PhaseActive {
		return "Reservation is extended."
	}
	switch s.Phase {
	case PhaseInactive:
		return "Pin is not yet active"
	case PhaseActive:
		return "Reservation is now active"
	case PhaseExpired:
		return "Reservation is expired."
	case PhaseConfirmed:
		return "Reservation is confirmed."
	}
	return ""
}

// Reservation は予約エンティティを表す
// 状態カラムは持たない: 状態は常にタイムスタンプと現在時刻から導出する
type Reservation struct {
	ID              int64
	FirstName       string
	LastName        string
	Phone           string
	ReservationTime time.Time
	PinCode         string
	PinActiveFrom   time.Time
	PinActiveUntil  time.Time
	ConfirmedAt     *time.Time
	ExtendedAt      *time.Time
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewReservation は新しい予約を作成する
// extended_at は窓が延長された場合のみ作成時刻で埋める
func NewReservation(firstName, lastName, phone string, reservationTime time.Time, pinCode string, window Window, now time.Time) *Reservation {
	r := &Reservation{
		FirstName:       firstName,
		LastName:        lastName,
		Phone:           phone,
		ReservationTime: reservationTime,
		PinCode:         pinCode,
		PinActiveFrom:   window.From,
		PinActiveUntil:  window.Until,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if window.Extended {
		extendedAt := now
		r.ExtendedAt = &extendedAt
	}
	return r
}

// StatusAt は指定時刻での状態を導出する
// confirmed_at が設定済みなら他の条件に関係なく常に Confirmed（終端状態）
func (r *Reservation) StatusAt(now time.Time) Status {
	status := Status{Extended: r.ExtendedAt != nil}
	switch {
	case r.ConfirmedAt != nil:
		status.Phase = PhaseConfirmed
	case r.isActiveAt(now):
		status.Phase = PhaseActive
	case now.After(r.PinActiveUntil):
		status.Phase = PhaseExpired
	default:
		status.Phase = PhaseInactive
	}
	return status
}

// isActiveAt は now が [pin_active_from, pin_active_until] に含まれるかを返す（両端含む）
func (r *Reservation) isActiveAt(now time.Time) bool {
	return !now.Before(r.PinActiveFrom) && !now.After(r.PinActiveUntil)
}

// IsConfirmed は確定済みかを返す
func (r *Reservation) IsConfirmed() bool {
	return r.ConfirmedAt != nil
}

// IsExpiredAt は指定時刻で期限切れかを返す
func (r *Reservation) IsExpiredAt(now time.Time) bool {
	return r.ConfirmedAt == nil && now.After(r.PinActiveUntil)
}

// Confirm は予約を確定する
// confirmed_at と processed_at は必ず同時に設定する
func (r *Reservation) Confirm(now time.Time) error {
	switch status := r.StatusAt(now); status.Phase {
	case PhaseConfirmed:
		return ErrPinAlreadyConfirmed
	case PhaseExpired:
		return ErrPinAlreadyExpired
	case PhaseActive:
		// 確定可能
	default:
		return ErrPinNotYetActive
	}
	r.ConfirmedAt = &now
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return nil
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.FirstName == "" {
		return ErrFirstNameRequired
	}
	if r.LastName == "" {
		return ErrLastNameRequired
	}
	if r.Phone == "" {
		return ErrPhoneRequired
	}
	if r.PinCode == "" {
		return ErrPinCodeRequired
	}
	if !r.PinActiveFrom.Before(r.PinActiveUntil) {
		return ErrInvalidPinWindow
	}
	return nil
}
