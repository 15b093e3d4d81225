package reservation

import (
	"context"
	"time"

	"github.com/joshtmags/reservation-system/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	// pin_code の一意制約違反は ErrPinCodeTaken を返す
	Create(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// GetByPinCode はPINコードから予約を取得する
	GetByPinCode(ctx context.Context, pinCode string) (*Reservation, error)

	// PinCodeExists はPINコードが使用中かを返す
	PinCodeExists(ctx context.Context, pinCode string) (bool, error)

	// CountInWindow は reservation_time が [from, until] に含まれる予約数を返す
	CountInWindow(ctx context.Context, from, until time.Time) (int, error)

	// List は reservation_time 昇順・id 昇順で予約一覧と総件数を返す
	List(ctx context.Context, limit, offset int) ([]*Reservation, int, error)

	// ConfirmByPinCode は confirmed_at が未設定の場合に限り
	// confirmed_at と processed_at を now で同時に設定する（条件付き更新）
	// 更新できた場合 true、既に確定済みで更新されなかった場合 false を返す
	ConfirmByPinCode(ctx context.Context, pinCode string, now time.Time) (bool, error)

	// CountByPhase は現在時刻で導出した各フェーズの予約数を返す
	CountByPhase(ctx context.Context, now time.Time) (map[Phase]int, error)
}
