package reservation

import (
	"context"
	"fmt"
	"time"
)

const (
	// PinWindowLead は予約時刻から遡るPIN有効開始までの時間
	PinWindowLead = 15 * time.Minute

	// DelayPerReservation は先行予約1件ごとの窓延長分
	DelayPerReservation = 3 * time.Minute
)

// Window はPINの有効期間を表す
type Window struct {
	From     time.Time
	Until    time.Time
	Extended bool
}

// AheadCounter は指定区間内の既存予約件数を数える
type AheadCounter interface {
	// CountInWindow は reservation_time が [from, until] に含まれる予約数を返す（両端含む）
	CountInWindow(ctx context.Context, from, until time.Time) (int, error)
}

// WindowCalculator はPINの有効期間を計算する
// 開始側は延長しない: 先行予約の混雑は終了側だけを外に押し出す
type WindowCalculator struct {
	counter AheadCounter
}

// NewWindowCalculator は新しい WindowCalculator を作成する
func NewWindowCalculator(counter AheadCounter) *WindowCalculator {
	return &WindowCalculator{counter: counter}
}

// Calculate は予約時刻に対するPIN有効期間を計算する
// 新しい予約を保存する前に呼ぶこと（自分自身を数えないため）
func (c *WindowCalculator) Calculate(ctx context.Context, reservationTime time.Time) (Window, error) {
	from := reservationTime.Add(-PinWindowLead)

	aheadCount, err := c.counter.CountInWindow(ctx, from, reservationTime)
	if err != nil {
		return Window{}, fmt.Errorf("先行予約件数の取得に失敗: %w", err)
	}

	delay := time.Duration(aheadCount) * DelayPerReservation

	return Window{
		From:     from,
		Until:    reservationTime.Add(delay),
		Extended: aheadCount > 0,
	}, nil
}
