package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("試行回数が上限を超えました")

// PinAttemptLimiter はPINごとの確認試行回数をRedisで制限する
// 総当たりでPINを探る攻撃への備え
type PinAttemptLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewPinAttemptLimiter は新しい PinAttemptLimiter を作成する
func NewPinAttemptLimiter(client *redis.Client, maxAttempts int, window time.Duration) *PinAttemptLimiter {
	return &PinAttemptLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow はPINコードに対する試行を1回記録し、上限内かを返す
// 上限を超えた場合は ErrTooManyAttempts を返す
func (l *PinAttemptLimiter) Allow(ctx context.Context, pinCode string) error {
	key := fmt.Sprintf("pin:attempts:%s", pinCode)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("試行回数の記録に失敗: %w", err)
	}
	if count == 1 {
		// 初回の試行でウィンドウを開始する
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("試行ウィンドウの設定に失敗: %w", err)
		}
	}
	if count > int64(l.maxAttempts) {
		return ErrTooManyAttempts
	}
	return nil
}

// Reset はPINコードの試行カウントをクリアする（確定成功時に呼ぶ）
func (l *PinAttemptLimiter) Reset(ctx context.Context, pinCode string) error {
	key := fmt.Sprintf("pin:attempts:%s", pinCode)
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("試行回数のクリアに失敗: %w", err)
	}
	return nil
}
