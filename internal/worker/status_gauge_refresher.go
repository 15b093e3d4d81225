package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joshtmags/reservation-system/internal/domain/reservation"
	"github.com/joshtmags/reservation-system/internal/pkg/logger"
	"github.com/joshtmags/reservation-system/internal/pkg/metrics"
)

// PhaseCounter は現在のフェーズ別予約数を返すインターフェース
type PhaseCounter interface {
	CountByPhase(ctx context.Context) (map[reservation.Phase]int, error)
}

// StatusGaugeRefresher はフェーズ別予約数のゲージを定期更新するワーカー
// 状態は導出値なのでストアには何も書き戻さない
type StatusGaugeRefresher struct {
	counter  PhaseCounter
	metrics  *metrics.Metrics
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewStatusGaugeRefresher は新しいリフレッシャーを作成
func NewStatusGaugeRefresher(counter PhaseCounter, m *metrics.Metrics, interval time.Duration) *StatusGaugeRefresher {
	return &StatusGaugeRefresher{
		counter:  counter,
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はリフレッシャーを開始
func (r *StatusGaugeRefresher) Start(ctx context.Context) {
	logger.Info("フェーズゲージリフレッシャー開始",
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("フェーズゲージリフレッシャー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("フェーズゲージリフレッシャー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// Stop はリフレッシャーを停止
func (r *StatusGaugeRefresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// refresh はフェーズ別件数を取得しゲージに反映する
func (r *StatusGaugeRefresher) refresh(ctx context.Context) {
	counts, err := r.counter.CountByPhase(ctx)
	if err != nil {
		logger.Error("フェーズ別件数の取得失敗", zap.Error(err))
		return
	}

	// 件数ゼロのフェーズもゲージを明示的に0へ戻す
	for _, phase := range []reservation.Phase{
		reservation.PhaseInactive,
		reservation.PhaseActive,
		reservation.PhaseExpired,
		reservation.PhaseConfirmed,
	} {
		r.metrics.ReservationsByPhase.WithLabelValues(string(phase)).Set(float64(counts[phase]))
	}
}
