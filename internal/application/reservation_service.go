package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joshtmags/reservation-system/internal/domain/reservation"
	"github.com/joshtmags/reservation-system/internal/domain/transaction"
	redislock "github.com/joshtmags/reservation-system/internal/infrastructure/redis"
	"github.com/joshtmags/reservation-system/internal/pkg/logger"
	"github.com/joshtmags/reservation-system/internal/pkg/metrics"
)

const (
	// PINコード衝突時の再生成回数
	maxPinCreateAttempts = 3

	confirmLockTTL        = 5 * time.Second
	confirmLockRetries    = 3
	confirmLockRetryDelay = 100 * time.Millisecond
)

// AttemptLimiter はPINごとの確認試行を制限するインターフェース
type AttemptLimiter interface {
	Allow(ctx context.Context, pinCode string) error
	Reset(ctx context.Context, pinCode string) error
}

// ReservationService は予約のライフサイクルを統括する
// 作成（PIN生成 + 有効期間計算）と確定（状態検証 + 条件付き更新）
type ReservationService struct {
	txManager       transaction.Manager
	reservationRepo reservation.Repository
	pinGenerator    *reservation.PinGenerator
	windowCalc      *reservation.WindowCalculator
	lockManager     redislock.LockManagerInterface
	attemptLimiter  AttemptLimiter
	now             func() time.Time
}

func NewReservationService(
	txm transaction.Manager,
	rr reservation.Repository,
	lm redislock.LockManagerInterface,
	al AttemptLimiter,
) *ReservationService {
	return &ReservationService{
		txManager:       txm,
		reservationRepo: rr,
		pinGenerator:    reservation.NewPinGenerator(rr),
		windowCalc:      reservation.NewWindowCalculator(rr),
		lockManager:     lm,
		attemptLimiter:  al,
		now:             time.Now,
	}
}

// WithClock は現在時刻の取得関数を差し替える（テスト用）
func (s *ReservationService) WithClock(now func() time.Time) *ReservationService {
	s.now = now
	return s
}

// WithPinGenerator はPIN生成器を差し替える（テスト用）
func (s *ReservationService) WithPinGenerator(g *reservation.PinGenerator) *ReservationService {
	s.pinGenerator = g
	return s
}

type CreateReservationInput struct {
	FirstName       string
	LastName        string
	Phone           string
	ReservationTime time.Time
}

// CreateReservation は予約を作成する
// 有効期間の計算は予約を保存する前に行う（自分自身を先行予約に数えないため）
// pin_code の一意制約違反が起きた場合はPINを引き直して再試行する
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput) (*reservation.Reservation, error) {
	now := s.now()
	if !input.ReservationTime.After(now) {
		return nil, reservation.ErrTimeNotFuture
	}

	window, err := s.windowCalc.Calculate(ctx, input.ReservationTime)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxPinCreateAttempts; attempt++ {
		pin, err := s.generatePin(ctx)
		if err != nil {
			return nil, err
		}

		res := reservation.NewReservation(
			input.FirstName, input.LastName, input.Phone,
			input.ReservationTime, pin, window, s.now(),
		)
		if err := res.Validate(); err != nil {
			return nil, err
		}

		if err := s.createTx(ctx, res); err != nil {
			if errors.Is(err, reservation.ErrPinCodeTaken) {
				// 事前チェックをすり抜けた衝突。PINを引き直す
				lastErr = err
				continue
			}
			s.countReservation("error")
			return nil, err
		}

		s.countReservation("success")
		logger.Info("予約を作成",
			zap.Int64("reservation_id", res.ID),
			zap.Time("reservation_time", res.ReservationTime),
			zap.Bool("extended", res.ExtendedAt != nil),
		)
		return res, nil
	}

	s.countReservation("pin_conflict")
	return nil, fmt.Errorf("PINコードの衝突が解消できませんでした: %w", lastErr)
}

func (s *ReservationService) createTx(ctx context.Context, res *reservation.Reservation) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.reservationRepo.Create(ctx, tx, res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// generatePin は未使用のPINコードを生成する
// 全桁数が衝突で埋まった場合のみ時刻シャッフルのフォールバックを使う
// フォールバックは一意性を保証しないため警告を出す（衝突は一意制約で検出される）
func (s *ReservationService) generatePin(ctx context.Context) (string, error) {
	pin, err := s.pinGenerator.Generate(ctx)
	if err == nil {
		return pin, nil
	}
	if !errors.Is(err, reservation.ErrPinSpaceExhausted) {
		return "", err
	}

	fallback := s.pinGenerator.FallbackCode(s.now())
	logger.Warn("PIN空間を使い切ったためフォールバックコードを使用",
		zap.Int("code_length", len(fallback)),
	)
	if m := metrics.Get(); m != nil {
		m.PinFallbacksTotal.Inc()
	}
	return fallback, nil
}

// ConfirmPin はPINコードで予約を確定する
// 検証から更新までの競合は、PIN単位の分散ロックで狭め、
// confirmed_at IS NULL を条件にした更新で最終的に排除する
func (s *ReservationService) ConfirmPin(ctx context.Context, pinCode string) (*reservation.Reservation, error) {
	if s.attemptLimiter != nil {
		if err := s.attemptLimiter.Allow(ctx, pinCode); err != nil {
			if errors.Is(err, redislock.ErrTooManyAttempts) {
				s.countConfirmation("rate_limited")
				return nil, reservation.ErrTooManyPinAttempts
			}
			return nil, err
		}
	}

	if s.lockManager != nil {
		lockStart := time.Now()
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, "pin:"+pinCode, confirmLockTTL, confirmLockRetries, confirmLockRetryDelay)
		s.observeLockDuration("acquire", err, time.Since(lockStart))
		if err != nil {
			if errors.Is(err, redislock.ErrLockNotAcquired) {
				s.countConfirmation("lock_failed")
				return nil, fmt.Errorf("このPINは他のリクエストで処理中です")
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	res, err := s.reservationRepo.GetByPinCode(ctx, pinCode)
	if err != nil {
		if errors.Is(err, reservation.ErrPinNotFound) {
			s.countConfirmation("not_found")
		}
		return nil, err
	}

	// 状態遷移の判定はエンティティに委ねる（confirmed_at と processed_at は
	// ここで同時に設定される）。永続化は条件付き更新で行う
	now := s.now()
	if err := res.Confirm(now); err != nil {
		s.countConfirmation(confirmFailureLabel(err))
		return nil, err
	}

	updated, err := s.reservationRepo.ConfirmByPinCode(ctx, pinCode, now)
	if err != nil {
		s.countConfirmation("error")
		return nil, err
	}
	if !updated {
		// 検証後・更新前に他のリクエストが確定を終えていた
		s.countConfirmation("already_confirmed")
		return nil, reservation.ErrPinAlreadyConfirmed
	}

	if s.attemptLimiter != nil {
		if err := s.attemptLimiter.Reset(ctx, pinCode); err != nil {
			logger.Warn("試行回数のクリアに失敗", zap.Error(err))
		}
	}

	s.countConfirmation("success")
	logger.Info("PINを確定",
		zap.Int64("reservation_id", res.ID),
		zap.Time("confirmed_at", now),
	)
	return res, nil
}

// ListReservations は予約一覧をページ単位で返す
// 順序は reservation_time 昇順・id 昇順で安定している
func (s *ReservationService) ListReservations(ctx context.Context, page, perPage int) ([]*reservation.Reservation, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage
	return s.reservationRepo.List(ctx, perPage, offset)
}

// GetReservationByPin はPINコードから予約を取得する
func (s *ReservationService) GetReservationByPin(ctx context.Context, pinCode string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByPinCode(ctx, pinCode)
}

// CountByPhase は現在時刻で導出した各フェーズの予約数を返す
func (s *ReservationService) CountByPhase(ctx context.Context) (map[reservation.Phase]int, error) {
	return s.reservationRepo.CountByPhase(ctx, s.now())
}

func (s *ReservationService) countReservation(status string) {
	if m := metrics.Get(); m != nil {
		m.ReservationsTotal.WithLabelValues(status).Inc()
	}
}

func (s *ReservationService) countConfirmation(result string) {
	if m := metrics.Get(); m != nil {
		m.PinConfirmationsTotal.WithLabelValues(result).Inc()
	}
}

// confirmFailureLabel は確定失敗のドメインエラーをメトリクスのラベルに変換する
func confirmFailureLabel(err error) string {
	switch {
	case errors.Is(err, reservation.ErrPinAlreadyConfirmed):
		return "already_confirmed"
	case errors.Is(err, reservation.ErrPinAlreadyExpired):
		return "expired"
	case errors.Is(err, reservation.ErrPinNotYetActive):
		return "not_yet_active"
	}
	return "error"
}

func (s *ReservationService) observeLockDuration(operation string, err error, d time.Duration) {
	if m := metrics.Get(); m != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		m.DistributedLockDuration.WithLabelValues(operation, status).Observe(d.Seconds())
	}
}
