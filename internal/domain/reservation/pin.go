package reservation

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

const (
	pinMinLength = 4
	pinMaxLength = 8
)

// PinCodeIndex は使用中のPINコードを照会する
type PinCodeIndex interface {
	// PinCodeExists はコードが既存の予約で使用中かを返す
	PinCodeExists(ctx context.Context, code string) (bool, error)
}

// PinGenerator は衝突しない短い数字PINコードを生成する
type PinGenerator struct {
	index PinCodeIndex
	rng   *rand.Rand
}

// NewPinGenerator は新しい PinGenerator を作成する
func NewPinGenerator(index PinCodeIndex) *PinGenerator {
	return &PinGenerator{
		index: index,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewPinGeneratorWithRand は乱数源を差し替えた PinGenerator を作成する（テスト用）
func NewPinGeneratorWithRand(index PinCodeIndex, rng *rand.Rand) *PinGenerator {
	return &PinGenerator{index: index, rng: rng}
}

// Generate は未使用のPINコードを生成する
// 桁数4から8まで順に、各桁数で一様乱数の候補を1つ引いて空きを確認する
// 全桁数で衝突した場合は ErrPinSpaceExhausted を返す（8桁の空間は約9×10^7
// あるため実際にはまず起きない）
func (g *PinGenerator) Generate(ctx context.Context) (string, error) {
	for length := pinMinLength; length <= pinMaxLength; length++ {
		pin := g.pinOfLength(length)

		exists, err := g.index.PinCodeExists(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("PINコードの重複確認に失敗: %w", err)
		}
		if !exists {
			return pin, nil
		}
	}
	return "", ErrPinSpaceExhausted
}

// pinOfLength は指定桁数のPIN候補を生成する
// 値は 10^(length-1) 以上に制限するため、先頭がゼロになることはない
func (g *PinGenerator) pinOfLength(length int) string {
	min := int64(1)
	for i := 1; i < length; i++ {
		min *= 10
	}
	max := min*10 - 1

	n := min + g.rng.Int63n(max-min+1)
	return fmt.Sprintf("%0*d", length, n)
}

// FallbackCode は最終手段のPINコードを生成する
// 現在時刻の10進表現の桁をシャッフルして先頭8文字を返す
// 一意性は保証されないため、呼び出し側は警告を出しストア側の
// 一意制約で衝突を検出すること
func (g *PinGenerator) FallbackCode(now time.Time) string {
	digits := []byte(strconv.FormatInt(now.Unix(), 10))
	g.rng.Shuffle(len(digits), func(i, j int) {
		digits[i], digits[j] = digits[j], digits[i]
	})
	if len(digits) > pinMaxLength {
		digits = digits[:pinMaxLength]
	}
	return string(digits)
}
