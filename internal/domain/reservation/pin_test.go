package reservation

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinIndex は指定したコード集合を使用中として扱う PinCodeIndex
type fakePinIndex struct {
	taken    map[string]bool
	takenAll bool
	err      error
	queries  []string
}

func (f *fakePinIndex) PinCodeExists(ctx context.Context, code string) (bool, error) {
	f.queries = append(f.queries, code)
	if f.err != nil {
		return false, f.err
	}
	if f.takenAll {
		return true, nil
	}
	return f.taken[code], nil
}

func newSeededGenerator(index PinCodeIndex) *PinGenerator {
	return NewPinGeneratorWithRand(index, rand.New(rand.NewSource(42)))
}

func TestPinGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("空きがあれば4桁のPINを返す", func(t *testing.T) {
		index := &fakePinIndex{}
		g := newSeededGenerator(index)

		pin, err := g.Generate(ctx)

		require.NoError(t, err)
		assert.Len(t, pin, 4)
		assertAllDigits(t, pin)
	})

	t.Run("短い桁数が埋まっていれば次の桁数に進む", func(t *testing.T) {
		// 最初の候補（4桁）だけ使用中にし、5桁の候補が採用されることを確認
		probe := &fakePinIndex{takenAll: true}
		newSeededGenerator(probe).Generate(ctx)
		require.NotEmpty(t, probe.queries)

		index := &fakePinIndex{taken: map[string]bool{probe.queries[0]: true}}
		g := newSeededGenerator(index)

		pin, err := g.Generate(ctx)

		require.NoError(t, err)
		assert.Len(t, pin, 5)
		assertAllDigits(t, pin)
	})

	t.Run("全桁数で衝突したらErrPinSpaceExhausted", func(t *testing.T) {
		index := &fakePinIndex{takenAll: true}
		g := newSeededGenerator(index)

		_, err := g.Generate(ctx)

		assert.ErrorIs(t, err, ErrPinSpaceExhausted)
		// 4桁から8桁まで1回ずつ試行している
		assert.Len(t, index.queries, 5)
		for i, q := range index.queries {
			assert.Len(t, q, pinMinLength+i)
		}
	})

	t.Run("照会エラーはそのまま伝播する", func(t *testing.T) {
		index := &fakePinIndex{err: errors.New("db down")}
		g := newSeededGenerator(index)

		_, err := g.Generate(ctx)

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrPinSpaceExhausted)
	})

	t.Run("生成されるPINは先頭ゼロにならない", func(t *testing.T) {
		index := &fakePinIndex{}
		g := newSeededGenerator(index)

		for i := 0; i < 100; i++ {
			pin, err := g.Generate(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, byte('0'), pin[0])
		}
	})
}

func TestPinGenerator_FallbackCode(t *testing.T) {
	g := newSeededGenerator(&fakePinIndex{})
	now := time.Date(2026, 1, 27, 10, 0, 0, 0, time.UTC)

	t.Run("8文字の数字列を返す", func(t *testing.T) {
		code := g.FallbackCode(now)
		assert.Len(t, code, 8)
		assertAllDigits(t, code)
	})

	t.Run("元の時刻の桁の並べ替えになっている", func(t *testing.T) {
		code := g.FallbackCode(now)

		want := digitCount(t, strconv.FormatInt(now.Unix(), 10))
		got := digitCount(t, code)
		// シャッフル後の先頭8桁なので、各桁の出現数は元の部分集合
		for d, n := range got {
			assert.LessOrEqual(t, n, want[d], "digit %c", d)
		}
	})
}

func assertAllDigits(t *testing.T, s string) {
	t.Helper()
	for _, r := range s {
		assert.True(t, unicode.IsDigit(r), "PINに数字以外が含まれています: %q", s)
	}
}

func digitCount(t *testing.T, s string) map[rune]int {
	t.Helper()
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	return counts
}
