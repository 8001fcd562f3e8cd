package referral

import (
	"context"
	"testing"

	"invest-referral/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// registerChain регистрирует пользователей так, что каждый следующий
// приглашен предыдущим, и возвращает код последнего
func registerChain(t *testing.T, b *ChainBuilder, userIDs ...int64) string {
	t.Helper()
	ctx := context.Background()

	code := ""
	for _, userID := range userIDs {
		result, err := b.BuildChain(ctx, userID, code)
		require.NoError(t, err)
		code = result.Stats.ReferralCode
	}
	return code
}

func TestBuildChainWithoutCode(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	builder := NewChainBuilder(s, 10, zap.NewNop())

	result, err := builder.BuildChain(ctx, 1, "")
	require.NoError(t, err)

	// Пользователь зарегистрирован без реферера
	assert.Len(t, result.Stats.ReferralCode, codeLength)
	assert.Nil(t, result.Stats.ReferredBy)
	assert.Empty(t, result.Ancestors)
	assert.Empty(t, s.edges.edges)
}

func TestBuildChainWithReferrer(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	activateConfig(t, s, "5", "3", "1")
	builder := NewChainBuilder(s, 10, zap.NewNop())

	code := registerChain(t, builder, 1, 2, 3)

	// Регистрация четвертого пользователя по коду третьего строит
	// ребра до каждого предка
	result, err := builder.BuildChain(ctx, 4, code)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2, 1}, result.Ancestors)

	chain, err := s.edges.GetChain(ctx, 4, 3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, int64(3), chain[0].AncestorID)
	assert.Equal(t, 1, chain[0].Level)
	assert.Equal(t, int64(2), chain[1].AncestorID)
	assert.Equal(t, 2, chain[1].Level)
	assert.Equal(t, int64(1), chain[2].AncestorID)
	assert.Equal(t, 3, chain[2].Level)
}

func TestBuildChainDepthBound(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	activateConfig(t, s, "5", "3", "1")
	builder := NewChainBuilder(s, 10, zap.NewNop())

	// Цепочка из пяти предков, но глубина конфигурации - три уровня
	code := registerChain(t, builder, 1, 2, 3, 4, 5)

	result, err := builder.BuildChain(ctx, 6, code)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3}, result.Ancestors)

	chain, err := s.edges.GetChain(ctx, 6, 100)
	require.NoError(t, err)
	assert.Len(t, chain, 3)
}

func TestBuildChainDefaultDepth(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	builder := NewChainBuilder(s, 10, zap.NewNop())

	// Без активной конфигурации используется глубина по умолчанию
	code := registerChain(t, builder, 1, 2, 3, 4, 5)

	result, err := builder.BuildChain(ctx, 6, code)
	require.NoError(t, err)
	assert.Len(t, result.Ancestors, DefaultMaxLevels)
}

func TestBuildChainUnknownCode(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	builder := NewChainBuilder(s, 10, zap.NewNop())

	// Неизвестный код не является ошибкой: пользователь
	// регистрируется без реферера
	result, err := builder.BuildChain(ctx, 1, "NOSUCH00")
	require.NoError(t, err)
	assert.Nil(t, result.Stats.ReferredBy)
	assert.Empty(t, result.Ancestors)
}

func TestBuildChainSelfReferral(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	builder := NewChainBuilder(s, 10, zap.NewNop())

	first, err := builder.BuildChain(ctx, 1, "")
	require.NoError(t, err)

	// Повторная доставка события регистрации с собственным кодом
	result, err := builder.BuildChain(ctx, 1, first.Stats.ReferralCode)
	require.NoError(t, err)
	assert.Nil(t, result.Stats.ReferredBy)
	assert.Empty(t, s.edges.edges)
}

func TestBuildChainRedelivery(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	activateConfig(t, s, "5", "3")
	builder := NewChainBuilder(s, 10, zap.NewNop())

	code := registerChain(t, builder, 1, 2)

	first, err := builder.BuildChain(ctx, 3, code)
	require.NoError(t, err)
	require.Len(t, first.Ancestors, 2)

	// Повторная доставка: все ребра уже существуют, новых не появляется
	second, err := builder.BuildChain(ctx, 3, code)
	require.NoError(t, err)
	assert.Equal(t, first.Stats.ReferralCode, second.Stats.ReferralCode)
	assert.Empty(t, second.Ancestors)

	chain, err := s.edges.GetChain(ctx, 3, 10)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestBuildChainRepairsAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	activateConfig(t, s, "5", "3", "1")
	builder := NewChainBuilder(s, 10, zap.NewNop())

	code := registerChain(t, builder, 1, 2, 3)

	// Вставка ребра второго уровня падает один раз: построение
	// завершается ошибкой, в графе остается только первое ребро
	s.edges.failLevel = 2
	s.edges.failCount = 1

	_, err := builder.BuildChain(ctx, 4, code)
	require.Error(t, err)

	chain, err := s.edges.GetChain(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, chain, 1)

	// Повторная доставка события достраивает оборванную цепочку:
	// существующее ребро пропускается, недостающие довставляются
	result, err := builder.BuildChain(ctx, 4, code)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, result.Ancestors)

	chain, err = s.edges.GetChain(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, int64(3), chain[0].AncestorID)
	assert.Equal(t, int64(2), chain[1].AncestorID)
	assert.Equal(t, int64(1), chain[2].AncestorID)
}

func TestBuildChainBrokenChain(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	activateConfig(t, s, "5", "3", "1")
	builder := NewChainBuilder(s, 10, zap.NewNop())

	// У пользователя 2 реферер указывает на несуществующую запись
	missing := int64(99)
	s.stats.byUser[2] = &models.UserReferralStats{
		UserID:       2,
		ReferralCode: "BROKEN01",
		ReferredBy:   &missing,
	}

	// Обход останавливается на разрыве: ребро создается только до
	// существующего предка
	result, err := builder.BuildChain(ctx, 3, "BROKEN01")
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, result.Ancestors)
}

func TestBuildChainCodeCollision(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	builder := NewChainBuilder(s, 10, zap.NewNop())

	// Генерация кода повторяется до уникальности, оба пользователя
	// получают разные коды
	r1, err := builder.BuildChain(ctx, 1, "")
	require.NoError(t, err)
	r2, err := builder.BuildChain(ctx, 2, "")
	require.NoError(t, err)

	assert.NotEqual(t, r1.Stats.ReferralCode, r2.Stats.ReferralCode)
}
