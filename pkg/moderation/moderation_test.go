package moderation

import (
	"context"
	"errors"
	"testing"

	"anoa.com/friendline/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClassifier struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubClassifier) Classify(context.Context, string) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("allowed", func(t *testing.T) {
		assert.NoError(t, Gate(ctx, &stubClassifier{}, log, "hello"))
	})

	t.Run("blocked", func(t *testing.T) {
		err := Gate(ctx, &stubClassifier{verdict: Verdict{Blocked: true, Reason: "spam"}}, log, "buy now")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperror.ErrModerationBlocked)
		assert.Contains(t, err.Error(), "spam")
	})

	t.Run("classifier failure fails open", func(t *testing.T) {
		assert.NoError(t, Gate(ctx, &stubClassifier{err: errors.New("quota exceeded")}, log, "hello"))
	})

	t.Run("blank text skips the call", func(t *testing.T) {
		c := &stubClassifier{verdict: Verdict{Blocked: true}}
		assert.NoError(t, Gate(ctx, c, log, "   "))
		assert.Zero(t, c.calls)
	})

	t.Run("nil classifier", func(t *testing.T) {
		assert.NoError(t, Gate(ctx, nil, log, "hello"))
	})

	t.Run("noop", func(t *testing.T) {
		assert.NoError(t, Gate(ctx, Noop{}, log, "hello"))
	})
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict("```json\n{\"blocked\": true, \"reason\": \"threat\"}\n```")
	require.NoError(t, err)
	assert.True(t, v.Blocked)
	assert.Equal(t, "threat", v.Reason)

	v, err = parseVerdict(`{"blocked": false}`)
	require.NoError(t, err)
	assert.False(t, v.Blocked)

	_, err = parseVerdict("I think it's fine")
	assert.Error(t, err)
}
