package errorutil

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	plain := errors.New("boom")
	wrapped := Wrap(plain)
	assert.False(t, wrapped.Retryable)
	assert.Equal(t, "boom", wrapped.Message)
	assert.ErrorIs(t, wrapped, plain)

	r := Retriable("redis down")
	assert.Same(t, r, Wrap(fmt.Errorf("tick: %w", r)))
}

func TestIsRetryable(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	assert.True(t, IsRetryable(RetriableWrap(cause, "acquire lock")))
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", Retriable("x"))))
	assert.False(t, IsRetryable(NonRetriableWrap(cause, "bad payload")))
	assert.False(t, IsRetryable(cause))
	assert.Nil(t, RetriableWrap(nil, "nothing"))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", MaxMessageLen))
	assert.Equal(t, "", Truncate("abc", 0))

	msg := strings.Repeat("运营商拒绝", 200)
	out := Truncate(msg, MaxMessageLen)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, MaxMessageLen, utf8.RuneCountInString(out))
	assert.True(t, strings.HasPrefix(msg, out))

	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
}
