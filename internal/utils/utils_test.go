package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllTasksAndSurvivesPanics(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var done int32
	for i := 0; i < 20; i++ {
		i := i
		pool.Submit(func() {
			if i == 5 {
				panic("boom")
			}
			atomic.AddInt32(&done, 1)
		})
	}
	pool.Wait()

	assert.Equal(t, int32(19), atomic.LoadInt32(&done))
	assert.Equal(t, 3, pool.Size())
}

func TestRateLimiter_PerChatBuckets(t *testing.T) {
	limiter := NewRateLimiter(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, limiter.Wait(ctx, 1))
	assert.NoError(t, limiter.Wait(ctx, 1))
	assert.Error(t, limiter.Wait(ctx, 1), "burst used up, next token is 500ms away")
	assert.NoError(t, limiter.Wait(ctx, 2), "other chats have their own bucket")
	assert.Equal(t, 0, limiter.CleanupOldLimiters())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "@alice", ShortName("alice", "Alice", "A."))
	assert.Equal(t, "Alice A.", ShortName("", "Alice", "A."))
	assert.Equal(t, "Bob", FullName("  Bob ", ""))
	assert.Equal(t, "ab", TruncateString("abc", 2))
	assert.Equal(t, "", TruncateString("abc", 0))
}

func TestMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c`, EscapeMarkdown("a_b.c"))
	assert.Equal(t, "```\nx \\` y \\\\\n```", CodeBlock("x ` y \\"))
	assert.Equal(t, `[A\.](tg://user?id=7)`, FormatUserMention(7, "A."))
}

func TestParseDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	d, err := ParseDate("2024-03-05", loc)
	require.NoError(t, err)
	assert.Equal(t, loc, d.Location())
	assert.Equal(t, "2024-03-05", FormatDate(d))

	_, err = ParseDate("05/03/2024", loc)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}
