package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateFormatCache invalidates a format and everything derived from it.
// Regeneration and section edits both route through here since questions
// hang off the format.
func InvalidateFormatCache(ctx context.Context, cm *CacheManager, formatID uint, creatorID string) {
	SafeDelete(ctx, cm.Format,
		fmt.Sprintf("id:%d", formatID),
		fmt.Sprintf("details:%d", formatID))

	SafeInvalidatePattern(ctx, cm.Format, fmt.Sprintf("creator:%s:*", creatorID))
	SafeInvalidatePattern(ctx, cm.Format, "list:*")
	SafeInvalidatePattern(ctx, cm.Question, fmt.Sprintf("format:%d:*", formatID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("format:%d:*", formatID))
}

// InvalidateAttemptCache invalidates an attempt and the student stats fed by
// its marked answers.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, userID string) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Attempt, fmt.Sprintf("user:%s:*", userID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("readiness:%s:*", userID))
}
