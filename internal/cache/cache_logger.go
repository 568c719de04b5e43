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

func CourseKey(courseID uint) string {
	return fmt.Sprintf("id:%d", courseID)
}

func CourseLessonsKey(courseID uint) string {
	return fmt.Sprintf("course:%d", courseID)
}

func CouponKey(code string) string {
	return "code:" + code
}

// InvalidateCourseCache drops the cached course row and its lesson list
func InvalidateCourseCache(ctx context.Context, cm *CacheManager, courseIDs ...uint) {
	for _, id := range courseIDs {
		SafeDelete(ctx, cm.Course, CourseKey(id))
		SafeDelete(ctx, cm.Lesson, CourseLessonsKey(id))
	}
}

// InvalidateCouponCache drops one coupon or, with an empty code, every cached coupon
func InvalidateCouponCache(ctx context.Context, cm *CacheManager, code string) {
	if code == "" {
		SafeInvalidatePattern(ctx, cm.Coupon, "code:*")
		return
	}
	SafeDelete(ctx, cm.Coupon, CouponKey(code))
}
