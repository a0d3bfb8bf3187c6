package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/salon_backend/config"
	"github.com/sirupsen/logrus"
)

const businessLockTTL = 15 * time.Second

// ObtainBusinessLock takes a best-effort redis lock "lock:<scope>:<businessId>".
// Reliability must not depend on Redis: callers also serialize through DB row
// locks, so a missing client or a lock that cannot be obtained only logs a warning.
// The returned release func is always safe to call.
func ObtainBusinessLock(ctx context.Context, scope string, businessId string) func() {
	noop := func() {}
	redisLock := config.GetRedisLock()
	logger := config.GetLogger()
	if redisLock == nil {
		return noop
	}

	key := fmt.Sprintf("lock:%s:%s", scope, businessId)
	lock, err := redisLock.Obtain(ctx, key, businessLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	})
	if err != nil {
		msg := "error obtaining redis lock; proceeding without redis lock: " + err.Error()
		if errors.Is(err, redislock.ErrNotObtained) {
			msg = "could not obtain redis lock; proceeding without redis lock"
		}
		logger.WithFields(logrus.Fields{
			"field":       "ObtainBusinessLock",
			"business_id": businessId,
			"scope":       scope,
		}).Warn(msg)
		return noop
	}
	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{
				"field":       "ObtainBusinessLock",
				"business_id": businessId,
				"scope":       scope,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
