/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type SlidingWindowLimiterTestSuite struct {
	suite.Suite
}

func TestSlidingWindowLimiter(t *testing.T) {
	suite.Run(t, new(SlidingWindowLimiterTestSuite))
}

func (ts *SlidingWindowLimiterTestSuite) TestAllowSequential() {
	for _, maxKeys := range []int{0, 100} {
		limiter, err := NewSlidingWindowLimiter(Rate{Count: 2, Duration: time.Minute}, maxKeys)
		ts.Require().NoError(err)

		ctx := context.Background()
		for i := 0; i < 2; i++ {
			allow, retryAfter, allowErr := limiter.Allow(ctx, "10.0.0.1")
			ts.Require().NoError(allowErr)
			ts.Require().True(allow)
			ts.Require().Equal(time.Duration(0), retryAfter)
		}

		allow, retryAfter, err := limiter.Allow(ctx, "10.0.0.1")
		ts.Require().NoError(err)
		ts.Require().False(allow)
		ts.Require().Greater(retryAfter, time.Duration(0))
		ts.Require().LessOrEqual(retryAfter, time.Minute)
	}
}

func (ts *SlidingWindowLimiterTestSuite) TestGlobalLimitIgnoresKey() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Minute}, 0)
	ts.Require().NoError(err)

	ctx := context.Background()
	allow, _, err := limiter.Allow(ctx, "10.0.0.1")
	ts.Require().NoError(err)
	ts.Require().True(allow)

	allow, _, err = limiter.Allow(ctx, "10.0.0.2")
	ts.Require().NoError(err)
	ts.Require().False(allow)
}

func (ts *SlidingWindowLimiterTestSuite) TestRetryAfterPointsToNextWindow() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Minute}, 10)
	ts.Require().NoError(err)
	limiter.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 45, 0, time.UTC) }

	ctx := context.Background()
	_, _, err = limiter.Allow(ctx, "k")
	ts.Require().NoError(err)
	allow, retryAfter, err := limiter.Allow(ctx, "k")
	ts.Require().NoError(err)
	ts.Require().False(allow)
	ts.Require().Equal(15*time.Second, retryAfter)
}
