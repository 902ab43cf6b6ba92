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

type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowWithBurst() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: time.Second}, 1, 100)
	ts.Require().NoError(err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allow, retryAfter, allowErr := limiter.Allow(ctx, "10.0.0.1")
		ts.Require().NoError(allowErr)
		ts.Require().True(allow, "request #%d should pass", i+1)
		ts.Require().Equal(time.Duration(0), retryAfter)
	}

	allow, retryAfter, err := limiter.Allow(ctx, "10.0.0.1")
	ts.Require().NoError(err)
	ts.Require().False(allow)
	ts.Require().Greater(retryAfter, time.Duration(0))
	ts.Require().LessOrEqual(retryAfter, time.Second)
}

func (ts *LeakyBucketLimiterTestSuite) TestKeysAreIndependent() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 0, 100)
	ts.Require().NoError(err)

	ctx := context.Background()
	allow, _, err := limiter.Allow(ctx, "10.0.0.1")
	ts.Require().NoError(err)
	ts.Require().True(allow)

	allow, _, err = limiter.Allow(ctx, "10.0.0.1")
	ts.Require().NoError(err)
	ts.Require().False(allow)

	allow, _, err = limiter.Allow(ctx, "10.0.0.2")
	ts.Require().NoError(err)
	ts.Require().True(allow)
}
