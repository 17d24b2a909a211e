package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/sportsight/scout/internal/fetch/classify"
)

// Do runs op under the given strategy, classifying each failure to feed the
// strategy's decision. The returned Context carries the final attempt count
// and elapsed time; on exhaustion the error wraps the last failure.
func Do(
	ctx context.Context,
	strategy Strategy,
	classifier *classify.Classifier,
	op func(context.Context) error,
) (*Context, error) {
	rc := &Context{}
	start := time.Now()

	for {
		rc.Attempt++
		rc.Elapsed = time.Since(start)

		err := op(ctx)
		if err == nil {
			rc.Elapsed = time.Since(start)
			return rc, nil
		}

		rc.LastErr = err
		if classifier != nil {
			cls := classifier.Classify(err)
			rc.LastClass = &cls
		}

		if !strategy.ShouldRetry(rc) {
			rc.Elapsed = time.Since(start)
			return rc, fmt.Errorf(
				"failed after %d attempts in %s: %w",
				rc.Attempt, rc.Elapsed.Round(time.Millisecond), err,
			)
		}

		wait := strategy.WaitTime(rc)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rc, ctx.Err()
		case <-timer.C:
		}
	}
}
