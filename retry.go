package elastiq

import "time"

// Retry runs a function up to a fixed number of times, sleeping between
// attempts. The journal writers use it to ride out transient sqlite
// busy errors.
type Retry struct {
	sleepDuration time.Duration
	retryFunc     func() error
	numTries      int
}

func NewRetry(numTries int, sleepDuration time.Duration, retryFunc func() error) *Retry {
	return &Retry{
		sleepDuration: sleepDuration,
		retryFunc:     retryFunc,
		numTries:      numTries,
	}
}

// Do returns nil as soon as an attempt succeeds, otherwise the error of
// the last attempt.
func (r *Retry) Do() error {
	var err error
	for i := 0; i < r.numTries; i++ {
		if err = r.retryFunc(); err == nil {
			return nil
		}
		time.Sleep(r.sleepDuration)
	}

	return err
}
