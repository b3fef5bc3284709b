package insight

import "time"

// Observer receives coordinator lifecycle events, typically for metrics.
type Observer interface {
	RequestIssued()
	RequestSkipped()
	RequestFinished(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RequestIssued()                        {}
func (nopObserver) RequestSkipped()                       {}
func (nopObserver) RequestFinished(string, time.Duration) {}
