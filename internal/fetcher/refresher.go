package fetcher

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Refresher warms the fetch cache on a cron schedule so query runs usually
// hit fresh snapshots and source outages have something to fall back on.
type Refresher struct {
	Fetcher *Fetcher
	Spec    string
	Logger  *log.Logger

	stop chan struct{}
}

// Start launches the refresh loop. Returns an error only for an invalid
// cron spec.
func (r *Refresher) Start() error {
	expr, err := cronexpr.Parse(r.Spec)
	if err != nil {
		return err
	}
	if r.Logger == nil {
		r.Logger = log.New(log.Writer(), "[REFRESH] ", log.LstdFlags)
	}
	r.stop = make(chan struct{})

	go func() {
		for {
			next := expr.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-r.stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			items, err := r.Fetcher.FetchCycle(ctx, nil)
			cancel()
			if err != nil {
				r.Logger.Printf("refresh cycle failed: %v", err)
				continue
			}
			r.Logger.Printf("refresh cycle complete: %d items", len(items))
		}
	}()
	return nil
}

// Stop terminates the refresh loop.
func (r *Refresher) Stop() {
	if r.stop != nil {
		close(r.stop)
	}
}
