package health

import (
	"context"
	"net"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// recentPauses bounds GCMaxPauseCheck to the latest collections, so one
// long pause at startup does not fail the check forever.
const recentPauses = 16

// GCMaxPauseCheck fails when one of the recent stop-the-world pauses exceeds
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		// Pause is ordered most recent first.
		for _, p := range stats.Pause[:min(len(stats.Pause), recentPauses)] {
			if p > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", p, threshold)
			}
		}
		return nil
	}
}

// DialCheck fails when none of addrs accepts a connection. It suits
// dependencies without a ping call, such as a Kafka broker list.
func DialCheck(network string, addrs ...string) CheckFunc {
	return func(ctx context.Context) error {
		if len(addrs) == 0 {
			return errors.New("no addresses to dial")
		}
		var (
			d    net.Dialer
			last error
		)
		for _, addr := range addrs {
			conn, err := d.DialContext(ctx, network, addr)
			if err == nil {
				return conn.Close()
			}
			last = err
		}
		return errors.Wrap(last, "dial")
	}
}
