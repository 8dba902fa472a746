package health

import (
	"context"
	"net"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is implemented by *pgxpool.Pool and redis clients wrapped with
// PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the result of p.Ping.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// DialCheck succeeds when at least one of addrs accepts a TCP connection.
func DialCheck(addrs ...string) CheckFunc {
	return func(ctx context.Context) error {
		if len(addrs) == 0 {
			return errors.New("no addresses configured")
		}
		var (
			d       net.Dialer
			lastErr error
		)
		for _, addr := range addrs {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		return errors.Wrap(lastErr, "dial")
	}
}
