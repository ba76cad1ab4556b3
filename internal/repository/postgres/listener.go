package postgres

import (
	"time"

	"github.com/lib/pq"

	"github.com/clickmail/warmup-engine/internal/pkg/logger"
)

// NewOutcomeListener opens a LISTEN connection on the outcome channel.
// The returned listener reconnects on its own; callers drain
// listener.Notify and fall back to polling when the channel stalls.
func NewOutcomeListener(connStr string) (*pq.Listener, error) {
	l := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("outcome listener event", "event", int(ev), "error", err.Error())
		}
	})
	if err := l.Listen(OutcomeChannel); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}
