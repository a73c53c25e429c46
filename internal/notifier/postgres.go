package notifier

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"ms-raffle/internal/logger"
)

// PgChannel is raised by the tickets trigger installed in the migrations.
const PgChannel = "tickets_changed"

// PgListener turns Postgres NOTIFY on PgChannel into hub signals, so
// changes made by any process writing the tickets table are seen.
type PgListener struct {
	Logger *logger.Logger

	hub      *Hub
	listener *pq.Listener
	done     chan struct{}
}

func NewPgListener(dsn string, hub *Hub, log *logger.Logger) (*PgListener, error) {
	l := &PgListener{Logger: log, hub: hub, done: make(chan struct{})}

	l.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			log.Warn("NOTIFIER", fmt.Sprintf("Postgres listener connection problem: %v", err))
		case pq.ListenerEventReconnected:
			log.Info("NOTIFIER", "Postgres listener reconnected")
		}
	})
	if err := l.listener.Listen(PgChannel); err != nil {
		l.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", PgChannel, err)
	}

	go l.loop()
	log.Info("NOTIFIER", fmt.Sprintf("Listening for ticket changes on Postgres channel %s", PgChannel))
	return l, nil
}

func (l *PgListener) loop() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-l.listener.Notify:
			// a nil notification follows a reconnect; changes may have been missed
			l.hub.Notify()
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.Logger.Warn("NOTIFIER", fmt.Sprintf("Postgres listener ping failed: %v", err))
			}
		}
	}
}

func (l *PgListener) Close() error {
	close(l.done)
	return l.listener.Close()
}
