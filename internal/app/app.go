// Package app wires the shared infrastructure both services start from.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v82"
	"github.com/uptrace/bun"

	"ms-raffle/internal/alarm"
	"ms-raffle/internal/config"
	"ms-raffle/internal/database"
	"ms-raffle/internal/kafka"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/notifier"
	"ms-raffle/internal/payment"
	"ms-raffle/internal/payment/mercadopago"
	stripegw "ms-raffle/internal/payment/stripe"
	ticketdb "ms-raffle/internal/tickets/db"
	"ms-raffle/internal/tickets/holds"
	tickets "ms-raffle/internal/tickets/service"
)

// Infra holds the long-lived connections of a service. Optional parts are
// nil when disabled or unreachable.
type Infra struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *bun.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Changes  notifier.Notifier

	closers []func() error
}

// Start connects to the database (required) and to Redis and Kafka
// (best-effort).
func Start(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infra, error) {
	infra := &Infra{Config: cfg, Logger: log}

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	infra.DB = db
	infra.closers = append(infra.closers, db.Close)

	if err := database.PrepareSchema(ctx, db, cfg.Database, log); err != nil {
		infra.Close()
		return nil, fmt.Errorf("prepare schema: %w", err)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, continuing without it: %v", cfg.Redis.Addr, err))
			client.Close()
		} else {
			log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))
			infra.Redis = client
			infra.closers = append(infra.closers, client.Close)
		}
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		infra.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		infra.closers = append(infra.closers, infra.Producer.Close)
		log.Info("KAFKA", "Kafka producer initialized successfully")
	}

	infra.Changes = infra.startNotifier(ctx)
	return infra, nil
}

// startNotifier prefers Redis pub/sub, then the Kafka lifecycle topics, then
// Postgres LISTEN, then an in-process hub that only sees this process's
// writes.
func (i *Infra) startNotifier(ctx context.Context) notifier.Notifier {
	if i.Redis != nil {
		n := notifier.NewRedisNotifier(i.Redis, i.Config.Redis.ChangeChannel, i.Logger)
		if err := n.Start(ctx); err != nil {
			i.Logger.Warn("NOTIFIER", fmt.Sprintf("Redis change channel unavailable: %v", err))
		} else {
			i.closers = append(i.closers, n.Close)
		}
		return n
	}

	hub := notifier.NewHub()
	if i.Producer != nil {
		c := kafka.NewChangeConsumer(i.Config.Kafka.Brokers, i.Config.Kafka.Topics.All(), i.Config.Kafka.ChangeGroupPrefix, hub, i.Logger)
		c.Start(ctx)
		i.closers = append(i.closers, c.Close)
		return hub
	}
	if database.NormalizeDriver(i.Config.Database.Driver) == database.DriverPostgres {
		l, err := notifier.NewPgListener(i.Config.Database.DSN, hub, i.Logger)
		if err != nil {
			i.Logger.Warn("NOTIFIER", fmt.Sprintf("Postgres change listener unavailable: %v", err))
		} else {
			i.closers = append(i.closers, l.Close)
		}
	}
	return hub
}

func (i *Infra) TicketService() *tickets.TicketService {
	svc := tickets.NewTicketService(ticketdb.New(i.DB), i.Logger, tickets.Options{
		CodePrefix:   i.Config.Reservation.CodePrefix,
		PendingLease: i.Config.Reservation.PendingLease,
	})
	svc.Notifier = i.Changes
	if i.Redis != nil {
		svc.Holds = holds.NewHolds(i.Redis, i.Config.Redis.HoldTTL)
	}
	if i.Producer != nil {
		svc.Events = kafka.NewTicketEventPublisher(i.Producer, i.Config.Kafka.Topics)
	}
	return svc
}

// Gateway builds the adapter selected by PAYMENT_PROVIDER. Credentials are
// read from GlobalSettings on every call, not here.
func (i *Infra) Gateway() (payment.Gateway, error) {
	cfg := i.Config.Payment
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	switch strings.ToLower(cfg.Provider) {
	case mercadopago.ProviderName:
		return mercadopago.NewGateway(mercadopago.Config{
			BaseURL:         cfg.MercadoPagoBaseURL,
			PublicBaseURL:   cfg.PublicBaseURL,
			NotificationURL: cfg.NotificationURL,
			Currency:        cfg.Currency,
		}, httpClient, i.Logger), nil
	case stripegw.ProviderName:
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(2),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
		})
		backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
		return stripegw.NewGateway(stripegw.Config{
			PublicBaseURL: cfg.PublicBaseURL,
			Currency:      cfg.Currency,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, backends, i.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}

// Alarm always logs; Telegram is added when configured.
func (i *Infra) Alarm() alarm.Alarm {
	alarms := alarm.Multi{alarm.NewLogAlarm(i.Logger)}
	cfg := i.Config.Alarm
	if cfg.TelegramToken == "" {
		return alarms
	}
	tg, err := alarm.NewTelegramAlarm(cfg.TelegramToken, cfg.TelegramChatID, "", nil, i.Logger)
	if err != nil {
		i.Logger.Warn("ALARM", fmt.Sprintf("Telegram alarms disabled: %v", err))
		return alarms
	}
	return append(alarms, tg)
}

// Close releases everything in reverse order of acquisition.
func (i *Infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		if err := i.closers[j](); err != nil {
			i.Logger.Warn("APP", fmt.Sprintf("Error during shutdown: %v", err))
		}
	}
	i.closers = nil
}
