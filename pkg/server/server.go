package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/berijalan/incident-scheduler/pkg/config"
	"github.com/berijalan/incident-scheduler/pkg/gemini"
	"github.com/berijalan/incident-scheduler/pkg/incident"
	"github.com/berijalan/incident-scheduler/pkg/notify"
	"github.com/berijalan/incident-scheduler/pkg/queue"
	"github.com/berijalan/incident-scheduler/pkg/schedule"
	"github.com/berijalan/incident-scheduler/pkg/signoz"
)

// retentionJobName routes the nightly pruning job to its handler
const retentionJobName = "incident-retention"

// Server wires the schedule engine, incident pipeline and HTTP surface
// together
type Server struct {
	config        *config.Config
	echo          *echo.Echo
	queue         *queue.Queue
	worker        *schedule.Worker
	incidentStore incident.RecordStore
	redisClient   *redis.Client
}

// NewServer builds a fully wired server from the configuration. Redis and
// MongoDB fall back to in-memory backends when not configured, so the service
// stays runnable in development.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{config: cfg}

	var registry queue.Registry
	var scheduleStoreType string
	if cfg.Redis.Enabled {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		registry = queue.NewRedisRegistry(s.redisClient, cfg.Scheduler.QueueName)
		scheduleStoreType = "redis"
		log.Printf("[SERVER] Using Redis at %s", cfg.Redis.Addr)
	} else {
		registry = queue.NewMemoryRegistry()
		scheduleStoreType = "memory"
		log.Printf("[SERVER] Redis not configured, using in-memory scheduling state")
	}

	scheduleStore, err := schedule.NewStore(&schedule.StoreConfig{
		Type:   scheduleStoreType,
		Client: s.redisClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule store: %w", err)
	}

	if cfg.Mongo.Enabled && cfg.Mongo.URI != "" {
		store, err := incident.NewMongoRecordStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to create incident store: %w", err)
		}
		s.incidentStore = store
	} else {
		s.incidentStore = incident.NewMemoryRecordStore()
		log.Printf("[SERVER] MongoDB not configured, incident history is in-memory only")
	}

	s.queue = queue.New(registry, queue.Options{
		Name:         cfg.Scheduler.QueueName,
		PollInterval: time.Duration(cfg.Scheduler.PollIntervalMs) * time.Millisecond,
	})

	dispatcher := schedule.NewQueueDispatcher(s.queue)
	service := schedule.NewService(scheduleStore, dispatcher, schedule.ServiceConfig{
		MinInterval: time.Duration(cfg.Scheduler.MinIntervalMs) * time.Millisecond,
	})

	logSource := signoz.NewClient(cfg.Signoz.BaseURL, cfg.Signoz.APIKey)
	llm := gemini.NewClient(cfg.Gemini.URL, cfg.Gemini.APIKey,
		gemini.NewCooldown(time.Duration(cfg.Gemini.MinCallGapMs)*time.Millisecond))
	engine := incident.NewEngine(logSource, llm)

	publisher := incident.NewPublisher(s.incidentStore,
		notify.NewEmailNotifier(notify.EmailConfig{
			APIKey: cfg.Email.APIKey,
			From:   cfg.Email.From,
			To:     cfg.Email.To,
		}),
		notify.NewSlackNotifier(notify.SlackConfig{
			Token:   cfg.Slack.Token,
			Channel: cfg.Slack.Channel,
		}),
	)

	s.worker = schedule.NewWorker(service, engine, publisher, s.queue)
	s.worker.Start()

	if cfg.Retention.Enabled {
		if err := s.registerRetentionJob(ctx); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/health", s.handleHealth)
	schedule.NewHandlers(service, s.worker, engine, publisher).RegisterRoutes(e)
	incident.NewHandlers(engine, publisher, s.incidentStore).RegisterRoutes(e)

	s.echo = e
	return s, nil
}

// registerRetentionJob schedules the nightly pruning of stored reports. The
// repeat key is stable, so re-registering on every start just refreshes the
// definition.
func (s *Server) registerRetentionJob(ctx context.Context) error {
	maxAge := time.Duration(s.config.Retention.MaxAgeDays) * 24 * time.Hour
	s.queue.Handle(retentionJobName, func(ctx context.Context, job queue.Job) error {
		cutoff := time.Now().Add(-maxAge)
		removed, err := s.incidentStore.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune incident records: %w", err)
		}
		log.Printf("[SERVER] Retention job pruned %d incident record(s)", removed)
		return nil
	})
	_, err := s.queue.AddRepeatable(ctx, retentionJobName, nil, queue.RepeatSpec{
		JobID:   "retention",
		Pattern: s.config.Retention.Pattern,
	})
	if err != nil {
		return fmt.Errorf("failed to register retention job: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"worker": s.worker.Started(),
	})
}

// GetEcho returns the underlying echo instance
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}

// Start runs the queue loop and the HTTP listener. It blocks until the HTTP
// server exits.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.queue.Run(ctx)
	return s.echo.Start(addr)
}

// Shutdown stops the queue and the HTTP server and closes the backends
func (s *Server) Shutdown(ctx context.Context) error {
	s.queue.Stop()
	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Printf("[SERVER] Failed to close redis client: %v", err)
		}
	}
	return s.incidentStore.Close(ctx)
}
