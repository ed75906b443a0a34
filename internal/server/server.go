package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/millionaire/internal/api"
	"github.com/victornm/millionaire/internal/domain"
	"github.com/victornm/millionaire/internal/event"
	"github.com/victornm/millionaire/internal/leaderboard"
	"github.com/victornm/millionaire/internal/question"
	"github.com/victornm/millionaire/internal/score"
	"github.com/victornm/millionaire/internal/session"
	"github.com/victornm/millionaire/internal/telemetry"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Game struct {
		TimeBudget  int
		TimeUnit    time.Duration
		RevealDelay time.Duration
	}

	Leaderboard struct {
		RefreshInterval time.Duration
		IdleTimeout     time.Duration
		Policy          string
	}

	Score struct {
		Backend string

		HTTP struct {
			BaseURL string
			Timeout time.Duration
		}

		Redis struct {
			Addrs        []string
			Pass         string
			Prefix       string
			HistoryLimit int64
		}

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

// DefaultConfig is the configuration before the file and environment are applied.
func DefaultConfig() Config {
	var c Config

	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Log.Format = "json"

	c.Game.TimeBudget = 60
	c.Game.TimeUnit = time.Second
	c.Game.RevealDelay = 2 * time.Second

	c.Leaderboard.RefreshInterval = 60 * time.Second
	c.Leaderboard.IdleTimeout = 5 * time.Minute
	c.Leaderboard.Policy = string(leaderboard.PolicyHighestScore)

	c.Score.Backend = BackendRedis
	c.Score.HTTP.Timeout = 10 * time.Second
	c.Score.Redis.Addrs = []string{"localhost:6379"}
	c.Score.Redis.Prefix = "millionaire"
	c.Score.Redis.HistoryLimit = 10000
	c.Score.Postgres.Addr = "localhost:5432"
	c.Score.Postgres.User = "postgres"
	c.Score.Postgres.Name = "millionaire"

	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
	}

	store  score.Store
	lister leaderboard.Lister

	service struct {
		session     *session.Service
		reporter    *score.Reporter
		leaderboard *leaderboard.Service
		poller      *leaderboard.Poller
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	telemetry.SetupLogger(c.Log.Level, c.Log.Format)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.eb = event.NewBus()

	if err := s.initService(); err != nil {
		s.closeInfra()
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	switch s.c.Score.Backend {
	case BackendRedis:
		if err := s.initRedis(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		st := score.NewRedisStore(score.RedisConfig{
			Redis:        s.infra.redis,
			Prefix:       s.c.Score.Redis.Prefix,
			HistoryLimit: s.c.Score.Redis.HistoryLimit,
		})
		s.store, s.lister = st, st
		if s.latestPolicy() {
			s.lister = leaderboard.ListerFunc(st.Latest)
		}

	case BackendPostgres:
		if err := s.initPostgres(); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		st := score.NewPostgresStore(score.PostgresConfig{
			DB: s.infra.postgres,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}

		s.store, s.lister = st, st
		if s.latestPolicy() {
			s.lister = leaderboard.ListerFunc(st.Latest)
		}

	case BackendHTTP:
		if s.c.Score.HTTP.BaseURL == "" {
			return fmt.Errorf("http: base URL not set")
		}

		st := score.NewHTTPStore(score.HTTPConfig{
			BaseURL: s.c.Score.HTTP.BaseURL,
			Timeout: s.c.Score.HTTP.Timeout,
		})
		s.store, s.lister = st, st

	default:
		return fmt.Errorf("unknown score backend %q", s.c.Score.Backend)
	}

	return nil
}

// latestPolicy reports whether the store should serve its latest-per-player records
// instead of the best ones.
func (s *Server) latestPolicy() bool {
	return s.c.Leaderboard.Policy == string(leaderboard.PolicyLatest)
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Score.Redis.Addrs,
		Password: s.c.Score.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Score.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) closeInfra() {
	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.Error("server: close redis failed", "error", err)
		}
	}

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
}

func (s *Server) newLeaderboard() (*leaderboard.Service, error) {
	p, err := leaderboard.ParsePolicy(s.c.Leaderboard.Policy)
	if err != nil {
		return nil, err
	}

	return leaderboard.NewService(leaderboard.Config{
		Store:  s.lister,
		Policy: p,
	}), nil
}

func (s *Server) initService() error {
	qs, err := question.Builtin()
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	s.service.session = session.NewService(session.Config{
		EventBus:    s.eb,
		Questions:   qs,
		TimeBudget:  s.c.Game.TimeBudget,
		TimeUnit:    s.c.Game.TimeUnit,
		RevealDelay: s.c.Game.RevealDelay,
	})

	s.service.reporter = score.NewReporter(score.Config{
		EventBus: s.eb,
		Store:    s.store,
	})

	telemetry.ObserveGames(s.eb)

	s.service.leaderboard, err = s.newLeaderboard()
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.service.poller = leaderboard.NewPoller(leaderboard.PollerConfig{
		Refresher:   s.service.leaderboard,
		Interval:    s.c.Leaderboard.RefreshInterval,
		IdleTimeout: s.c.Leaderboard.IdleTimeout,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:      e,
		Session:     s.service.session,
		Leaderboard: s.service.leaderboard,
		Poller:      s.service.poller,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.poller.Close()
	s.service.session.Shutdown()

	// Drains the score events still in flight before the store goes away.
	s.eb.Stop()
	s.closeInfra()

	slog.InfoContext(ctx, "server: shutdown completed")
}

// Standings connects to the configured score backend and builds a single leaderboard view.
// A failed fetch still yields a view, empty and stale with the error set.
func Standings(ctx context.Context, c Config, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error) {
	s := &Server{c: c}

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}
	defer s.closeInfra()

	ls, err := s.newLeaderboard()
	if err != nil {
		return nil, err
	}

	return ls.GetLeaderboard(ctx, req)
}
