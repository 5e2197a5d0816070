package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/metrics"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// ReadingMirror receives every reading stored through the API.
// Satisfied by *influxdb.Client.
type ReadingMirror interface {
	WriteSensorReading(plantID string, moisture, light, temperature float64, ts time.Time)
}

// HealthChecker is an optional backend whose state /health reports.
// Satisfied by *mqtt.Client and *influxdb.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server. Everything after DB is
// optional; leave MQTT and InfluxDB nil when those links are disabled.
type Deps struct {
	Config   config.APIConfig
	JWT      config.JWTConfig
	Logger   *logging.Logger
	DB       *database.DB
	Recorder *audit.Recorder
	Metrics  *metrics.Metrics
	Mirror   ReadingMirror
	MQTT     HealthChecker
	InfluxDB HealthChecker
	Version  string
}

type component struct {
	name    string
	checker HealthChecker
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	jwt      config.JWTConfig
	logger   *logging.Logger
	db       *database.DB
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	mirror   ReadingMirror
	version  string
	validate *validator.Validate

	// components are the optional backends reported by /health.
	components []component

	// verifyPassword is auth.VerifyPassword outside tests.
	verifyPassword func(password, encodedHash string) bool

	server   *http.Server
	listener net.Listener
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	if deps.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	// Pay for the dummy hash now rather than on the first unknown login.
	auth.DummyHash()

	var components []component
	if deps.MQTT != nil {
		components = append(components, component{name: "mqtt", checker: deps.MQTT})
	}
	if deps.InfluxDB != nil {
		components = append(components, component{name: "influxdb", checker: deps.InfluxDB})
	}

	return &Server{
		cfg:      deps.Config,
		jwt:      deps.JWT,
		logger:   deps.Logger,
		db:       deps.DB,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		mirror:   deps.Mirror,
		version:  deps.Version,
		validate: newValidator(),

		components:     components,
		verifyPassword: auth.VerifyPassword,
	}, nil
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so a port conflict is reported to the caller.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// record enqueues an audit entry attributed to the API.
func (s *Server) record(action, entityType, entityID, userID string, details map[string]any) {
	s.recorder.Record(&audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     audit.SourceAPI,
		Details:    details,
	})
}
