package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/Siphon/internal/api/apierror"
	"github.com/hbomb79/Siphon/internal/api/media"
	"github.com/hbomb79/Siphon/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 15 * time.Second

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host" env:"HOST_ADDR" env-default:"0.0.0.0"`
		HostPort string `yaml:"port" env:"HOST_PORT" env-default:"5000"`
		Debug    bool   `yaml:"debug" env:"DEBUG" env-default:"false"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsbility
	// is to create the routes Siphon exposes, and to install the middleware (CORS, request
	// logging, panic recovery) shared by all of them.
	RestGateway struct {
		config          *RestConfig
		ec              *echo.Echo
		mediaController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with the
// media routes, backed by the service and store provided.
func NewRestGateway(config *RestConfig, service media.Service, store media.Store) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.Debug = config.Debug
	ec.HTTPErrorHandler = apierror.HTTPErrorHandler

	gateway := &RestGateway{
		config:          config,
		ec:              ec,
		mediaController: media.New(validator.New(), service, store),
	}

	ec.Use(middleware.Recover())
	ec.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	ec.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			status := logger.INFO
			if v.Error != nil {
				status = logger.WARNING
			}
			log.Emit(status, "%s %s -> %d (%s) [%s]\n", v.Method, v.URI, v.Status, v.Latency, v.RequestID)
			return nil
		},
	}))
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	gateway.mediaController.SetRoutes(ec.Group(""))

	return gateway
}

// ServeHTTP allows the gateway to be used directly as an http.Handler.
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

// Run starts the HTTP listener and blocks until the context is cancelled, at
// which point in-flight requests are given a short grace period to finish.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	defer ctxCancel(nil)

	wg := &sync.WaitGroup{}
	addr := net.JoinHostPort(gateway.config.HostAddr, gateway.config.HostPort)

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.NEW, "Starting HTTP gateway on %s\n", addr)
		if err := gateway.ec.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	<-ctx.Done()
	log.Emit(logger.STOP, "Closing HTTP gateway\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gateway.ec.Shutdown(shutdownCtx); err != nil {
		log.Emit(logger.WARNING, "HTTP gateway did not shutdown cleanly: %v\n", err)
	}

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	return nil
}
