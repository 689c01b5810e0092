// Command backend-stub runs one of the sample services (products, orders, users)
// the gateway routes to in development and in the compose setup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gwlog "api-gateway/internal/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type order struct {
	ID     int     `json:"id"`
	UserID int     `json:"userId"`
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type service struct {
	name        string
	resource    string
	defaultPort int
	data        any
}

var services = map[string]service{
	"products": {
		name:        "product-service",
		resource:    "products",
		defaultPort: 8081,
		data: []product{
			{ID: 1, Name: "Product 1", Price: 99.99},
			{ID: 2, Name: "Product 2", Price: 149.99},
		},
	},
	"orders": {
		name:        "order-service",
		resource:    "orders",
		defaultPort: 8082,
		data: []order{
			{ID: 1, UserID: 1, Total: 99.99, Status: "completed"},
			{ID: 2, UserID: 2, Total: 149.99, Status: "pending"},
		},
	},
	"users": {
		name:        "user-service",
		resource:    "users",
		defaultPort: 8083,
		data: []user{
			{ID: 1, Name: "John Doe", Email: "john@example.com"},
			{ID: 2, Name: "Jane Smith", Email: "jane@example.com"},
		},
	},
}

func main() {
	logger := gwlog.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	svc, ok := services[os.Getenv("SERVICE_NAME")]
	if !ok {
		logger.Fatal().Str("service_name", os.Getenv("SERVICE_NAME")).Msg("SERVICE_NAME must be one of products, orders, users")
	}

	port := svc.defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid PORT")
		}
		port = p
	}

	e := newServer(svc)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown did not complete")
		}
	}()

	logger.Info().Str("service", svc.name).Int("port", port).Msg("backend stub listening")
	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
	// Start returns as soon as Shutdown begins; wait for in-flight requests.
	<-drained
	logger.Info().Str("service", svc.name).Msg("backend stub stopped")
}

func newServer(svc service) *echo.Echo {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "service": svc.name})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// The gateway strips its route prefix, so the collection is served at the root too.
	list := func(c echo.Context) error { return c.JSON(http.StatusOK, svc.data) }
	e.GET("/", list)
	e.GET("/"+svc.resource, list)
	return e
}
