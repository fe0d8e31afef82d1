package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDisabled  = "disabled"
)

// PoolStats is a JSON view of pgxpool.Stat.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func statsOf(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// Health is the body of GET /health/db.
type Health struct {
	Status  string     `json:"status"`
	Latency string     `json:"latency,omitempty"`
	Error   string     `json:"error,omitempty"`
	Pool    *PoolStats `json:"pool,omitempty"`
}

// Check pings pool. A nil pool means the portal runs on in-process
// storage and reports StatusDisabled.
func Check(ctx context.Context, pool *pgxpool.Pool) Health {
	if pool == nil {
		return Health{Status: StatusDisabled}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := pool.Ping(ctx)
	h := Health{Status: StatusHealthy, Latency: time.Since(start).String(), Pool: statsOf(pool)}
	if err != nil {
		h.Status, h.Error = StatusUnhealthy, err.Error()
	}
	return h
}

// HealthHandler serves Check; an unreachable database answers 503.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := Check(c.Request().Context(), pool)
		code := http.StatusOK
		if h.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	}
}
