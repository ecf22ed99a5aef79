package handler

import (
	"context"
	"net/http"
	"time"

	"scrappos/internal/infra"
	"scrappos/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Health returns a JSON health check response.
// Checks DB and Redis connectivity; never exposes credentials or internals.
func Health(db *gorm.DB, rdb *redis.Client, gatewayCB *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		dbStatus, redisStatus := "connected", "connected"
		var dlq map[string]int64

		// both probes run at once; each records its own outcome
		var g errgroup.Group
		g.Go(func() error {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				dbStatus = "error"
			}
			return nil
		})
		g.Go(func() error {
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
				return nil
			}
			dlq, _ = worker.DLQLengths(ctx, rdb)
			return nil
		})
		_ = g.Wait()

		status := http.StatusOK
		if dbStatus != "connected" || redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		body := gin.H{
			"ok":    status == http.StatusOK,
			"db":    dbStatus,
			"redis": redisStatus,
			"dlq":   dlq,
		}
		if gatewayCB != nil {
			body["payment_gateway"] = gatewayCB.State().String()
		}
		c.JSON(status, body)
	}
}
