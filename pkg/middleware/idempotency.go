package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/smroczek2/camp-os-sub002/pkg/response"
)

const (
	// IdempotencyKeyHeader is the header carrying the client idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"

	idempotencyKeyPrefix = "idempotency:"
)

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Redis *redis.Client
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL bounds how long an in-flight marker blocks duplicates
	ProcessingTTL time.Duration
	// SkipPaths bypass the idempotency check entirely
	SkipPaths []string
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(rdb *redis.Client) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:         rdb,
		TTL:           24 * time.Hour,
		ProcessingTTL: 60 * time.Second,
	}
}

type idempotencyRecord struct {
	Status string `json:"status"` // processing or completed
	Code   int    `json:"code,omitempty"`
	Body   string `json:"body,omitempty"`
}

type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency makes write requests replay-safe: a repeated request with the
// same X-Idempotency-Key gets the stored response instead of re-executing.
func Idempotency(cfg *IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range cfg.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			// Idempotency is opt-in; requests without a key run normally
			c.Next()
			return
		}

		ctx := c.Request.Context()
		redisKey := idempotencyKeyPrefix + c.GetString("user_id") + ":" + key

		marker, _ := json.Marshal(idempotencyRecord{Status: "processing"})
		ok, err := cfg.Redis.SetNX(ctx, redisKey, marker, cfg.ProcessingTTL).Result()
		if err != nil {
			// Redis unavailable must not block writes
			c.Next()
			return
		}

		if !ok {
			raw, err := cfg.Redis.Get(ctx, redisKey).Result()
			if err != nil {
				c.Next()
				return
			}
			var rec idempotencyRecord
			if json.Unmarshal([]byte(raw), &rec) == nil && rec.Status == "completed" {
				c.Data(rec.Code, "application/json", []byte(rec.Body))
				c.Abort()
				return
			}
			response.Error(c, http.StatusConflict, "REQUEST_IN_PROGRESS",
				"a request with this idempotency key is still being processed")
			c.Abort()
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		rec := idempotencyRecord{
			Status: "completed",
			Code:   c.Writer.Status(),
			Body:   capture.buf.String(),
		}
		if raw, err := json.Marshal(rec); err == nil {
			cfg.Redis.Set(ctx, redisKey, raw, cfg.TTL)
		}
	}
}
