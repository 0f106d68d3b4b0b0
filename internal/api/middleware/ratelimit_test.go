package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockRateLimitStore is a mock implementation of RateLimitStore
type MockRateLimitStore struct {
	mock.Mock
}

func (m *MockRateLimitStore) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func limitedRouter(store RateLimitStore, logger *zap.Logger) *gin.Engine {
	router := setupTestRouter()
	router.Use(RateLimitMiddleware(store, logger))
	router.GET("/api/verify", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"verdict": "VALID"})
	})
	return router
}

func verifyFrom(router *gin.Engine, remoteAddr string) int {
	req, _ := http.NewRequest(http.MethodGet, "/api/verify", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestLocalRateLimitStore(t *testing.T) {
	ctx := context.Background()
	store := NewLocalRateLimitStore(3, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, err := store.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := store.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = store.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are counted separately")

	now = now.Add(time.Minute)
	allowed, err = store.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts a new count")
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("Rejects over the limit", func(t *testing.T) {
		router := limitedRouter(NewLocalRateLimitStore(2, time.Minute), zap.NewNop())

		assert.Equal(t, http.StatusOK, verifyFrom(router, "10.0.0.1:1000"))
		assert.Equal(t, http.StatusOK, verifyFrom(router, "10.0.0.1:1001"))
		assert.Equal(t, http.StatusTooManyRequests, verifyFrom(router, "10.0.0.1:1002"))
		assert.Equal(t, http.StatusOK, verifyFrom(router, "10.0.0.2:1000"))
	})

	t.Run("Keys on the client IP", func(t *testing.T) {
		store := new(MockRateLimitStore)
		store.On("Allow", mock.Anything, "192.168.1.7").Return(false, nil)

		router := limitedRouter(store, zap.NewNop())
		assert.Equal(t, http.StatusTooManyRequests, verifyFrom(router, "192.168.1.7:5555"))
		store.AssertExpectations(t)
	})

	t.Run("Store failure lets requests through", func(t *testing.T) {
		core, recorded := observer.New(zapcore.WarnLevel)
		store := new(MockRateLimitStore)
		store.On("Allow", mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))

		router := limitedRouter(store, zap.New(core))
		assert.Equal(t, http.StatusOK, verifyFrom(router, "10.0.0.1:1000"))
		assert.Equal(t, 1, recorded.FilterMessage("Rate limit store unavailable").Len())
	})

	t.Run("Unreachable redis fails open", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer client.Close()

		store := NewRedisRateLimitStore(client, 1, time.Minute)
		_, err := store.Allow(context.Background(), "10.0.0.1")
		assert.Error(t, err)

		router := limitedRouter(store, zap.NewNop())
		assert.Equal(t, http.StatusOK, verifyFrom(router, "10.0.0.1:1000"))
	})
}
