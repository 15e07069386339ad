package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret: "secret",
		BackendConfig: config.BackendConfig{
			Timeout: time.Second,
		},
		CheckoutConfig: config.CheckoutConfig{
			PointUnit:      10,
			DraftTTL:       time.Minute,
			SweepInterval:  time.Minute,
			CleanupTimeout: time.Second,
		},
	}
}

func TestInitLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	InitLogger("debug")
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	require.NotNil(t, zerolog.DefaultContextLogger)

	InitLogger("nonsense")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestCreateWithoutInfrastructure(t *testing.T) {
	a, err := Create(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/42", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Nil(t, a.ledger)
	require.IsType(t, discardPublisher{}, a.eventPublisher(config.KafkaConfig{}))
}
