package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateNewConfigDefaults(t *testing.T) {
	t.Setenv("POINT_UNIT", "")
	t.Setenv("DRAFT_TTL", "")
	t.Setenv("CLEANUP_TIMEOUT", "not-a-duration")

	conf := CreateNewConfig()

	require.Equal(t, int64(10), conf.CheckoutConfig.PointUnit)
	require.Equal(t, 30*time.Minute, conf.CheckoutConfig.DraftTTL)
	require.Equal(t, 5*time.Second, conf.CheckoutConfig.CleanupTimeout)
}

func TestCreateNewConfigOverrides(t *testing.T) {
	t.Setenv("POINT_UNIT", "100")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("ORDER_SERVICE_HOST", "http://order:8080")
	t.Setenv("ORDER_SERVICE_TOKEN", "svc-token")

	conf := CreateNewConfig()

	require.Equal(t, int64(100), conf.CheckoutConfig.PointUnit)
	require.Equal(t, 15*time.Second, conf.CheckoutConfig.SweepInterval)
	require.Equal(t, "http://order:8080", conf.BackendConfig.OrderServiceHost)
	require.Equal(t, "svc-token", conf.BackendConfig.ServiceToken)
}
