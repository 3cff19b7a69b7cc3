package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	v.Set("DB_DSN", "postgres://localhost/jurisconnect")
	v.Set("JWT_ACCESS_SECRET", "secret")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 7090, cfg.HTTP.Port)
	require.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	require.Equal(t, 3, cfg.Lifecycle.SaveAttempts)
	require.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowedOrigins)
	require.Empty(t, cfg.Kafka.Brokers)
}

func TestFromViperMemoryStoreNeedsNoDSN(t *testing.T) {
	v := viper.New()
	v.Set("STORE_DRIVER", "Memory")
	v.Set("JWT_ACCESS_SECRET", "secret")
	v.Set("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromViperValidation(t *testing.T) {
	v := viper.New()
	v.Set("JWT_ACCESS_SECRET", "secret")
	_, err := fromViper(v)
	require.EqualError(t, err, "DB_DSN is required")

	v = viper.New()
	v.Set("STORE_DRIVER", "mongo")
	v.Set("JWT_ACCESS_SECRET", "secret")
	_, err = fromViper(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("STORE_DRIVER", "memory")
	_, err = fromViper(v)
	require.EqualError(t, err, "JWT_ACCESS_SECRET is required")
}
