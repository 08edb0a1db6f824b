package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=medchat sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name  string
		addr  string
		store string
		dsn   string
		key   string
		orig  []string
		err   bool
	}{
		{
			name:  "valid postgres config",
			addr:  addr,
			store: StorePostgres,
			dsn:   dsn,
			key:   key,
			orig:  orig,
		},
		{
			name:  "valid mongo config",
			addr:  addr,
			store: StoreMongo,
			dsn:   "mongodb://localhost:27017",
			key:   key,
			orig:  orig,
		},
		{
			name:  "memory store without DSN",
			addr:  addr,
			store: StoreMemory,
			key:   key,
		},
		{
			name:  "empty address",
			store: StorePostgres,
			dsn:   dsn,
			key:   key,
			err:   true,
		},
		{
			name:  "unknown store",
			addr:  addr,
			store: "sqlite",
			dsn:   dsn,
			key:   key,
			err:   true,
		},
		{
			name:  "empty DSN",
			addr:  addr,
			store: StorePostgres,
			key:   key,
			err:   true,
		},
		{
			name:  "empty signing key",
			addr:  addr,
			store: StorePostgres,
			dsn:   dsn,
			err:   true,
		},
		{
			name:  "invalid signing key",
			addr:  addr,
			store: StorePostgres,
			dsn:   dsn,
			key:   "invalid_base64",
			err:   true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.store, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.store, config.Store, "expected store to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, []byte("some_secret"), config.SigningKey)
			assert.Equal(t, 20, config.MessageLimit)
			assert.Equal(t, 10*time.Second, config.MessageWindow)
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key)
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tcases := []struct {
		rate   string
		count  int
		window time.Duration
		err    bool
	}{
		{rate: "20/10s", count: 20, window: 10 * time.Second},
		{rate: " 5 / 1m ", count: 5, window: time.Minute},
		{rate: "20", err: true},
		{rate: "0/10s", err: true},
		{rate: "x/10s", err: true},
		{rate: "20/soon", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.rate, func(t *testing.T) {
			count, window, err := ParseRate(tc.rate)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.count, count)
			assert.Equal(t, tc.window, window)
		})
	}
}
