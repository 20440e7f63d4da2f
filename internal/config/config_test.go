package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "ENVIRONMENT", "CORS_ALLOWED_ORIGINS",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_SQLITE_PATH",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_QUEUES", "BLACKLIST_PURGE_INTERVAL",
	"JWT_SECRET", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "BCRYPT_COST",
	"AUTH_CACHE_TTL", "PASSWORD_MIN_LENGTH",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"LOG_LEVEL", "LOG_FORMAT",
}

func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range allEnvVars {
		if _, ok := vars[k]; !ok {
			t.Setenv(k, "")
		}
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setEnvVars(t, nil)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Server.Host)
	}

	if config.Server.Port != "8080" {
		t.Errorf("Expected default port '8080', got %s", config.Server.Port)
	}

	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}

	if len(config.Server.AllowedOrigins) != 1 || config.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Expected default CORS origin, got %v", config.Server.AllowedOrigins)
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected default DB driver 'postgres', got %s", config.Database.Driver)
	}

	if config.Database.Name != "taskify" {
		t.Errorf("Expected default DB name 'taskify', got %s", config.Database.Name)
	}

	if config.Database.MaxOpenConns != 25 {
		t.Errorf("Expected default max open conns 25, got %d", config.Database.MaxOpenConns)
	}

	if !config.Redis.Enabled {
		t.Error("Expected redis to be enabled by default")
	}

	if config.Redis.PoolSize != 10 {
		t.Errorf("Expected default Redis pool size 10, got %d", config.Redis.PoolSize)
	}

	if config.Worker.BlacklistPurgeEvery != time.Hour {
		t.Errorf("Expected default purge interval 1h, got %v", config.Worker.BlacklistPurgeEvery)
	}

	if config.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("Expected default access TTL 15m, got %v", config.Auth.AccessTokenTTL)
	}

	if config.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("Expected default refresh TTL 168h, got %v", config.Auth.RefreshTokenTTL)
	}

	if config.Auth.AuthCacheTTL != 5*time.Minute {
		t.Errorf("Expected default auth cache TTL 5m, got %v", config.Auth.AuthCacheTTL)
	}

	if config.Auth.PasswordMinLength != 8 {
		t.Errorf("Expected default password min length 8, got %d", config.Auth.PasswordMinLength)
	}

	if config.Auth.BCryptCost != 10 {
		t.Errorf("Expected default bcrypt cost 10, got %d", config.Auth.BCryptCost)
	}

	if !config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	setEnvVars(t, map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "9000",
		"ENVIRONMENT":          "production",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com, https://admin.example.com",
		"DB_HOST":              "db.example.com",
		"DB_PASSWORD":          "secure_password",
		"DB_MAX_OPEN_CONNS":    "50",
		"REDIS_ENABLED":        "false",
		"REDIS_DB":             "1",
		"WORKER_QUEUES":        "default,retry_queue,low",
		"JWT_SECRET":           "super-secret-key",
		"ACCESS_TOKEN_TTL":     "30m",
		"REFRESH_TOKEN_TTL":    "720h",
		"AUTH_CACHE_TTL":       "2m",
		"RATE_LIMIT_ENABLED":   "false",
		"LOG_LEVEL":            "debug",
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.GetServerAddr() != "0.0.0.0:9000" {
		t.Errorf("Expected server addr '0.0.0.0:9000', got %s", config.GetServerAddr())
	}

	if len(config.Server.AllowedOrigins) != 2 || config.Server.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("Expected two trimmed CORS origins, got %v", config.Server.AllowedOrigins)
	}

	if config.Database.Host != "db.example.com" {
		t.Errorf("Expected DB host 'db.example.com', got %s", config.Database.Host)
	}

	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}

	if config.Redis.Enabled {
		t.Error("Expected redis to be disabled")
	}

	if len(config.Worker.Queues) != 3 {
		t.Errorf("Expected 3 worker queues, got %v", config.Worker.Queues)
	}

	if config.Auth.AccessTokenTTL != 30*time.Minute {
		t.Errorf("Expected access token TTL 30m, got %v", config.Auth.AccessTokenTTL)
	}

	if config.Auth.RefreshTokenTTL != 720*time.Hour {
		t.Errorf("Expected refresh token TTL 720h, got %v", config.Auth.RefreshTokenTTL)
	}

	if config.Auth.AuthCacheTTL != 2*time.Minute {
		t.Errorf("Expected auth cache TTL 2m, got %v", config.Auth.AuthCacheTTL)
	}

	if config.Log.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.Log.Level)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		errorMsg string
	}{
		{
			name: "production without database password",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"JWT_SECRET":  "secure-jwt-secret",
			},
			errorMsg: "database password is required in production",
		},
		{
			name: "production with default JWT secret",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"DB_PASSWORD": "secure-db-password",
			},
			errorMsg: "JWT secret must be set in production",
		},
		{
			name: "unknown driver",
			envVars: map[string]string{
				"DB_DRIVER": "mysql",
			},
			errorMsg: `unsupported database driver "mysql"`,
		},
		{
			name: "production sqlite does not need a password",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
				"DB_DRIVER":   "sqlite",
				"JWT_SECRET":  "secure-jwt-secret",
			},
		},
		{
			name: "staging with defaults",
			envVars: map[string]string{
				"ENVIRONMENT": "staging",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvVars(t, tt.envVars)

			config, err := LoadConfig()
			if tt.errorMsg != "" {
				if err == nil {
					t.Fatalf("Expected error %q, got none", tt.errorMsg)
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Expected error '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if config == nil {
				t.Error("Expected config to be loaded")
			}
		})
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     "5432",
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
			SSLMode:  "require",
		},
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require"
	if actual := config.GetDatabaseDSN(); actual != expected {
		t.Errorf("Expected DSN '%s', got '%s'", expected, actual)
	}

	config.Database.Driver = "sqlite"
	config.Database.SQLitePath = "local.db"
	if actual := config.GetDatabaseDSN(); actual != "local.db" {
		t.Errorf("Expected sqlite DSN 'local.db', got '%s'", actual)
	}
}

func TestConfig_GetRedisAddr(t *testing.T) {
	config := &Config{
		Redis: RedisConfig{
			Host: "redis.example.com",
			Port: "6380",
		},
	}

	if actual := config.GetRedisAddr(); actual != "redis.example.com:6380" {
		t.Errorf("Expected Redis addr 'redis.example.com:6380', got '%s'", actual)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		expected    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, test := range tests {
		config := &Config{Server: ServerConfig{Environment: test.environment}}
		if actual := config.IsProduction(); actual != test.expected {
			t.Errorf("For environment '%s', expected IsProduction() = %v, got %v",
				test.environment, test.expected, actual)
		}
	}
}

func TestGetEnvAsInt(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "100")
	if result := getEnvAsInt(key, 42); result != 100 {
		t.Errorf("Expected env value 100, got %d", result)
	}

	t.Setenv(key, "not-a-number")
	if result := getEnvAsInt(key, 42); result != 42 {
		t.Errorf("Expected default value 42 for invalid int, got %d", result)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	testCases := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"invalid", true},
	}

	for _, tc := range testCases {
		t.Setenv(key, tc.value)
		if result := getEnvAsBool(key, true); result != tc.expected {
			t.Errorf("For value '%s', expected %v, got %v", tc.value, tc.expected, result)
		}
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"
	os.Unsetenv(key)

	if result := getEnvAsDuration(key, 30*time.Second); result != 30*time.Second {
		t.Errorf("Expected default value 30s, got %v", result)
	}

	t.Setenv(key, "5m")
	if result := getEnvAsDuration(key, 30*time.Second); result != 5*time.Minute {
		t.Errorf("Expected env value 5m, got %v", result)
	}

	t.Setenv(key, "not-a-duration")
	if result := getEnvAsDuration(key, 30*time.Second); result != 30*time.Second {
		t.Errorf("Expected default value for invalid duration, got %v", result)
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	key := "TEST_SLICE_VAR"

	t.Setenv(key, " a, ,b ,")
	result := getEnvAsSlice(key, []string{"x"})
	if len(result) != 2 || result[0] != "a" || result[1] != "b" {
		t.Errorf("Expected [a b], got %v", result)
	}

	t.Setenv(key, " , ")
	result = getEnvAsSlice(key, []string{"x"})
	if len(result) != 1 || result[0] != "x" {
		t.Errorf("Expected default [x], got %v", result)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	b.Setenv("ENVIRONMENT", "development")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(); err != nil {
			b.Fatalf("Failed to load config: %v", err)
		}
	}
}
