package main

import "time"

type apiConfig struct {
	Port            uint16        `envconfig:"APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	PostgresDSN string `envconfig:"PG_DSN" required:"true"`

	JWTSecret string        `envconfig:"APP_JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"APP_TOKEN_TTL" default:"24h"`

	// LNProvider selects the Lightning backend: lnbits or lnd.
	LNProvider string        `envconfig:"LN_PROVIDER" default:"lnbits"`
	LNTimeout  time.Duration `envconfig:"LN_TIMEOUT" default:"10s"`

	LNbitsURL    string `envconfig:"LNBITS_URL"`
	LNbitsAPIKey string `envconfig:"LNBITS_API_KEY"`

	LNDURL        string `envconfig:"LND_URL"`
	LNDMacaroon   string `envconfig:"LND_MACAROON_HEX"`
	LNDSkipVerify bool   `envconfig:"LND_TLS_SKIP_VERIFY" default:"false"`

	// RedisAddr empty disables rate limiting.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RateLimitCount int           `envconfig:"RATE_LIMIT_COUNT" default:"60"`
	RateLimitWin   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	SweepEnabled bool   `envconfig:"SWEEP_ENABLED" default:"true"`
	SweepSpec    string `envconfig:"SWEEP_CRON" default:"@every 1m"`
}
