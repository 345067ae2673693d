package storage

import (
	"strings"
	"time"
)

// Option configures one or more datastore drivers. Options that do not apply
// to a driver are ignored by it.
type Option interface {
	applyJSON(*Storage)
	applyPostgres(*PostgresConfig)
	applyMongo(*MongoConfig)
}

type optionAdapter struct {
	json  func(*Storage)
	pg    func(*PostgresConfig)
	mongo func(*MongoConfig)
}

func (o optionAdapter) applyJSON(store *Storage) {
	if o.json != nil && store != nil {
		o.json(store)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func (o optionAdapter) applyMongo(cfg *MongoConfig) {
	if o.mongo != nil && cfg != nil {
		o.mongo(cfg)
	}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

func mongoOnlyOption(fn func(*MongoConfig)) Option {
	return optionAdapter{mongo: fn}
}

// WithClock overrides the time source used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return optionAdapter{
		json: func(s *Storage) {
			if now != nil {
				s.now = now
			}
		},
		pg: func(cfg *PostgresConfig) {
			if now != nil {
				cfg.Clock = now
			}
		},
		mongo: func(cfg *MongoConfig) {
			if now != nil {
				cfg.Clock = now
			}
		},
	}
}

// WithPasswordCost sets the bcrypt cost used when creating users.
func WithPasswordCost(cost int) Option {
	return optionAdapter{
		json: func(s *Storage) {
			if cost > 0 {
				s.passwordCost = cost
			}
		},
		pg: func(cfg *PostgresConfig) {
			if cost > 0 {
				cfg.PasswordCost = cost
			}
		},
		mongo: func(cfg *MongoConfig) {
			if cost > 0 {
				cfg.PasswordCost = cost
			}
		},
	}
}

func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresAcquireTimeout bounds how long connecting to Postgres may take.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}

func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}

func WithMongoDatabase(name string) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.Database = trimmed
		}
	})
}

func WithMongoTimeout(timeout time.Duration) Option {
	return mongoOnlyOption(func(cfg *MongoConfig) {
		if timeout > 0 {
			cfg.ConnectTimeout = timeout
		}
	})
}
