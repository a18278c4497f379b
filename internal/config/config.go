// Package config loads process settings from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v6"

	"studygroup-chat/internal/models"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:"127.0.0.1:8090"`
	BrokerURL  string `env:"BROKER_URL" envDefault:"ws://localhost:8080/ws"`
	BrokerHost string `env:"BROKER_HOST"`
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`
	DBDSN      string `env:"DB_DSN"`

	AMQPURL         string `env:"AMQP_URL"`
	AMQPExchange    string `env:"AMQP_EXCHANGE" envDefault:"studygroup.events"`
	AuditRoutingKey string `env:"AUDIT_ROUTING_KEY" envDefault:"audit.chat-sync"`
	AppEnv          string `env:"APP_ENV" envDefault:"dev"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	ReconnectDelay  time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	StompHeartbeat  time.Duration `env:"STOMP_HEARTBEAT" envDefault:"10s"`
	OutboxLimit     int           `env:"OUTBOX_LIMIT" envDefault:"500"`
	ReconcileWindow time.Duration `env:"RECONCILE_WINDOW" envDefault:"1500ms"`
	TypingIdle      time.Duration `env:"TYPING_IDLE" envDefault:"2s"`
	PeerTypingTTL   time.Duration `env:"PEER_TYPING_TTL" envDefault:"6s"`

	AuthToken string `env:"AUTH_TOKEN"`
	UserID    string `env:"USER_ID"`
	UserName  string `env:"USER_NAME"`

	DebugRoutes bool `env:"DEBUG_ROUTES" envDefault:"false"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BootstrapIdentity returns the identity supplied through the environment.
func (c Config) BootstrapIdentity() models.Identity {
	return models.Identity{Token: c.AuthToken, UserID: c.UserID, UserName: c.UserName}
}
