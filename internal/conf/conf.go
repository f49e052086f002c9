// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	Region    *Region
	RateLimit *RateLimit
	Breaker   *Breaker
	Log       *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Redis *Data_Redis
}

// Data_Redis configures the Redis connection used as the shared
// key-value and pub/sub store.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Region configures the multi-region coordinator.
type Region struct {
	// Name identifies this process's region. It must match one of Peers.
	Name string
	// HeartbeatInterval is how often the local heartbeat is written (default 10s).
	HeartbeatInterval *durationpb.Duration
	// HeartbeatTTL is the expiry of the heartbeat key in the shared store (default 30s).
	HeartbeatTTL *durationpb.Duration
	// HealthCheckInterval is how often peer regions are polled (default 30s).
	HealthCheckInterval *durationpb.Duration
	// ProbeTimeout bounds the HTTP health probe (default 5s).
	ProbeTimeout *durationpb.Duration
	// FreshnessBound is the maximum heartbeat age for a region to count as
	// alive (default 60s).
	FreshnessBound *durationpb.Duration
	// Peers is the static region table, including this region.
	Peers []*Region_Peer
}

// Region_Peer is one statically configured region.
type Region_Peer struct {
	Name    string `mapstructure:"name"`
	ApiUrl  string `mapstructure:"api_url"`
	Primary bool   `mapstructure:"primary"`
}

// RateLimit configures the admission-control policies.
type RateLimit struct {
	// Api is the general request policy.
	Api *RateLimit_Policy
	// Auth is the stricter credential-endpoint policy.
	Auth *RateLimit_Policy
}

// RateLimit_Policy is one points-per-window quota. A non-zero BlockDuration
// blocks a key for that long once the quota is exceeded, regardless of
// window reset.
type RateLimit_Policy struct {
	Points        int32
	Window        *durationpb.Duration
	BlockDuration *durationpb.Duration
}

// Breaker holds the default circuit breaker tuning used for cross-region calls.
type Breaker struct {
	FailureThreshold         int32
	ResetTimeout             *durationpb.Duration
	HalfOpenSuccessThreshold int32
	CallTimeout              *durationpb.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
