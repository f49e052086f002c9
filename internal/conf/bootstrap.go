package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with MERIDIAN_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required fields:
//   - region.name (REGION_NAME or MERIDIAN_REGION_NAME): this process's region
//   - region.peers: the static region table, exactly one entry marked primary
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with MERIDIAN_ prefix
	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without MERIDIAN_ prefix) for compatibility
	_ = v.BindEnv("region.name", "REGION_NAME", "MERIDIAN_REGION_NAME")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "MERIDIAN_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.redis.password", "REDIS_PASSWORD", "MERIDIAN_DATA_REDIS_PASSWORD")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// The peers list only comes from the config file, never from env vars
	var peers []*Region_Peer
	if err := v.UnmarshalKey("region.peers", &peers); err != nil {
		return nil, fmt.Errorf("failed to parse region.peers: %w", err)
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Region: &Region{
			Name:                v.GetString("region.name"),
			HeartbeatInterval:   durationpb.New(v.GetDuration("region.heartbeat_interval")),
			HeartbeatTTL:        durationpb.New(v.GetDuration("region.heartbeat_ttl")),
			HealthCheckInterval: durationpb.New(v.GetDuration("region.health_check_interval")),
			ProbeTimeout:        durationpb.New(v.GetDuration("region.probe_timeout")),
			FreshnessBound:      durationpb.New(v.GetDuration("region.freshness_bound")),
			Peers:               peers,
		},
		RateLimit: &RateLimit{
			Api: &RateLimit_Policy{
				Points: v.GetInt32("rate_limit.api.points"),
				Window: durationpb.New(v.GetDuration("rate_limit.api.window")),
			},
			Auth: &RateLimit_Policy{
				Points:        v.GetInt32("rate_limit.auth.points"),
				Window:        durationpb.New(v.GetDuration("rate_limit.auth.window")),
				BlockDuration: durationpb.New(v.GetDuration("rate_limit.auth.block_duration")),
			},
		},
		Breaker: &Breaker{
			FailureThreshold:         v.GetInt32("breaker.failure_threshold"),
			ResetTimeout:             durationpb.New(v.GetDuration("breaker.reset_timeout")),
			HalfOpenSuccessThreshold: v.GetInt32("breaker.half_open_success_threshold"),
			CallTimeout:              durationpb.New(v.GetDuration("breaker.call_timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Region defaults
	// Note: region.name and region.peers are required from config/environment
	v.SetDefault("region.heartbeat_interval", 10*time.Second)
	v.SetDefault("region.heartbeat_ttl", 30*time.Second)
	v.SetDefault("region.health_check_interval", 30*time.Second)
	v.SetDefault("region.probe_timeout", 5*time.Second)
	v.SetDefault("region.freshness_bound", 60*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.api.points", 100)
	v.SetDefault("rate_limit.api.window", time.Minute)
	v.SetDefault("rate_limit.auth.points", 5)
	v.SetDefault("rate_limit.auth.window", time.Minute)
	v.SetDefault("rate_limit.auth.block_duration", 15*time.Minute)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)
	v.SetDefault("breaker.half_open_success_threshold", 2)
	v.SetDefault("breaker.call_timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Region == nil || bc.Region.Name == "" {
		missingFields = append(missingFields, "region.name (REGION_NAME)")
	}

	if bc.Region == nil || len(bc.Region.Peers) == 0 {
		missingFields = append(missingFields, "region.peers")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	// The local region must appear in the peer table, and exactly one region
	// must be marked primary.
	selfFound := false
	primaries := 0
	for _, p := range bc.Region.Peers {
		if p == nil || p.Name == "" || p.ApiUrl == "" {
			return fmt.Errorf("region.peers entries require name and api_url")
		}
		if p.Name == bc.Region.Name {
			selfFound = true
		}
		if p.Primary {
			primaries++
		}
	}
	if !selfFound {
		return fmt.Errorf("region.name %q is not listed in region.peers", bc.Region.Name)
	}
	if primaries != 1 {
		return fmt.Errorf("region.peers must mark exactly one primary region, got %d", primaries)
	}

	return nil
}
