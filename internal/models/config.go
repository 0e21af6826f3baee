package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// CapacitySettings is the capacity section of the config file. A
// solver_time_limit_seconds of 0 means no limit.
type CapacitySettings struct {
	DriverThroughput       float64            `mapstructure:"driver_throughput"`
	ZoneThroughput         map[string]float64 `mapstructure:"zone_throughput"`
	MaxDriversPerZoneHour  *float64           `mapstructure:"max_drivers_per_zone_hour"`
	TotalDriversPerHour    *float64           `mapstructure:"total_drivers_available_per_hour"`
	TotalDriversBySlot     map[int]float64    `mapstructure:"total_drivers_by_slot"`
	CostPerDriverHour      float64            `mapstructure:"cost_per_driver_hour"`
	LatePenaltyPerUnit     float64            `mapstructure:"late_penalty_per_unit"`
	SolverTimeLimitSeconds float64            `mapstructure:"solver_time_limit_seconds" validate:"gte=0"`
	RushHours              []int              `mapstructure:"rush_hours"`
	RushHourFactor         float64            `mapstructure:"rush_hour_throughput_factor"`
}

type SolverSettings struct {
	Name             string `mapstructure:"name" validate:"oneof=simplex greedy"`
	FallbackToGreedy bool   `mapstructure:"fallback_to_greedy"`
	Workers          int    `mapstructure:"workers" validate:"gte=1"`
}

type DemandSettings struct {
	Source     string `mapstructure:"source" validate:"oneof=csv postgres synthetic"`
	File       string `mapstructure:"file" validate:"required_if=Source csv"`
	ForecastID string `mapstructure:"forecast_id" validate:"required_if=Source postgres"`
	// FullGrid plans every zone and slot of the horizon, not only the pairs present
	// in the demand source.
	FullGrid bool `mapstructure:"full_grid"`
}

type CloudStorageConfig struct {
	Provider   string `mapstructure:"provider"`
	Region     string `mapstructure:"region"`
	BucketName string `mapstructure:"bucket_name"`
	// Endpoint overrides the provider endpoint, e.g. a MinIO or LocalStack URL.
	Endpoint string `mapstructure:"endpoint"`
}

type OutputSettings struct {
	Format          string             `mapstructure:"format" validate:"oneof=console csv json parquet"`
	Path            string             `mapstructure:"path"`
	Folder          string             `mapstructure:"folder"`
	Destination     string             `mapstructure:"destination" validate:"oneof=local s3"`
	CloudStorage    CloudStorageConfig `mapstructure:"cloud_storage"`
	KafkaEnabled    bool               `mapstructure:"kafka_enabled"`
	KafkaBrokerList string             `mapstructure:"kafka_broker_list" validate:"required_if=KafkaEnabled true"`
	KafkaTopic      string             `mapstructure:"kafka_topic"`
}

type DatabaseSettings struct {
	URL         string `mapstructure:"url" validate:"required_if=StoreResult true"`
	StoreResult bool   `mapstructure:"store_result"`
}

type MetricsSettings struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type Config struct {
	Seed         int       `mapstructure:"seed"`
	Zones        int       `mapstructure:"zones" validate:"gte=1"`
	HorizonHours int       `mapstructure:"horizon_hours" validate:"gte=1"`
	HistoryDays  int       `mapstructure:"history_days" validate:"gte=1"`
	StartDate    time.Time `mapstructure:"start_date"`

	Demand   DemandSettings   `mapstructure:"demand"`
	Capacity CapacitySettings `mapstructure:"capacity"`
	Solver   SolverSettings   `mapstructure:"solver"`
	Output   OutputSettings   `mapstructure:"output"`
	Database DatabaseSettings `mapstructure:"database"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Log      LogSettings      `mapstructure:"log"`
}

const EnvPrefix = "FLEETALLOC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("seed", 42)
	v.SetDefault("zones", 8)
	v.SetDefault("horizon_hours", 24)
	v.SetDefault("history_days", 28)
	v.SetDefault("start_date", time.Now().UTC().Truncate(24*time.Hour).Format(time.RFC3339))

	v.SetDefault("demand.source", DemandSourceSynthetic)

	v.SetDefault("capacity.driver_throughput", 10.0)
	v.SetDefault("capacity.cost_per_driver_hour", 20.0)
	v.SetDefault("capacity.late_penalty_per_unit", 100.0)
	v.SetDefault("capacity.solver_time_limit_seconds", 30.0)
	v.SetDefault("capacity.rush_hours", DefaultRushHours)
	v.SetDefault("capacity.rush_hour_throughput_factor", 1.0)

	v.SetDefault("solver.name", SolverSimplex)
	v.SetDefault("solver.fallback_to_greedy", true)
	v.SetDefault("solver.workers", 4)

	v.SetDefault("output.format", OutputFormatConsole)
	v.SetDefault("output.folder", "output")
	v.SetDefault("output.destination", OutputDestinationLocal)
	v.SetDefault("output.cloud_storage.provider", OutputDestinationS3)
	v.SetDefault("output.kafka_broker_list", "localhost:9092")
	v.SetDefault("output.kafka_topic", "driver_allocations")

	v.SetDefault("metrics.job", "fleetalloc")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads defaults, the optional config file and FLEETALLOC_* environment
// variables into a Config. An empty cfgFile looks for fleetalloc.{yaml,json} in the
// working directory and ./examples, and silently continues when none exists.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("examples")
		v.SetConfigName("fleetalloc")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Optional bounds have no default, so AutomaticEnv alone would not see them.
	_ = v.BindEnv("capacity.max_drivers_per_zone_hour")
	_ = v.BindEnv("capacity.total_drivers_available_per_hour")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		)
	})
	if err := v.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	return &config, nil
}

// CapacityConfig converts the capacity section into the optimizer's input. Cluster
// factors for generated zones are applied by the caller through ZoneThroughput.
func (cfg *Config) CapacityConfig() CapacityConfig {
	c := cfg.Capacity
	out := CapacityConfig{
		DriverThroughput:      c.DriverThroughput,
		MaxDriversPerZoneHour: c.MaxDriversPerZoneHour,
		TotalDriversPerHour:   c.TotalDriversPerHour,
		CostPerDriverHour:     c.CostPerDriverHour,
		LatePenaltyPerUnit:    c.LatePenaltyPerUnit,
		SolverTimeLimit:       time.Duration(c.SolverTimeLimitSeconds * float64(time.Second)),
	}
	if len(c.ZoneThroughput) > 0 {
		out.ZoneThroughput = make(map[Zone]float64, len(c.ZoneThroughput))
		for z, v := range c.ZoneThroughput {
			out.ZoneThroughput[Zone(z)] = v
		}
	}
	if len(c.TotalDriversBySlot) > 0 {
		out.TotalDriversBySlot = make(map[TimeSlot]float64, len(c.TotalDriversBySlot))
		for s, v := range c.TotalDriversBySlot {
			out.TotalDriversBySlot[TimeSlot(s)] = v
		}
	}
	if c.RushHourFactor != 0 && c.RushHourFactor != 1 {
		out.Traffic = &TrafficProfile{
			RushHours:  append([]int(nil), c.RushHours...),
			RushFactor: c.RushHourFactor,
		}
	}
	return out
}
