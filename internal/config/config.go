package config

import (
	"net"
	"strconv"
	"time"

	"github.com/haskel/bore/internal/space"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Debug       DebugConfig       `yaml:"debug"`
	Logging     LoggingConfig     `yaml:"logging"`
	Space       []space.Parameter `yaml:"space"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Hyperband   HyperbandConfig   `yaml:"hyperband"`
	Objective   ObjectiveConfig   `yaml:"objective"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DebugConfig holds debug mode configuration.
type DebugConfig struct {
	// Enabled mounts /debug/rebuild and the pprof handlers.
	Enabled bool `yaml:"enabled"`
	// Auth holds debug-specific authentication.
	// If set, debug endpoints require this token.
	// If not set but main auth is enabled, main auth is used.
	Auth DebugAuthConfig `yaml:"auth"`
}

// DebugAuthConfig holds debug endpoint authentication.
type DebugAuthConfig struct {
	Token string `yaml:"token"`
}

type ServerConfig struct {
	Host         string          `yaml:"host"`
	Port         int             `yaml:"port"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	PIDFile      string          `yaml:"pid_file"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	PerIP             bool    `yaml:"per_ip"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Generator kinds.
const (
	GeneratorRatio    = "ratio"
	GeneratorSequence = "sequence"
)

// GeneratorConfig holds the suggestion controller settings.
type GeneratorConfig struct {
	// Kind is ratio (single fidelity) or sequence (multi-fidelity).
	Kind string `yaml:"kind"`

	// Gamma is the good-quantile. Zero means 1/eta of the hyperband section.
	Gamma float64 `yaml:"gamma"`

	NumRandomInit int `yaml:"num_random_init"`

	// RandomRate is the epsilon of epsilon-greedy proposals. Zero disables it.
	RandomRate float64 `yaml:"random_rate"`

	// Retrain rebuilds the classifier before every fit.
	Retrain bool `yaml:"retrain"`

	Seed       uint64  `yaml:"seed"`
	Distortion float64 `yaml:"distortion"`

	// Restart selects single-batch best-of maximization instead of restarting
	// until a new acceptable optimum is found.
	Restart bool `yaml:"restart"`

	// MaxBatches caps restarts. Zero means unbounded.
	MaxBatches int `yaml:"max_batches"`
}

// ClassifierConfig holds network and training settings.
type ClassifierConfig struct {
	NumLayers       int     `yaml:"num_layers"`
	NumUnits        int     `yaml:"num_units"`
	Activation      string  `yaml:"activation"`
	LearningRate    float64 `yaml:"learning_rate"`
	L2Factor        float64 `yaml:"l2_factor"`
	BatchSize       int     `yaml:"batch_size"`
	NumStepsPerIter int     `yaml:"num_steps_per_iter"`

	// NumEpochs overrides the count derived from num_steps_per_iter.
	NumEpochs int `yaml:"num_epochs"`

	MaskValue float64 `yaml:"mask_value"`
	Transform string  `yaml:"transform"`
}

// AcquisitionConfig holds the multi-start maximizer settings.
type AcquisitionConfig struct {
	Method     string  `yaml:"method"`
	NumStarts  int     `yaml:"num_starts"`
	NumSamples int     `yaml:"num_samples"`
	MaxIter    int     `yaml:"max_iter"`
	FTol       float64 `yaml:"ftol"`
}

type HyperbandConfig struct {
	Eta        float64 `yaml:"eta"`
	MinBudget  float64 `yaml:"min_budget"`
	MaxBudget  float64 `yaml:"max_budget"`
	Iterations int     `yaml:"iterations"`
}

// Objective kinds.
const (
	ObjectiveCommand   = "command"
	ObjectiveBranin    = "branin"
	ObjectiveForrester = "forrester"
)

// ObjectiveConfig selects what `bore optimize` evaluates.
type ObjectiveConfig struct {
	Kind    string   `yaml:"kind"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// LossPath and InfoPath are gjson paths into the command's stdout.
	LossPath string `yaml:"loss_path"`
	InfoPath string `yaml:"info_path"`

	TimeoutSec int `yaml:"timeout_sec"`
}

// Persistence backends.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

type PersistenceConfig struct {
	Backend          string      `yaml:"backend"`
	DataDir          string      `yaml:"data_dir"`
	FlushIntervalSec int         `yaml:"flush_interval_sec"`
	SaveClassifier   bool        `yaml:"save_classifier"`
	Redis            RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Persistence.FlushIntervalSec) * time.Second
}

func (c *Config) ObjectiveTimeout() time.Duration {
	return time.Duration(c.Objective.TimeoutSec) * time.Second
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
