package config

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		Auth: AuthConfig{
			Enabled:  false,
			User:     "",
			Password: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Generator: GeneratorConfig{
			Kind:          GeneratorRatio,
			Gamma:         0,
			NumRandomInit: 10,
			RandomRate:    0.1,
			Retrain:       false,
			Seed:          0,
			Distortion:    0,
			Restart:       false,
			MaxBatches:    0,
		},
		Classifier: ClassifierConfig{
			NumLayers:       2,
			NumUnits:        32,
			Activation:      "relu",
			LearningRate:    1e-3,
			L2Factor:        0,
			BatchSize:       64,
			NumStepsPerIter: 1000,
			NumEpochs:       0,
			MaskValue:       1e-9,
			Transform:       "sigmoid",
		},
		Acquisition: AcquisitionConfig{
			Method:     "lbfgs",
			NumStarts:  10,
			NumSamples: 1024,
			MaxIter:    100,
			FTol:       1e-2,
		},
		Hyperband: HyperbandConfig{
			Eta:        3,
			MinBudget:  1,
			MaxBudget:  27,
			Iterations: 4,
		},
		Objective: ObjectiveConfig{
			Kind:       ObjectiveBranin,
			LossPath:   "loss",
			InfoPath:   "info",
			TimeoutSec: 600,
		},
		Persistence: PersistenceConfig{
			Backend:          BackendNone,
			DataDir:          "/var/lib/bore",
			FlushIntervalSec: 60,
			SaveClassifier:   false,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
				Key:  "bore:history",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
