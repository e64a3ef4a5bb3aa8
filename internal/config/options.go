package config

import (
	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/hyperband"
	"github.com/haskel/bore/internal/space"
)

// GammaOrDefault returns generator.gamma, or 1/eta when it is not set.
func (c *Config) GammaOrDefault() float64 {
	if c.Generator.Gamma > 0 {
		return c.Generator.Gamma
	}
	return hyperband.DefaultGamma(c.Hyperband.Eta)
}

// GeneratorOptions merges the generator, classifier training and acquisition
// sections.
func (c *Config) GeneratorOptions() generator.Options {
	return generator.Options{
		Gamma:           c.GammaOrDefault(),
		NumRandomInit:   c.Generator.NumRandomInit,
		RandomRate:      c.Generator.RandomRate,
		Retrain:         c.Generator.Retrain,
		BatchSize:       c.Classifier.BatchSize,
		NumStepsPerIter: c.Classifier.NumStepsPerIter,
		NumEpochs:       c.Classifier.NumEpochs,
		Transform:       c.Classifier.Transform,
		Method:          c.Acquisition.Method,
		NumStarts:       c.Acquisition.NumStarts,
		NumSamples:      c.Acquisition.NumSamples,
		MaxIter:         c.Acquisition.MaxIter,
		FTol:            c.Acquisition.FTol,
		Distortion:      c.Generator.Distortion,
		Restart:         c.Generator.Restart,
		MaxBatches:      c.Generator.MaxBatches,
		Seed:            c.Generator.Seed,
	}
}

// ClassifierOptions returns the network options for inputDim features.
func (c *Config) ClassifierOptions(inputDim int) classifier.Options {
	return classifier.Options{
		InputDim:     inputDim,
		NumLayers:    c.Classifier.NumLayers,
		NumUnits:     c.Classifier.NumUnits,
		Activation:   c.Classifier.Activation,
		LearningRate: c.Classifier.LearningRate,
		L2:           c.Classifier.L2Factor,
		MaskValue:    c.Classifier.MaskValue,
		Seed:         c.Generator.Seed,
	}
}

func (c *Config) HyperbandOptions() hyperband.Options {
	return hyperband.Options{
		Eta:       c.Hyperband.Eta,
		MinBudget: c.Hyperband.MinBudget,
		MaxBudget: c.Hyperband.MaxBudget,
	}
}

// SearchSpace builds the configured space. It returns nil without error
// when no parameters are configured.
func (c *Config) SearchSpace() (*space.Space, error) {
	if len(c.Space) == 0 {
		return nil, nil
	}
	return space.New(c.Space)
}
