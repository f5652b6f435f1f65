package irk

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// RefineSettings controls the mesh refinement.
type RefineSettings struct {
	RelErrorTol            float64 // intervals below this relative error are left alone
	MaxAddNodeNumPerIntv   int     // points added to an interval in one pass
	MaxTotalNodeNumPerIntv int     // above this, an interval is split
	MaxAddedPerInterval    int     // hard cap across the pieces of a split interval
	RombergDigits          int     // 2^(RombergDigits-1)+1 samples per step
	MaxIterations          int     // solve and refine passes of a phase
}

// DefaultRefineSettings returns the default refinement settings.
func DefaultRefineSettings() RefineSettings {
	return RefineSettings{
		RelErrorTol:            1e-5,
		MaxAddNodeNumPerIntv:   15,
		MaxTotalNodeNumPerIntv: 20,
		MaxAddedPerInterval:    50,
		RombergDigits:          7,
		MaxIterations:          5,
	}
}

// Validate checks that the settings can drive a refinement.
func (s RefineSettings) Validate() error {
	if !(s.RelErrorTol > 0) {
		return configErrorf("relative error tolerance must be positive, got %g", s.RelErrorTol)
	}
	if s.MaxAddNodeNumPerIntv < 0 || s.MaxAddedPerInterval < 0 {
		return configErrorf("maximum numbers of added points must not be negative")
	}
	if s.MaxTotalNodeNumPerIntv < 2 {
		return configErrorf("maximum number of points per interval must be at least 2, got %d", s.MaxTotalNodeNumPerIntv)
	}
	if s.RombergDigits < 2 || s.RombergDigits > 16 {
		return configErrorf("Romberg digits must be within [2, 16], got %d", s.RombergDigits)
	}
	if s.MaxIterations < 0 {
		return configErrorf("maximum number of refinement iterations must not be negative")
	}
	return nil
}

// LoadRefineSettings reads the [refinement] table of a viper configuration on top of the defaults.
func LoadRefineSettings(v *viper.Viper) (RefineSettings, error) {
	s := DefaultRefineSettings()
	v.SetDefault("refinement.tolerance", s.RelErrorTol)
	v.SetDefault("refinement.max_add_per_interval", s.MaxAddNodeNumPerIntv)
	v.SetDefault("refinement.max_points_per_interval", s.MaxTotalNodeNumPerIntv)
	v.SetDefault("refinement.max_added_per_split", s.MaxAddedPerInterval)
	v.SetDefault("refinement.romberg_digits", s.RombergDigits)
	v.SetDefault("refinement.max_iterations", s.MaxIterations)
	s.RelErrorTol = v.GetFloat64("refinement.tolerance")
	s.MaxAddNodeNumPerIntv = v.GetInt("refinement.max_add_per_interval")
	s.MaxTotalNodeNumPerIntv = v.GetInt("refinement.max_points_per_interval")
	s.MaxAddedPerInterval = v.GetInt("refinement.max_added_per_split")
	s.RombergDigits = v.GetInt("refinement.romberg_digits")
	s.MaxIterations = v.GetInt("refinement.max_iterations")
	return s, s.Validate()
}

// RefineSettingsFromEnv loads conf.toml from the directory named by IRK_CONFIG, or
// returns the defaults when that variable is unset.
func RefineSettingsFromEnv() (RefineSettings, error) {
	confPath := os.Getenv("IRK_CONFIG")
	if confPath == "" {
		return DefaultRefineSettings(), nil
	}
	v := viper.New()
	v.SetConfigName("conf")
	v.AddConfigPath(confPath)
	if err := v.ReadInConfig(); err != nil {
		return RefineSettings{}, fmt.Errorf("%w: %s/conf.toml: %s", ErrConfig, confPath, err)
	}
	return LoadRefineSettings(v)
}
