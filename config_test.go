package irk

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadRefineSettings(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	conf := `
[refinement]
tolerance = 1e-7
max_add_per_interval = 10
max_iterations = 2
`
	if err := v.ReadConfig(strings.NewReader(conf)); err != nil {
		t.Fatal(err)
	}
	s, err := LoadRefineSettings(v)
	if err != nil {
		t.Fatal(err)
	}
	exp := DefaultRefineSettings()
	exp.RelErrorTol = 1e-7
	exp.MaxAddNodeNumPerIntv = 10
	exp.MaxIterations = 2
	if s != exp {
		t.Fatalf("got %+v\nexpected %+v", s, exp)
	}

	v = viper.New()
	v.Set("refinement.romberg_digits", 30)
	if _, err = LoadRefineSettings(v); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestRefineSettingsFromEnv(t *testing.T) {
	t.Setenv("IRK_CONFIG", "")
	s, err := RefineSettingsFromEnv()
	if err != nil || s != DefaultRefineSettings() {
		t.Fatalf("expected the defaults, got %+v (%v)", s, err)
	}

	dir := t.TempDir()
	t.Setenv("IRK_CONFIG", dir)
	if _, err = RefineSettingsFromEnv(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected a configuration error for a missing conf.toml, got %v", err)
	}
	if err = os.WriteFile(filepath.Join(dir, "conf.toml"), []byte("[refinement]\nmax_points_per_interval = 12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s, err = RefineSettingsFromEnv(); err != nil {
		t.Fatal(err)
	}
	if s.MaxTotalNodeNumPerIntv != 12 || s.RelErrorTol != DefaultRefineSettings().RelErrorTol {
		t.Fatalf("unexpected settings %+v", s)
	}
}
