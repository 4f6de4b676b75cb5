package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: "badger",
			Path:   "/tmp/disagg-store",
		},
		Inputs: InputsConfig{RuptureTable: "ruptures.parquet"},
		Calculation: CalculationConfig{
			TruncationLevel: 3,
			MaximumDistance: 200,
			IMTLevels:       map[string][]float64{"PGA": {0.01, 0.1, 1.0}},
			PoEs:            []float64{0.1, 0.02},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `database.driver must be "badger" or "redis", got "postgres"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_RedisRequiresAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "redis"
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for redis without addrs")
	}
}

func TestValidate_RequiresTargets(t *testing.T) {
	cfg := validConfig()
	cfg.Calculation.PoEs = nil
	cfg.Calculation.IMLDisagg = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error with neither poes_disagg nor iml_disagg")
	}
	if !strings.Contains(err.Error(), "poes_disagg") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestValidate_PoERange(t *testing.T) {
	for _, poe := range []float64{0, 1, -0.1, 1.5} {
		cfg := validConfig()
		cfg.Calculation.PoEs = []float64{poe}
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for poe=%v", poe)
		}
	}
}

func TestValidate_UnknownOutput(t *testing.T) {
	cfg := validConfig()
	cfg.Calculation.DisaggOutputs = []string{"Mag", "Banana"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown PMF name")
	}
	expected := `calculation.disagg_outputs: unknown PMF "Banana"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Database.Driver != "badger" {
		t.Errorf("default driver = %q, want badger", cfg.Database.Driver)
	}
	if cfg.Database.Path == "" {
		t.Error("default badger path is empty")
	}
	if cfg.Calculation.MagBinWidth != 0.5 {
		t.Errorf("default mag_bin_width = %v, want 0.5", cfg.Calculation.MagBinWidth)
	}
	if cfg.Calculation.NumRlzsDisagg != 1 {
		t.Errorf("default num_rlzs_disagg = %v, want 1", cfg.Calculation.NumRlzsDisagg)
	}
	if cfg.Calculation.ConcurrentTasks <= 0 {
		t.Error("default concurrent_tasks must be positive")
	}
	if cfg.Calculation.MaxDataTransfer != 2<<30 {
		t.Errorf("default max_data_transfer = %v, want 2 GB", cfg.Calculation.MaxDataTransfer)
	}
}

func TestApplyDefaults_ExplicitRlzIndexKeepsZero(t *testing.T) {
	cfg := Config{}
	cfg.Calculation.RlzIndex = []int{2, 5}
	cfg.ApplyDefaults()

	if cfg.Calculation.NumRlzsDisagg != 0 {
		t.Errorf("num_rlzs_disagg = %v, want 0 when rlz_index is explicit",
			cfg.Calculation.NumRlzsDisagg)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DISAGG_TEST_PATH", "/data/store")

	in := []byte("path: ${DISAGG_TEST_PATH}\ndriver: ${DISAGG_TEST_DRIVER:-badger}\n")
	out := string(expandEnvVars(in))

	want := "path: /data/store\ndriver: badger\n"
	if out != want {
		t.Errorf("expanded to %q, want %q", out, want)
	}
}
