package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"mmengine/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.RPC.Commitment != "confirmed" {
		t.Fatalf("unexpected commitment level: %s", AppConfig.RPC.Commitment)
	}
	if AppConfig.Worker.WaitingPollSeconds != 3 {
		t.Fatalf("expected waiting poll seconds 3, got %d", AppConfig.Worker.WaitingPollSeconds)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(".."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.Worker.WaitingPollSeconds != 1 {
		t.Fatalf("expected waiting poll seconds 1, got %d", AppConfig.Worker.WaitingPollSeconds)
	}
	if AppConfig.Logging.Level != "debug" {
		t.Fatalf("expected logging override to debug")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("worker:\n  min_delay_ms: 1000\n  max_delay_ms: 2000\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.Worker.MinDelayMS != 1000 {
		t.Fatalf("expected min delay 1000, got %d", AppConfig.Worker.MinDelayMS)
	}
	if AppConfig.Worker.MaxDelayMS != 2000 {
		t.Fatalf("expected max delay 2000, got %d", AppConfig.Worker.MaxDelayMS)
	}
}
