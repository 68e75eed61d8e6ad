package objectstore

import "testing"

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.BucketDatasets == "" || cfg.BucketArtifacts == "" || cfg.BucketModels == "" {
		t.Fatalf("expected default bucket names, got %+v", cfg)
	}
}

func TestConfigValidateRejectsScheme(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	cfg.Endpoint = "http://localhost:9000"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for endpoint with scheme")
	}
}

func TestConfigValidateRequiresModelsBucket(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	cfg.BucketModels = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing models bucket")
	}
}
