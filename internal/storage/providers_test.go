package storage

import (
	"testing"
)

func TestGetProviderConfig(t *testing.T) {
	cfg, err := GetProviderConfig("minio")
	if err != nil {
		t.Fatalf("GetProviderConfig failed: %v", err)
	}
	if !cfg.RequiresPathStyle {
		t.Error("minio should require path-style addressing")
	}

	if _, err := GetProviderConfig("unknown-provider"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := GetProviderConfig(""); err == nil {
		t.Error("expected error for empty provider")
	}
}

func TestValidateProviderConfig(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		provider     string
		region       string
		wantEndpoint string
		wantRegion   string
		wantErr      bool
	}{
		{
			name:         "aws defaults",
			provider:     "aws",
			wantEndpoint: "https://s3.amazonaws.com",
			wantRegion:   "us-east-1",
		},
		{
			name:         "explicit endpoint normalized",
			endpoint:     "localhost:9000/",
			provider:     "minio",
			wantEndpoint: "https://localhost:9000",
			wantRegion:   "us-east-1",
		},
		{
			name:         "endpoint template uses region",
			provider:     "backblaze",
			region:       "eu-central-003",
			wantEndpoint: "https://s3.eu-central-003.backblazeb2.com",
			wantRegion:   "eu-central-003",
		},
		{
			name:     "unknown provider",
			provider: "nope",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, region, err := ValidateProviderConfig(tt.endpoint, tt.provider, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateProviderConfig failed: %v", err)
			}
			if endpoint != tt.wantEndpoint {
				t.Errorf("endpoint: got %s, want %s", endpoint, tt.wantEndpoint)
			}
			if region != tt.wantRegion {
				t.Errorf("region: got %s, want %s", region, tt.wantRegion)
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	if err := ValidateEndpoint("https://s3.example.com"); err != nil {
		t.Errorf("valid endpoint rejected: %v", err)
	}
	if err := ValidateEndpoint("ftp://s3.example.com"); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if err := ValidateEndpoint("https://"); err == nil {
		t.Error("expected error for missing host")
	}
}
