package storage

import "testing"

func TestNewIconStore_RequiresSettings(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
	}{
		{"empty", S3Config{}},
		{"missing bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
		{"missing secret", S3Config{Endpoint: "localhost:9000", AccessKey: "a", Bucket: "icons"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewIconStore(tc.cfg); err == nil {
				t.Fatal("expected an error for incomplete settings")
			}
		})
	}
}

func TestNewIconStore_Valid(t *testing.T) {
	store, err := NewIconStore(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "icons"})
	if err != nil {
		t.Fatalf("NewIconStore: %v", err)
	}
	if store.bucket != "icons" {
		t.Errorf("bucket = %q", store.bucket)
	}
}
