package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/docs", "/docs"},
		{"/docs/assets/app.js", "/docs"},
		{"/openapi.json", "/openapi.json"},
		{"/mybucket", "/{bucket}"},
		{"/mybucket/", "/{bucket}"},
		{"/mybucket/key", "/{bucket}/{key}"},
		{"/mybucket/deep/nested/key.txt", "/{bucket}/{key}"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.path); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRegisterIdempotent(t *testing.T) {
	// Must not panic on repeat registration.
	Register()
	Register()
}
