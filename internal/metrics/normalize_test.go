package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/recognition/batch/12345", "/recognition/batch/:id"},
		{"/recognition/batch/550e8400-e29b-41d4-a716-446655440000", "/recognition/batch/:uuid"},
		{"/recognition/batch/abc123def", "/recognition/batch/:ci"},
		{"/recognition/register", "/recognition/register"},
		{"/", "/"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got := NormalizePath(tc.path)
			if got != tc.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}
