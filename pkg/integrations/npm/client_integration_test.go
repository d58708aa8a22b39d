//go:build integration

package npm

import (
	"context"
	"testing"
	"time"
)

func TestVersionExists_Integration(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tests := []struct {
		name, pkg, version string
		want               bool
	}{
		{"published", "lodash", "4.17.21", true},
		{"unpublished", "lodash", "4.17.99", false},
		{"range", "express", "^4.18.0", true},
		{"nonexistent", "this-package-should-not-exist-12345", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.VersionExists(ctx, tt.pkg, tt.version)
			if err != nil {
				t.Fatalf("VersionExists(%q, %q) error = %v", tt.pkg, tt.version, err)
			}
			if got != tt.want {
				t.Errorf("VersionExists(%q, %q) = %v, want %v", tt.pkg, tt.version, got, tt.want)
			}
		})
	}
}
