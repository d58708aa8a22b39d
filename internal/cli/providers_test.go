package cli

import (
	"testing"

	"github.com/matzehuels/pastoralist/pkg/integrations/command"
)

func TestProviderStatuses(t *testing.T) {
	env := map[string]string{"SNYK_TOKEN": "x"}
	runner := &command.Fake{Installed: map[string]bool{"npm": true}}

	got := map[string]providerStatus{}
	for _, s := range providerStatuses(runner, func(k string) string { return env[k] }) {
		got[s.Name] = s
	}

	tests := []struct {
		name  string
		ready bool
	}{
		{"osv", true},
		{"github", false},
		{"snyk", true},
		{"socket", false},
	}
	for _, tt := range tests {
		s, ok := got[tt.name]
		if !ok {
			t.Errorf("%s missing", tt.name)
			continue
		}
		if s.Ready != tt.ready {
			t.Errorf("%s ready = %v (%s), want %v", tt.name, s.Ready, s.Note, tt.ready)
		}
	}

	env["PASTORALIST_MOCK_SECURITY"] = "1"
	for _, s := range providerStatuses(runner, func(k string) string { return env[k] }) {
		if s.Name == "github" && !s.Ready {
			t.Error("github should be ready in mock mode")
		}
	}
}
