package buildinfo

import (
	"strings"
	"testing"
)

func TestUserAgent(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.2.3"
	if got := UserAgent(); !strings.HasPrefix(got, "pastoralist/v1.2.3 ") {
		t.Errorf("UserAgent() = %q", got)
	}
	if !strings.Contains(Template(), "v1.2.3") || !strings.Contains(String(), "version: v1.2.3") {
		t.Error("version missing from Template or String")
	}
}
