package influxmcp

import (
	"regexp"
	"testing"
)

func TestVersion(t *testing.T) {
	t.Parallel()

	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(Version) {
		t.Errorf("Version = %q, want semver", Version)
	}
	if got := GetVersion(); got != Version {
		t.Errorf("GetVersion() = %s, want %s", got, Version)
	}
}
