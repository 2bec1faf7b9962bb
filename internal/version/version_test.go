package version

import "testing"

func TestSetAndCurrent(t *testing.T) {
	Set(Info{Version: "v1.2.3", Commit: "abcdef0", BuildTime: "2025-06-01T12:00:00Z"})
	got := Current()
	if got.Version != "v1.2.3" || got.Commit != "abcdef0" {
		t.Fatalf("Current = %+v", got)
	}
	if got.GoVersion == "" {
		t.Fatal("GoVersion not backfilled")
	}
}

func TestSetDefaultsEmptyVersion(t *testing.T) {
	Set(Info{})
	if got := Current(); got.Version != "dev" {
		t.Fatalf("Version = %q, want dev", got.Version)
	}
}
