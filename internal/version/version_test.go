package version

import "testing"

func withBuildInfo(t *testing.T, v, c, d string) {
	t.Helper()
	prevVersion, prevCommit, prevDate := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = prevVersion, prevCommit, prevDate })
}

func TestDefaultsForLocalBuild(t *testing.T) {
	if GetVersion() != "dev" || GetCommit() != "unknown" || GetDate() != "unknown" {
		t.Fatalf("unexpected defaults: %s", String())
	}
}

func TestLinkerOverrides(t *testing.T) {
	withBuildInfo(t, "v1.4.0", "3f2c1ab", "2026-10-17T09:00:00Z")

	if GetVersion() != "v1.4.0" {
		t.Fatalf("version: %s", GetVersion())
	}
	if GetCommit() != "3f2c1ab" {
		t.Fatalf("commit: %s", GetCommit())
	}
	if GetDate() != "2026-10-17T09:00:00Z" {
		t.Fatalf("date: %s", GetDate())
	}

	want := "ordercore version=v1.4.0 commit=3f2c1ab date=2026-10-17T09:00:00Z"
	if got := String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
