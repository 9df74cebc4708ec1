package version

import "testing"

func setBuild(t *testing.T, v, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	t.Cleanup(func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	})
	Version, Commit, BuildTime = v, commit, built
}

func TestString(t *testing.T) {
	setBuild(t, "1.2.3", "abc1234", "2024-01-15T10:00:00Z")

	want := "1.2.3 (abc1234) built 2024-01-15T10:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestGet(t *testing.T) {
	setBuild(t, "2.0.0", "def5678", "2024-02-01T00:00:00Z")

	info := Get()
	if info.Version != "2.0.0" || info.Commit != "def5678" || info.BuildTime != "2024-02-01T00:00:00Z" {
		t.Errorf("Get() = %+v", info)
	}
}

func TestDefaultValues(t *testing.T) {
	// ldflags may override these in release builds
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildTime == "" {
		t.Error("BuildTime should not be empty")
	}
}
