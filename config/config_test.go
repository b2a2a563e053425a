package config

import "testing"

func TestSnapshotReplace(t *testing.T) {
	cfg := Defaults()

	draft := cfg.Snapshot()
	draft.Web.Port = 9000
	if cfg.Web.Port == 9000 {
		t.Error("editing the snapshot should not touch the live config")
	}

	cfg.Replace(draft)
	if cfg.Web.Port != 9000 {
		t.Errorf("Port after replace = %d, want 9000", cfg.Web.Port)
	}
}
