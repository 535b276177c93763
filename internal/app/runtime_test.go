package app

import "testing"

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode on")
	}

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	if InTestMode() {
		t.Fatal("expected test mode off")
	}
}
