package util_test

import (
	"strings"
	"testing"

	"github.com/downfa11-org/go-streams/util"
)

func TestHostIdentity_PrefersEnv(t *testing.T) {
	t.Setenv("HOSTNAME", "worker-7")

	if got := util.HostIdentity(); got != "worker-7" {
		t.Errorf("HostIdentity() = %q; want %q", got, "worker-7")
	}
}

func TestHostIdentity_FallsBackToKernel(t *testing.T) {
	t.Setenv("HOSTNAME", "  ")

	if got := util.HostIdentity(); strings.TrimSpace(got) == "" {
		t.Error("HostIdentity() returned an empty identity")
	}
}

func TestGenerateConsumerID(t *testing.T) {
	t.Setenv("HOSTNAME", "api-1")

	id1 := util.GenerateConsumerID()
	id2 := util.GenerateConsumerID()

	if id1 != "consumer_api-1" {
		t.Errorf("GenerateConsumerID() = %q; want consumer_api-1", id1)
	}
	if id1 != id2 {
		t.Errorf("expected a stable id across calls, got %q and %q", id1, id2)
	}
}
