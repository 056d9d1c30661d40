package guard

import (
	"testing"
	"time"

	"github.com/xela07ax/aegis-guard/internal/infra"
)

func TestConfigFromEngineMapsTimeoutPolarity(t *testing.T) {
	cfg := ConfigFromEngine(infra.EngineConfig{
		ReviewTimeout:        2 * time.Minute,
		ReviewTimeoutVerdict: "deny",
	})
	if cfg.ReviewTimeout != 2*time.Minute {
		t.Fatalf("review timeout lost in mapping: %v", cfg.ReviewTimeout)
	}
	if cfg.AllowOnTimeout {
		t.Fatal("verdict \"deny\" must stay fail-closed")
	}

	cfg = ConfigFromEngine(infra.EngineConfig{ReviewTimeoutVerdict: "ALLOW"})
	if !cfg.AllowOnTimeout {
		t.Fatal("verdict \"allow\" must enable fail-open polarity")
	}

	// Пустое значение и опечатки не ослабляют контур
	for _, verdict := range []string{"", "alow", "approve", "open"} {
		if ConfigFromEngine(infra.EngineConfig{ReviewTimeoutVerdict: verdict}).AllowOnTimeout {
			t.Fatalf("verdict %q must not enable fail-open", verdict)
		}
	}
}
