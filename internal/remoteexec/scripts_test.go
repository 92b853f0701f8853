package remoteexec

import (
	"strings"
	"testing"

	"deployctl/internal/model"
)

func TestStartSideQuotesSecretValues(t *testing.T) {
	s := ScriptSet{ContainerName: "app", Port: 8080}
	script := s.StartSide("app:v2", 8081, []model.EnvVar{{Key: "API_KEY", Value: "it's a secret", Secret: true}})

	if !strings.Contains(script, `'it'\''s a secret'`) {
		t.Fatalf("expected embedded quote to be escaped, got:\n%s", script)
	}
}

func TestUpstreamApplySplitsWeights(t *testing.T) {
	s := ScriptSet{ContainerName: "app", Port: 9000}
	script := s.UpstreamApply(75, 25)

	if !strings.Contains(script, "weight=75") || !strings.Contains(script, "weight=25") {
		t.Fatalf("expected both weights present, got:\n%s", script)
	}
}

func TestRollbackRestoresPreviousImage(t *testing.T) {
	s := ScriptSet{ContainerName: "app", Port: 8080}
	script := s.Rollback("app:v1")

	if !strings.Contains(script, "'app:v1'") {
		t.Fatalf("expected previous image tag quoted in rollback script, got:\n%s", script)
	}
}
