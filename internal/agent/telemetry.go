package agent

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
)

var agentTracer = otel.Tracer("searchagent/agent")

func telemetryFingerprint(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(trimmed))
	return fmt.Sprintf("%x", sum[:8])
}
