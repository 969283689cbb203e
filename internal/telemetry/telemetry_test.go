package telemetry

import (
	"context"
	"testing"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/log"
)

func TestSetupWithoutEndpointDisablesTracing(t *testing.T) {
	t.Parallel()

	shutdown, err := Setup(context.Background(), Config{ServiceName: "feelori"}, log.NewNop())
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned a nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown error = %v", err)
	}
}
