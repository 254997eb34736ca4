package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup("helpdesk-sla-test")
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
