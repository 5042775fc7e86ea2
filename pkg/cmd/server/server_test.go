package server

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/testsupport/tcnats"
)

func TestExporterCloseAfterShutdown(t *testing.T) {
	conn := tcnats.SetupTestNats(t)
	prefix := "test-" + uuid.NewString()[:8]
	config.NatsURL = conn.ConnectedUrl()
	config.NatsEncoding = string(model.EncodingJSON)
	config.NatsSubjectPrefix = prefix
	config.NatsSnapshotBucket = prefix + "-snapshots"
	t.Cleanup(func() { config.NatsURL = "" })

	ctx, cancel := context.WithCancel(context.Background())
	exporter, closeExport, err := newExporter(ctx)
	require.NoError(t, err)
	exporter.OnEvent("rig1", model.Fields{
		model.FieldPacketName: "session",
		model.FieldLapNumber:  2,
	})

	cancel()
	closeExport()
	closeExport()

	js, err := jetstream.New(conn)
	require.NoError(t, err)
	kv, err := js.KeyValue(context.Background(), config.NatsSnapshotBucket)
	require.NoError(t, err)
	entry, err := kv.Get(context.Background(), "rig1")
	require.NoError(t, err)
	snap, err := model.Unmarshal(model.EncodingJSON, entry.Value())
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap[model.FieldLapNumber])
}
