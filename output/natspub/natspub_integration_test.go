//go:build integration

package natspub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/loader"
	"github.com/ukhas/habitat-sub001/message"
	"github.com/ukhas/habitat-sub001/natsclient"
	"github.com/ukhas/habitat-sub001/sink"
	"github.com/ukhas/habitat-sub001/testutil"
)

func TestIntegration_PublishThroughNATS(t *testing.T) {
	tc := natsclient.NewTestClient(t)
	received := tc.Subscribe(t, "habitat.>")

	h, err := NewOutput(loader.Dependencies{
		NATSClient: tc.Client,
		Settings:   json.RawMessage(`{"types":["LISTENER_INFO"]}`),
	})
	require.NoError(t, err)

	s, err := sink.New("habitat.sinks.NATSPublisher", sink.Queued, h, nil)
	require.NoError(t, err)
	defer s.Shutdown()

	m := testutil.SampleMessage(t, message.ListenerInfo)
	require.NoError(t, s.PushMessage(m))

	select {
	case msg := <-received:
		assert.Equal(t, "habitat.listener_info", msg.Subject)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &doc))
		assert.Equal(t, m.ID().String(), doc["id"])
	case <-time.After(5 * time.Second):
		t.Fatal("message not received from NATS")
	}
}

func TestIntegration_PublishThroughJetStream(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())

	h, err := NewOutput(loader.Dependencies{
		NATSClient: tc.Client,
		Settings:   json.RawMessage(`{"stream":"HABITAT"}`),
	})
	require.NoError(t, err)

	s, err := sink.New("habitat.sinks.NATSPublisher", sink.Queued, h, nil)
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, s.PushMessage(testutil.SampleMessage(t, message.Telem)))
	s.Flush()
	assert.Equal(t, uint64(0), s.Stats().Failed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	js, err := tc.Client.JetStream()
	require.NoError(t, err)
	stream, err := js.Stream(ctx, "HABITAT")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}
