package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/message"
)

// SampleData returns a representative payload for each message type.
func SampleData(t message.Type) any {
	switch t {
	case message.ReceivedTelem:
		return "SSBrbm93IHdoZXJlIHlvdSBsaXZlLgo="
	case message.ListenerInfo:
		return map[string]any{
			"name":     "Habitatat",
			"location": "Cambridge",
			"radio":    "FT-790R",
			"antenna":  "Flagpole",
		}
	case message.ListenerTelem:
		return map[string]any{
			"time":      map[string]any{"hour": 12, "minute": 40, "second": 7},
			"latitude":  52.0,
			"longitude": 0.1,
			"altitude":  15.0,
		}
	case message.Telem:
		return map[string]any{
			"_protocol": "UKHAS",
			"_raw":      "SSBrbm93IHdoZXJlIHlvdSBsaXZlLgo=",
			"sentence":  "$$habitat,1,12:40:07,52.0,0.1,15*1A2B",
		}
	default:
		return nil
	}
}

// SampleListener returns a callsign listener.
func SampleListener(t testing.TB) *message.Listener {
	t.Helper()
	l, err := message.NewListener("M0ZDR", "127.0.0.1")
	require.NoError(t, err)
	return l
}

// SampleMessage returns a message of type mt from SampleListener carrying
// SampleData(mt).
func SampleMessage(t testing.TB, mt message.Type) *message.Message {
	t.Helper()
	m, err := message.New(SampleListener(t), mt, SampleData(mt))
	require.NoError(t, err)
	return m
}

// MessageWithData returns a message of type mt carrying data.
func MessageWithData(t testing.TB, mt message.Type, data any) *message.Message {
	t.Helper()
	m, err := message.New(SampleListener(t), mt, data)
	require.NoError(t, err)
	return m
}
