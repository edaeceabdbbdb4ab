package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewValidatesInput(t *testing.T) {
	l, err := New("debug", "console")
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = New("loud", "json")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.Error(t, err)
}

func TestInitRoutesSugaredAndStdLoggers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := L()
	Init(zap.New(core))
	t.Cleanup(func() { Init(prev) })

	SW("payment_id", "p-1").Infow("confirmed")
	Std("http").Print("GET /healthz")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "confirmed", entries[0].Message)
	require.Equal(t, "p-1", entries[0].ContextMap()["payment_id"])
	require.Equal(t, "http", entries[1].LoggerName)
}
