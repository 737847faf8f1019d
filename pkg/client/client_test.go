package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffProgression(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost"})

	require.Equal(t, time.Second, c.backoff(0))
	require.Equal(t, 2*time.Second, c.backoff(1))
	require.Equal(t, 4*time.Second, c.backoff(2))
	require.Equal(t, 16*time.Second, c.backoff(4))
	require.Equal(t, 30*time.Second, c.backoff(5), "capped")
	require.Equal(t, 30*time.Second, c.backoff(20), "stays capped")
}

func TestWSBaseURL(t *testing.T) {
	require.Equal(t, "ws://localhost:8080", wsBaseURL("http://localhost:8080"))
	require.Equal(t, "wss://api.example.com", wsBaseURL("https://api.example.com"))
	require.Equal(t, "ws://already", wsBaseURL("ws://already"))
}
