package utils

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFromNatsURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"with port", "nats://localhost:4223", "localhost:4223"},
		{"default port", "nats://nats.example.com", "nats.example.com:4222"},
		{"credentials", "nats://user:pw@host:5000", "host:5000"},
		{"token", "nats://token@host", "host:4222"},
		{"server list", "nats://a:1000,nats://b:2000", "a:1000"},
		{"tls", "tls://secure:4443", "secure:4443"},
		{"invalid", "http://localhost", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFromNatsURL(tt.url))
		})
	}
}

func TestWaitForTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	assert.NoError(t, WaitForTCP(addr, time.Second))

	l.Close()
	assert.Error(t, WaitForTCP(addr, 300*time.Millisecond))
}
