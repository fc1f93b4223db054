package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWriteTimeout(t *testing.T) {
	tests := []struct {
		name       string
		settlement time.Duration
		want       time.Duration
	}{
		{"follows the settlement timeout", 2 * time.Minute, 2*time.Minute + 30*time.Second},
		{"floor of one minute", 5 * time.Second, time.Minute},
		{"unset", 0, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(":8080", http.NotFoundHandler(), tt.settlement)
			assert.Equal(t, tt.want, srv.WriteTimeout)
			assert.Equal(t, ":8080", srv.Addr)
			assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
		})
	}
}
