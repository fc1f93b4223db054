package httpserver

import (
	"net/http"
	"time"
)

const writeSlack = 30 * time.Second

// New builds the bridge's server. The write deadline is derived from the longest
// handler, a settlement that broadcasts and then assembles a proof bundle, so that
// its response is never cut off by the server.
func New(addr string, handler http.Handler, settlementTimeout time.Duration) *http.Server {
	write := settlementTimeout + writeSlack
	if write < time.Minute {
		write = time.Minute
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       2 * time.Minute,
	}
}
