package commands

import (
	"net/http"
	"time"
)

type Globals struct {
	Debug   bool
	Version string
}

// HTTPFlags bound request handling. Bulk uploads carry every CSV row in one request body.
type HTTPFlags struct {
	ReadHeaderTimeout time.Duration `help:"time allowed to read request headers" default:"1s"`
	ReadTimeout       time.Duration `help:"time allowed to read a whole request, uploads included" default:"5m"`
	IdleTimeout       time.Duration `help:"keep-alive idle timeout" default:"5m"`
	MaxBodyBytes      int64         `help:"largest accepted request body in bytes" default:"33554432"`
}

func configureHTTPServer(addr string, handler http.Handler, flags HTTPFlags) *http.Server {
	if flags.MaxBodyBytes > 0 {
		handler = http.MaxBytesHandler(handler, flags.MaxBodyBytes)
	}

	// WriteTimeout stays zero so Subscribe streams can outlive a single request window
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: flags.ReadHeaderTimeout,
		ReadTimeout:       flags.ReadTimeout,
		IdleTimeout:       flags.IdleTimeout,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
