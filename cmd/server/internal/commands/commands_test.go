package commands

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigureHTTPServer(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	flags := HTTPFlags{ReadHeaderTimeout: time.Second, ReadTimeout: time.Minute, IdleTimeout: time.Minute, MaxBodyBytes: 16}
	srv := configureHTTPServer(":0", echo, flags)

	require.Equal(t, ":0", srv.Addr)
	require.Equal(t, time.Second, srv.ReadHeaderTimeout)
	require.Zero(t, srv.WriteTimeout)

	t.Run("body within limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 16))))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("body over limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 17))))
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}
