package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientPost(t *testing.T) {
	t.Run("returns the body on success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			w.Write(append([]byte("echo:"), body...))
		}))
		defer srv.Close()

		out, err := New(srv.URL, time.Second).Post(context.Background(), []byte(`{}`))
		require.NoError(t, err)
		require.Equal(t, "echo:{}", string(out))
	})

	t.Run("non-2xx is rejected with an excerpt", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model has no reservoirs", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		_, err := New(srv.URL, time.Second).Post(context.Background(), []byte(`{}`))
		require.ErrorIs(t, err, ErrRejected)

		var status *StatusError
		require.True(t, errors.As(err, &status))
		require.Equal(t, http.StatusUnprocessableEntity, status.Status)
		require.Equal(t, "model has no reservoirs", status.Excerpt)
	})

	t.Run("closed server is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url, time.Second).Post(context.Background(), nil)
		require.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("timeout is unreachable", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := New(srv.URL, 50*time.Millisecond).Post(context.Background(), nil)
		require.ErrorIs(t, err, ErrUnreachable)
	})
}

func TestExcerptIsBounded(t *testing.T) {
	long := strings.Repeat("x", excerptBytes*2)
	require.Len(t, excerpt([]byte(long)), excerptBytes+3)
}
