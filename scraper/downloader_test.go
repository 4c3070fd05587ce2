package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.xlsx":
			assert.Equal(t, "bondstats-test", r.Header.Get("User-Agent"))
			w.Write([]byte("PK-bytes"))
		case "/slow.xlsx":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("late"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDownloader(50*time.Millisecond, "bondstats-test", zerolog.Nop())
	ctx := context.Background()

	body, err := d.Fetch(ctx, srv.URL+"/ok.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "PK-bytes", string(body))

	_, err = d.Fetch(ctx, srv.URL+"/missing.xlsx")
	require.Error(t, err)
	assert.True(t, apperror.IsTransport(err))
	assert.Contains(t, err.Error(), "404")

	_, err = d.Fetch(ctx, srv.URL+"/slow.xlsx")
	require.Error(t, err)
	assert.True(t, apperror.IsTransport(err), "timeouts surface as transport failures")
}
