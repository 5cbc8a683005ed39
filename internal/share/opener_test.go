package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challengePage = `<html><head><script>
	var token = 'tk-1';
	$.ajax({ type: 'post', url: '/validate', data: { 'action': 'downprocess', 'sign': token } });
</script></head><body></body></html>`

type challengeServer struct {
	*httptest.Server
	opens       atomic.Int32
	validations atomic.Int32
	referer     atomic.Value
	form        atomic.Value
}

// newChallengeServer serves a challenge page on /file until validated, then
// grants /real. alwaysChallenge keeps challenging forever.
func newChallengeServer(t *testing.T, alwaysChallenge bool) *challengeServer {
	t.Helper()
	cs := &challengeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		cs.opens.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "acw_tc", Value: "c1", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, challengePage)
	})
	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		cs.validations.Add(1)
		if c, err := r.Cookie("acw_tc"); err != nil || c.Value != "c1" {
			http.Error(w, "missing cookie", http.StatusForbidden)
			return
		}
		_ = r.ParseForm()
		cs.referer.Store(r.Header.Get("Referer"))
		cs.form.Store(r.PostForm.Encode())
		w.Header().Set("Content-Type", "application/json")
		if alwaysChallenge {
			fmt.Fprint(w, `{"zt":1,"url":"/file"}`)
			return
		}
		fmt.Fprintf(w, `{"zt":1,"dom":%q,"url":"real?k=1"}`, "http://"+r.Host)
	})
	mux.HandleFunc("/real", func(w http.ResponseWriter, r *http.Request) {
		cs.opens.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="doc.pdf"`)
		w.Header().Set("Content-Length", "7")
		fmt.Fprint(w, "PDFDATA")
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func newTestOpener(t *testing.T, opts ...Option) *Opener {
	t.Helper()
	client, err := NewHTTPClient(0)
	require.NoError(t, err)
	opts = append([]Option{WithChallengeDelay(0)}, opts...)
	return NewOpener(NewTransport(client, opts...), opts...)
}

func TestOpener_BypassesChallengeOnce(t *testing.T) {
	cs := newChallengeServer(t, false)
	opener := newTestOpener(t)

	var slept []time.Duration
	opener.opts.challengeDelay = 1500 * time.Millisecond
	opener.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	stream, err := opener.Open(context.Background(), cs.URL+"/file")
	require.NoError(t, err)
	defer stream.Body.Close()

	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "PDFDATA", string(data))
	assert.Equal(t, int64(7), stream.ContentLength())
	assert.True(t, stream.IsAttachment())
	assert.Equal(t, cs.URL+"/real?k=1", stream.URL)

	assert.Equal(t, int32(1), cs.validations.Load())
	assert.Equal(t, int32(2), cs.opens.Load())
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, slept)
	assert.Equal(t, cs.URL+"/file", cs.referer.Load())
	assert.Equal(t, "action=downprocess&sign=tk-1", cs.form.Load())
}

func TestOpener_NoChallenge(t *testing.T) {
	cs := newChallengeServer(t, false)
	opener := newTestOpener(t)

	stream, err := opener.Open(context.Background(), cs.URL+"/real")
	require.NoError(t, err)
	stream.Body.Close()

	assert.Equal(t, int32(0), cs.validations.Load())
	assert.Equal(t, int32(1), cs.opens.Load())
}

func TestOpener_HopCap(t *testing.T) {
	cs := newChallengeServer(t, true)
	opener := newTestOpener(t, WithMaxChallengeHops(3))

	_, err := opener.Open(context.Background(), cs.URL+"/file")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChallengeParse), "got %v", err)
	assert.Equal(t, int32(3), cs.validations.Load())
	assert.Equal(t, int32(4), cs.opens.Load())
}

func TestOpener_UnparseableChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Too many requests</body></html>")
	}))
	defer srv.Close()

	_, err := newTestOpener(t).Open(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrChallengeParse), "got %v", err)
}

func TestOpener_ValidationWithoutURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<form action="/v" method="post"><input name="a" value="b"></form>`)
	})
	mux.HandleFunc("/v", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"zt":0,"inf":"sign expired"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := newTestOpener(t).Open(context.Background(), srv.URL+"/file")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChallengeParse))
	assert.Contains(t, err.Error(), "sign expired")
}

func TestOpener_CancelledDuringDelay(t *testing.T) {
	cs := newChallengeServer(t, false)
	opener := newTestOpener(t, WithChallengeDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := opener.Open(ctx, cs.URL+"/file")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, int32(0), cs.validations.Load())
}

func TestTransport_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewTransport(http.DefaultClient).Open(context.Background(), srv.URL, nil)
	assert.True(t, errors.Is(err, ErrNetwork), "got %v", err)
}
