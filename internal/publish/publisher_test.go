package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezyy-cloud/newsbot/internal/backoff"
	"github.com/ezyy-cloud/newsbot/internal/geo"
	"github.com/ezyy-cloud/newsbot/internal/news"
)

type fakeAuth struct {
	tokens    []string
	refreshes atomic.Int32
}

func (a *fakeAuth) Token(ctx context.Context) (string, error) {
	return a.tokens[0], nil
}

func (a *fakeAuth) Refresh(ctx context.Context) (string, error) {
	n := int(a.refreshes.Add(1))
	if n >= len(a.tokens) {
		n = len(a.tokens) - 1
	}
	return a.tokens[n], nil
}

func newTestPublisher(t *testing.T, handler http.Handler) (*Publisher, *fakeAuth, *backoff.Controller) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	auth := &fakeAuth{tokens: []string{"token-a", "token-b"}}
	controller := backoff.New(time.Millisecond, time.Second)
	p := New(server.URL, "platform-key", "newsbot", "socket-1", auth, controller, 5*time.Second)
	return p, auth, controller
}

func imageServer(t *testing.T, status int) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprint(w, "jpeg-bytes")
		}
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func TestPublishSkipsItemWithNothingToAttach(t *testing.T) {
	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	res := p.Publish(context.Background(), news.Item{Title: "bare"}, nil, "bare")

	assert.Equal(t, StatusSkipped, res.Status)
	assert.NotEmpty(t, res.Reason)
}

func TestPublishSendsMultipartMessage(t *testing.T) {
	var gotMessage, gotUsername, gotLocation, gotAuth string
	var gotImage []byte

	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMessage = r.FormValue("message")
		gotUsername = r.FormValue("username")
		gotLocation = r.FormValue("location")
		gotAuth = r.Header.Get("Authorization")

		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		gotImage, err = io.ReadAll(file)
		require.NoError(t, err)

		fmt.Fprint(w, `{"id":"msg-1"}`)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}
	loc := &geo.Location{Name: "Queensland", Latitude: -20.92, Longitude: 142.70, Precise: false}

	res := p.Publish(context.Background(), item, loc, "story | via bbc https://example.com")

	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "msg-1", res.MessageID)
	assert.Equal(t, "story | via bbc https://example.com", gotMessage)
	assert.Equal(t, "newsbot", gotUsername)
	assert.Equal(t, "Bearer token-a", gotAuth)
	assert.Equal(t, "jpeg-bytes", string(gotImage))
	assert.JSONEq(t, `{"latitude":-20.92,"longitude":142.70,"fuzzyLocation":true}`, gotLocation)
}

func TestPublishKeepsZeroCoordinates(t *testing.T) {
	var gotLocation string
	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotLocation = r.FormValue("location")
		fmt.Fprint(w, `{"id":"msg-0"}`)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}
	// A point on the equator has a genuine zero latitude.
	loc := &geo.Location{Name: "Mbandaka", Latitude: 0, Longitude: 18.26}

	res := p.Publish(context.Background(), item, loc, "story")

	require.Equal(t, StatusSuccess, res.Status)
	assert.JSONEq(t, `{"latitude":0,"longitude":18.26,"fuzzyLocation":true}`, gotLocation)
}

func TestPublishRefreshesTokenOnceOn401(t *testing.T) {
	var bodies [][]byte
	p, auth, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		bodies = append(bodies, body)

		if r.Header.Get("Authorization") == "Bearer token-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"msg-2"}`)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}

	res := p.Publish(context.Background(), item, nil, "story")

	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, int32(1), auth.refreshes.Load())
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1], "retry resends identical payload bytes")
}

func TestPublishSecondUnauthorizedIsFatal(t *testing.T) {
	p, auth, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}

	res := p.Publish(context.Background(), item, nil, "story")

	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
	assert.Equal(t, int32(1), auth.refreshes.Load(), "refresh tried exactly once")
}

func TestPublishRateLimitedReportsRetryHint(t *testing.T) {
	p, _, controller := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}

	res := p.Publish(context.Background(), item, nil, "story")

	assert.Equal(t, StatusRateLimited, res.Status)
	assert.Equal(t, 42*time.Second, res.RetryAfter)
	assert.Positive(t, controller.CurrentDelay(), "rate limit escalates backoff")
}

func TestPublishRateLimitedDefaultsRetryHint(t *testing.T) {
	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusOK)}

	res := p.Publish(context.Background(), item, nil, "story")

	assert.Equal(t, StatusRateLimited, res.Status)
	assert.Equal(t, defaultRetryAfter, res.RetryAfter)
}

func TestPublishDeadImageDowngradesToLocationOnly(t *testing.T) {
	var sawImage bool
	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("image")
		sawImage = err == nil
		fmt.Fprint(w, `{"id":"msg-3"}`)
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusNotFound)}
	loc := &geo.Location{Name: "Nairobi", Latitude: -1.29, Longitude: 36.82}

	res := p.Publish(context.Background(), item, loc, "story")

	require.Equal(t, StatusSuccess, res.Status)
	assert.False(t, sawImage, "dead image link drops the attachment")
}

func TestPublishDeadImageWithoutLocationSkips(t *testing.T) {
	p, _, _ := newTestPublisher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no publish request expected")
	}))

	item := news.Item{Title: "story", ImageURL: imageServer(t, http.StatusNotFound)}

	res := p.Publish(context.Background(), item, nil, "story")

	assert.Equal(t, StatusSkipped, res.Status)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter("-5"))
	assert.Equal(t, 90*time.Second, parseRetryAfter("90"))
}
