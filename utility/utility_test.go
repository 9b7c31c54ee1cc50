package utility

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsflow/opsflow/core"
)

func TestTimeProvider(t *testing.T) {
	p := NewTimeProvider()
	p.Now = func() time.Time {
		return time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)
	}

	out, err := p.CurrentTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Current server time: Saturday, March 14, 2026 at 3:09:26 PM UTC", out)
}

func TestTimeProviderCancelledContext(t *testing.T) {
	p := NewTimeProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CurrentTime(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWeatherSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/London", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("format"))
		fmt.Fprintln(w, "London: ⛅️ +11°C")
	}))
	defer server.Close()

	p := NewWeatherProvider(WithWeatherBaseURL(server.URL))
	out, err := p.Weather(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, "Weather report: London: ⛅️ +11°C", out)
}

func TestWeatherCityWithSpaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/New York", r.URL.Path)
		fmt.Fprintln(w, "New York: sunny")
	}))
	defer server.Close()

	p := NewWeatherProvider(WithWeatherBaseURL(server.URL))
	_, err := p.Weather(context.Background(), "New York")
	require.NoError(t, err)
}

func TestWeatherUnknownLocationIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	p := NewWeatherProvider(WithWeatherBaseURL(server.URL))
	_, err := p.Weather(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTargetNotFound)
	assert.True(t, core.IsPermanent(err))
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestWeatherServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewWeatherProvider(WithWeatherBaseURL(server.URL))
	_, err := p.Weather(context.Background(), "London")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
	assert.True(t, core.IsRetryable(err))
}

func TestWeatherUnreachableService(t *testing.T) {
	p := NewWeatherProvider(
		WithWeatherBaseURL("http://127.0.0.1:1"),
		WithWeatherHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}),
	)
	_, err := p.Weather(context.Background(), "London")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
}

func TestWeatherEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "  \n")
	}))
	defer server.Close()

	p := NewWeatherProvider(WithWeatherBaseURL(server.URL))
	_, err := p.Weather(context.Background(), "London")
	assert.ErrorIs(t, err, core.ErrConnectionFailed)
}

// fakeAIClient returns a canned fact and records the prompt.
type fakeAIClient struct {
	content    string
	err        error
	lastPrompt string
}

func (f *fakeAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &core.AIResponse{Content: f.content}, nil
}

func TestFactSuccess(t *testing.T) {
	client := &fakeAIClient{content: "Octopuses have three hearts."}
	p := NewFactProvider(client, nil)

	out, err := p.Fact(context.Background(), "octopuses")
	require.NoError(t, err)
	assert.Equal(t, "Fun fact: Octopuses have three hearts.", out)
	assert.Contains(t, client.lastPrompt, "octopuses")
}

func TestFactDefaultTopic(t *testing.T) {
	client := &fakeAIClient{content: "Honey never spoils."}
	p := NewFactProvider(client, nil)

	_, err := p.Fact(context.Background(), "  ")
	require.NoError(t, err)
	assert.Contains(t, client.lastPrompt, "something interesting")
}

func TestFactNoClient(t *testing.T) {
	p := NewFactProvider(nil, nil)
	_, err := p.Fact(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPlannerUnavailable)
}

func TestFactClientError(t *testing.T) {
	cause := errors.New("rate limited")
	p := NewFactProvider(&fakeAIClient{err: cause}, nil)

	_, err := p.Fact(context.Background(), "space")
	assert.ErrorIs(t, err, cause)
}
