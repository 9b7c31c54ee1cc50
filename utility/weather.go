package utility

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opsflow/opsflow/core"
)

const defaultWeatherBaseURL = "https://wttr.in"

// WeatherProvider fetches weather summaries from a wttr.in-compatible
// service.
type WeatherProvider struct {
	baseURL string
	client  *http.Client
	logger  core.Logger
}

// WeatherOption configures a WeatherProvider.
type WeatherOption func(*WeatherProvider)

// WithWeatherBaseURL overrides the weather service endpoint.
func WithWeatherBaseURL(baseURL string) WeatherOption {
	return func(p *WeatherProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithWeatherHTTPClient overrides the HTTP client.
func WithWeatherHTTPClient(client *http.Client) WeatherOption {
	return func(p *WeatherProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithWeatherLogger sets the logger.
func WithWeatherLogger(logger core.Logger) WeatherOption {
	return func(p *WeatherProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewWeatherProvider creates a weather provider with the given options.
func NewWeatherProvider(opts ...WeatherOption) *WeatherProvider {
	p := &WeatherProvider{
		baseURL: defaultWeatherBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Weather returns a one-line weather summary for the given city.
func (p *WeatherProvider) Weather(ctx context.Context, city string) (string, error) {
	p.logger.Info("Fetching weather", map[string]interface{}{
		"operation": "weather",
		"city":      city,
	})

	endpoint := fmt.Sprintf("%s/%s?format=3", p.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building weather request: %v", core.ErrConnectionFailed, err)
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: weather service unreachable: %v", core.ErrConnectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("%w: reading weather response: %v", core.ErrConnectionFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: unknown location '%s'", core.ErrTargetNotFound, city)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: weather service returned status %d", core.ErrConnectionFailed, resp.StatusCode)
	}

	summary := strings.TrimSpace(string(body))
	if summary == "" {
		return "", fmt.Errorf("%w: empty weather response for '%s'", core.ErrConnectionFailed, city)
	}
	return fmt.Sprintf("Weather report: %s", summary), nil
}
