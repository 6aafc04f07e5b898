// Package weather fetches current conditions from the OpenWeatherMap API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Report is the subset of the current-weather response the bot renders.
type Report struct {
	Place       string
	Country     string
	Temperature float64
	Description string
	Humidity    int
	WindSpeed   float64
}

// ServiceError is returned when the provider answers with a non-success code.
type ServiceError struct {
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("weather service error %s: %s", e.Code, e.Message)
}

// TransportError is returned when no usable response reached the client.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("weather service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func NewClient(apiKey, baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

type response struct {
	// cod is a number on success and a string on most errors.
	Cod     json.RawMessage `json:"cod"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Current looks up the current weather for location in metric units.
func (c *Client) Current(ctx context.Context, location string) (*Report, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)}
	}

	code := strings.Trim(string(body.Cod), `"`)
	if code != "200" {
		msg := body.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &ServiceError{Code: code, Message: msg}
	}

	report := &Report{
		Place:       body.Name,
		Country:     body.Sys.Country,
		Temperature: body.Main.Temp,
		Humidity:    body.Main.Humidity,
		WindSpeed:   body.Wind.Speed,
	}
	if len(body.Weather) > 0 {
		report.Description = body.Weather[0].Description
	}

	c.logger.Debug("Weather lookup",
		zap.String("location", location),
		zap.String("place", report.Place))

	return report, nil
}
