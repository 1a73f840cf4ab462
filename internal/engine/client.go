package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsbohara/mlx-stt-server/internal/audio"
)

// Client talks to the local inference runner over HTTP. Audio is submitted
// as a WAV attachment in a multipart form; the runner responds with JSON.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // bounds concurrent runner requests

	// Optional serialization gate for non-reentrant model backends
	gate sync.Locker

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains inference runner client configuration
type Config struct {
	Endpoint      string
	Model         string
	SampleRate    int
	Timeout       time.Duration
	MaxConcurrent int
	Serialize     bool            // true when the runner cannot handle parallel calls
	Metrics       MetricsRecorder // optional, nil disables recording
}

// MetricsRecorder receives the outcome of every runner call
type MetricsRecorder interface {
	RecordEngineRequest(durationSeconds float64)
	RecordEngineFailure()
}

// ClientStats represents engine client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// noopLocker is used when call serialization is disabled
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// NewClient creates a new inference runner client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var gate sync.Locker = noopLocker{}
	if config.Serialize {
		gate = &sync.Mutex{}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		gate:       gate,
	}, nil
}

// Transcribe submits samples to the runner and returns the transcript.
// Failures are not retried: on the streaming path the buffered audio is
// stale by the time a retry would land, and duplicate partials are worse
// than a terminated session.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrEngine, ctx.Err())
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	startTime := time.Now()
	c.incrementTotalRequests()

	result, err := c.doRequest(ctx, samples, sampleRate, opts)
	if err != nil {
		c.incrementFailedRequests()
		if c.config.Metrics != nil {
			c.config.Metrics.RecordEngineFailure()
		}
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))
	if c.config.Metrics != nil {
		c.config.Metrics.RecordEngineRequest(time.Since(startTime).Seconds())
	}

	return result, nil
}

// SampleRate returns the sample rate the runner model expects
func (c *Client) SampleRate() int {
	return c.config.SampleRate
}

// Ping checks whether the runner is reachable and its model is loaded
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runner unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runner unhealthy: HTTP %d", resp.StatusCode)
	}

	return nil
}

// doRequest performs a single HTTP request to the inference runner
func (c *Client) doRequest(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error) {
	body, contentType, err := c.createMultipartRequest(samples, sampleRate, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+"/transcribe", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "mlx-stt-server/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &result, nil
}

// createMultipartRequest builds the multipart/form-data body for one call
func (c *Client) createMultipartRequest(samples []float32, sampleRate int, opts Options) (io.Reader, string, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode audio: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	requestID := uuid.NewString()
	fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = c.config.Model
	}

	fields := map[string]string{
		"request_id":  requestID,
		"model":       model,
		"sample_rate": fmt.Sprintf("%d", sampleRate),
	}

	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Temperature > 0 {
		fields["temperature"] = fmt.Sprintf("%.2f", opts.Temperature)
	}
	if opts.WordTimestamps {
		fields["word_timestamps"] = "true"
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
