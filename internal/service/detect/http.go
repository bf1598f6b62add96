package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"expo-kiosk-service/internal/observability/metrics"
)

// HTTPConfig configures the remote inference client.
type HTTPConfig struct {
	InferenceURL   string        // base URL; frames go to /predict, health to /health
	Timeout        time.Duration // per request
	HealthInterval time.Duration
}

// HTTPDetector calls an external inference service (COCO-SSD style output)
// over HTTP. Readiness follows the service health endpoint.
type HTTPDetector struct {
	baseURL        string
	client         *http.Client
	healthInterval time.Duration
	ready          atomic.Bool
	metrics        *metrics.Metrics
}

// wireDetection is the inference service payload: bbox is [x, y, width, height].
type wireDetection struct {
	Class string     `json:"class"`
	Score float64    `json:"score"`
	BBox  [4]float64 `json:"bbox"`
}

// NewHTTPDetector creates a detector for the given inference service.
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HTTPDetector{
		baseURL:        strings.TrimRight(cfg.InferenceURL, "/"),
		client:         &http.Client{Timeout: timeout},
		healthInterval: interval,
		metrics:        metrics.DefaultMetrics,
	}
}

// Ready reports whether the last health check succeeded.
func (d *HTTPDetector) Ready() bool {
	return d.ready.Load()
}

// Detect uploads the frame and returns the decoded detections.
func (d *HTTPDetector) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	if !d.Ready() {
		return nil, ErrNotReady
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame"+extensionFor(frame.ContentType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(frame.Data)); err != nil {
		return nil, fmt.Errorf("copy frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Detections []wireDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]Detection, 0, len(result.Detections))
	for _, w := range result.Detections {
		out = append(out, Detection{
			Class: w.Class,
			Score: w.Score,
			BBox:  BoundingBox{X: w.BBox[0], Y: w.BBox[1], Width: w.BBox[2], Height: w.BBox[3]},
		})
	}
	return out, nil
}

// CheckHealth probes the inference service and updates readiness.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	err := d.checkHealth(ctx)
	was := d.ready.Swap(err == nil)
	if was != (err == nil) {
		if err == nil {
			log.Info().Str("inferenceUrl", d.baseURL).Msg("Detection model ready")
		} else {
			log.Warn().Err(err).Str("inferenceUrl", d.baseURL).Msg("Detection model unavailable")
		}
	}
	d.metrics.RecordDetectorReady(err == nil)
	return err
}

func (d *HTTPDetector) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Watch polls the health endpoint until ctx is cancelled.
func (d *HTTPDetector) Watch(ctx context.Context) {
	_ = d.CheckHealth(ctx)

	ticker := time.NewTicker(d.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = d.CheckHealth(ctx)
		}
	}
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
