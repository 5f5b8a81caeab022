package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	replicateBaseURL       = "https://api.replicate.com"
	stableDiffusionVersion = "db21e45d3f7023abc2a46ee38a23973f6dce16bb082a930b0c49861f96d1e5bf"
	defaultPollInterval    = time.Second
)

// ErrBackgroundNotConfigured is returned when no Replicate token is set.
var ErrBackgroundNotConfigured = errors.New("REPLICATE_API_TOKEN is not configured")

// Background error kinds, reported to HTTP callers as errorType.
const (
	BackgroundInsufficientCredit = "insufficient_credit"
	BackgroundUnauthorized       = "unauthorized"
	BackgroundRateLimited        = "rate_limit"
	BackgroundNotConfigured      = "not_configured"
	BackgroundUnknown            = "unknown"
)

// BackgroundError carries the HTTP status a generation failure maps to.
type BackgroundError struct {
	Status  int
	Kind    string
	Message string
	Err     error
}

func (e *BackgroundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BackgroundError) Unwrap() error {
	return e.Err
}

// classifyBackgroundError maps any provider failure onto a BackgroundError.
func classifyBackgroundError(err error) *BackgroundError {
	var bgErr *BackgroundError
	if errors.As(err, &bgErr) {
		return bgErr
	}
	if errors.Is(err, ErrBackgroundNotConfigured) {
		return &BackgroundError{
			Status:  http.StatusBadRequest,
			Kind:    BackgroundNotConfigured,
			Message: "Replicate API token is not configured; set REPLICATE_API_TOKEN",
			Err:     err,
		}
	}
	return &BackgroundError{Status: http.StatusInternalServerError, Kind: BackgroundUnknown, Message: "failed to generate background", Err: err}
}

func backgroundErrorForStatus(status int, body string) *BackgroundError {
	bgErr := &BackgroundError{Status: http.StatusInternalServerError, Kind: BackgroundUnknown}
	switch status {
	case http.StatusPaymentRequired:
		bgErr.Status, bgErr.Kind = status, BackgroundInsufficientCredit
		bgErr.Message = "Replicate account has insufficient credit; top up at https://replicate.com/account/billing"
	case http.StatusUnauthorized:
		bgErr.Status, bgErr.Kind = status, BackgroundUnauthorized
		bgErr.Message = "Replicate API token is invalid"
	case http.StatusTooManyRequests:
		bgErr.Status, bgErr.Kind = status, BackgroundRateLimited
		bgErr.Message = "too many generation requests, try again later"
	default:
		bgErr.Message = fmt.Sprintf("replicate request failed with status %d", status)
	}
	if body = strings.TrimSpace(body); body != "" {
		bgErr.Err = errors.New(body)
	}
	return bgErr
}

// BackgroundProvider produces the URL of a freshly generated background image.
type BackgroundProvider interface {
	Generate(ctx context.Context) (string, error)
}

var landscapePrompts = []string{
	"A breathtaking view of the Grand Canyon at sunset, dramatic red and orange rock formations, vast desert landscape, cinematic lighting, 4k, highly detailed",
	"Beautiful mountain range in Colorado, snow-capped peaks, pine forests, clear blue sky, natural lighting, professional photography, 4k",
	"Serene lake in Yosemite National Park, mirror-like reflection, granite cliffs, autumn colors, golden hour, high resolution, detailed",
	"Coastal cliffs of Big Sur, California, Pacific Ocean waves crashing, dramatic clouds, sunset colors, wide angle view, 4k quality",
	"Vast prairie in Montana, rolling hills, wildflowers, dramatic sky with clouds, golden hour, cinematic composition, highly detailed",
	"Redwood forest in Northern California, towering ancient trees, dappled sunlight, misty atmosphere, nature photography, 4k resolution",
	"Desert landscape in Arizona, saguaro cacti, red rock formations, clear blue sky, warm colors, professional landscape photography",
	"Mountain lake in Wyoming, crystal clear water, surrounding peaks, alpine meadow, perfect reflection, natural beauty, high quality",
	"Coastal beach in Oregon, rocky shoreline, Pacific waves, moody sky, dramatic lighting, landscape photography, detailed",
	"Autumn forest in New England, vibrant fall colors, winding path, soft natural light, peaceful atmosphere, 4k quality",
}

// ReplicateProvider generates landscapes with Stable Diffusion on Replicate.
type ReplicateProvider struct {
	Token        string
	BaseURL      string
	Version      string
	PollInterval time.Duration
	HTTPClient   *http.Client
	pick         func(n int) int
}

func NewReplicateProvider(token string) *ReplicateProvider {
	return &ReplicateProvider{
		Token:        strings.TrimSpace(token),
		BaseURL:      replicateBaseURL,
		Version:      stableDiffusionVersion,
		PollInterval: defaultPollInterval,
		HTTPClient:   &http.Client{Timeout: 2 * time.Minute},
		pick:         rand.Intn,
	}
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt            string  `json:"prompt"`
	ImageDimensions   string  `json:"image_dimensions"`
	NumOutputs        int     `json:"num_outputs"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Scheduler         string  `json:"scheduler"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (p *ReplicateProvider) Configured() bool {
	return p != nil && p.Token != ""
}

// Generate creates a prediction, waits for it to settle and returns the first
// output URL.
func (p *ReplicateProvider) Generate(ctx context.Context) (string, error) {
	if !p.Configured() {
		return "", ErrBackgroundNotConfigured
	}
	pick := p.pick
	if pick == nil {
		pick = rand.Intn
	}
	prompt := landscapePrompts[pick(len(landscapePrompts))]
	log.Printf("generating background: %s", prompt)

	body, err := json.Marshal(predictionRequest{
		Version: p.Version,
		Input: predictionInput{
			Prompt:            prompt,
			ImageDimensions:   "768x768",
			NumOutputs:        1,
			NumInferenceSteps: 50,
			GuidanceScale:     7.5,
			Scheduler:         "K_EULER",
		},
	})
	if err != nil {
		return "", err
	}
	pred, err := p.do(ctx, http.MethodPost, strings.TrimRight(p.BaseURL, "/")+"/v1/predictions", body)
	if err != nil {
		return "", err
	}

	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	for !predictionSettled(pred.Status) {
		if pred.URLs.Get == "" {
			return "", fmt.Errorf("prediction %s has no status url", pred.ID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
		if pred, err = p.do(ctx, http.MethodGet, pred.URLs.Get, nil); err != nil {
			return "", err
		}
	}
	if pred.Status != "succeeded" {
		return "", fmt.Errorf("prediction %s %s: %s", pred.ID, pred.Status, strings.Trim(string(pred.Error), `"`))
	}
	imageURL, err := firstOutput(pred.Output)
	if err != nil {
		return "", err
	}
	log.Printf("background generated: %s", imageURL)
	return imageURL, nil
}

func (p *ReplicateProvider) do(ctx context.Context, method, endpoint string, body []byte) (*prediction, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "wait")
	}
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, backgroundErrorForStatus(resp.StatusCode, string(payload))
	}
	var pred prediction
	if err := json.Unmarshal(payload, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &pred, nil
}

func predictionSettled(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// firstOutput accepts either a list of URLs or a single URL.
func firstOutput(raw json.RawMessage) (string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 && list[0] != "" {
			return list[0], nil
		}
		return "", errors.New("no image URL returned from Replicate")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	return "", errors.New("no image URL returned from Replicate")
}
