package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	httpTimeout     = 10 * time.Second
	generateTimeout = 3 * time.Minute
)

// assetClient talks to the relay's HTTP API next to the websocket.
type assetClient struct {
	baseURL string
	client  *http.Client
}

func newAssetClient(joinURL string) (*assetClient, error) {
	base, err := httpBaseFromJoinURL(joinURL)
	if err != nil {
		return nil, err
	}
	return &assetClient{baseURL: base, client: &http.Client{Timeout: httpTimeout}}, nil
}

func (a *assetClient) listMaterials() ([]MaterialEntry, error) {
	var resp materialsResponse
	if err := doJSONRequest(a.client, http.MethodGet, a.baseURL+"/api/materials", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Materials, nil
}

func (a *assetClient) uploadMaterial(path string) (*uploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("material", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/upload-material", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload failed (%d): %s", resp.StatusCode, readResponseError(resp.Body).Error)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *assetClient) deleteMaterial(filename string) error {
	return doJSONRequest(a.client, http.MethodDelete, a.baseURL+"/api/materials/"+url.PathEscape(filename), nil, nil)
}

// generateBackground returns the image URL, or a *BackgroundError carrying the
// server's errorType.
func (a *assetClient) generateBackground() (string, error) {
	client := &http.Client{Timeout: generateTimeout}
	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/api/generate-background", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		parsed := readResponseError(resp.Body)
		kind := parsed.ErrorType
		if kind == "" {
			kind = BackgroundUnknown
		}
		return "", &BackgroundError{Status: resp.StatusCode, Kind: kind, Message: parsed.Error}
	}
	var out backgroundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

// resolve maps relative material URLs onto the relay.
func (a *assetClient) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "/") {
		return a.baseURL + rawURL
	}
	return rawURL
}

// fetchImage downloads an image for export. It satisfies ImageLoader.
func (a *assetClient) fetchImage(rawURL string) ([]byte, error) {
	resp, err := a.client.Get(a.resolve(rawURL))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, DefaultMaxUpload*4))
}

// probeImageSize reads just enough of a PNG to learn its dimensions. Relative
// URLs are resolved against the relay.
func (a *assetClient) probeImageSize(rawURL string) (float64, float64, error) {
	resp, err := a.client.Get(a.resolve(rawURL))
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	cfg, _, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

func doJSONRequest(client *http.Client, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body).Error)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func readResponseError(body io.Reader) errorResponse {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return errorResponse{Error: "request failed"}
	}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed
	}
	return errorResponse{Error: strings.TrimSpace(string(data))}
}

func httpBaseFromJoinURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
