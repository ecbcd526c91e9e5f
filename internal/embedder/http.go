package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	_ "golang.org/x/image/webp" // additional decoder, matching the teacher's golang.org/x/image dependency

	"github.com/kozaktomas/facerecog/internal/apierr"
)

const (
	minDimension = 200
	maxDimension = 4000

	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 10 * time.Second
)

// HTTPClient posts multipart image payloads to an external vision service
// and decodes its JSON response, mirroring the teacher's EmbeddingClient
// (postMultipartImage, url.JoinPath) but generalized to the spec's
// detect+embed contract and three detector modes. The image part is sent
// with the multipart writer's default application/octet-stream type; its
// MIME type is not sniffed.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
}

// NewHTTPClient validates baseURL and builds a client with a bounded
// per-request timeout.
func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("embedder: invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("embedder: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("embedder: base url missing host")
	}
	return &HTTPClient{
		baseURL: parsed,
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

type detectResponse struct {
	Descriptor     []float32 `json:"descriptor"`
	Box            Box       `json:"box"`
	DetectionScore float32   `json:"detectionScore"`
	HasLandmarks   bool      `json:"hasLandmarks"`
	NoFace         bool      `json:"noFace"`
}

// DetectAndEmbed validates the image's decodable dimensions, then posts it
// to the vision service's /detect endpoint.
func (c *HTTPClient) DetectAndEmbed(ctx context.Context, image []byte, mode Mode) (Result, error) {
	if err := validateDimensions(image); err != nil {
		return Result{}, err
	}

	body, contentType, err := buildMultipartBody(image, mode)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.Internal, "building detect request", err)
	}

	endpoint := c.baseURL.JoinPath("detect")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return Result{}, apierr.Wrap(apierr.Internal, "building detect request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, apierr.Wrap(apierr.Timeout, "detect request timed out", err)
		}
		return Result{}, apierr.Wrap(apierr.Internal, "detect request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, apierr.New(apierr.Internal, fmt.Sprintf("detect service returned %d", resp.StatusCode))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, apierr.Wrap(apierr.Internal, "decoding detect response", err)
	}
	if decoded.NoFace {
		return Result{}, apierr.New(apierr.NoFace, "no face detected")
	}

	return Result{
		Descriptor:     decoded.Descriptor,
		Box:            decoded.Box,
		DetectionScore: decoded.DetectionScore,
		HasLandmarks:   decoded.HasLandmarks,
	}, nil
}

// Warmup issues a body-less POST to the vision service's /warmup endpoint
// so model-load cost is paid at startup, not on the first request. Only a
// transport failure is reported; the response status is not checked.
func (c *HTTPClient) Warmup(ctx context.Context) error {
	endpoint := c.baseURL.JoinPath("warmup")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "building warmup request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "warmup request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
	return nil
}

func validateDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return apierr.Wrap(apierr.InvalidImage, "undecodable image", err)
	}
	if cfg.Width < minDimension || cfg.Height < minDimension ||
		cfg.Width > maxDimension || cfg.Height > maxDimension {
		return apierr.New(apierr.InvalidImage, fmt.Sprintf(
			"image dimensions %dx%d out of bounds [%d,%d]", cfg.Width, cfg.Height, minDimension, maxDimension))
	}
	return nil
}

func buildMultipartBody(image []byte, mode Mode) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "image")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("mode", string(mode)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
