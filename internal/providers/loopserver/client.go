package loopserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/media"
)

var (
	ErrSongProcessingFailed = errors.New("song processing failed")
	ErrSongLoopingFailed    = errors.New("song looping failed")
	ErrFetchFailed          = errors.New("track download failed")
)

const (
	processPath = "/upload-and-process"
	loopPath    = "/loop"
)

// Config controls the remote processing service client.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// Client implements ports.BackendClient over HTTP.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:3000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 512 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	return &Client{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("loopserver"),
	}, nil
}

type processResponse struct {
	ProcessedURL      string `json:"processed_url"`
	ProcessedFilepath string `json:"processed_filepath"`
}

type loopRequest struct {
	Filepath     string  `json:"filepath"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	LoopDuration int     `json:"loopDuration"`
}

// Process uploads the file for vocal removal.
func (c *Client) Process(ctx context.Context, file domain.AudioFile) (domain.ProcessedTrack, error) {
	body, contentType, err := buildUploadBody(file)
	if err != nil {
		return domain.ProcessedTrack{}, fmt.Errorf("%w: %v", ErrSongProcessingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(processPath), body)
	if err != nil {
		return domain.ProcessedTrack{}, fmt.Errorf("%w: create request: %v", ErrSongProcessingFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ProcessedTrack{}, fmt.Errorf("%w: %v", ErrSongProcessingFailed, err)
	}
	defer resp.Body.Close()

	payload, err := c.readBody(resp)
	if err != nil {
		return domain.ProcessedTrack{}, fmt.Errorf("%w: read response: %v", ErrSongProcessingFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ProcessedTrack{}, statusError(ErrSongProcessingFailed, resp.StatusCode, payload)
	}

	c.logger.Info("song processed",
		zap.String("file", file.Name),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("bytes", len(payload)),
	)

	if isJSON(resp.Header.Get("Content-Type")) {
		var decoded processResponse
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return domain.ProcessedTrack{}, fmt.Errorf("%w: decode response: %v", ErrSongProcessingFailed, err)
		}
		if strings.TrimSpace(decoded.ProcessedURL) == "" {
			return domain.ProcessedTrack{}, fmt.Errorf("%w: response has no processed_url", ErrSongProcessingFailed)
		}
		resolved, err := c.resolve(decoded.ProcessedURL)
		if err != nil {
			return domain.ProcessedTrack{}, fmt.Errorf("%w: %v", ErrSongProcessingFailed, err)
		}
		return domain.ProcessedTrack{Ref: decoded.ProcessedFilepath, URL: resolved}, nil
	}

	if len(payload) == 0 {
		return domain.ProcessedTrack{}, fmt.Errorf("%w: empty audio payload", ErrSongProcessingFailed)
	}
	return domain.ProcessedTrack{
		Audio: &domain.AudioPayload{MIMEType: audioType(resp.Header.Get("Content-Type"), payload), Data: payload},
	}, nil
}

// Loop asks the service to bake the region into a looped track.
func (c *Client) Loop(ctx context.Context, request domain.LoopRequest) (domain.AudioPayload, error) {
	encoded, err := json.Marshal(loopRequest{
		Filepath:     request.FileRef,
		StartTime:    request.Region.Start,
		EndTime:      request.Region.End,
		LoopDuration: request.DurationMinutes,
	})
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: marshal request: %v", ErrSongLoopingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(loopPath), bytes.NewReader(encoded))
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: create request: %v", ErrSongLoopingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: %v", ErrSongLoopingFailed, err)
	}
	defer resp.Body.Close()

	payload, err := c.readBody(resp)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: read response: %v", ErrSongLoopingFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AudioPayload{}, statusError(ErrSongLoopingFailed, resp.StatusCode, payload)
	}
	if len(payload) == 0 {
		return domain.AudioPayload{}, fmt.Errorf("%w: empty audio payload", ErrSongLoopingFailed)
	}

	c.logger.Info("song looped",
		zap.String("ref", request.FileRef),
		zap.Float64("start", request.Region.Start),
		zap.Float64("end", request.Region.End),
		zap.Int("loopDuration", request.DurationMinutes),
		zap.Duration("elapsed", time.Since(started)),
	)

	return domain.AudioPayload{MIMEType: audioType(resp.Header.Get("Content-Type"), payload), Data: payload}, nil
}

// Fetch downloads a server-hosted track.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.AudioPayload, error) {
	resolved, err := c.resolve(rawURL)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: create request: %v", ErrFetchFailed, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	payload, err := c.readBody(resp)
	if err != nil {
		return domain.AudioPayload{}, fmt.Errorf("%w: read response: %v", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AudioPayload{}, statusError(ErrFetchFailed, resp.StatusCode, payload)
	}
	return domain.AudioPayload{MIMEType: audioType(resp.Header.Get("Content-Type"), payload), Data: payload}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// resolve turns server-relative paths into absolute URLs on the backend host.
func (c *Client) resolve(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid track URL %q: %w", ref, err)
	}
	return c.base.ResolveReference(parsed).String(), nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, c.cfg.MaxResponseBytes+1)
	payload, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > c.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.cfg.MaxResponseBytes)
	}
	return payload, nil
}

func buildUploadBody(file domain.AudioFile) (io.Reader, string, error) {
	if len(file.Data) == 0 {
		return nil, "", errors.New("file is empty")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, uploadName(file.Name)))
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func uploadName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return name
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func audioType(contentType string, payload []byte) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && strings.HasPrefix(mediaType, "audio/") {
		return mediaType
	}
	if sniffed := media.Sniff(payload); sniffed != "" {
		return sniffed
	}
	return "application/octet-stream"
}

func statusError(kind error, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	if detail == "" {
		return fmt.Errorf("%w: status %d", kind, status)
	}
	return fmt.Errorf("%w: status %d: %s", kind, status, detail)
}
