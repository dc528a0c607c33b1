package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// Result is the outcome of running one frame through the pipeline.
type Result struct {
	Detections     []models.Detection `json:"detections"`
	AnnotatedFrame string             `json:"annotated_frame,omitempty"`
	HasFire        bool               `json:"has_fire"`
	HasSmoke       bool               `json:"has_smoke"`
}

// Pipeline is the opaque fire/smoke model: frame in, detections out.
// The model is expensive to load, so one instance is constructed at startup
// and shared by reference; the dispatcher never creates its own.
type Pipeline interface {
	ProcessFrame(ctx context.Context, frameData string) (*Result, error)
}

// Client calls an HTTP inference service.
type Client struct {
	url       string
	threshold float64
	http      *http.Client
}

// NewClient creates an inference client for the given base URL.
func NewClient(baseURL string, threshold float64, timeout time.Duration) *Client {
	return &Client{
		url:       baseURL,
		threshold: threshold,
		http:      &http.Client{Timeout: timeout},
	}
}

// ProcessFrame sends the base64 JPEG frame to /predict and decodes the result.
func (c *Client) ProcessFrame(ctx context.Context, frameData string) (*Result, error) {
	imageData, err := base64.StdEncoding.DecodeString(frameData)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.WriteField("confidence", strconv.FormatFloat(c.threshold, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write confidence field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status: %s, error: %s", resp.Status, bodyBytes)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
