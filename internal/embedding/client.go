package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/sauron/internal/constants"
	"github.com/kozaktomas/sauron/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client detects faces and computes their embeddings using the embedding server
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new embedding server client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single detected face in the server response
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postImage encodes img as JPEG, posts it as a multipart form to endpoint and returns the body.
func (c *Client) postImage(ctx context.Context, endpoint string, img image.Image) ([]byte, error) {
	var imgBuf bytes.Buffer
	if err := jpeg.Encode(&imgBuf, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imgBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (c *Client) faces(ctx context.Context, img image.Image) (*faceResponse, error) {
	body, err := c.postImage(ctx, "/embed/face", img)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// Detect returns face bounding boxes in frame coordinates, in server order.
// Boxes are clamped to the frame; boxes entirely outside it are dropped.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	resp, err := c.faces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	bounds := frame.Bounds()
	boxes := make([]image.Rectangle, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		r, ok := facematch.ToRect(f.BBox)
		if !ok {
			continue
		}
		r = facematch.ClampRect(r.Add(bounds.Min), bounds)
		if r.Empty() {
			continue
		}
		boxes = append(boxes, r)
	}
	return boxes, nil
}

// Embed computes the embedding of the first face found in crop.
// A crop without a usable face yields ok=false.
func (c *Client) Embed(ctx context.Context, crop image.Image) (Embedding, bool, error) {
	resp, err := c.faces(ctx, crop)
	if err != nil {
		return nil, false, fmt.Errorf("embed face: %w", err)
	}

	for _, f := range resp.Faces {
		if len(f.Embedding) > 0 {
			return FromFloat32(f.Embedding), true, nil
		}
	}
	return nil, false, nil
}

// DetectAndEmbed detects all faces in a frame and returns those with an embedding
// in a single round trip.
func (c *Client) DetectAndEmbed(ctx context.Context, frame image.Image) ([]Face, error) {
	resp, err := c.faces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect and embed: %w", err)
	}

	bounds := frame.Bounds()
	faces := make([]Face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		r, ok := facematch.ToRect(f.BBox)
		if !ok || len(f.Embedding) == 0 {
			continue
		}
		r = facematch.ClampRect(r.Add(bounds.Min), bounds)
		if r.Empty() {
			continue
		}
		faces = append(faces, Face{Box: r, Embedding: FromFloat32(f.Embedding)})
	}
	return faces, nil
}

var _ Provider = (*Client)(nil)
