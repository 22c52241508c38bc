package embedding

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newFaceServer(t *testing.T, resp faceResponse, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/embed/face" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart body, got %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_DetectAndEmbed(t *testing.T) {
	srv := newFaceServer(t, faceResponse{
		FacesCount: 3,
		Faces: []faceDetection{
			{FaceIndex: 0, Dim: 2, Embedding: []float32{0.1, 0.2}, BBox: []float64{10, 20, 50, 70}},
			{FaceIndex: 1, Dim: 2, Embedding: nil, BBox: []float64{60, 20, 90, 70}},
			{FaceIndex: 2, Dim: 2, Embedding: []float32{0.3, 0.4}, BBox: []float64{1, 2}},
		},
		Model: "buffalo_l",
	}, http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	faces, err := c.DetectAndEmbed(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	if err != nil {
		t.Fatalf("DetectAndEmbed failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("expected 1 usable face, got %d", len(faces))
	}
	if faces[0].Box != image.Rect(10, 20, 50, 70) {
		t.Errorf("unexpected box %v", faces[0].Box)
	}
	if len(faces[0].Embedding) != 2 {
		t.Errorf("unexpected embedding %v", faces[0].Embedding)
	}
}

func TestClient_Detect(t *testing.T) {
	srv := newFaceServer(t, faceResponse{
		FacesCount: 2,
		Faces: []faceDetection{
			{BBox: []float64{10, 20, 50, 70}},
			{BBox: []float64{60, 20, 90, 70}},
		},
	}, http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	boxes, err := c.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 2 || boxes[1] != image.Rect(60, 20, 90, 70) {
		t.Errorf("unexpected boxes %v", boxes)
	}
}

func TestClient_EmbedNoFace(t *testing.T) {
	srv := newFaceServer(t, faceResponse{FacesCount: 0}, http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	emb, ok, err := c.Embed(context.Background(), image.NewRGBA(image.Rect(0, 0, 20, 20)))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if ok || emb != nil {
		t.Errorf("expected no face, got ok=%v emb=%v", ok, emb)
	}
}

func TestClient_ServerError(t *testing.T) {
	srv := newFaceServer(t, faceResponse{}, http.StatusServiceUnavailable)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.DetectAndEmbed(context.Background(), image.NewRGBA(image.Rect(0, 0, 20, 20)))
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestClient_BoxesClampedToFrame(t *testing.T) {
	srv := newFaceServer(t, faceResponse{
		FacesCount: 3,
		Faces: []faceDetection{
			{Embedding: []float32{0.1}, BBox: []float64{-10, 80, 40, 130}},
			{Embedding: []float32{0.2}, BBox: []float64{150, 150, 200, 200}},
			{Embedding: []float32{0.3}, BBox: []float64{20, 20, 60, 60}},
		},
	}, http.StatusOK)
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))

	faces, err := c.DetectAndEmbed(context.Background(), frame)
	if err != nil {
		t.Fatalf("DetectAndEmbed failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected the box outside the frame to be dropped, got %d faces", len(faces))
	}
	if faces[0].Box != image.Rect(0, 80, 40, 100) {
		t.Errorf("expected clamped box, got %v", faces[0].Box)
	}
	if faces[1].Box != image.Rect(20, 20, 60, 60) {
		t.Errorf("unexpected box %v", faces[1].Box)
	}

	boxes, err := c.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 2 || boxes[0] != image.Rect(0, 80, 40, 100) {
		t.Errorf("unexpected boxes %v", boxes)
	}
}
