package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceauth/internal/face"
	"github.com/your-org/faceauth/internal/recognizer"
	"github.com/your-org/faceauth/internal/storage"
	"github.com/your-org/faceauth/internal/vision"
)

// stubLocator treats a uniform image as faceless and returns anything
// textured whole as the crop.
type stubLocator struct{}

func (stubLocator) Locate(img image.Image) (*image.Gray, error) {
	g := vision.ToGray(img)
	first := g.Pix[0]
	for _, p := range g.Pix {
		if p != first {
			return g, nil
		}
	}
	return nil, vision.ErrNoFace
}

func facePayload(t *testing.T, seed int64) string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, 160, 160))
	for i := range g.Pix {
		g.Pix[i] = uint8(rng.Intn(256))
	}
	return encodePayload(t, g)
}

func blankPayload(t *testing.T) string {
	t.Helper()
	return encodePayload(t, image.NewGray(image.Rect(0, 0, 160, 160)))
}

func encodePayload(t *testing.T, g *image.Gray) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, g))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSnapshotStore(filepath.Join(dir, "registry.json"))
	require.NoError(t, err)
	blobs, err := storage.NewFSBlobStore(filepath.Join(dir, "faces"))
	require.NoError(t, err)

	svc := face.NewService(store, storage.NewTemplateStore(store, blobs), stubLocator{},
		recognizer.NewAdapter(filepath.Join(dir, "model.json")), 80.0)

	return NewRouter(RouterConfig{
		APIKey:  apiKey,
		Service: svc,
		Store:   store,
		Blobs:   blobs,
	})
}

func doJSON(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEnrollEndpoint(t *testing.T) {
	r := newTestRouter(t, "")

	w := doJSON(r, http.MethodPost, "/enroll", gin.H{
		"name": "Alice", "level": 2, "image": facePayload(t, 1),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK    bool   `json:"ok"`
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Level int    `json:"level"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "Alice", resp.Name)
	assert.Equal(t, 2, resp.Level)
}

func TestEnrollErrorMapping(t *testing.T) {
	r := newTestRouter(t, "")

	// Missing name
	w := doJSON(r, http.MethodPost, "/enroll", gin.H{"image": facePayload(t, 2)}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Undecodable payload
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{"name": "Alice", "image": "!!not-base64!!"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Decodable image with no face
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{"name": "Alice", "image": blankPayload(t)}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Duplicate email
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{
		"name": "Alice", "email": "a@example.com", "image": facePayload(t, 3),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{
		"name": "Alias", "email": "a@example.com", "image": facePayload(t, 4),
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthEndpoint(t *testing.T) {
	r := newTestRouter(t, "")

	// Before any enrollment
	w := doJSON(r, http.MethodPost, "/auth", gin.H{"image": facePayload(t, 5)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Matched    bool     `json:"matched"`
		Name       string   `json:"name"`
		Level      int      `json:"level"`
		Confidence *float64 `json:"confidence"`
		Reason     string   `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)
	assert.Equal(t, "no users enrolled", resp.Reason)

	payload := facePayload(t, 6)
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{"name": "Alice", "level": 3, "image": payload}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Same image matches, with the raw distance in the confidence field
	w = doJSON(r, http.MethodPost, "/auth", gin.H{"image": payload}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
	assert.Equal(t, "Alice", resp.Name)
	assert.Equal(t, 3, resp.Level)
	require.NotNil(t, resp.Confidence)
	assert.Less(t, *resp.Confidence, 80.0)

	// No face in frame
	w = doJSON(r, http.MethodPost, "/auth", gin.H{"image": blankPayload(t)}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)
	assert.Equal(t, "no face detected", resp.Reason)

	// Garbage payload
	w = doJSON(r, http.MethodPost, "/auth", gin.H{"image": "%%%"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpoint(t *testing.T) {
	r := newTestRouter(t, "")

	w := doJSON(r, http.MethodPost, "/enroll", gin.H{
		"name": "Alice", "email": "a@example.com", "password": "s3cret",
		"image": facePayload(t, 7),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/enroll", gin.H{
		"name": "Bob", "image": facePayload(t, 8),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name     string
		login    string
		password string
		status   int
	}{
		{"ok", "a@example.com", "s3cret", http.StatusOK},
		{"wrong password", "a@example.com", "nope", http.StatusUnauthorized},
		{"no password set", "Bob", "anything", http.StatusForbidden},
		{"unknown user", "nobody", "x", http.StatusNotFound},
		{"missing fields", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/login", gin.H{
				"login": tt.login, "password": tt.password,
			}, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t, "")

	w := doJSON(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status     string `json:"status"`
		Registered int    `json:"registered"`
		Users      int    `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Zero(t, health.Users)

	w = doJSON(r, http.MethodPost, "/enroll", gin.H{"name": "Alice", "image": facePayload(t, 9)}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, 1, health.Registered)
	assert.Equal(t, 1, health.Users)

	w = doJSON(r, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminEndpointsRequireAPIKey(t *testing.T) {
	r := newTestRouter(t, "secret-key")

	w := doJSON(r, http.MethodGet, "/v1/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/users", nil, map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Face endpoints stay open
	w = doJSON(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserAdminLifecycle(t *testing.T) {
	r := newTestRouter(t, "")

	w := doJSON(r, http.MethodPost, "/enroll", gin.H{"name": "Alice", "image": facePayload(t, 10)}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/users", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Users []struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			SampleCount int    `json:"sample_count"`
		} `json:"users"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Alice", list.Users[0].Name)
	assert.Equal(t, 1, list.Users[0].SampleCount)

	w = doJSON(r, http.MethodGet, "/v1/users/1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodGet, "/v1/users/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(r, http.MethodGet, "/v1/users/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodDelete, "/v1/users/1", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(r, http.MethodDelete, "/v1/users/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
