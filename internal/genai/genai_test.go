package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 5}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	// Mismatched or empty input scores zero instead of panicking.
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func testServer(t *testing.T, handler func(task string, req map[string]interface{}) interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		task, _ := req["task"].(string)
		resp := handler(task, req)
		if resp == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientGenerateText(t *testing.T) {
	srv := testServer(t, func(task string, req map[string]interface{}) interface{} {
		assert.Equal(t, "text", task)
		return map[string]string{"text": "A headline"}
	})
	c := NewClient(srv.URL)

	out, err := c.GenerateText(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "A headline", out)
}

func TestClientRetriesThenFails(t *testing.T) {
	calls := 0
	srv := testServer(t, func(task string, req map[string]interface{}) interface{} {
		calls++
		return nil // always 500
	})
	c := NewClient(srv.URL)
	c.MaxRetries = 2
	c.RetryDelay = time.Millisecond

	_, err := c.GenerateText(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrExternalAPI)
	assert.Equal(t, 3, calls)
}

func TestClientGenerateImage(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	srv := testServer(t, func(task string, req map[string]interface{}) interface{} {
		assert.Equal(t, "image", task)
		return map[string]string{"image_b64": base64.StdEncoding.EncodeToString(payload)}
	})
	c := NewClient(srv.URL)

	out, err := c.GenerateImage(context.Background(), "prompt", 512, 512)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestClientEmbed(t *testing.T) {
	srv := testServer(t, func(task string, req map[string]interface{}) interface{} {
		return map[string][]float32{"vector": {0.1, 0.2, 0.3}}
	})
	c := NewClient(srv.URL)

	vec, err := c.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	vec, err = c.EmbedImage(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestClientEmptyResponses(t *testing.T) {
	srv := testServer(t, func(task string, req map[string]interface{}) interface{} {
		return map[string]interface{}{}
	})
	c := NewClient(srv.URL)
	c.MaxRetries = 0
	c.RetryDelay = time.Millisecond

	_, err := c.GenerateText(context.Background(), "p")
	assert.Error(t, err)
	_, err = c.EmbedText(context.Background(), "p")
	assert.Error(t, err)
}
