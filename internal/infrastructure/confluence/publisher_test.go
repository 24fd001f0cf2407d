package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
)

func newTestPublisher(t *testing.T, handler http.HandlerFunc) *Publisher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPublisher(config.ConfluenceConfig{
		BaseURL:  srv.URL + "/",
		Email:    "bot@example.com",
		APIToken: "token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishDraftWithLabels(t *testing.T) {
	t.Parallel()

	var got map[string]any
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wiki/rest/api/content", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"98765","type":"page"}`))
	})

	id, err := pub.Publish(context.Background(), domain.Page{
		Title:    "Printer toner [m1]",
		Body:     "<p>x</p>",
		SpaceKey: "KB",
		Draft:    true,
		Labels:   []string{"review-needed", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, "98765", id)

	assert.Equal(t, "page", got["type"])
	assert.Equal(t, "draft", got["status"])
	assert.Equal(t, "Printer toner [m1]", got["title"])
	assert.Equal(t, map[string]any{"key": "KB"}, got["space"])
	storage := got["body"].(map[string]any)["storage"].(map[string]any)
	assert.Equal(t, "<p>x</p>", storage["value"])
	assert.Equal(t, "storage", storage["representation"])
	labels := got["metadata"].(map[string]any)["labels"].([]any)
	require.Len(t, labels, 1)
	assert.Equal(t, "review-needed", labels[0].(map[string]any)["name"])
}

func TestPublishCurrentWithoutLabels(t *testing.T) {
	t.Parallel()

	var got map[string]any
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"1"}`))
	})

	_, err := pub.Publish(context.Background(), domain.Page{Title: "t", SpaceKey: "KB"})
	require.NoError(t, err)
	assert.Equal(t, "current", got["status"])
	assert.NotContains(t, got, "metadata")
}

func TestPublishErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		body      string
		kind      domain.PublishErrorKind
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, domain.PublishAuth, false},
		{"forbidden", http.StatusForbidden, `{}`, domain.PublishAuth, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.PublishRateLimit, true},
		{"bad request", http.StatusBadRequest, `{"message":"title exists"}`, domain.PublishMalformed, false},
		{"server error", http.StatusInternalServerError, ``, domain.PublishTransient, true},
		{"missing id", http.StatusOK, `{}`, domain.PublishMalformed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := pub.Publish(context.Background(), domain.Page{Title: "t", SpaceKey: "KB"})
			var pubErr *domain.PublishError
			require.True(t, errors.As(err, &pubErr), "got %v", err)
			assert.Equal(t, tc.kind, pubErr.Kind)
			assert.Equal(t, tc.status, pubErr.Status)
			assert.Equal(t, tc.retryable, pubErr.Retryable())
		})
	}
}

func TestPublishUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	pub := NewPublisher(config.ConfluenceConfig{BaseURL: url}, nil)
	_, err := pub.Publish(context.Background(), domain.Page{Title: "t"})
	require.ErrorIs(t, err, domain.ErrTransient)
}
