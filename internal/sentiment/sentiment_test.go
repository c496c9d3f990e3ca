package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

func newTestLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.DebugLevel, Output: io.Discard})
}

type stubClassifier struct {
	scores []LabelScore
	err    error
	calls  atomic.Int32
}

func (s *stubClassifier) Classify(context.Context, string) ([]LabelScore, error) {
	s.calls.Add(1)
	return s.scores, s.err
}

type fallbackCounter struct{ n atomic.Int32 }

func (f *fallbackCounter) SentimentFallback() { f.n.Add(1) }

func TestSummarize(t *testing.T) {
	testCases := []struct {
		name      string
		scores    []LabelScore
		wantLabel string
		wantConf  float64
		wantErr   bool
	}{
		{
			name: "highest score wins",
			scores: []LabelScore{
				{Label: "LABEL_0", Score: 0.1},
				{Label: "LABEL_2", Score: 0.7},
				{Label: "LABEL_1", Score: 0.2},
			},
			wantLabel: "LABEL_2",
			wantConf:  0.7,
		},
		{
			name: "tie goes to first occurrence",
			scores: []LabelScore{
				{Label: "POSITIVE", Score: 0.4},
				{Label: "NEGATIVE", Score: 0.4},
				{Label: "NEUTRAL", Score: 0.2},
			},
			wantLabel: "POSITIVE",
			wantConf:  0.4,
		},
		{
			name:      "single label",
			scores:    []LabelScore{{Label: "joy", Score: 0.99}},
			wantLabel: "joy",
			wantConf:  0.99,
		},
		{
			name:    "empty result",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Summarize(tc.scores)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrClassificationUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLabel, got.DominantLabel)
			assert.InDelta(t, tc.wantConf, got.Confidence, 1e-9)
			assert.Len(t, got.Distribution, len(tc.scores))
			assert.Equal(t, tc.scores, got.Scores)
		})
	}
}

func TestNeutralSummary(t *testing.T) {
	s := NeutralSummary()
	assert.Equal(t, "NEUTRAL", s.DominantLabel)
	assert.Equal(t, 1.0, s.Confidence)
	assert.Equal(t, map[string]float64{"NEUTRAL": 1.0}, s.Distribution)
}

func TestAnalyzerFallsBackToNeutral(t *testing.T) {
	testCases := map[string]Classifier{
		"classifier error": &stubClassifier{err: errors.New("boom")},
		"empty scores":     &stubClassifier{scores: []LabelScore{}},
		"no classifier":    nil,
	}

	for name, classifier := range testCases {
		t.Run(name, func(t *testing.T) {
			counter := &fallbackCounter{}
			a := NewAnalyzer(AnalyzerConfig{Classifier: classifier, Recorder: counter, Logger: newTestLogger()})

			assert.Equal(t, NeutralSummary(), a.Analyze(context.Background(), "hello"))
			assert.Equal(t, int32(1), counter.n.Load())
		})
	}
}

func TestAnalyzerSuccess(t *testing.T) {
	classifier := &stubClassifier{scores: []LabelScore{{Label: "LABEL_1", Score: 0.6}, {Label: "LABEL_2", Score: 0.4}}}
	a := NewAnalyzer(AnalyzerConfig{Classifier: classifier, Logger: newTestLogger()})

	got := a.Analyze(context.Background(), "fine thanks")
	assert.Equal(t, "LABEL_1", got.DominantLabel)
	assert.InDelta(t, 0.6, got.Confidence, 1e-9)
}

func TestAnalyzerBreakerSkipsClassifier(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("down")}
	cb := breaker.New(breaker.Config{Name: "sentiment", MaxFailures: 1, Timeout: time.Hour})
	a := NewAnalyzer(AnalyzerConfig{Classifier: classifier, Breaker: cb, Logger: newTestLogger()})

	a.Analyze(context.Background(), "one")
	got := a.Analyze(context.Background(), "two")

	assert.Equal(t, NeutralSummary(), got)
	assert.Equal(t, int32(1), classifier.calls.Load())
	assert.Equal(t, "open", cb.State())
}

func TestHuggingFaceClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/cardiffnlp/twitter-roberta-base-sentiment", r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I had a great day", body["inputs"])

		_, _ = w.Write([]byte(`[[{"label":"LABEL_2","score":0.93},{"label":"LABEL_1","score":0.05},{"label":"LABEL_0","score":0.02}]]`))
	}))
	defer srv.Close()

	c := NewHuggingFaceClassifier(HuggingFaceConfig{Token: "hf-token", BaseURL: srv.URL + "/models/"})
	scores, err := c.Classify(context.Background(), "I had a great day")
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, LabelScore{Label: "LABEL_2", Score: 0.93}, scores[0])
}

func TestHuggingFaceClassifierErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "model loading", status: http.StatusServiceUnavailable, body: `{"error":"Model is currently loading"}`},
		{name: "malformed body", status: http.StatusOK, body: `{"oops":true}`},
		{name: "no rows", status: http.StatusOK, body: `[]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewHuggingFaceClassifier(HuggingFaceConfig{BaseURL: srv.URL})
			_, err := c.Classify(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

func TestClaudeClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5",
			"content":[{"type":"text","text":"Here you go: [{\"label\":\"negative\",\"score\":0.8},{\"label\":\"NEUTRAL\",\"score\":0.2}]"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":20}}`))
	}))
	defer srv.Close()

	c, err := NewClaudeClassifier("key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	scores, err := c.Classify(context.Background(), "this is awful")
	require.NoError(t, err)
	assert.Equal(t, []LabelScore{{Label: "NEGATIVE", Score: 0.8}, {Label: "NEUTRAL", Score: 0.2}}, scores)

	_, err = NewClaudeClassifier("", "")
	assert.Error(t, err)
}

func TestParseScores(t *testing.T) {
	_, err := parseScores("I cannot tell")
	assert.Error(t, err)
	_, err = parseScores("[not json]")
	assert.Error(t, err)

	scores, err := parseScores(`[{"label":" positive ","score":1}]`)
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", scores[0].Label)
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{Backend: "huggingface"})
	require.NoError(t, err)
	assert.IsType(t, &HuggingFaceClassifier{}, c)

	c, err = NewClassifier(ClassifierConfig{Backend: "anthropic", AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClassifier{}, c)

	c, err = NewClassifier(ClassifierConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewClassifier(ClassifierConfig{Backend: "vader"})
	assert.Error(t, err)
}
