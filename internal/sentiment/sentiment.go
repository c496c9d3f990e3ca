// Package sentiment scores user messages with an external classifier and reduces
// the result to a summary the prompt builder can use.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/companion_chatbot/internal/breaker"
	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// NeutralLabel is the dominant label of the fallback summary.
const NeutralLabel = "NEUTRAL"

// ErrClassificationUnavailable classifies classifier failures, including empty results.
var ErrClassificationUnavailable = errors.New("sentiment classification unavailable")

// LabelScore is one classifier output.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Summary is the normalised classifier result.
type Summary struct {
	Scores        []LabelScore       `json:"scores"`
	Distribution  map[string]float64 `json:"distribution"`
	DominantLabel string             `json:"dominant_label"`
	Confidence    float64            `json:"confidence"`
}

// NeutralSummary is returned whenever classification fails.
func NeutralSummary() Summary {
	return Summary{
		Scores:        []LabelScore{{Label: NeutralLabel, Score: 1.0}},
		Distribution:  map[string]float64{NeutralLabel: 1.0},
		DominantLabel: NeutralLabel,
		Confidence:    1.0,
	}
}

// Classifier maps text to label scores.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}

// Recorder receives fallback events for metrics.
type Recorder interface {
	SentimentFallback()
}

// Summarize reduces scores to a Summary. The highest score wins and ties go to
// the earliest entry.
func Summarize(scores []LabelScore) (Summary, error) {
	if len(scores) == 0 {
		return Summary{}, fmt.Errorf("%w: classifier returned no scores", ErrClassificationUnavailable)
	}

	summary := Summary{
		Scores:       make([]LabelScore, len(scores)),
		Distribution: make(map[string]float64, len(scores)),
	}
	copy(summary.Scores, scores)

	best := 0
	for i, s := range scores {
		summary.Distribution[s.Label] = s.Score
		if s.Score > scores[best].Score {
			best = i
		}
	}
	summary.DominantLabel = scores[best].Label
	summary.Confidence = scores[best].Score
	return summary, nil
}

// Analyzer wraps a Classifier so callers always get a usable Summary.
type Analyzer struct {
	classifier Classifier
	breaker    *breaker.CircuitBreaker
	timeout    time.Duration
	recorder   Recorder
	log        logger.Logger
}

// AnalyzerConfig configures an Analyzer. Breaker, Recorder and Timeout are optional.
type AnalyzerConfig struct {
	Classifier Classifier
	Breaker    *breaker.CircuitBreaker
	Timeout    time.Duration
	Recorder   Recorder
	Logger     logger.Logger
}

// NewAnalyzer creates an analyzer. A nil classifier always yields the neutral summary.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	return &Analyzer{
		classifier: cfg.Classifier,
		breaker:    cfg.Breaker,
		timeout:    cfg.Timeout,
		recorder:   cfg.Recorder,
		log:        cfg.Logger,
	}
}

// Analyze never fails; classifier errors produce NeutralSummary.
func (a *Analyzer) Analyze(ctx context.Context, text string) Summary {
	summary, err := a.classify(ctx, text)
	if err != nil {
		logger.GetLoggerFromContext(ctx, a.log).Warn("Sentiment unavailable, using neutral summary",
			logger.ErrorField(err))
		if a.recorder != nil {
			a.recorder.SentimentFallback()
		}
		return NeutralSummary()
	}
	return summary
}

func (a *Analyzer) classify(ctx context.Context, text string) (Summary, error) {
	if a.classifier == nil {
		return Summary{}, fmt.Errorf("%w: no classifier configured", ErrClassificationUnavailable)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var (
		scores []LabelScore
		err    error
	)
	if a.breaker != nil {
		scores, err = breaker.Execute(ctx, a.breaker, func(ctx context.Context) ([]LabelScore, error) {
			return a.classifier.Classify(ctx, text)
		})
	} else {
		scores, err = a.classifier.Classify(ctx, text)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrClassificationUnavailable, err)
	}
	return Summarize(scores)
}
