package interact

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/nlc"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/nlu"
)

// Classifier turns the text of a request into an intent request.
type Classifier interface {
	Classify(ctx context.Context, version *domain.Version, text string) (*domain.Request, error)
}

// RemoteClassifier delegates to the NLU prediction service of the version's project.
type RemoteClassifier struct {
	Client *nlu.Client
}

func (c RemoteClassifier) Classify(ctx context.Context, version *domain.Version, text string) (*domain.Request, error) {
	return c.Client.Predict(ctx, version.ProjectID, text)
}

// Matchers caches one NLC matcher per version. An entry is tied to the *domain.Version
// it was built from: when the data API hands out a reloaded version the matcher is rebuilt.
type Matchers struct {
	logger *slog.Logger
	cache  sync.Map
}

type cachedMatcher struct {
	version *domain.Version
	matcher *nlc.Matcher
}

// NewMatchers creates an empty matcher cache.
func NewMatchers(logger *slog.Logger) *Matchers {
	return &Matchers{logger: logger}
}

// For returns the matcher of version, building it on first use.
func (m *Matchers) For(version *domain.Version) *nlc.Matcher {
	if cached, ok := m.cache.Load(version.ID); ok && cached.(cachedMatcher).version == version {
		return cached.(cachedMatcher).matcher
	}
	matcher := nlc.CreateMatcher(&version.Prototype.Model, version.Prototype.Locale(), m.logger)
	m.cache.Store(version.ID, cachedMatcher{version: version, matcher: matcher})
	return matcher
}

// LocalClassifier matches text against the version's utterance samples in process.
type LocalClassifier struct {
	Matchers *Matchers
}

func (c LocalClassifier) Classify(ctx context.Context, version *domain.Version, text string) (*domain.Request, error) {
	if text == "" {
		return domain.NewIntentRequest("", domain.EmptyIntent), nil
	}
	return c.Matchers.For(version).Command(text), nil
}
