// Package ingest pulls raw documents from the configured sources, runs them
// through preprocessing and classification and persists the results.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/wizanyx/finsent/config"
	"github.com/wizanyx/finsent/internal/classify"
	"github.com/wizanyx/finsent/internal/ingest/newsapi"
	"github.com/wizanyx/finsent/internal/ingest/reddit"
	"github.com/wizanyx/finsent/internal/pipeline"
	"github.com/wizanyx/finsent/internal/store"
	"github.com/wizanyx/finsent/internal/telemetry"
)

// Source produces raw document rows for a query. Rows use the upload shape
// (source/text/ticker/created_at/permalink) so the same preprocessing path
// serves uploads and ingestion.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string, since time.Time) ([]map[string]interface{}, error)
}

// SourceReport summarizes one source's share of a run.
type SourceReport struct {
	Source   string         `json:"source"`
	Fetched  int            `json:"fetched"`
	Ingested int            `json:"ingested"`
	Failures int            `json:"failures"`
	Dropped  map[string]int `json:"dropped,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Report is the outcome of one ingestion run.
type Report struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
	Sources   []SourceReport `json:"sources"`
}

// Service runs the fetch-preprocess-classify-store loop.
type Service struct {
	cfg     *config.Config
	sources []Source
	pipe    *pipeline.Pipeline
	clf     classify.Classifier
	st      *store.Store
	rdb     *redis.Client
	metrics *telemetry.Metrics
	logger  *log.Logger

	mu      sync.Mutex
	lastRun *time.Time
}

// New assembles the service from config. Sources without credentials are
// disabled with a warning rather than failing startup.
func New(cfg *config.Config, clf classify.Classifier, st *store.Store, rdb *redis.Client, metrics *telemetry.Metrics) (*Service, error) {
	logger := log.New(log.Writer(), "[INGEST] ", log.LstdFlags)

	pipe, err := pipeline.Default(cfg.Pipeline.MinTextLength, cfg.Pipeline.MaxTextLength)
	if err != nil {
		return nil, err
	}

	var sources []Source
	for _, name := range cfg.Sources.EnabledSources(logger) {
		switch name {
		case "news":
			sources = append(sources, newsapi.New(
				cfg.Sources.News.APIKey,
				cfg.Sources.News.Endpoint,
				cfg.Sources.News.FetchFullText,
			))
		case "reddit":
			sources = append(sources, reddit.New(
				cfg.Sources.Reddit.Endpoint,
				cfg.Sources.Reddit.UserAgent,
				cfg.Sources.Reddit.Subreddits,
			))
		}
	}

	return &Service{
		cfg:     cfg,
		sources: sources,
		pipe:    pipe,
		clf:     clf,
		st:      st,
		rdb:     rdb,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// WithSources replaces the configured sources. Used by tests and by callers
// that assemble custom fetchers.
func (s *Service) WithSources(sources ...Source) *Service {
	s.sources = sources
	return s
}

// RunOnce ingests from every source. A redis lock per source keeps
// concurrent replicas from double-ingesting; a missing redis degrades to
// unlocked operation. Per-source failures are reported, not fatal; the
// error return fires only when ctx is cancelled between sources.
func (s *Service) RunOnce(ctx context.Context, query string) (Report, error) {
	started := time.Now().UTC()
	since := started.Add(-s.cfg.Aggregation.DefaultWindow)

	report := Report{StartedAt: started}
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started).String()
			return report, err
		}
		report.Sources = append(report.Sources, s.runSource(ctx, src, query, since))
	}
	report.Duration = time.Since(started).String()

	s.mu.Lock()
	s.lastRun = &started
	s.mu.Unlock()
	return report, nil
}

func (s *Service) runSource(ctx context.Context, src Source, query string, since time.Time) SourceReport {
	sr := SourceReport{Source: src.Name()}

	if s.rdb != nil {
		lockKey := "finsent:ingest:lock:" + src.Name()
		ok, err := s.rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
		if err != nil {
			s.logger.Printf("redis lock for %s unavailable, proceeding unlocked: %v", src.Name(), err)
		} else if !ok {
			sr.Error = "another replica holds the ingest lock"
			return sr
		} else {
			defer s.rdb.Del(ctx, lockKey)
		}
	}

	rows, err := src.Fetch(ctx, query, since)
	if err != nil {
		s.logger.Printf("fetch from %s failed: %v", src.Name(), err)
		sr.Error = err.Error()
		return sr
	}
	sr.Fetched = len(rows)

	res := s.pipe.ProcessRaw(rows)
	sr.Failures = len(res.Failures)
	sr.Dropped = res.Dropped
	s.metrics.DocumentsIngested.WithLabelValues(src.Name()).Add(float64(len(res.Docs)))
	s.metrics.ObserveDropped(res.Dropped)
	s.metrics.PipelineFailures.Add(float64(len(res.Failures)))

	begun := time.Now()
	preds, err := s.clf.Classify(ctx, res.Docs)
	s.metrics.ClassifyLatency.Observe(time.Since(begun).Seconds())
	if err != nil {
		s.metrics.ClassifyRequests.WithLabelValues(s.clf.Name(), "error").Inc()
		sr.Error = fmt.Sprintf("classify: %v", err)
		return sr
	}
	s.metrics.ClassifyRequests.WithLabelValues(s.clf.Name(), "ok").Inc()

	docs, err := classify.Apply(s.clf.Name(), res.Docs, preds)
	if err != nil {
		sr.Error = fmt.Sprintf("apply predictions: %v", err)
		return sr
	}

	if s.st != nil {
		if err := s.st.SaveDocuments(ctx, docs); err != nil {
			sr.Error = fmt.Sprintf("save: %v", err)
			return sr
		}
	}
	sr.Ingested = len(docs)
	s.logger.Printf("%s: fetched %d, ingested %d, failures %d", src.Name(), sr.Fetched, sr.Ingested, sr.Failures)
	return sr
}

// Start runs the poll loop until the context is cancelled, firing whenever
// the configured cron schedule is due.
func (s *Service) Start(ctx context.Context) {
	if len(s.sources) == 0 {
		s.logger.Printf("no sources enabled, poller not started")
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			last := s.lastRun
			s.mu.Unlock()
			if !isDue(s.cfg.Sources.PollCron, last) {
				continue
			}
			if _, err := s.RunOnce(ctx, ""); err != nil {
				s.logger.Printf("scheduled run failed: %v", err)
			}
		}
	}
}

// isDue determines whether the schedule should fire now given the last run.
// Supports "@daily", "@hourly" and standard cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return last == nil || now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
