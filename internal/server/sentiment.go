package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/wizanyx/finsent/config"
	"github.com/wizanyx/finsent/internal/aggregate"
	"github.com/wizanyx/finsent/internal/classify"
	"github.com/wizanyx/finsent/internal/explain"
	"github.com/wizanyx/finsent/internal/pipeline"
	"github.com/wizanyx/finsent/internal/store"
	"github.com/wizanyx/finsent/internal/telemetry"
	"github.com/wizanyx/finsent/models"
)

// SentimentHandler serves the analysis, dashboard and explanation routes.
type SentimentHandler struct {
	Pipe       *pipeline.Pipeline
	Classifier classify.Classifier
	Store      *store.Store
	Metrics    *telemetry.Metrics
	Cfg        *config.Config
	Logger     *log.Logger
}

func (h *SentimentHandler) Register(g *echo.Group) {
	g.POST("/analyze", h.analyze)
	g.GET("/sentiment", h.sentiment)
	g.GET("/sentiment/:ticker", h.sentiment)
	g.POST("/explain", h.explainText)
}

// AnalyzeRequest is a batch of raw document rows, optionally persisted.
type AnalyzeRequest struct {
	Documents []map[string]interface{} `json:"documents"`
	Persist   bool                     `json:"persist"`
}

// FailureResponse reports one rejected input row.
type FailureResponse struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// AnalyzeResponse carries the classified batch and its per-row outcomes.
type AnalyzeResponse struct {
	Documents []models.Document `json:"documents"`
	Failures  []FailureResponse `json:"failures"`
	Dropped   map[string]int    `json:"dropped"`
}

func (h *SentimentHandler) analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents required")
	}
	if max := h.Cfg.Pipeline.MaxUploadRows; len(req.Documents) > max {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			"batch exceeds the upload limit of "+strconv.Itoa(max)+" rows")
	}

	res := h.Pipe.ProcessRaw(req.Documents)
	h.Metrics.DocumentsIngested.WithLabelValues("upload").Add(float64(len(res.Docs)))
	h.Metrics.ObserveDropped(res.Dropped)
	h.Metrics.PipelineFailures.Add(float64(len(res.Failures)))

	ctx := c.Request().Context()
	started := time.Now()
	preds, err := h.Classifier.Classify(ctx, res.Docs)
	h.Metrics.ClassifyLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		h.Metrics.ClassifyRequests.WithLabelValues(h.Classifier.Name(), "error").Inc()
		h.Logger.Printf("classify batch of %d via %s failed: %v", len(res.Docs), h.Classifier.Name(), err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	h.Metrics.ClassifyRequests.WithLabelValues(h.Classifier.Name(), "ok").Inc()

	docs, err := classify.Apply(h.Classifier.Name(), res.Docs, preds)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if req.Persist {
		if h.Store == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence is not configured")
		}
		if err := h.Store.SaveDocuments(ctx, docs); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	failures := make([]FailureResponse, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, FailureResponse{Index: f.Index, Error: f.Err.Error()})
	}
	return c.JSON(http.StatusOK, AnalyzeResponse{
		Documents: docs,
		Failures:  failures,
		Dropped:   res.Dropped,
	})
}

// sentiment aggregates stored documents for one ticker, or market-wide when
// the path carries no ticker. Window and top are optional query knobs.
func (h *SentimentHandler) sentiment(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence is not configured")
	}
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))

	window := h.Cfg.Aggregation.DefaultWindow
	if raw := c.QueryParam("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "window must be a positive duration, e.g. 24h")
		}
		window = parsed
	}
	topN := h.Cfg.Aggregation.TopN
	if raw := c.QueryParam("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "top must be a positive integer")
		}
		topN = parsed
	}

	now := time.Now().UTC()
	// Limit 0: fetch the whole window, counts and score must cover every
	// document in it.
	docs, err := h.Store.ListDocuments(c.Request().Context(), ticker, now.Add(-window), 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	summary := aggregate.Summarize(docs, aggregate.Options{
		Ticker: ticker,
		Window: window,
		Now:    now,
		TopN:   topN,
	})
	return c.JSON(http.StatusOK, summary)
}

// ExplainRequest asks for highlighted spans over one text.
type ExplainRequest struct {
	Text          string   `json:"text"`
	CoalesceBelow *float64 `json:"coalesce_below"`
}

// ExplainResponse carries the span decomposition of the input text.
type ExplainResponse struct {
	Text       string              `json:"text"`
	Highlights []explain.Highlight `json:"highlights"`
}

func (h *SentimentHandler) explainText(c echo.Context) error {
	explainer, ok := h.Classifier.(classify.Explainer)
	if !ok {
		return echo.NewHTTPError(http.StatusNotImplemented,
			"the configured classifier does not expose attributions")
	}

	var req ExplainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := models.New(models.Document{Source: "explain", Text: req.Text})
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	signal, err := explainer.Attributions(c.Request().Context(), doc)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	threshold := explain.DefaultCoalesceBelow
	if req.CoalesceBelow != nil {
		threshold = *req.CoalesceBelow
	}
	highlights, err := explain.Highlights(doc.Text, signal, threshold)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ExplainResponse{Text: doc.Text, Highlights: highlights})
}
