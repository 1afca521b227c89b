package complianceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/resilience"
)

const (
	opUpload        = "document.upload"
	opStatus        = "document.status"
	opStartAnalysis = "analysis.start"
	opReport        = "analysis.report"
	opOutcomes      = "analysis.outcomes"
)

type Config struct {
	BaseURL       string
	DocumentsPath string
	AnalysisPath  string
	Timeout       time.Duration
}

// CallObserver receives one observation per HTTP attempt.
type CallObserver interface {
	ObserveBackendCall(operation string, duration time.Duration, err error)
}

// Client talks to the remote compliance pipeline over HTTP.
type Client struct {
	baseURL       string
	documentsPath string
	analysisPath  string
	httpClient    *http.Client
	executor      *resilience.Executor
	observer      CallObserver
	logger        *slog.Logger
}

func New(cfg Config, executor *resilience.Executor, observer CallObserver, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		documentsPath: normalizePath(cfg.DocumentsPath, "/api/moe/documents"),
		analysisPath:  normalizePath(cfg.AnalysisPath, "/api/analysis"),
		httpClient:    &http.Client{Timeout: timeout},
		executor:      executor,
		observer:      observer,
		logger:        logger,
	}
}

func (c *Client) UploadDocument(ctx context.Context, filename string, body io.Reader) (*domain.UploadReceipt, error) {
	var payload bytes.Buffer
	writer := multipart.NewWriter(&payload)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("copy upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var receipt domain.UploadReceipt
	err = c.executor.Execute(ctx, opUpload, func(ctx context.Context) error {
		return c.do(ctx, opUpload, http.MethodPost, c.documentsPath, nil, writer.FormDataContentType(), payload.Bytes(), &receipt)
	}, resilience.NoRetry(classifyBackendError))
	if err != nil {
		return nil, wrapBackendError(opUpload, err)
	}
	return &receipt, nil
}

func (c *Client) GetDocumentStatus(ctx context.Context, documentID string) (*domain.DocumentStatus, error) {
	path := c.documentsPath + "/" + url.PathEscape(documentID) + "/status"

	var status domain.DocumentStatus
	err := c.executor.Execute(ctx, opStatus, func(ctx context.Context) error {
		return c.do(ctx, opStatus, http.MethodGet, path, nil, "", nil, &status)
	}, classifyBackendError)
	if err != nil {
		return nil, wrapBackendError(opStatus, err)
	}
	return &status, nil
}

func (c *Client) StartAnalysis(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisStart, error) {
	query := url.Values{}
	query.Set("moeId", req.DocumentID)
	if req.RegulationID != "" {
		query.Set("regulationId", req.RegulationID)
	}

	var (
		body        []byte
		contentType string
	)
	if req.RegulationVersion != "" {
		encoded, err := json.Marshal(map[string]string{"regulationVersion": req.RegulationVersion})
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", opStartAnalysis, err)
		}
		body = encoded
		contentType = "application/json"
	}

	var started domain.AnalysisStart
	err := c.executor.Execute(ctx, opStartAnalysis, func(ctx context.Context) error {
		return c.do(ctx, opStartAnalysis, http.MethodPost, c.analysisPath, query, contentType, body, &started)
	}, resilience.NoRetry(classifyBackendError))
	if err != nil {
		return nil, wrapBackendError(opStartAnalysis, err)
	}
	return &started, nil
}

func (c *Client) GetAnalysisReport(ctx context.Context, analysisID string) (*domain.AnalysisReport, error) {
	path := c.analysisPath + "/" + url.PathEscape(analysisID)

	var report domain.AnalysisReport
	err := c.executor.Execute(ctx, opReport, func(ctx context.Context) error {
		report = domain.AnalysisReport{}
		return c.do(ctx, opReport, http.MethodGet, path, nil, "", nil, &report)
	}, classifyBackendError)
	if err != nil {
		return nil, wrapBackendError(opReport, err)
	}
	return &report, nil
}

func (c *Client) ListOutcomes(ctx context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
	path := c.analysisPath + "/" + url.PathEscape(q.AnalysisID) + "/outcomes"
	query := url.Values{}
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("size", strconv.Itoa(q.Size))
	query.Set("sort", "requirementId")
	if q.Status != "" {
		query.Set("complianceStatus", string(q.Status))
	}
	if q.FindingLevel != "" {
		query.Set("findingLevel", q.FindingLevel)
	}

	var page domain.Page[domain.RawOutcome]
	err := c.executor.Execute(ctx, opOutcomes, func(ctx context.Context) error {
		page = domain.Page[domain.RawOutcome]{}
		return c.do(ctx, opOutcomes, http.MethodGet, path, query, "", nil, &page)
	}, classifyBackendError)
	if err != nil {
		return nil, wrapBackendError(opOutcomes, err)
	}
	if page.Content == nil {
		page.Content = []domain.RawOutcome{}
	}
	return &page, nil
}

func normalizePath(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}
