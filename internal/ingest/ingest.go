package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/logging"
	"briefsmith/internal/services"
)

// maxBodyBytes bounds how much of a response is read before extraction.
const maxBodyBytes = 4 << 20

// Options configures fetching and chunking.
type Options struct {
	FetchTimeout      time.Duration
	MaxCharsPerSource int
	ChunkWords        int
	ChunkOverlap      int
	UserAgent         string
	Concurrency       int
}

// OptionsFromConfig converts the [ingest] section.
func OptionsFromConfig(cfg config.Ingest) Options {
	return Options{
		FetchTimeout:      time.Duration(cfg.FetchTimeout) * time.Second,
		MaxCharsPerSource: cfg.MaxCharsPerSource,
		ChunkWords:        cfg.ChunkWords,
		ChunkOverlap:      cfg.ChunkOverlap,
		UserAgent:         cfg.UserAgent,
		Concurrency:       cfg.Concurrency,
	}
}

// Request names the sources of one session.
type Request struct {
	URLs      []string
	UploadKey string
}

// Ingester fetches and chunks sources.
type Ingester struct {
	opts   Options
	client *http.Client
	blobs  blobstore.Store
	logger *slog.Logger
}

// Option customizes an Ingester.
type Option func(*Ingester)

// WithHTTPClient overrides the client used for fetching URLs.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Ingester) {
		if client != nil {
			i.client = client
		}
	}
}

// New builds an Ingester. blobs may be nil when uploads are not used.
func New(opts Options, blobs blobstore.Store, logger *slog.Logger, options ...Option) *Ingester {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ing := &Ingester{
		opts:   opts,
		client: &http.Client{},
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
	for _, option := range options {
		option(ing)
	}
	return ing
}

// FetchError reports an unsuccessful HTTP response for a source URL.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
}

// HTTPStatus exposes the response code for retry classification.
func (e *FetchError) HTTPStatus() int {
	return e.StatusCode
}

type sourceText struct {
	result brief.SourceResult
	text   string
	err    error
}

// Ingest reads every source and returns the chunked text. Failed URLs are
// reported in the result, not as an error, as long as one source succeeded.
func (i *Ingester) Ingest(ctx context.Context, req Request) (brief.IngestResult, error) {
	if len(req.URLs) == 0 && req.UploadKey == "" {
		return brief.IngestResult{}, services.Wrap(services.ErrPermanent, "ingesting", "ingest", "session has no sources", nil)
	}
	logger := logging.WithContext(ctx, i.logger)

	texts := make([]sourceText, len(req.URLs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.opts.Concurrency)
	for idx, raw := range req.URLs {
		group.Go(func() error {
			texts[idx] = i.fetchURL(groupCtx, strings.TrimSpace(raw))
			return nil
		})
	}
	_ = group.Wait()
	if req.UploadKey != "" {
		texts = append(texts, i.readUpload(ctx, req.UploadKey))
	}
	if err := ctx.Err(); err != nil {
		return brief.IngestResult{}, err
	}

	var (
		result    brief.IngestResult
		chunks    chunkSet
		transient = true
	)
	for _, src := range texts {
		if src.err != nil {
			src.result.Error = src.err.Error()
			if src.result.Kind == brief.SourceURL {
				result.FailedURLs = append(result.FailedURLs, src.result.Location)
			}
			if !services.IsTransient(src.err) {
				transient = false
			}
			logging.WarnWithContext(logger, "source failed", "source_failure",
				logging.String("source", src.result.Location),
				logging.Error(src.err),
				logging.String(logging.FieldErrorHint, "check the URL is reachable and public"),
			)
			result.Sources = append(result.Sources, src.result)
			continue
		}
		text, truncated := truncateRunes(src.text, i.opts.MaxCharsPerSource)
		src.result.CharCount = len([]rune(text))
		src.result.Truncated = truncated
		result.Sources = append(result.Sources, src.result)
		for _, body := range ChunkWords(text, i.opts.ChunkWords, i.opts.ChunkOverlap) {
			chunks.add(src.result.Location, body)
		}
	}
	result.Chunks = chunks.chunks

	if len(result.Succeeded()) == 0 {
		marker := services.ErrPermanent
		if transient {
			marker = services.ErrTransient
		}
		return result, services.Wrap(marker, "ingesting", "ingest", fmt.Sprintf("all %d sources failed", len(result.Sources)), nil)
	}
	logger.Info("sources ingested",
		logging.Int("sources", len(result.Succeeded())),
		logging.Int("failed", len(result.Sources)-len(result.Succeeded())),
		logging.Int("chunks", len(result.Chunks)),
	)
	return result, nil
}

func (i *Ingester) fetchURL(ctx context.Context, raw string) sourceText {
	out := sourceText{result: brief.SourceResult{Kind: brief.SourceURL, Location: raw}}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		out.err = fmt.Errorf("%w: invalid source url %q", services.ErrValidation, raw)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, i.opts.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		out.err = fmt.Errorf("%w: build request: %w", services.ErrValidation, err)
		return out
	}
	if i.opts.UserAgent != "" {
		req.Header.Set("User-Agent", i.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := i.client.Do(req)
	if err != nil {
		out.err = err
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			out.err = fmt.Errorf("fetch %s: %w", raw, context.DeadlineExceeded)
		}
		return out
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		out.err = &FetchError{URL: raw, StatusCode: resp.StatusCode}
		return out
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		out.err = services.Wrap(services.ErrTransient, "ingesting", "read "+raw, "", err)
		return out
	}
	text, err := documentText(resp.Header.Get("Content-Type"), body)
	if err != nil {
		out.err = fmt.Errorf("%w: parse %s: %w", services.ErrPermanent, raw, err)
		return out
	}
	if text == "" {
		out.err = fmt.Errorf("%w: %s has no readable text", services.ErrPermanent, raw)
		return out
	}
	out.text = text
	return out
}

func (i *Ingester) readUpload(ctx context.Context, key string) sourceText {
	out := sourceText{result: brief.SourceResult{Kind: brief.SourceUpload, Location: brief.SourceUpload}}
	if i.blobs == nil {
		out.err = fmt.Errorf("%w: no blob store for uploads", services.ErrConfiguration)
		return out
	}
	data, err := i.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			err = fmt.Errorf("%w: uploaded document missing: %w", services.ErrPermanent, err)
		}
		out.err = err
		return out
	}
	text, err := documentText("", data)
	if err != nil {
		out.err = fmt.Errorf("%w: parse upload: %w", services.ErrPermanent, err)
		return out
	}
	if text == "" {
		out.err = fmt.Errorf("%w: uploaded document has no readable text", services.ErrPermanent)
		return out
	}
	out.text = text
	return out
}
