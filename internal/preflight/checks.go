package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"briefsmith/internal/blobstore"
	"briefsmith/internal/config"
	"briefsmith/internal/services/llm"
)

const llmCheckTimeout = 30 * time.Second

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It makes exactly one request with a 30-second budget.
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	})

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (model %s)", client.Model())}
}

// CheckStorage validates the configured blob backend. The filesystem backend
// needs a writable directory; S3 needs a bucket and region.
func CheckStorage(cfg *config.Config) Result {
	const name = "Blob storage"
	switch cfg.Storage.Backend {
	case config.StorageS3:
		if strings.TrimSpace(cfg.Storage.S3Bucket) == "" {
			return Result{Name: name, Detail: "s3 bucket missing"}
		}
		if strings.TrimSpace(cfg.Storage.S3Region) == "" {
			return Result{Name: name, Detail: "s3 region missing"}
		}
		detail := "s3://" + cfg.Storage.S3Bucket
		if prefix := strings.Trim(cfg.Storage.S3Prefix, "/"); prefix != "" {
			detail += "/" + prefix
		}
		return Result{Name: name, Passed: true, Detail: detail}
	default:
		return CheckDirectoryAccess(name, cfg.Paths.BlobDir)
	}
}

// CheckBlobRoundTrip writes, reads back, and deletes a probe object.
func CheckBlobRoundTrip(ctx context.Context, store blobstore.Store) Result {
	const name = "Blob round trip"
	if store == nil {
		return Result{Name: name, Detail: "store not configured"}
	}
	key := blobstore.Key("_preflight", fmt.Sprintf("probe-%d", time.Now().UnixNano()))
	payload := []byte("ok")
	if err := store.Put(ctx, key, payload); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("put failed (%v)", err)}
	}
	defer func() { _ = store.Delete(context.WithoutCancel(ctx), key) }()
	got, err := store.Get(ctx, key)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("get failed (%v)", err)}
	}
	if string(got) != string(payload) {
		return Result{Name: name, Detail: "read back mismatched content"}
	}
	return Result{Name: name, Passed: true, Detail: "put/get/delete ok"}
}

// CheckNtfy reports whether push notifications are configured. An empty topic
// is not a failure; notifications are optional.
func CheckNtfy(cfg config.Notifications) Result {
	const name = "ntfy"
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "disabled (no topic)"}
	}
	if err := checkHTTPURL(topic); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: topic}
}

// CheckDelivery reports how prep packets will be delivered.
func CheckDelivery(cfg config.Delivery) Result {
	const name = "Packet delivery"
	hook := strings.TrimSpace(cfg.WebhookURL)
	if hook == "" {
		return Result{Name: name, Passed: true, Detail: "log only (no webhook)"}
	}
	if err := checkHTTPURL(hook); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "webhook " + redactURL(hook)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func checkHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url (%v)", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid url %q (scheme must be http or https)", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid url %q (missing host)", raw)
	}
	return nil
}

// redactURL drops user info and query strings, which often carry secrets.
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.User = nil
	parsed.RawQuery = ""
	return parsed.String()
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403:
			return "auth failed (invalid API key)"
		}
	}
	return err.Error()
}
