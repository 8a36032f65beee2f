// Package transfer uploads exported CSV files to the Firefly III Data
// Importer. See https://docs.firefly-iii.org/references/data-importer/post/
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antchfx/jsonquery"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/utils"
)

var (
	ErrTransfer      = errors.New("transfer failed")
	ErrNotConfigured = errors.New("firefly importer url or token not configured")
)

// Error is returned when the importer answers with a non 2xx status.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload failed. Status Code: %d Response: %s", e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error { return ErrTransfer }

// CredentialsFunc returns the importer settings at the time of the upload.
type CredentialsFunc func() settings.FireflySettings

// Notifier receives human readable progress messages.
type Notifier interface {
	Emit(message string)
}

// Client uploads files to the importer's autoupload endpoint.
type Client struct {
	credentials CredentialsFunc
	notifier    Notifier
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(credentials CredentialsFunc, notifier Notifier) *Client {
	return &Client{
		credentials: credentials,
		notifier:    notifier,
		httpClient: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: slog.With(slog.String("component", "transfer")),
	}
}

// Upload posts csvPath together with the importer configuration at
// jsonConfigPath and returns once the importer accepted both.
func (c *Client) Upload(ctx context.Context, csvPath, jsonConfigPath string) error {
	creds := c.credentials()
	if creds.URL == "" || creds.Token == "" {
		return ErrNotConfigured
	}

	body, contentType, err := multipartBody(csvPath, jsonConfigPath, creds.Secret)
	if err != nil {
		return err
	}

	targetURL := strings.TrimRight(creds.URL, "/") + "/autoupload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json")

	c.logger.Info(fmt.Sprintf("uploading %s to %s", filepath.Base(csvPath), targetURL))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(fmt.Sprintf("upload failed: %v", err))
		return fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: error while reading response: %v", ErrTransfer, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		tErr := &Error{StatusCode: resp.StatusCode, Body: utils.ShortenString(string(respBody), 500)}
		c.logger.Error(tErr.Error())
		return tErr
	}

	c.logger.Info(fmt.Sprintf("upload successful: %d", resp.StatusCode))
	c.emit(fmt.Sprintf("Successfully uploaded to Firefly Importer. Job ID: %s", jobID(respBody)))
	return nil
}

func (c *Client) emit(msg string) {
	if c.notifier != nil {
		c.notifier.Emit(msg)
	}
}

// multipartBody builds the form expected by the autoupload endpoint.
func multipartBody(csvPath, jsonConfigPath, secret string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := addFile(w, "importable", csvPath); err != nil {
		return nil, "", err
	}
	if err := addFile(w, "json_config_file", jsonConfigPath); err != nil {
		return nil, "", err
	}
	if secret != "" {
		if err := w.WriteField("secret", secret); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func addFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// jobID extracts the "id" field of a JSON response, "N/A" otherwise.
func jobID(body []byte) string {
	doc, err := jsonquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "N/A"
	}
	n := jsonquery.FindOne(doc, "id")
	if n == nil {
		return "N/A"
	}
	if v := strings.TrimSpace(n.InnerText()); v != "" {
		return v
	}
	return "N/A"
}
