// Package restclient talks to the backend REST API: group listings,
// membership, message history and file upload.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"studygroup-chat/internal/codec"
	"studygroup-chat/internal/models"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrUnauthorized is returned when the backend rejects the token.
	ErrUnauthorized = errors.New("unauthorized")
)

const defaultTimeout = 15 * time.Second

// Client calls the backend REST API with a bearer token. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	decoder *codec.Decoder
	logger  *zap.SugaredLogger
}

// New builds a Client for baseURL. A nil httpClient selects a traced
// client with a default timeout.
func New(baseURL string, httpClient *http.Client, logger *zap.SugaredLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		decoder: codec.NewDecoder(nil),
		logger:  logger.Named("restclient"),
	}
}

// ListGroups returns the groups the token's user belongs to.
func (c *Client) ListGroups(ctx context.Context, token string) ([]models.Group, error) {
	var groups []models.Group
	if err := c.getJSON(ctx, token, "/groups/my", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupMembers returns the members of groupID.
func (c *Client) GroupMembers(ctx context.Context, token, groupID string) ([]models.Member, error) {
	var members []models.Member
	path := "/groups/" + url.PathEscape(groupID) + "/members"
	if err := c.getJSON(ctx, token, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// History fetches one page of groupID's message history, normalized.
func (c *Client) History(ctx context.Context, token, groupID string, page, size int) ([]models.Message, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	body, err := c.do(ctx, token, http.MethodGet, "/chat/"+url.PathEscape(groupID)+"/messages", query, nil, "")
	if err != nil {
		return nil, err
	}
	msgs, skipped, err := c.decoder.DecodeHistory(body, groupID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", groupID, err)
	}
	if skipped > 0 {
		c.logger.Warnw("history entries skipped", "group_id", groupID, "skipped", skipped)
	}
	return msgs, nil
}

// UploadFile uploads content as a multipart file and returns where it lives.
func (c *Client) UploadFile(ctx context.Context, token, name string, content io.Reader) (models.FileMeta, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return models.FileMeta{}, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return models.FileMeta{}, err
	}
	if err := writer.Close(); err != nil {
		return models.FileMeta{}, err
	}

	body, err := c.do(ctx, token, http.MethodPost, "/files/upload", nil, buf, writer.FormDataContentType())
	if err != nil {
		return models.FileMeta{}, err
	}
	var meta models.FileMeta
	if err := json.Unmarshal(body, &meta); err != nil {
		return models.FileMeta{}, fmt.Errorf("upload response: %w", err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	return meta, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, query url.Values, dst any) error {
	body, err := c.do(ctx, token, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s %s: %w: %d", method, path, ErrUnexpectedStatus, resp.StatusCode)
	}
	return data, nil
}
