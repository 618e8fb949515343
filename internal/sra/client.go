// Package sra talks to the NCBI E-utilities endpoints for the Sequence Read
// Archive and turns experiment-package documents into metadata records.
package sra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/scqc/internal/fetcher/colly"
	"github.com/JakeFAU/scqc/internal/pipeline"
)

const (
	// DefaultESearchURL is the E-utilities search endpoint.
	DefaultESearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	// DefaultEFetchURL is the E-utilities fetch endpoint.
	DefaultEFetchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
)

// ErrEmptyDocument is returned when the catalog replies with no content.
var ErrEmptyDocument = errors.New("empty document")

// Doer performs one HTTP round trip.
type Doer interface {
	Do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Waiter throttles outgoing requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config describes the catalog endpoints and NCBI identification parameters.
type Config struct {
	ESearchURL string
	EFetchURL  string
	Database   string
	APIKey     string
	Tool       string
	Email      string
}

// Client issues search and fetch calls against the catalog.
type Client struct {
	cfg     Config
	doer    Doer
	limiter Waiter
	retry   *RetryPolicy
	logger  *zap.Logger
}

// NewClient constructs a Client. A nil limiter disables throttling and a nil
// retry policy falls back to the defaults.
func NewClient(cfg Config, doer Doer, limiter Waiter, retry *RetryPolicy, logger *zap.Logger) *Client {
	if cfg.ESearchURL == "" {
		cfg.ESearchURL = DefaultESearchURL
	}
	if cfg.EFetchURL == "" {
		cfg.EFetchURL = DefaultEFetchURL
	}
	if cfg.Database == "" {
		cfg.Database = "sra"
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		doer:    doer,
		limiter: limiter,
		retry:   retry,
		logger:  logger.Named("sra"),
	}
}

type esearchReply struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs one esearch call and returns the matching UIDs in catalog order.
func (c *Client) Search(ctx context.Context, term string, maxResults int) ([]string, error) {
	params := c.baseParams()
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")
	target := c.cfg.ESearchURL + "?" + params.Encode()

	resp, err := c.do(ctx, collyfetcher.Request{Method: http.MethodGet, URL: target})
	if err != nil {
		return nil, fmt.Errorf("esearch %q: %w", term, err)
	}
	var reply esearchReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return nil, fmt.Errorf("decode esearch reply: %w", err)
	}
	c.logger.Debug("esearch complete",
		zap.String("term", term),
		zap.String("count", reply.Result.Count),
		zap.Int("returned", len(reply.Result.IDList)),
	)
	return reply.Result.IDList, nil
}

// Fetch posts one efetch call for uid and returns the raw document.
func (c *Client) Fetch(ctx context.Context, uid string) ([]byte, error) {
	params := c.baseParams()
	params.Set("id", uid)
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(ctx, collyfetcher.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.EFetchURL,
		Body:    params.Encode(),
		Headers: hdr,
	})
	if err != nil {
		return nil, fmt.Errorf("efetch %s: %w", uid, err)
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, fmt.Errorf("efetch %s: %w", uid, ErrEmptyDocument)
	}
	return resp.Body, nil
}

// FetchRecords fetches uid and parses every experiment package it contains.
func (c *Client) FetchRecords(ctx context.Context, uid string) ([]pipeline.MetadataRecord, []byte, error) {
	doc, err := c.Fetch(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	records, err := ParseExperimentPackages(doc)
	if err != nil {
		return nil, doc, fmt.Errorf("parse %s: %w", uid, err)
	}
	for i := range records {
		records[i].SourceUID = uid
	}
	return records, doc, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("db", c.cfg.Database)
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Tool != "" {
		params.Set("tool", c.cfg.Tool)
	}
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	return params
}

func (c *Client) do(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error) {
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, request.URL); err != nil {
				return collyfetcher.Response{}, err
			}
		}
		resp, err := c.doer.Do(ctx, request)
		if err == nil {
			return resp, nil
		}
		if !c.retry.ShouldRetry(err, attempt+1) {
			return collyfetcher.Response{}, err
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Warn("catalog request failed, retrying",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := sleep(ctx, wait); err != nil {
			return collyfetcher.Response{}, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
