package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Feed paths behind the gateway. Prefix routing (/lt, /cd) is opaque here.
const (
	locationsPath = "/lt/api/vehicles/latest-locations"
	detailsPath   = "/cd/api/vehicles"
	eventsPath    = "/cd/api/logs"
)

// FetchErrorKind classifies a failed fetch. Pipelines only check for the
// presence of a FetchError; the kind is for logs.
type FetchErrorKind string

const (
	NetworkFailure FetchErrorKind = "network"
	HTTPError      FetchErrorKind = "http"
	ParseFailure   FetchErrorKind = "parse"
)

// FetchError is the only failure a Fetcher hands back.
type FetchError struct {
	Feed   string
	Kind   FetchErrorKind
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s feed %s failure: %s", e.Feed, e.Kind, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result carries either a decoded feed payload or the reason it is missing.
type Result[T any] struct {
	Value T
	Err   *FetchError
}

// OK reports whether the fetch produced data.
func (r Result[T]) OK() bool { return r.Err == nil }

// Fetcher issues single GET requests against the gateway. It never retries;
// the next scheduled tick is the retry.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchJSON gets path and decodes the JSON body into T. Transport errors,
// non-2xx statuses and malformed bodies all come back as a FetchError.
func FetchJSON[T any](ctx context.Context, f *Fetcher, feed, path string) (res Result[T]) {
	fail := func(kind FetchErrorKind, err error) Result[T] {
		return Result[T]{Err: &FetchError{Feed: feed, Kind: kind, Reason: err.Error(), Err: err}}
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail(NetworkFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fail(NetworkFailure, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fail(NetworkFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fail(HTTPError, fmt.Errorf("unexpected status %s", resp.Status))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(NetworkFailure, fmt.Errorf("read body: %w", err))
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return fail(ParseFailure, fmt.Errorf("decode payload: %w", err))
	}
	return Result[T]{Value: v}
}
