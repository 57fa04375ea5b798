// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package emailcheck

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/kv"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// # Tuning

const (
	// DefaultFreshness is how long a fetched list is trusted.
	DefaultFreshness = 24 * time.Hour

	// snapshotKey is the well-known key of the persisted copy.
	snapshotKey = "disposable_domains"

	// snapshotRetention multiplies the freshness window for the store TTL so a
	// stale copy outlives remote outages.
	snapshotRetention = 7

	// failureBackoff delays the next remote attempt after a failed fetch.
	failureBackoff = 5 * time.Minute

	// maxListBytes bounds the remote download.
	maxListBytes = 8 << 20
)

// domainLineRegex is the accepted shape of one blocklist entry.
var domainLineRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// ErrEmptyList is returned when a fetched list yields no valid domains.
var ErrEmptyList = errors.New("emailcheck: blocklist contained no valid domains")

// # Sources

// Source identifies where the active set came from.
type Source string

const (
	SourceNone    Source = ""
	SourceRemote  Source = "remote"
	SourceStore   Source = "store"
	SourceMemory  Source = "memory"
	SourceBuiltin Source = "builtin"
)

// RefreshOutcome describes one refresh attempt.
type RefreshOutcome struct {
	// Source is where the active set now comes from.
	Source Source
	Size   int
	// Err is the absorbed failure, if the remote fetch did not succeed.
	Err error
}

// Degraded reports whether the remote fetch failed and a fallback is active.
func (outcome RefreshOutcome) Degraded() bool {
	return outcome.Err != nil
}

// # Fetching

// Fetcher retrieves the raw newline-delimited remote list.
type Fetcher interface {
	Fetch(context context.Context) (io.ReadCloser, error)
}

// HTTPFetcher downloads the list over HTTP GET.
type HTTPFetcher struct {
	client *http.Client
	url    string
}

// NewHTTPFetcher creates a fetcher for url with the given timeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, url: url}
}

// Fetch implements [Fetcher].
func (fetcher *HTTPFetcher) Fetch(context context.Context) (io.ReadCloser, error) {
	request, err := http.NewRequestWithContext(context, http.MethodGet, fetcher.url, nil)
	if err != nil {
		return nil, fmt.Errorf("blocklist_request_build_failed: %w", err)
	}
	request.Header.Set("Accept", "text/plain")

	response, err := fetcher.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("blocklist_fetch_failed: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, fmt.Errorf("blocklist_fetch_failed: unexpected status %d", response.StatusCode)
	}

	return response.Body, nil
}

// ParseList reads a newline-delimited domain list, dropping comments, blank
// lines and anything that does not look like a domain.
func ParseList(reader io.Reader) (map[string]struct{}, error) {
	domains := make(map[string]struct{})

	scanner := bufio.NewScanner(io.LimitReader(reader, maxListBytes))
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if domainLineRegex.MatchString(line) {
			domains[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("blocklist_parse_failed: %w", err)
	}

	if len(domains) == 0 {
		return nil, ErrEmptyList
	}
	return domains, nil
}

// # Cache

// snapshot is the persisted form of the list.
type snapshot struct {
	FetchedAt time.Time `json:"fetched_at"`
	Domains   []string  `json:"domains"`
}

// Blocklist is an owned, lazily refreshed cache of disposable domains.
//
// # Fallback Order
//
// On a failed refresh the active set is, in order: the last good in-memory
// set, the persisted copy (even if stale), the built-in list.
//
// # Concurrency
//
// Safe for concurrent use. Concurrent misses share one refresh.
type Blocklist struct {
	fetcher   Fetcher
	store     kv.Store
	freshness time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time

	refreshMu sync.Mutex

	mu        sync.RWMutex
	domains   map[string]struct{}
	source    Source
	fetchedAt time.Time
	retryAt   time.Time
}

// NewBlocklist creates an empty cache. Nothing is fetched until first use.
func NewBlocklist(fetcher Fetcher, store kv.Store, freshness time.Duration, metrics *metrics.Metrics) *Blocklist {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return &Blocklist{fetcher: fetcher, store: store, freshness: freshness, metrics: metrics, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (blocklist *Blocklist) WithClock(now func() time.Time) *Blocklist {
	blocklist.now = now
	return blocklist
}

// Contains reports whether domain is listed, refreshing the cache first if
// needed. The refresh ignores the caller's cancellation.
func (blocklist *Blocklist) Contains(context context.Context, domain string) bool {
	if blocklist.needsRefresh() {
		blocklist.Refresh(detach(context))
	}

	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()
	_, listed := blocklist.domains[strings.ToLower(domain)]
	return listed
}

// Source returns where the active set came from.
func (blocklist *Blocklist) Source() Source {
	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()
	return blocklist.source
}

// Size returns the number of active domains.
func (blocklist *Blocklist) Size() int {
	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()
	return len(blocklist.domains)
}

/*
Refresh brings the cache up to date. It never returns an error: failures are
absorbed into the fallback chain and reported through the outcome.
*/
func (blocklist *Blocklist) Refresh(context context.Context) RefreshOutcome {
	blocklist.refreshMu.Lock()
	defer blocklist.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	if !blocklist.needsRefresh() {
		return blocklist.current(nil)
	}

	logger := ctxutil.GetLogger(context)
	now := blocklist.now()

	// 1. A fresh persisted copy avoids the network (cold start, or another
	// instance refreshed first)
	persisted, persistedErr := blocklist.loadSnapshot(context)
	if persistedErr == nil && now.Sub(persisted.FetchedAt) < blocklist.freshness {
		blocklist.install(snapshotSet(persisted), SourceStore, persisted.FetchedAt, time.Time{})
		blocklist.metrics.BlocklistRefreshed(string(SourceStore), len(persisted.Domains))
		return blocklist.current(nil)
	}

	// 2. Remote fetch
	domains, fetchErr := blocklist.fetch(context)
	if fetchErr == nil {
		blocklist.install(domains, SourceRemote, now, time.Time{})
		blocklist.persist(context, domains, now)
		blocklist.metrics.BlocklistRefreshed(string(SourceRemote), len(domains))
		logger.InfoContext(context, "blocklist_refreshed", slog.Int("domains", len(domains)))
		return blocklist.current(nil)
	}

	logger.WarnContext(context, "blocklist_refresh_failed_using_fallback", slog.Any("error", fetchErr))
	retryAt := now.Add(failureBackoff)

	// 3. Fallback: last good in-memory set. The built-in list is only a
	// placeholder, so a persisted copy replaces it
	if !blocklist.isEmpty() && (blocklist.Source() != SourceBuiltin || persistedErr != nil) {
		blocklist.mu.Lock()
		blocklist.retryAt = retryAt
		if blocklist.source == SourceRemote {
			blocklist.source = SourceMemory
		}
		blocklist.mu.Unlock()
		blocklist.metrics.BlocklistRefreshed(string(SourceMemory), blocklist.Size())
		return blocklist.current(fetchErr)
	}

	// 4. Fallback: persisted copy, even if stale
	if persistedErr == nil {
		blocklist.install(snapshotSet(persisted), SourceStore, persisted.FetchedAt, retryAt)
		blocklist.metrics.BlocklistRefreshed(string(SourceStore), len(persisted.Domains))
		return blocklist.current(fetchErr)
	}

	// 5. Fallback: built-in list
	builtin := make(map[string]struct{}, len(builtinDisposable))
	for _, domain := range builtinDisposable {
		builtin[domain] = struct{}{}
	}
	blocklist.install(builtin, SourceBuiltin, time.Time{}, retryAt)
	blocklist.metrics.BlocklistRefreshed(string(SourceBuiltin), len(builtin))
	return blocklist.current(fetchErr)
}

// # Internals

// needsRefresh is true when the set is missing, or stale and not backing off.
func (blocklist *Blocklist) needsRefresh() bool {
	now := blocklist.now()

	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()

	if blocklist.domains == nil {
		return true
	}
	if now.Before(blocklist.retryAt) {
		return false
	}
	return now.Sub(blocklist.fetchedAt) >= blocklist.freshness
}

// detach keeps request values such as the logger but drops cancellation.
func detach(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

func (blocklist *Blocklist) isEmpty() bool {
	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()
	return len(blocklist.domains) == 0
}

func (blocklist *Blocklist) install(domains map[string]struct{}, source Source, fetchedAt, retryAt time.Time) {
	blocklist.mu.Lock()
	defer blocklist.mu.Unlock()

	blocklist.domains = domains
	blocklist.source = source
	blocklist.fetchedAt = fetchedAt
	blocklist.retryAt = retryAt
}

func (blocklist *Blocklist) current(err error) RefreshOutcome {
	blocklist.mu.RLock()
	defer blocklist.mu.RUnlock()
	return RefreshOutcome{Source: blocklist.source, Size: len(blocklist.domains), Err: err}
}

func (blocklist *Blocklist) fetch(context context.Context) (map[string]struct{}, error) {
	if blocklist.fetcher == nil {
		return nil, errors.New("blocklist_fetcher_not_configured")
	}

	body, err := blocklist.fetcher.Fetch(context)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return ParseList(body)
}

// persist writes a zstd-compressed JSON snapshot. Failures only cost freshness
// for other instances, so they are logged and ignored.
func (blocklist *Blocklist) persist(context context.Context, domains map[string]struct{}, fetchedAt time.Time) {
	if blocklist.store == nil {
		return
	}

	list := make([]string, 0, len(domains))
	for domain := range domains {
		list = append(list, domain)
	}

	payload, err := encodeSnapshot(snapshot{FetchedAt: fetchedAt, Domains: list})
	if err == nil {
		err = blocklist.store.Put(context, snapshotKey, payload, blocklist.freshness*snapshotRetention)
	}
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "blocklist_persist_failed", slog.Any("error", err))
	}
}

func (blocklist *Blocklist) loadSnapshot(context context.Context) (snapshot, error) {
	if blocklist.store == nil {
		return snapshot{}, kv.ErrNotFound
	}

	raw, err := blocklist.store.Get(context, snapshotKey)
	if err != nil {
		return snapshot{}, err
	}

	persisted, err := decodeSnapshot(raw)
	if err != nil {
		return snapshot{}, err
	}
	if len(persisted.Domains) == 0 {
		return snapshot{}, ErrEmptyList
	}
	return persisted, nil
}

func snapshotSet(persisted snapshot) map[string]struct{} {
	domains := make(map[string]struct{}, len(persisted.Domains))
	for _, domain := range persisted.Domains {
		domains[domain] = struct{}{}
	}
	return domains
}

// # Snapshot Codec

func encodeSnapshot(value snapshot) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("blocklist_snapshot_encode_failed: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("blocklist_snapshot_compress_failed: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(raw, nil), nil
}

func decodeSnapshot(payload []byte) (snapshot, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("blocklist_snapshot_decompress_failed: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("blocklist_snapshot_decompress_failed: %w", err)
	}

	var value snapshot
	if err := json.Unmarshal(raw, &value); err != nil {
		return snapshot{}, fmt.Errorf("blocklist_snapshot_decode_failed: %w", err)
	}
	return value, nil
}
