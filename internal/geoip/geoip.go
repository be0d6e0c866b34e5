// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package geoip resolves IP addresses to geographic coordinates for
// the geo-velocity detector.
package geoip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotResolved is returned when a provider has no location for an
// address.
var ErrNotResolved = errors.New("geoip: address not resolved")

// Location is a resolved IP geolocation.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
}

// Provider resolves addresses to locations. Implementations must be
// safe for concurrent use.
type Provider interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
}

// HTTPProvider resolves addresses against a JSON geolocation endpoint.
// The endpoint URL may contain a {ip} placeholder; otherwise the
// address is appended as a path segment.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Resolve looks up the address over HTTP.
func (p *HTTPProvider) Resolve(ctx context.Context, ip string) (*Location, error) {
	url := p.endpoint
	if strings.Contains(url, "{ip}") {
		url = strings.ReplaceAll(url, "{ip}", ip)
	} else {
		url = strings.TrimSuffix(url, "/") + "/" + ip
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build geoip request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoip request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotResolved
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geoip endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read geoip response: %w", err)
	}

	var loc Location
	if err := json.Unmarshal(body, &loc); err != nil {
		return nil, fmt.Errorf("decode geoip response: %w", err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return nil, ErrNotResolved
	}
	return &loc, nil
}

// StaticProvider resolves from a fixed table. Used in tests and
// air-gapped deployments that preload known address ranges.
type StaticProvider struct {
	locations map[string]Location
}

// NewStaticProvider creates a provider over a fixed address table.
func NewStaticProvider(locations map[string]Location) *StaticProvider {
	return &StaticProvider{locations: locations}
}

// Resolve returns the mapped location or ErrNotResolved.
func (p *StaticProvider) Resolve(ctx context.Context, ip string) (*Location, error) {
	loc, ok := p.locations[ip]
	if !ok {
		return nil, ErrNotResolved
	}
	return &loc, nil
}

// Compile-time interface assertions
var (
	_ Provider = (*HTTPProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)
