// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/198.51.100.7":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"latitude":51.5074,"longitude":-0.1278,"country":"GB","city":"London"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/geo/{ip}", time.Second)

	loc, err := p.Resolve(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.InDelta(t, 51.5074, loc.Latitude, 1e-6)
	assert.InDelta(t, -0.1278, loc.Longitude, 1e-6)
	assert.Equal(t, "GB", loc.Country)

	_, err = p.Resolve(context.Background(), "203.0.113.1")
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestHTTPProviderAppendsPathWithoutPlaceholder(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"latitude":1,"longitude":2}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/lookup", time.Second)
	_, err := p.Resolve(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, "/lookup/203.0.113.9", gotPath)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(map[string]Location{
		"203.0.113.1": {Latitude: 40.7128, Longitude: -74.0060, Country: "US"},
	})

	loc, err := p.Resolve(context.Background(), "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, "US", loc.Country)

	_, err = p.Resolve(context.Background(), "203.0.113.2")
	assert.ErrorIs(t, err, ErrNotResolved)
}
