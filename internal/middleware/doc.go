// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package middleware provides HTTP middleware for the Riskgate API:
// request ID propagation, Prometheus instrumentation, and security
// headers. All middleware uses the func(http.Handler) http.Handler
// shape so it composes with chi's Use().
package middleware
