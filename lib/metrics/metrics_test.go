// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAgainstGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TransformsStarted.WithLabelValues("//app/build").Inc()
	m.TransformsSucceeded.WithLabelValues("//app/build").Inc()
	m.CacheHits.WithLabelValues("fetch").Inc()
	m.Inflight.Set(3)

	if got := testutil.ToFloat64(m.TransformsStarted.WithLabelValues("//app/build")); got != 1 {
		t.Errorf("TransformsStarted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Inflight); got != 3 {
		t.Errorf("Inflight = %v, want 3", got)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count == 0 {
		t.Error("expected at least one sample gathered from the given registry")
	}
}

func TestNewTwiceAgainstSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected New to panic on a duplicate registration against the same registry")
		}
	}()
	New(reg)
}

func TestNewAgainstDistinctRegistriesDoesNotPanic(t *testing.T) {
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
