// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"github.com/luxfi/metric"
)

var _ Metrics = (*metricsImpl)(nil)

// Metrics counts registry operations served over RPC.
type Metrics interface {
	IncProfileWrites()
	IncAccessOps()
	IncUserDecryptReads()
	IncPublications()
}

type metricsImpl struct {
	numProfileWrites    metric.Counter
	numAccessOps        metric.Counter
	numUserDecryptReads metric.Counter
	numPublications     metric.Counter
}

func (m *metricsImpl) IncProfileWrites()    { m.numProfileWrites.Inc() }
func (m *metricsImpl) IncAccessOps()        { m.numAccessOps.Inc() }
func (m *metricsImpl) IncUserDecryptReads() { m.numUserDecryptReads.Inc() }
func (m *metricsImpl) IncPublications()     { m.numPublications.Inc() }

// NewMetrics creates the RPC operation counters.
func NewMetrics() Metrics {
	return &metricsImpl{
		numProfileWrites: metric.NewCounter(metric.CounterOpts{
			Name: "identity_profile_writes",
			Help: "Number of profile create/update operations",
		}),
		numAccessOps: metric.NewCounter(metric.CounterOpts{
			Name: "identity_access_ops",
			Help: "Number of access request/grant/revoke operations",
		}),
		numUserDecryptReads: metric.NewCounter(metric.CounterOpts{
			Name: "identity_field_reads",
			Help: "Number of encrypted field handle reads",
		}),
		numPublications: metric.NewCounter(metric.CounterOpts{
			Name: "identity_publications",
			Help: "Number of public decryption submissions",
		}),
	}
}

// noopMetrics is used when the service is built without counters.
type noopMetrics struct{}

func (noopMetrics) IncProfileWrites()    {}
func (noopMetrics) IncAccessOps()        {}
func (noopMetrics) IncUserDecryptReads() {}
func (noopMetrics) IncPublications()     {}
