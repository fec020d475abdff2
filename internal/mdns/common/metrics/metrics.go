// Package metrics exposes the responder's Prometheus instrumentation.
// Counters are registered on the default registry; a caller that serves
// promhttp gets them for free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceived counts inbound datagrams per interface.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "transport",
		Name:      "packets_received_total",
		Help:      "Inbound mDNS datagrams, per interface.",
	}, []string{"iface"})

	// PacketsSent counts outbound datagrams per interface.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "transport",
		Name:      "packets_sent_total",
		Help:      "Outbound mDNS datagrams, per interface.",
	}, []string{"iface"})

	// DatagramsDropped counts inbound datagrams discarded by decode error class.
	DatagramsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "codec",
		Name:      "datagrams_dropped_total",
		Help:      "Inbound datagrams dropped as undecodable, by reason.",
	}, []string{"reason"})

	// ResponsesMerged counts queue coalescing events.
	ResponsesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "queue",
		Name:      "responses_merged_total",
		Help:      "Queued responses coalesced into a single datagram.",
	})

	// ResponsesSuppressed counts answers withheld by the duplicate suppressor.
	ResponsesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "queue",
		Name:      "responses_suppressed_total",
		Help:      "Answer records withheld by the one-per-second duplicate rule.",
	})

	// ProbeConflicts counts conflicts that forced a rename.
	ProbeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "probe",
		Name:      "conflicts_total",
		Help:      "Probe conflicts that forced a service rename.",
	})

	// TiebreaksLost counts simultaneous-probe tiebreaks lost.
	TiebreaksLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "probe",
		Name:      "tiebreaks_lost_total",
		Help:      "Simultaneous-probe tiebreaks lost, each causing a 1s backoff.",
	})

	// Renames counts conflict-forced service renames.
	Renames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rrmdns",
		Subsystem: "probe",
		Name:      "renames_total",
		Help:      "Service renames performed after probe conflicts.",
	})
)
