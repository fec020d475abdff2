// Package probe implements the RFC 6762 §8 uniqueness check: before a
// service's records may be announced, three probe queries go out 250 ms
// apart, and any existing holder of the name forces a rename. Simultaneous
// probes from another host are resolved by lexicographic tiebreaking
// (§8.2.1).
package probe

import (
	"errors"
	"sync"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/metrics"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
)

// Probe timing per RFC 6762 §8.1, and the overall give-up deadline.
const (
	// maxInitialDelay is the random desynchronization wait before the
	// first probe.
	maxInitialDelay = 250 * time.Millisecond
	// probeInterval separates consecutive probes. Exactly 250 ms.
	probeInterval = 250 * time.Millisecond
	// probeCount is the number of probes that must go unanswered.
	probeCount = 3
	// tiebreakBackoff is the wait after losing a simultaneous-probe
	// tiebreak; the winner should be done probing by then.
	tiebreakBackoff = time.Second
	// probeTimeout abandons a claim that cannot settle.
	probeTimeout = time.Minute
)

// ErrProbeTimeout reports that probing ran for a minute without settling;
// the service stays unannounced.
var ErrProbeTimeout = errors.New("probing timed out")

// Service is the collaborator a Prober drives: the record set being claimed
// and the rename hook used on conflict.
type Service interface {
	// FQDN returns the service instance name being claimed.
	FQDN() domain.Name
	// Hostname returns the host name being claimed.
	Hostname() domain.Name
	// IncrementName bumps the numeric suffix on both names after a conflict.
	IncrementName()
	// Records returns every record the service intends to publish: SRV,
	// TXT, PTRs (subtypes included), and addresses.
	Records() []domain.ResourceRecord
}

// SendFunc transmits one probe query on every interface being claimed.
type SendFunc func(p *domain.Packet) error

type state int

const (
	stateIdle state = iota
	stateWaitInitial
	stateSending
	stateBackoff
	stateDone
	stateFailed
)

// Prober drives the probe state machine for one service. All transitions
// run under the mutex, driven by scheduler callbacks and inbound packets;
// timers are owned here and cancelled on every exit path.
type Prober struct {
	svc     Service
	send    SendFunc
	builder *wire.Builder
	clk     clock.Clock
	sched   clock.Scheduler
	rng     clock.Rand
	logger  log.Logger
	done    func(err error)

	mu         sync.Mutex
	st         state
	probesSent int
	timer      clock.Timer
	timeout    clock.Timer
}

// Options carries the collaborators for New.
type Options struct {
	Service   Service
	Send      SendFunc
	Builder   *wire.Builder
	Clock     clock.Clock
	Scheduler clock.Scheduler
	Rand      clock.Rand
	Logger    log.Logger
	// OnDone is called at most once, outside the prober's lock, with nil on
	// success or the failure cause. It is not called after Stop.
	OnDone func(err error)
}

// New constructs a Prober in the idle state.
func New(opts Options) *Prober {
	return &Prober{
		svc:     opts.Service,
		send:    opts.Send,
		builder: opts.Builder,
		clk:     opts.Clock,
		sched:   opts.Scheduler,
		rng:     opts.Rand,
		logger:  opts.Logger,
		done:    opts.OnDone,
	}
}

// Start begins probing: a uniform random wait up to 250 ms, then the first
// probe. The one-minute overall deadline is armed here.
func (p *Prober) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != stateIdle {
		return
	}
	p.st = stateWaitInitial
	p.timeout = p.sched.Schedule(probeTimeout, p.onTimeout)
	delay := time.Duration(p.rng.Float64() * float64(maxInitialDelay))
	p.timer = p.sched.Schedule(delay, p.fireProbe)
}

// Stop abandons probing without reporting a result.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st == stateDone || p.st == stateFailed {
		return
	}
	p.st = stateFailed
	p.cancelTimersLocked()
}

// fireProbe is the timer callback for both the initial wait and the
// inter-probe gap.
func (p *Prober) fireProbe() {
	p.mu.Lock()
	p.sendProbeLocked()
	p.mu.Unlock()
}

// sendProbeLocked builds and transmits the next probe, then either resolves
// success or arms the next probe's timer. The next timer is armed only after
// the send completes, keeping probes strictly sequenced.
func (p *Prober) sendProbeLocked() {
	if p.st == stateDone || p.st == stateFailed {
		return
	}
	p.st = stateSending

	pkt, err := p.builder.BuildProbeQuery(p.svc.FQDN(), p.svc.Hostname(), p.svc.Records())
	if err != nil {
		p.failLocked(err)
		return
	}
	if err := p.send(pkt); err != nil {
		p.logger.Warn(map[string]any{
			"service": p.svc.FQDN().String(),
			"error":   err.Error(),
		}, "Failed to send probe")
	}
	p.probesSent++

	if p.probesSent >= probeCount {
		p.succeedLocked()
		return
	}
	p.timer = p.sched.Schedule(probeInterval, p.fireProbe)
}

// HandleResponse checks an inbound response for an existing holder of our
// names. A hit is a conflict: the service renames and probing restarts from
// the first probe immediately, with no fresh desynchronization wait.
// Everything inbound is ignored until the first probe has been sent.
func (p *Prober) HandleResponse(pkt *domain.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != stateSending || p.probesSent == 0 {
		return
	}
	if !p.namesMatchLocked(pkt.Answers()) && !p.namesMatchLocked(pkt.Additionals()) {
		return
	}
	metrics.ProbeConflicts.Inc()
	p.logger.Info(map[string]any{
		"service": p.svc.FQDN().String(),
	}, "Probe conflict: name already claimed, renaming")
	p.restartRenamedLocked()
}

// HandleQuery runs simultaneous-probe tiebreaking (RFC 6762 §8.2) against an
// inbound query naming us. A probe query with no authorities is treated as a
// conflict. Losing the tiebreak pauses probing for one second and restarts
// with the same name; winning, or facing our own identical records, changes
// nothing.
func (p *Prober) HandleQuery(pkt *domain.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st != stateSending || p.probesSent == 0 {
		return
	}
	matched := false
	for _, q := range pkt.Questions() {
		if q.Name.Equal(p.svc.FQDN()) || q.Name.Equal(p.svc.Hostname()) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	theirs := pkt.Authorities()
	if len(theirs) == 0 {
		metrics.ProbeConflicts.Inc()
		p.logger.Info(map[string]any{
			"service": p.svc.FQDN().String(),
		}, "Query for our name with no probe data, treating as conflict")
		p.restartRenamedLocked()
		return
	}

	ours := make([]domain.ResourceRecord, len(p.svc.Records()))
	copy(ours, p.svc.Records())
	domain.SortCanonically(ours)
	opponent := make([]domain.ResourceRecord, len(theirs))
	copy(opponent, theirs)
	domain.SortCanonically(opponent)

	switch domain.Tiebreak(ours, opponent) {
	case domain.OpponentWins:
		metrics.TiebreaksLost.Inc()
		p.logger.Info(map[string]any{
			"service": p.svc.FQDN().String(),
		}, "Lost simultaneous-probe tiebreak, backing off")
		p.cancelProbeTimerLocked()
		p.st = stateBackoff
		p.probesSent = 0
		p.timer = p.sched.Schedule(tiebreakBackoff, p.fireProbe)
	case domain.HostWins, domain.NoConflict:
		// Ours to keep; the opponent yields (or is us). Keep probing.
	}
}

// restartRenamedLocked renames the service and restarts probing at the first
// probe, immediately.
func (p *Prober) restartRenamedLocked() {
	p.svc.IncrementName()
	metrics.Renames.Inc()
	p.cancelProbeTimerLocked()
	p.probesSent = 0
	p.sendProbeLocked()
}

func (p *Prober) onTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st == stateDone || p.st == stateFailed {
		return
	}
	p.failLocked(ErrProbeTimeout)
}

func (p *Prober) succeedLocked() {
	p.st = stateDone
	p.cancelTimersLocked()
	p.notifyLocked(nil)
}

func (p *Prober) failLocked(err error) {
	p.st = stateFailed
	p.cancelTimersLocked()
	p.notifyLocked(err)
}

// notifyLocked invokes the completion callback outside the lock.
func (p *Prober) notifyLocked(err error) {
	cb := p.done
	if cb == nil {
		return
	}
	p.done = nil
	p.mu.Unlock()
	cb(err)
	p.mu.Lock()
}

func (p *Prober) cancelProbeTimerLocked() {
	if p.timer != nil {
		p.timer.Cancel()
		p.timer = nil
	}
}

func (p *Prober) cancelTimersLocked() {
	p.cancelProbeTimerLocked()
	if p.timeout != nil {
		p.timeout.Cancel()
		p.timeout = nil
	}
}

// namesMatchLocked reports whether any record in the section claims one of
// our names.
func (p *Prober) namesMatchLocked(records []domain.ResourceRecord) bool {
	for _, rr := range records {
		if rr.Name.Equal(p.svc.FQDN()) || rr.Name.Equal(p.svc.Hostname()) {
			return true
		}
	}
	return false
}
