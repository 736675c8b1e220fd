package pipeline

import (
	"github.com/samber/lo"
)

// deferred is a token waiting at the first pipe.
type deferred struct {
	deferrals int
	remaining int
}

type readyToken struct {
	token     uint64
	deferrals int
}

// tokenState tracks which tokens are past the first pipe and which are
// deferred on others. It is guarded by Pipeline.mu.
type tokenState struct {
	inFlight   map[uint64]struct{}
	waiting    map[uint64]*deferred
	dependents map[uint64][]uint64
	dropped    map[uint64]struct{}
	ready      []readyToken
}

func newTokenState() tokenState {
	return tokenState{
		inFlight:   make(map[uint64]struct{}),
		waiting:    make(map[uint64]*deferred),
		dependents: make(map[uint64][]uint64),
		dropped:    make(map[uint64]struct{}),
	}
}

func (s *tokenState) clear() {
	clear(s.inFlight)
	clear(s.waiting)
	clear(s.dependents)
	clear(s.dropped)
	s.ready = s.ready[:0]
}

// settled reports whether the last run drained cleanly.
func (s *tokenState) settled() bool {
	return len(s.inFlight) == 0 && len(s.waiting) == 0 && len(s.ready) == 0
}

func (s *tokenState) numInFlight() int {
	return len(s.inFlight)
}

func (s *tokenState) numReady() int {
	return len(s.ready)
}

func (s *tokenState) waitingTokens() []uint64 {
	return lo.Keys(s.waiting)
}

func (s *tokenState) popReady() (uint64, int, bool) {
	if len(s.ready) == 0 {
		return 0, 0, false
	}
	r := s.ready[0]
	s.ready = s.ready[1:]
	return r.token, r.deferrals, true
}

// finished reports whether token has passed the last pipe. generated is
// the number of token ids handed out so far.
func (s *tokenState) finished(token, generated uint64) bool {
	if token >= generated {
		return false
	}
	if _, ok := s.inFlight[token]; ok {
		return false
	}
	if _, ok := s.waiting[token]; ok {
		return false
	}
	_, ok := s.dropped[token]
	return !ok
}

// deferOn records that token waits for deps. It returns false when every
// dependency already finished and the token may be processed again right
// away.
func (s *tokenState) deferOn(token uint64, deferrals int, deps []uint64, generated uint64) bool {
	d := s.waiting[token]
	if d == nil {
		d = &deferred{}
		s.waiting[token] = d
	}
	d.deferrals = deferrals
	d.remaining = 0

	for _, dep := range lo.Uniq(deps) {
		if s.finished(dep, generated) {
			continue
		}
		s.dependents[dep] = append(s.dependents[dep], token)
		d.remaining++
	}
	if d.remaining == 0 {
		delete(s.waiting, token)
		return false
	}
	return true
}

// pass moves token past the first pipe.
func (s *tokenState) pass(token uint64) {
	delete(s.waiting, token)
	s.inFlight[token] = struct{}{}
}

// finish retires token and queues the deferred tokens it released.
func (s *tokenState) finish(token uint64) {
	delete(s.inFlight, token)
	for _, dep := range s.dependents[token] {
		d, ok := s.waiting[dep]
		if !ok {
			continue
		}
		d.remaining--
		if d.remaining == 0 {
			s.ready = append(s.ready, readyToken{token: dep, deferrals: d.deferrals})
		}
	}
	delete(s.dependents, token)
}

// drop discards a deferred token stopped at the first pipe. Tokens
// deferred on it are never released.
func (s *tokenState) drop(token uint64) {
	delete(s.waiting, token)
	s.dropped[token] = struct{}{}
}
