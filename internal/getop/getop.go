// Package getop implements the Get Operation (C6): in-flight state
// for one read — one content request plus N integrity challenges,
// aggregated under the operation's own lock until completion or
// timeout. Modeled as a ref-counted record per the design notes: the
// timer and each incoming-response handler all reference the same
// operation, and the last reference drops it at finalization.
package getop

import (
	"sync"
	"time"

	"github.com/safevault/vault/internal/ids"
)

// State is the Get Operation's lifecycle stage.
type State int

const (
	Issued State = iota
	AwaitingResponses
	CompletedSuccess
	CompletedFailed
	CompletedTimeout
)

// Challenge is one outstanding integrity check posed to a holder:
// the nonce sent, and the reported scalar once (if) it arrives.
type Challenge struct {
	Nonce    []byte
	Reported []byte
	Arrived  bool
}

// Operation is one in-flight Get. Exactly one ContentSource; the
// content source is never also a challenge target.
type Operation struct {
	mu sync.Mutex

	Key          ids.Key
	RequestorID  ids.HolderID
	MessageID    ids.MessageID
	ContentSource ids.HolderID
	Challenges   map[ids.HolderID]*Challenge

	receivedContent []byte
	contentOK       bool

	calledCount   int
	expectedCount int
	deadline      time.Time
	state         State
}

// New creates an Issued Get Operation. expectedCount is 1 (the
// content source) plus len(challenges).
func New(key ids.Key, requestor ids.HolderID, msgID ids.MessageID, source ids.HolderID, challenged []ids.HolderID, nonces map[ids.HolderID][]byte, deadline time.Time) *Operation {
	challenges := make(map[ids.HolderID]*Challenge, len(challenged))
	for _, h := range challenged {
		challenges[h] = &Challenge{Nonce: nonces[h]}
	}
	return &Operation{
		Key:           key,
		RequestorID:   requestor,
		MessageID:     msgID,
		ContentSource: source,
		Challenges:    challenges,
		expectedCount: 1 + len(challenged),
		deadline:      deadline,
		state:         Issued,
	}
}

// ExpectedCount returns 1 + |challenges|.
func (o *Operation) ExpectedCount() int {
	return o.expectedCount
}

// RecordContentResponse records the content-source's reply. Returns
// whether this observation should trigger finalization (expected
// count reached) — the caller still must call TryFinalize itself,
// since the operation's own lock must not be held across the
// dispatcher calls the caller's finalization makes.
func (o *Operation) RecordContentResponse(content []byte, ok bool) (readyToFinalize bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Issued && o.state != AwaitingResponses {
		return false
	}
	o.state = AwaitingResponses
	o.receivedContent = content
	o.contentOK = ok
	o.calledCount++
	return o.calledCount >= o.expectedCount
}

// RecordChallengeResponse records one holder's reported scalar.
// Returns whether this observation should trigger finalization.
func (o *Operation) RecordChallengeResponse(holder ids.HolderID, reported []byte) (readyToFinalize bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Issued && o.state != AwaitingResponses {
		return false
	}
	o.state = AwaitingResponses
	c, ok := o.Challenges[holder]
	if !ok || c.Arrived {
		return false
	}
	c.Reported = reported
	c.Arrived = true
	o.calledCount++
	return o.calledCount >= o.expectedCount
}

// TryFinalize transitions the operation to a terminal state exactly
// once; subsequent calls are no-ops and report alreadyDone=true.
// timedOut, set on the deadline path, selects CompletedTimeout.
func (o *Operation) TryFinalize(timedOut bool) (content []byte, contentOK bool, challenges map[ids.HolderID]*Challenge, alreadyDone bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == CompletedSuccess || o.state == CompletedFailed || o.state == CompletedTimeout {
		return nil, false, nil, true
	}
	if timedOut {
		o.state = CompletedTimeout
	} else if o.contentOK {
		o.state = CompletedSuccess
	} else {
		o.state = CompletedFailed
	}
	return o.receivedContent, o.contentOK, o.Challenges, false
}

// State returns the operation's current lifecycle stage.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CalledCount returns how many responses have been aggregated so far.
func (o *Operation) CalledCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calledCount
}
