// Package dispatch implements the Dispatcher Facade (C8): a narrow
// outbound interface over the routing layer, plus the deadline timer
// registry pending Get Operations are anchored in. The dispatcher is
// a thin wrapper; retries on resolver-carried messages are the Sync
// Resolver's job, not this package's.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/safevault/vault/internal/action"
	"github.com/safevault/vault/internal/ids"
	"github.com/safevault/vault/internal/routing"
	"github.com/safevault/vault/internal/vaulterr"
)

// Dispatcher is the named outbound operation set from the external
// interfaces section: each call is fire-and-forget from the caller's
// perspective (errors are reported to the caller). HTTPDispatcher
// retries a failed send up to twice as best-effort delivery; durable
// redelivery is the Sync Resolver's retransmission.
type Dispatcher interface {
	SendPutRequest(ctx context.Context, dest ids.HolderID, key ids.Key, content []byte) error
	SendPutResponse(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, cost uint64) error
	SendPutFailure(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, reason string) error
	SendGetRequest(ctx context.Context, dest ids.HolderID, key ids.Key, msgID ids.MessageID) error
	SendIntegrityCheck(ctx context.Context, dest ids.HolderID, key ids.Key, msgID ids.MessageID, nonce []byte) error
	SendGetResponseSuccess(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, content []byte) error
	SendGetResponseFailure(ctx context.Context, dest ids.HolderID, msgID ids.MessageID) error
	SendDeleteRequest(ctx context.Context, dest ids.HolderID, key ids.Key) error
	SendFalseDataNotification(ctx context.Context, dest ids.HolderID, key ids.Key) error
	SendPutToCache(ctx context.Context, key ids.Key, content []byte) error
	SendSync(ctx context.Context, dest ids.HolderID, kind action.Kind, key ids.Key, payload action.Payload, proposer ids.HolderID) error
}

// envelope is the wire format every dispatch call marshals into. Not
// every field is populated for every message kind.
type envelope struct {
	MessageID ids.MessageID  `json:"message_id,omitempty"`
	Key       ids.Key        `json:"key"`
	Content   []byte         `json:"content,omitempty"`
	Nonce     []byte         `json:"nonce,omitempty"`
	Cost      uint64         `json:"cost,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Kind      action.Kind    `json:"kind,omitempty"`
	Payload   action.Payload `json:"payload,omitempty"`
	Proposer  ids.HolderID   `json:"proposer,omitempty"`
}

// HTTPDispatcher implements Dispatcher by POSTing JSON envelopes to
// peer vaults' transport routes, resolved by address through the
// routing collaborator's peer table.
type HTTPDispatcher struct {
	collab     routing.Collaborator
	httpClient *http.Client
	selfAddr   string
}

// NewHTTPDispatcher builds a dispatcher that resolves peer addresses
// through collab.
func NewHTTPDispatcher(collab routing.Collaborator) *HTTPDispatcher {
	return &HTTPDispatcher{
		collab:     collab,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *HTTPDispatcher) addrOf(dest ids.HolderID) (string, error) {
	peer, ok := d.collab.Peer(dest)
	if !ok {
		return "", fmt.Errorf("dispatch: unknown peer %x", dest[:8])
	}
	return peer.Addr, nil
}

func (d *HTTPDispatcher) post(ctx context.Context, addr, route string, env envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatch: marshal: %w", err)
	}

	op := func() error {
		url := fmt.Sprintf("http://%s%s", addr, route)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", vaulterr.ErrTransport, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: peer returned HTTP %d", vaulterr.ErrTransport, resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (d *HTTPDispatcher) SendPutRequest(ctx context.Context, dest ids.HolderID, key ids.Key, content []byte) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/put", envelope{Key: key, Content: content})
}

func (d *HTTPDispatcher) SendPutResponse(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, cost uint64) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/put-response", envelope{MessageID: msgID, Cost: cost})
}

func (d *HTTPDispatcher) SendPutFailure(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, reason string) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/put-failure", envelope{MessageID: msgID, Reason: reason})
}

func (d *HTTPDispatcher) SendGetRequest(ctx context.Context, dest ids.HolderID, key ids.Key, msgID ids.MessageID) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/get", envelope{Key: key, MessageID: msgID})
}

func (d *HTTPDispatcher) SendIntegrityCheck(ctx context.Context, dest ids.HolderID, key ids.Key, msgID ids.MessageID, nonce []byte) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/challenge", envelope{Key: key, MessageID: msgID, Nonce: nonce})
}

func (d *HTTPDispatcher) SendGetResponseSuccess(ctx context.Context, dest ids.HolderID, msgID ids.MessageID, content []byte) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/get-response", envelope{MessageID: msgID, Content: content})
}

func (d *HTTPDispatcher) SendGetResponseFailure(ctx context.Context, dest ids.HolderID, msgID ids.MessageID) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/get-response", envelope{MessageID: msgID})
}

func (d *HTTPDispatcher) SendDeleteRequest(ctx context.Context, dest ids.HolderID, key ids.Key) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/delete", envelope{Key: key})
}

func (d *HTTPDispatcher) SendFalseDataNotification(ctx context.Context, dest ids.HolderID, key ids.Key) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/false-data", envelope{Key: key})
}

// SendPutToCache is the put-to-cache hook for the cache persona, which
// is out of scope. This implementation sends nothing and always
// returns nil.
func (d *HTTPDispatcher) SendPutToCache(ctx context.Context, key ids.Key, content []byte) error {
	return nil
}

func (d *HTTPDispatcher) SendSync(ctx context.Context, dest ids.HolderID, kind action.Kind, key ids.Key, payload action.Payload, proposer ids.HolderID) error {
	addr, err := d.addrOf(dest)
	if err != nil {
		return err
	}
	return d.post(ctx, addr, "/dm/sync", envelope{Key: key, Kind: kind, Payload: payload, Proposer: proposer})
}
