// Package rpcpeer is the validator<->miner transport: peer address
// resolution plus a thin JSON-RPC client/server pair built on
// github.com/ethereum/go-ethereum/rpc.
package rpcpeer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/minerhandler"
)

// ErrUnknownHotkey is returned when a Resolver has no address for a hotkey.
var ErrUnknownHotkey = errors.New("rpcpeer: unknown hotkey")

// Resolver maps a miner's hotkey to its dialable RPC endpoint. This subnet
// has no on-chain discovery layer; a Resolver is populated from the
// hotkey->endpoint toml file passed to dojovalidator's --peers flag, or
// from a test fake.
type Resolver struct {
	addrs map[string]string
}

// NewResolver builds a Resolver from a static hotkey->endpoint map.
func NewResolver(addrs map[string]string) *Resolver {
	cp := make(map[string]string, len(addrs))
	for k, v := range addrs {
		cp[k] = v
	}
	return &Resolver{addrs: cp}
}

// Address returns the endpoint registered for hotkey.
func (r *Resolver) Address(hotkey string) (string, error) {
	addr, ok := r.addrs[hotkey]
	if !ok {
		return "", errors.Wrapf(ErrUnknownHotkey, "hotkey %s", hotkey)
	}
	return addr, nil
}

// DialTimeout bounds how long a single peer dial may take.
const DialTimeout = 10 * time.Second

// Client is a JSON-RPC client for one miner peer.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a miner endpoint over HTTP JSON-RPC.
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "rpcpeer: dial %s failed", endpoint)
	}
	return &Client{rpc: c}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// ForwardFeedbackRequest calls the miner's dojo_forwardFeedbackRequest
// method, the validator's half of the hand-off.
func (c *Client) ForwardFeedbackRequest(ctx context.Context, synapse domain.TaskSynapse) (domain.TaskSynapse, error) {
	var out domain.TaskSynapse
	err := c.rpc.CallContext(ctx, &out, "dojo_forwardFeedbackRequest", synapse)
	if err != nil {
		return domain.TaskSynapse{}, errors.Wrap(err, "rpcpeer: ForwardFeedbackRequest RPC failed")
	}
	return out, nil
}

// ForwardTaskResultRequest calls the miner's dojo_forwardTaskResultRequest
// method, polling for worker judgements.
func (c *Client) ForwardTaskResultRequest(ctx context.Context, taskID uuid.UUID) (domain.TaskSynapse, error) {
	var out domain.TaskSynapse
	err := c.rpc.CallContext(ctx, &out, "dojo_forwardTaskResultRequest", taskID)
	if err != nil {
		return domain.TaskSynapse{}, errors.Wrap(err, "rpcpeer: ForwardTaskResultRequest RPC failed")
	}
	return out, nil
}

// API is the reflection-registered RPC service a miner exposes, thinly
// wrapping *minerhandler.Handler to match go-ethereum/rpc's method-naming
// convention (exported methods become namespace_methodName in camelCase).
type API struct {
	handler *minerhandler.Handler
}

// NewAPI wraps h for RPC registration under the "dojo" namespace.
func NewAPI(h *minerhandler.Handler) *API { return &API{handler: h} }

// ForwardFeedbackRequest is exposed as dojo_forwardFeedbackRequest.
func (a *API) ForwardFeedbackRequest(ctx context.Context, synapse domain.TaskSynapse) (domain.TaskSynapse, error) {
	return a.handler.ForwardFeedbackRequest(ctx, synapse)
}

// ForwardTaskResultRequest is exposed as dojo_forwardTaskResultRequest.
func (a *API) ForwardTaskResultRequest(ctx context.Context, taskID uuid.UUID) (domain.TaskSynapse, error) {
	return a.handler.ForwardTaskResultRequest(ctx, taskID)
}

// NewServer builds a *rpc.Server with API registered under "dojo", ready to
// be mounted on an HTTP or WS handler by cmd/dojominer.
func NewServer(h *minerhandler.Handler) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("dojo", NewAPI(h)); err != nil {
		return nil, errors.Wrap(err, "rpcpeer: failed to register dojo API")
	}
	log.Info("rpcpeer: registered dojo RPC API")
	return server, nil
}
