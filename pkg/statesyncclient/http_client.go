// Copyright 2025 Certen Protocol
//
// HTTP implementation of statesync.PeerClient/PeerSource: the client side
// of the wire contract pkg/server/statesync_handlers.go serves, grounded on
// pkg/attestation/service.go's requestFromPeer (marshal, POST with context,
// read body, unmarshal) for the same peer-to-peer request shape.

package statesyncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/certen/objectvalidator/pkg/statesync"
	"github.com/certen/objectvalidator/pkg/types"
)

// HTTPPeerClient is one peer's statesync.PeerClient, speaking the
// /api/v1/statesync/* endpoints over HTTP.
type HTTPPeerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPeerClient builds a client for the peer reachable at baseURL
// (e.g. "http://validator-2:8080").
func NewHTTPPeerClient(baseURL string, timeout time.Duration) *HTTPPeerClient {
	return &HTTPPeerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPPeerClient) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("statesyncclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("statesyncclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("statesyncclient: request to %s%s: %w", c.baseURL, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("statesyncclient: read response from %s%s: %w", c.baseURL, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("statesyncclient: %s%s returned %d: %s", c.baseURL, path, resp.StatusCode, string(body))
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("statesyncclient: decode response from %s%s: %w", c.baseURL, path, err)
	}
	return nil
}

type checkpointSummaryWireRequest struct {
	Latest     bool                            `json:"latest"`
	BySequence *types.CheckpointSequenceNumber `json:"by_sequence,omitempty"`
	ByDigest   *types.CheckpointDigest         `json:"by_digest,omitempty"`
}

func (c *HTTPPeerClient) GetCheckpointSummary(ctx context.Context, query statesync.CheckpointSummaryQuery) (*types.CertifiedCheckpointSummary, error) {
	req := checkpointSummaryWireRequest{
		Latest:     query.Latest,
		BySequence: query.BySequence,
		ByDigest:   query.ByDigest,
	}
	var summary types.CertifiedCheckpointSummary
	if err := c.post(ctx, "/api/v1/statesync/checkpoint-summary", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

type checkpointContentsWireRequest struct {
	ContentDigest types.Digest `json:"content_digest"`
}

func (c *HTTPPeerClient) GetCheckpointContents(ctx context.Context, contentDigest types.Digest) (*types.CheckpointContents, error) {
	req := checkpointContentsWireRequest{ContentDigest: contentDigest}
	var contents types.CheckpointContents
	if err := c.post(ctx, "/api/v1/statesync/checkpoint-contents", req, &contents); err != nil {
		return nil, err
	}
	return &contents, nil
}

type pushCheckpointWireRequest struct {
	Peer       statesync.PeerID                  `json:"peer"`
	Checkpoint *types.CertifiedCheckpointSummary `json:"checkpoint"`
}

func (c *HTTPPeerClient) PushCheckpoint(ctx context.Context, checkpoint *types.CertifiedCheckpointSummary) error {
	req := pushCheckpointWireRequest{Checkpoint: checkpoint}
	return c.post(ctx, "/api/v1/statesync/push-checkpoint", req, nil)
}

// StaticPeerSource is a statesync.PeerSource over a fixed peer list read
// from configuration, standing in for peer discovery (anemo's Network):
// peers are dialed once at startup and never change membership at runtime,
// which fits a small fixed validator set.
type StaticPeerSource struct {
	mu      sync.Mutex
	clients map[statesync.PeerID]statesync.PeerClient
	events  chan statesync.PeerEvent
}

// NewStaticPeerSource builds a PeerSource from a map of peer id to base URL.
func NewStaticPeerSource(peerURLs map[statesync.PeerID]string, timeout time.Duration) *StaticPeerSource {
	s := &StaticPeerSource{
		clients: make(map[statesync.PeerID]statesync.PeerClient, len(peerURLs)),
		events:  make(chan statesync.PeerEvent, len(peerURLs)),
	}
	for id, url := range peerURLs {
		s.clients[id] = NewHTTPPeerClient(url, timeout)
		s.events <- statesync.PeerEvent{Kind: statesync.PeerJoined, Peer: id}
	}
	return s
}

func (s *StaticPeerSource) Peers() []statesync.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]statesync.PeerID, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	return out
}

func (s *StaticPeerSource) Client(id statesync.PeerID) (statesync.PeerClient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *StaticPeerSource) Subscribe() <-chan statesync.PeerEvent {
	return s.events
}
