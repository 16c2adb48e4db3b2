package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/arvidsson/benor-agreement/core"
	"github.com/arvidsson/benor-agreement/logging"
)

// readinessPollInterval is the cadence at which the Broadcaster re-checks
// the readiness gate before its first send (§4.3, §5 suspension point a).
const readinessPollInterval = 100 * time.Millisecond

// peerRequestTimeout bounds a single peer's HTTP round trip so one
// unreachable peer can't hold up the others indefinitely; this is the
// per-peer "connection refused, timeout" case the contract requires to be
// swallowed, not propagated.
const peerRequestTimeout = 200 * time.Millisecond

// Broadcaster delivers an outbound MsgPayload to every peer in the cohort
// except the sender itself (§4.3).
type Broadcaster interface {
	Broadcast(ctx context.Context, msg core.MsgPayload)
}

// wireMessage is the JSON body posted to a peer's /message route, mirroring
// the reference's impl/ibft/codec.go technique of a nil-pointer-free wire
// struct distinct from the internal representation.
type wireMessage struct {
	Type   string `json:"type"`
	Round  uint64 `json:"round"`
	Val    string `json:"val"`
	Sender int    `json:"sender"`
}

// HTTPBroadcaster implements Broadcaster over plain HTTP POST, matching
// §6's wire contract. It is structurally the reference's
// transport/bft-tcp.go Broadcast (fan out to every peer, collect but never
// fail on per-peer errors) re-expressed over net/http instead of a raw TCP
// frame, because §6 fixes the contract at the HTTP/JSON level.
type HTTPBroadcaster struct {
	self      core.NodeID
	peerAddrs map[core.NodeID]string // addr like "127.0.0.1:9001", no scheme
	client    *http.Client
	state     *NodeState
	readiness *Readiness
	faulty    bool
	logger    logging.Logger
}

// NewHTTPBroadcaster builds a Broadcaster for self, addressing every other
// entry in peerAddrs.
func NewHTTPBroadcaster(
	self core.NodeID,
	peerAddrs map[core.NodeID]string,
	state *NodeState,
	readiness *Readiness,
	faulty bool,
	logger logging.Logger,
) *HTTPBroadcaster {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HTTPBroadcaster{
		self:      self,
		peerAddrs: peerAddrs,
		client:    &http.Client{Timeout: peerRequestTimeout},
		state:     state,
		readiness: readiness,
		faulty:    faulty,
		logger:    logger,
	}
}

// Broadcast delivers msg to every peer != self. It is a no-op for a faulty
// or killed node, blocks (honoring cancellation via killed) until the
// readiness gate opens, then fans out in parallel and swallows per-peer
// failures (§4.3).
func (b *HTTPBroadcaster) Broadcast(ctx context.Context, msg core.MsgPayload) {
	if b.faulty || b.state.Killed() {
		return
	}

	if !b.waitForReady(ctx) {
		return
	}

	body, err := json.Marshal(wireMessage{
		Type:   msg.Type.String(),
		Round:  uint64(msg.Round),
		Val:    msg.Val.String(),
		Sender: int(msg.Sender),
	})
	if err != nil {
		b.logger.Errorf("marshal outbound message: %v", err)
		return
	}

	var wg sync.WaitGroup
	for id, addr := range b.peerAddrs {
		if id == b.self {
			continue
		}
		wg.Add(1)
		go func(id core.NodeID, addr string) {
			defer wg.Done()
			b.sendTo(ctx, id, addr, body)
		}(id, addr)
	}
	wg.Wait()
}

func (b *HTTPBroadcaster) waitForReady(ctx context.Context) bool {
	if b.readiness.IsReady() {
		return true
	}
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()
	for {
		if b.state.Killed() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if b.readiness.IsReady() {
				return true
			}
		}
	}
}

func (b *HTTPBroadcaster) sendTo(ctx context.Context, peer core.NodeID, addr string, body []byte) {
	url := fmt.Sprintf("http://%s/message", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		b.logger.Debugf("build request to peer %s: %v", peer, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		// Transient peer unreachability is silently ignored (§7): one
		// failed peer must not block, or be surfaced to, the others.
		b.logger.Debugf("send to peer %s failed (treated as lost): %v", peer, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b.logger.Debugf("peer %s rejected message: status %d", peer, resp.StatusCode)
	}
}
