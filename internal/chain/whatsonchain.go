package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/chaintracker"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"paymail-bridge/internal/ratelimit/queue"
	"paymail-bridge/pkg/platform/circuit"
	"paymail-bridge/pkg/platform/sentinel"
)

const defaultTimeout = 30 * time.Second

var _ chaintracker.ChainTracker = (*WhatsOnChain)(nil)

type blockHeader struct {
	Hash       string `json:"hash"`
	Height     uint32 `json:"height"`
	MerkleRoot string `json:"merkleroot"`
}

type chainInfo struct {
	Blocks uint32 `json:"blocks"`
}

// WhatsOnChain fetches chain data. It also implements the go-sdk ChainTracker
// interface so proof bundles can be verified against block headers.
type WhatsOnChain struct {
	client  *resty.Client
	queue   *queue.Queue
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu    sync.RWMutex
	roots map[uint32]*chainhash.Hash
}

type WhatsOnChainOption func(*WhatsOnChain)

func WithBreaker(b *circuit.Breaker) WhatsOnChainOption {
	return func(w *WhatsOnChain) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) WhatsOnChainOption {
	return func(w *WhatsOnChain) {
		w.logger = logger
	}
}

// WithTimeout bounds a single HTTP call.
func WithTimeout(d time.Duration) WhatsOnChainOption {
	return func(w *WhatsOnChain) {
		w.client.SetTimeout(d)
	}
}

// NewWhatsOnChain builds a client for baseURL (see WhatsOnChainURL). Calls are
// throttled through q, which the caller runs.
func NewWhatsOnChain(baseURL, apiKey string, q *queue.Queue, opts ...WhatsOnChainOption) *WhatsOnChain {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "paymail-bridge")
	if apiKey != "" {
		client.SetHeader("Authorization", apiKey)
	}
	w := &WhatsOnChain{
		client:  client,
		queue:   q,
		breaker: circuit.New("whatsonchain"),
		logger:  slog.Default(),
		roots:   make(map[uint32]*chainhash.Hash),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BEEF returns the proof bundle WhatsOnChain holds for txid.
func (w *WhatsOnChain) BEEF(ctx context.Context, txid string) ([]byte, error) {
	body, err := w.get(ctx, "beef", "/tx/"+txid+"/beef")
	if err != nil {
		return nil, err
	}
	beef, err := hex.DecodeString(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if err != nil {
		return nil, fmt.Errorf("decode beef for %s: %w: %w", txid, ErrMalformedResponse, err)
	}
	return beef, nil
}

// RawTx returns the serialized transaction txid, checking that the bytes hash to it.
func (w *WhatsOnChain) RawTx(ctx context.Context, txid string) ([]byte, error) {
	body, err := w.get(ctx, "raw_tx", "/tx/"+txid+"/hex")
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("decode raw tx %s: %w: %w", txid, ErrMalformedResponse, err)
	}
	tx, err := transaction.NewTransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse raw tx %s: %w: %w", txid, ErrMalformedResponse, err)
	}
	if got := tx.TxID().String(); got != txid {
		return nil, fmt.Errorf("raw tx hashes to %s, want %s: %w", got, txid, ErrMalformedResponse)
	}
	return raw, nil
}

// MerklePath fetches the TSC proof for a mined txid and converts it to a BUMP whose
// root has been checked against the block header. Unmined transactions return
// sentinel.ErrNotFound.
func (w *WhatsOnChain) MerklePath(ctx context.Context, txid string) (*transaction.MerklePath, error) {
	body, err := w.get(ctx, "tsc_proof", "/tx/"+txid+"/proof/tsc")
	if err != nil {
		return nil, err
	}
	proof, err := decodeTSC(body)
	if err != nil {
		return nil, fmt.Errorf("tsc proof for %s: %w", txid, err)
	}
	header, err := w.header(ctx, "block_header", "/block/"+proof.Target+"/header")
	if err != nil {
		return nil, err
	}
	path, err := MerklePathFromTSC(txid, *proof, header.Height)
	if err != nil {
		return nil, err
	}
	root, err := path.ComputeRootHex(&txid)
	if err != nil {
		return nil, fmt.Errorf("compute merkle root for %s: %w", txid, err)
	}
	if root != header.MerkleRoot {
		return nil, fmt.Errorf("merkle root %s for %s does not match block %s: %w", root, txid, header.Hash, ErrMalformedResponse)
	}
	w.storeRoot(header)
	return path, nil
}

// IsValidRootForHeight reports whether root is the merkle root of the block at height.
func (w *WhatsOnChain) IsValidRootForHeight(ctx context.Context, root *chainhash.Hash, height uint32) (bool, error) {
	w.mu.RLock()
	cached, ok := w.roots[height]
	w.mu.RUnlock()
	if ok {
		return cached.IsEqual(root), nil
	}
	header, err := w.header(ctx, "block_header", fmt.Sprintf("/block/%d/header", height))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	remote := w.storeRoot(header)
	if remote == nil {
		return false, fmt.Errorf("block %d header: %w", height, ErrMalformedResponse)
	}
	return remote.IsEqual(root), nil
}

// CurrentHeight returns the height of the chain tip.
func (w *WhatsOnChain) CurrentHeight(ctx context.Context) (uint32, error) {
	body, err := w.get(ctx, "chain_info", "/chain/info")
	if err != nil {
		return 0, err
	}
	var info chainInfo
	if err := json.Unmarshal(body, &info); err != nil || info.Blocks == 0 {
		return 0, fmt.Errorf("chain info: %w", ErrMalformedResponse)
	}
	return info.Blocks, nil
}

func (w *WhatsOnChain) header(ctx context.Context, op, path string) (*blockHeader, error) {
	body, err := w.get(ctx, op, path)
	if err != nil {
		return nil, err
	}
	var header blockHeader
	if err := json.Unmarshal(body, &header); err != nil || header.MerkleRoot == "" {
		return nil, fmt.Errorf("block header %s: %w", path, ErrMalformedResponse)
	}
	return &header, nil
}

func (w *WhatsOnChain) storeRoot(header *blockHeader) *chainhash.Hash {
	root, err := chainhash.NewHashFromHex(header.MerkleRoot)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	w.roots[header.Height] = root
	w.mu.Unlock()
	return root
}

// get runs one throttled GET. Transport errors, 429 and 5xx count against the
// breaker; 404 maps to sentinel.ErrNotFound.
func (w *WhatsOnChain) get(ctx context.Context, op, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "whatsonchain."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.path", path)),
	)
	defer span.End()

	fail := func(err error) ([]byte, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !w.breaker.Allow() {
		return fail(fmt.Errorf("whatsonchain %s: circuit open: %w", op, sentinel.ErrUnavailable))
	}

	res, err := queue.Do(ctx, w.queue, func(ctx context.Context) (*resty.Response, error) {
		return w.client.R().SetContext(ctx).Get(path)
	})
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			return fail(fmt.Errorf("whatsonchain %s: %w: %w", op, sentinel.ErrUnavailable, err))
		}
		if ctx.Err() == nil {
			w.recordFailure(ctx, op)
		}
		return fail(fmt.Errorf("whatsonchain %s: %w", op, err))
	}

	status := res.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))
	switch {
	case status == http.StatusOK:
		w.recordSuccess(ctx)
		return res.Body(), nil
	case status == http.StatusNotFound:
		w.recordSuccess(ctx)
		return nil, fmt.Errorf("whatsonchain %s: %w", op, sentinel.ErrNotFound)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		w.recordFailure(ctx, op)
	}
	return fail(fmt.Errorf("whatsonchain %s: unexpected status %d", op, status))
}

func (w *WhatsOnChain) recordFailure(ctx context.Context, op string) {
	if _, change := w.breaker.RecordFailure(); change.Opened {
		w.logger.WarnContext(ctx, "whatsonchain circuit opened", "operation", op)
	}
}

func (w *WhatsOnChain) recordSuccess(ctx context.Context) {
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "whatsonchain circuit closed")
	}
}

// decodeTSC accepts a single proof object or a one-element array.
func decodeTSC(body []byte) (*TSCProof, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, sentinel.ErrNotFound
	}
	if body[0] == '[' {
		var proofs []TSCProof
		if err := json.Unmarshal(body, &proofs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		if len(proofs) == 0 {
			return nil, sentinel.ErrNotFound
		}
		return &proofs[0], nil
	}
	var proof TSCProof
	if err := json.Unmarshal(body, &proof); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(proof.Nodes) == 0 || proof.Target == "" {
		return nil, sentinel.ErrNotFound
	}
	return &proof, nil
}
