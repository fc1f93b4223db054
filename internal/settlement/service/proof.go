package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	destmodels "paymail-bridge/internal/destination/models"
	"paymail-bridge/internal/receipt/models"
	"paymail-bridge/pkg/platform/sentinel"
	"paymail-bridge/pkg/requestcontext"
)

// Proof sources, in the order they are tried.
const (
	SourceNetwork = "network"
	SourceRebuilt = "rebuilt"
	SourceClient  = "client"
	SourceRaw     = "raw"
)

type submission struct {
	tx   *transaction.Transaction
	beef *transaction.Beef // client bundle, nil for raw submissions
}

type bundle struct {
	bytes  []byte
	kind   models.ProofKind
	source string
}

type proofSource struct {
	name string
	load func(ctx context.Context) (*transaction.Beef, error)
}

func parseSubmission(format Format, payload string) (*submission, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	switch format {
	case FormatRaw:
		tx, err := transaction.NewTransactionFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("parse raw transaction: %w", err)
		}
		return &submission{tx: tx}, nil
	case FormatBEEF:
		beef, tx, _, err := transaction.ParseBeef(raw)
		if err != nil {
			return nil, fmt.Errorf("parse beef: %w", err)
		}
		if tx == nil {
			if tx, err = subjectOf(beef); err != nil {
				return nil, err
			}
		}
		return &submission{tx: tx, beef: beef}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// subjectOf picks the one transaction in beef that no other transaction spends.
func subjectOf(beef *transaction.Beef) (*transaction.Transaction, error) {
	spent := make(map[chainhash.Hash]bool)
	for _, btx := range beef.Transactions {
		if btx.Transaction == nil {
			continue
		}
		for _, in := range btx.Transaction.Inputs {
			spent[*in.SourceTXID] = true
		}
	}
	var subject *chainhash.Hash
	for txid, btx := range beef.Transactions {
		if btx.Transaction == nil || spent[txid] {
			continue
		}
		if subject != nil {
			return nil, errors.New("beef holds more than one unspent transaction")
		}
		subject = &txid
	}
	if subject == nil {
		return nil, errors.New("beef holds no transaction")
	}
	return beef.FindAtomicTransactionByHash(subject), nil
}

// matchOutput returns the index of the first output paying exactly dest.Satoshis
// to dest.Script.
func matchOutput(tx *transaction.Transaction, dest *destmodels.DestinationRecord) (uint32, bool) {
	for i, out := range tx.Outputs {
		if out.LockingScript == nil || out.Satoshis != dest.Satoshis {
			continue
		}
		if strings.EqualFold(out.LockingScriptHex(), dest.Script) {
			return uint32(i), true
		}
	}
	return 0, false
}

// assembleProof tries each proof source in turn. A source that cannot produce a
// bundle is skipped; a bundle that fails the SPV check is an error. When no source
// produces a bundle the raw transaction is kept instead.
func (s *Service) assembleProof(ctx context.Context, sub *submission) (*bundle, error) {
	ctx, span := tracer.Start(ctx, "settlement.proof")
	defer span.End()

	txid := sub.tx.TxID()
	sources := []proofSource{
		{name: SourceNetwork, load: func(ctx context.Context) (*transaction.Beef, error) {
			return s.networkBEEF(ctx, txid)
		}},
		{name: SourceRebuilt, load: func(ctx context.Context) (*transaction.Beef, error) {
			return s.rebuild(ctx, sub.tx)
		}},
	}
	if sub.beef != nil {
		sources = append(sources, proofSource{name: SourceClient, load: func(context.Context) (*transaction.Beef, error) {
			return sub.beef, nil
		}})
	}

	for _, src := range sources {
		beef, err := src.load(ctx)
		if err != nil {
			s.logger.DebugContext(ctx, "proof source unavailable",
				"request_id", requestcontext.RequestID(ctx),
				"txid", txid.String(),
				"source", src.name,
				"error", err,
			)
			continue
		}
		valid, err := beef.Verify(ctx, s.tracker, false)
		if err != nil {
			s.logger.WarnContext(ctx, "proof bundle could not be checked",
				"request_id", requestcontext.RequestID(ctx),
				"txid", txid.String(),
				"source", src.name,
				"error", err,
			)
			continue
		}
		if !valid {
			span.SetStatus(codes.Error, "spv check failed")
			return nil, fmt.Errorf("%s proof bundle for %s failed the spv check", src.name, txid)
		}
		atomic, err := beef.AtomicBytes(txid)
		if err != nil {
			s.logger.WarnContext(ctx, "proof bundle could not be serialized",
				"request_id", requestcontext.RequestID(ctx),
				"txid", txid.String(),
				"source", src.name,
				"error", err,
			)
			continue
		}
		span.SetAttributes(attribute.String("proof.source", src.name))
		return &bundle{bytes: atomic, kind: models.ProofBEEF, source: src.name}, nil
	}

	span.SetAttributes(attribute.String("proof.source", SourceRaw))
	return &bundle{bytes: sub.tx.Bytes(), kind: models.ProofRaw, source: SourceRaw}, nil
}

func (s *Service) networkBEEF(ctx context.Context, txid *chainhash.Hash) (*transaction.Beef, error) {
	raw, err := s.chain.BEEF(ctx, txid.String())
	if err != nil {
		return nil, err
	}
	beef, _, _, err := transaction.ParseBeef(raw)
	if err != nil {
		return nil, fmt.Errorf("parse network beef: %w", err)
	}
	if beef.FindTransactionByHash(txid) == nil {
		return nil, errors.New("network beef does not hold the transaction")
	}
	return beef, nil
}

// rebuild assembles a bundle from the transaction's distinct source transactions,
// fetched in parallel through the chain client's queue.
func (s *Service) rebuild(ctx context.Context, tx *transaction.Transaction) (*transaction.Beef, error) {
	clone, err := transaction.NewTransactionFromBytes(tx.Bytes())
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(clone.Inputs))
	var ids []string
	for _, in := range clone.Inputs {
		id := in.SourceTXID.String()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var mu sync.Mutex
	sources := make(map[string]*transaction.Transaction, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			src, err := s.sourceTx(gctx, id)
			if err != nil {
				return fmt.Errorf("source %s: %w", id, err)
			}
			mu.Lock()
			sources[id] = src
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, in := range clone.Inputs {
		in.SourceTransaction = sources[in.SourceTXID.String()]
	}
	return transaction.NewBeefFromTransaction(clone)
}

// sourceTx fetches txid and, when it is mined, its merkle path. Concurrent
// settlements spending the same parent share one fetch, so the fetch runs on its
// own deadline rather than the first caller's context.
func (s *Service) sourceTx(ctx context.Context, txid string) (*transaction.Transaction, error) {
	ch := s.fetches.DoChan(txid, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		raw, err := s.chain.RawTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		src, err := transaction.NewTransactionFromBytes(raw)
		if err != nil {
			return nil, err
		}
		path, err := s.chain.MerklePath(ctx, txid)
		switch {
		case err == nil:
			src.MerklePath = path
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, err
		}
		return src, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transaction.Transaction), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
