package contract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
)

// evidenceHash canonicalizes a JSON document (RFC 8785) and hashes it, so
// semantically equal documents with different key order or whitespace
// produce the same digest.
func evidenceHash(doc string) (string, error) {
	canonical, err := jcs.Transform([]byte(doc))
	if err != nil {
		return "", fmt.Errorf("payload is not valid JSON: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// StoreEvidence stores the content hash of an opaque JSON document under
// an evidence ID. The document itself stays off-ledger.
func (c *Contract) StoreEvidence(ctx context.Context, evidenceID, docJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	if evidenceID == "" {
		return fmt.Errorf("evidence_id should not be empty")
	}
	if docJSON == "" {
		return fmt.Errorf("document should not be empty")
	}
	hash, err := evidenceHash(docJSON)
	if err != nil {
		return err
	}

	existing, err := c.kv.Get(ctx, keys.Evidence(evidenceID))
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.NewConflict("evidence %s already stored", evidenceID)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}

	record := domain.Evidence{
		Hash:      hash,
		Submitter: caller.ID,
		StoredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, keys.Evidence(evidenceID), raw); err != nil {
		return err
	}
	logger.Info("evidence stored",
		zap.String("evidence_id", evidenceID),
		zap.String("hash", hash))
	return nil
}

// VerifyEvidence recomputes the document hash and compares it with the
// stored record. A missing record is not-found; a mismatch reports false.
func (c *Contract) VerifyEvidence(ctx context.Context, evidenceID, docJSON string) (bool, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return false, err
	}
	if evidenceID == "" {
		return false, fmt.Errorf("evidence_id should not be empty")
	}
	if docJSON == "" {
		return false, fmt.Errorf("document should not be empty")
	}
	raw, err := c.kv.Get(ctx, keys.Evidence(evidenceID))
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, domain.NewNotFound("evidence %s does not exist", evidenceID)
	}
	var record domain.Evidence
	if err := json.Unmarshal(raw, &record); err != nil {
		return false, fmt.Errorf("corrupt evidence record: %w", err)
	}
	hash, err := evidenceHash(docJSON)
	if err != nil {
		return false, err
	}
	return hash == record.Hash, nil
}
