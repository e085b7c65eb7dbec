package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
	"github.com/seatrail/ticket-ledger/internal/presets"
	"github.com/seatrail/ticket-ledger/internal/schema"
)

func decodePayload(payloadJSON string, preset *schema.Schema) (map[string]any, error) {
	var candidate map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &candidate); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := preset.Validate(candidate); err != nil {
		return nil, domain.NewValidation(err)
	}
	return candidate, nil
}

// statusOf extracts TicketData.status from a decoded sub-record
func statusOf(ticketData map[string]any) (domain.TicketStatus, error) {
	v, ok := ticketData["status"]
	if !ok {
		return 0, domain.NewNotFound("status of ticket data does not exist")
	}
	f, ok := v.(float64)
	if !ok {
		return 0, domain.NewInvariant("ticket status is not a number")
	}
	return domain.TicketStatus(f), nil
}

func (c *Contract) readSubMap(ctx context.Context, tokenID, owner, org, sub string) (map[string]any, error) {
	raw, err := c.tokens.GetSub(ctx, tokenID, owner, org, sub)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt %s of token %s: %w", sub, tokenID, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func (c *Contract) readSubList(ctx context.Context, tokenID, owner, org, sub string) ([]map[string]any, error) {
	raw, err := c.tokens.GetSub(ctx, tokenID, owner, org, sub)
	if err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("corrupt %s of token %s: %w", sub, tokenID, err)
	}
	return list, nil
}

// UpdateIssueTickets records issuance fields on the ticket-data sub-record
// and moves the ticket from minted to issued.
func (c *Contract) UpdateIssueTickets(ctx context.Context, tokenID, owner, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(payloadJSON, presets.TicketIssue)
	if err != nil {
		return err
	}

	ticketData, err := c.readSubMap(ctx, tokenID, owner, caller.Org, keys.SubTicketData)
	if err != nil {
		return err
	}
	current, err := statusOf(ticketData)
	if err != nil {
		return err
	}
	if current != domain.TicketStatusMinted {
		return domain.NewInvariant("ticket %s cannot be issued from status %d", tokenID, current)
	}
	next := domain.TicketStatus(payload["status"].(float64))
	if next != domain.TicketStatusIssued {
		return domain.NewInvariant("issue status must be %d, got %d", domain.TicketStatusIssued, next)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	for k, v := range payload {
		ticketData[k] = v
	}
	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubTicketData, ticketData); err != nil {
		return err
	}
	logger.Info("ticket issued",
		zap.String("token_id", tokenID),
		zap.String("owner", owner))
	return nil
}

// VerifyTicket records a check-in: VerifyStatus drives the status
// transition, VerifyInfo is appended to the check-in log with a generated
// event id.
func (c *Contract) VerifyTicket(ctx context.Context, tokenID, owner, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(payloadJSON, presets.VerifyTicket)
	if err != nil {
		return err
	}
	verifyStatus := payload["VerifyStatus"].(map[string]any)
	verifyInfo := payload["VerifyInfo"].(map[string]any)

	ticketData, err := c.readSubMap(ctx, tokenID, owner, caller.Org, keys.SubTicketData)
	if err != nil {
		return err
	}
	current, err := statusOf(ticketData)
	if err != nil {
		return err
	}
	if current != domain.TicketStatusIssued && current != domain.TicketStatusCheckedIn {
		return domain.NewInvariant("ticket %s cannot be checked in from status %d", tokenID, current)
	}
	next := domain.TicketStatus(verifyStatus["status"].(float64))
	if next != domain.TicketStatusCheckedIn && next != domain.TicketStatusUsed {
		return domain.NewInvariant("check-in status must be %d or %d, got %d",
			domain.TicketStatusCheckedIn, domain.TicketStatusUsed, next)
	}

	checkData, err := c.readSubList(ctx, tokenID, owner, caller.Org, keys.SubCheckData)
	if err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	for k, v := range verifyStatus {
		ticketData[k] = v
	}
	if _, ok := verifyInfo["check_event_id"]; !ok {
		verifyInfo["check_event_id"] = ulid.Make().String()
	}
	checkData = append(checkData, verifyInfo)

	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubTicketData, ticketData); err != nil {
		return err
	}
	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubCheckData, checkData); err != nil {
		return err
	}
	logger.Info("ticket checked in",
		zap.String("token_id", tokenID),
		zap.String("owner", owner),
		zap.Int("status", int(next)))
	return nil
}

// TimerUpdateTickets applies a timer-driven status transition, typically
// to expire tickets whose entry window has passed.
func (c *Contract) TimerUpdateTickets(ctx context.Context, tokenID, owner, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(payloadJSON, presets.TimerUpdate)
	if err != nil {
		return err
	}

	ticketData, err := c.readSubMap(ctx, tokenID, owner, caller.Org, keys.SubTicketData)
	if err != nil {
		return err
	}
	current, err := statusOf(ticketData)
	if err != nil {
		return err
	}
	if current.Terminal() {
		return domain.NewInvariant("ticket %s is already in terminal status %d", tokenID, current)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	for k, v := range payload {
		ticketData[k] = v
	}
	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubTicketData, ticketData); err != nil {
		return err
	}
	logger.Info("ticket timer update",
		zap.String("token_id", tokenID),
		zap.String("owner", owner))
	return nil
}

// UpdateStockInfo merges a partial stock window update into the stock-info
// sub-record.
func (c *Contract) UpdateStockInfo(ctx context.Context, tokenID, owner, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(payloadJSON, presets.StockInfoUpdate)
	if err != nil {
		return err
	}

	stockInfo, err := c.readSubMap(ctx, tokenID, owner, caller.Org, keys.SubStockInfo)
	if err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	for k, v := range payload {
		stockInfo[k] = v
	}
	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubStockInfo, stockInfo); err != nil {
		return err
	}
	logger.Info("stock info updated",
		zap.String("token_id", tokenID),
		zap.String("owner", owner))
	return nil
}

// UpdatePriceInfo merges one distributor price entry into the price-info
// sub-record. The group field applies add/delete-by-id set semantics
// against the stored group list; fields absent from the payload keep their
// prior values.
func (c *Contract) UpdatePriceInfo(ctx context.Context, tokenID, owner, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(payloadJSON, presets.PriceInfoUpdate)
	if err != nil {
		return err
	}
	distributorID := payload["distributor_id"].(string)

	priceInfo, err := c.readSubList(ctx, tokenID, owner, caller.Org, keys.SubPriceInfo)
	if err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}

	idx := -1
	for i, entry := range priceInfo {
		if entry["distributor_id"] == distributorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		priceInfo = append(priceInfo, map[string]any{"distributor_id": distributorID})
		idx = len(priceInfo) - 1
	}
	entry := priceInfo[idx]

	for k, v := range payload {
		if k == "group" {
			continue
		}
		entry[k] = v
	}
	if groupPayload, ok := payload["group"].(map[string]any); ok {
		entry["group"] = mergeGroup(entry["group"], groupPayload)
	}
	priceInfo[idx] = entry

	if err := c.tokens.PutSub(ctx, tokenID, owner, caller.Org, keys.SubPriceInfo, priceInfo); err != nil {
		return err
	}
	logger.Info("price info updated",
		zap.String("token_id", tokenID),
		zap.String("owner", owner),
		zap.String("distributor_id", distributorID))
	return nil
}

// mergeGroup starts from the stored group_id list (or the payload's own
// group_id for a new entry), appends add_group_id members not yet present
// and removes del_group_id members.
func mergeGroup(stored any, payload map[string]any) map[string]any {
	base := make([]string, 0)
	if storedGroup, ok := stored.(map[string]any); ok {
		base = toStrings(storedGroup["group_id"])
	} else {
		base = toStrings(payload["group_id"])
	}

	for _, id := range toStrings(payload["add_group_id"]) {
		present := false
		for _, existing := range base {
			if existing == id {
				present = true
				break
			}
		}
		if !present {
			base = append(base, id)
		}
	}

	deleted := toStrings(payload["del_group_id"])
	kept := make([]string, 0, len(base))
	for _, id := range base {
		drop := false
		for _, del := range deleted {
			if del == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, id)
		}
	}

	ids := make([]any, len(kept))
	for i, id := range kept {
		ids[i] = id
	}
	return map[string]any{"group_id": ids}
}

func toStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
