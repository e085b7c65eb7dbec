// Package presets declares the canonical payload shapes accepted by the
// contract. Shapes are explicit, versioned schema descriptors; callers get
// the "no additional properties" contract against these, never against a
// sample payload.
package presets

import "github.com/seatrail/ticket-ledger/internal/schema"

// group carries incremental add/delete-by-id semantics against the stored
// distributor group list.
func group() schema.Field {
	return schema.Obj("group",
		schema.Arr("group_id", schema.Str("")).Opt(),
		schema.Arr("add_group_id", schema.Str("")).Opt(),
		schema.Arr("del_group_id", schema.Str("")).Opt(),
	)
}

func priceEntry() schema.Field {
	return schema.Obj("",
		schema.Str("distributor_id"),
		schema.Str("commodity_price").Opt(),
		schema.Str("selling_price").Opt(),
		schema.Bool("is_compose").Opt(),
		group().Opt(),
	)
}

func checkEntry() schema.Field {
	return schema.Obj("",
		schema.Str("check_event_id").Opt(),
		schema.Str("account"),
		schema.Str("check_time"),
		schema.Str("check_type"),
		schema.Str("equipment_id").Opt(),
		schema.Str("point_name").Opt(),
	)
}

func stockBatchEntry() schema.Field {
	return schema.Obj("",
		schema.Str("stock_batch_number"),
		schema.Str("amount"),
	)
}

func ticketData() schema.Field {
	return schema.Obj("TicketData",
		schema.Num("status"),
		schema.Str("ticket_id").Opt(),
		schema.Str("issue_time").Opt(),
		schema.Num("player_num").Opt(),
		schema.Str("use_time").Opt(),
		schema.Str("timer_update_time").Opt(),
	)
}

func stockInfo() schema.Field {
	return schema.Obj("StockInfo",
		schema.Str("purchase_begin_time"),
		schema.Str("purchase_end_time"),
		schema.Str("stock_enter_begin_time"),
		schema.Str("stock_enter_end_time"),
		schema.Str("total_num"),
		schema.Str("available_total_num"),
	)
}

// Slot is the product preset validated at mint
var Slot = schema.New(1,
	schema.Obj("BasicInformation",
		schema.Str("ticket_type"),
		schema.Str("ticket_name"),
		schema.Str("product_id"),
		schema.Arr("time_share",
			schema.Obj("",
				schema.Str("time_share_id"),
				schema.Str("begin_time"),
				schema.Str("end_time"),
			),
		).Opt(),
		schema.Obj("rule_info",
			schema.Str("refund_rule").Opt(),
			schema.Str("change_rule").Opt(),
			schema.Bool("real_name_check").Opt(),
		).Opt(),
		schema.Obj("stock_config",
			schema.Str("total_stock"),
			schema.Str("batch_stock").Opt(),
		).Opt(),
	),
	schema.Obj("AdditionalInformation",
		ticketData(),
		schema.Arr("PriceInfo", priceEntry()),
		schema.Arr("TicketCheckData", checkEntry()),
		stockInfo(),
	),
)

// TicketIssue validates UpdateIssueTickets payloads
var TicketIssue = schema.New(1,
	schema.Str("ticket_id"),
	schema.Str("issue_time"),
	schema.Num("status"),
	schema.Num("player_num").Opt(),
	schema.Str("use_time").Opt(),
)

// TimerUpdate validates one entry of a TimerUpdateTickets batch
var TimerUpdate = schema.New(1,
	schema.Num("status"),
	schema.Str("timer_update_time"),
)

// VerifyTicket validates check-in payloads: VerifyStatus drives the status
// transition, VerifyInfo is appended to the check-in log.
var VerifyTicket = schema.New(1,
	schema.Obj("VerifyStatus",
		schema.Num("status"),
		schema.Num("checked_num").Opt(),
	),
	schema.Obj("VerifyInfo",
		schema.Str("account"),
		schema.Str("check_time"),
		schema.Str("check_type"),
		schema.Str("equipment_id").Opt(),
		schema.Str("point_name").Opt(),
	),
)

// PriceInfoUpdate validates one distributor price entry update
var PriceInfoUpdate = schema.New(1,
	schema.Str("distributor_id"),
	schema.Str("commodity_price").Opt(),
	schema.Str("selling_price").Opt(),
	schema.Bool("is_compose").Opt(),
	group().Opt(),
)

// StockInfoUpdate validates partial stock window updates
var StockInfoUpdate = schema.New(1,
	schema.Str("purchase_begin_time").Opt(),
	schema.Str("purchase_end_time").Opt(),
	schema.Str("stock_enter_begin_time").Opt(),
	schema.Str("stock_enter_end_time").Opt(),
	schema.Str("total_num").Opt(),
	schema.Str("available_total_num").Opt(),
)

// Order validates StoreOrder payloads
var Order = schema.New(1,
	schema.Str("order_id"),
	schema.Str("trade_no").Opt(),
	schema.Str("token_id"),
	schema.Str("seller_id"),
	schema.Str("buyer_id"),
	schema.Str("amount"),
	schema.Str("price").Opt(),
	schema.Str("order_time"),
	schema.Arr("stock_batch_info", stockBatchEntry()),
)

// Refund validates StoreRefund payloads
var Refund = schema.New(1,
	schema.Str("refund_id"),
	schema.Str("order_id"),
	schema.Str("token_id"),
	schema.Str("owner"),
	schema.Str("amount"),
	schema.Str("refund_time"),
	schema.Arr("stock_batch_info", stockBatchEntry()),
)
