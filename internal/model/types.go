package model

import "time"

const EnvelopeVersion = "v1"

// Envelope is the CLI output contract. Action results travel inside Data as
// a Response so the success/result/error invariant survives serialization.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	RequiresKey  bool     `json:"requires_key"`
	Capabilities []string `json:"capabilities"`
	BaseURL      string   `json:"base_url"`
}

type ActionInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []string `json:"params"`
	Examples    []string `json:"examples"`
}

type ChainTVL struct {
	Rank   int     `json:"rank,omitempty"`
	Chain  string  `json:"chain"`
	TVLUSD float64 `json:"tvl_usd"`
}

type ProtocolTVL struct {
	Rank     int     `json:"rank,omitempty"`
	Protocol string  `json:"protocol"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
	Chain    string  `json:"chain,omitempty"`
	TVLUSD   float64 `json:"tvl_usd"`
	// AsOf is set for historical lookups and is the date of the data point used.
	AsOf string `json:"as_of,omitempty"`
	Note string `json:"note,omitempty"`
}

type ProtocolComparison struct {
	Chain     string        `json:"chain,omitempty"`
	Protocols []ProtocolTVL `json:"protocols"`
	Missing   []string      `json:"missing,omitempty"`
}

type Pool struct {
	PoolID    string  `json:"pool_id"`
	Project   string  `json:"project"`
	Chain     string  `json:"chain"`
	Symbol    string  `json:"symbol"`
	TVLUSD    float64 `json:"tvl_usd"`
	APY       float64 `json:"apy"`
	APYBase   float64 `json:"apy_base"`
	APYReward float64 `json:"apy_reward"`
}

type Price struct {
	Symbol      string  `json:"symbol"`
	FeedID      string  `json:"feed_id"`
	PriceUSD    float64 `json:"price_usd"`
	Confidence  float64 `json:"confidence"`
	PublishTime string  `json:"publish_time"`
	Cached      bool    `json:"cached"`
}

// EntryFunction is an unsigned Move entry-function call.
type EntryFunction struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

type TxResult struct {
	Hash     string `json:"hash"`
	Success  bool   `json:"success"`
	VMStatus string `json:"vm_status,omitempty"`
	Version  string `json:"version,omitempty"`
}

type Transfer struct {
	Token           string        `json:"token"`
	Symbol          string        `json:"symbol,omitempty"`
	Recipient       string        `json:"recipient"`
	AmountDecimal   string        `json:"amount_decimal"`
	AmountBaseUnits string        `json:"amount_base_units"`
	Payload         EntryFunction `json:"payload"`
	Submitted       *TxResult     `json:"submitted,omitempty"`
}

type NFTMint struct {
	Collection  string        `json:"collection"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	URI         string        `json:"uri"`
	Payload     EntryFunction `json:"payload"`
	Submitted   *TxResult     `json:"submitted,omitempty"`
}
