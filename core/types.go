package core

// types.go — centralised struct definitions for the durable data model
// (spec.md §3), kept in one file the way the teacher's common_structs.go
// centralises struct definitions referenced across modules to avoid
// cyclic imports.

import "time"

// BotStatus is the durable lifecycle flag of a bot record.
type BotStatus string

const (
	BotStatusRunning BotStatus = "running"
	BotStatusStopped BotStatus = "stopped"
)

// BotRecord is the durable record for one token's market-making worker,
// unique by TokenMint (spec.md §3).
type BotRecord struct {
	TokenMint        Address
	VaultStateAddr   Address
	OwnerKey         Address
	StrategyName     string
	StrategyConfig   []byte // opaque JSON blob
	TotalTrades      uint64
	TotalVolumeSOL   float64
	LastTradeTime    *time.Time
	Status           BotStatus
}

// VaultRecord is the durable record for one custody vault, unique by
// VaultStateAddress (spec.md §3).
type VaultRecord struct {
	VaultStateAddr Address
	OwnerKey       Address
	Nonce          uint8 // 0-99, unique per owner
	LockUntil      int64 // unix seconds
	StrategyID     uint8
	TokenMint      *Address // nullable
	IsCreator      bool
}

// SolHolderAddress derives the vault's SOL-holder PDA, the second PDA that
// spec.md §3 requires be a pure function of (owner, nonce) alongside
// VaultStateAddr.
func (v VaultRecord) SolHolderAddress() (Address, error) {
	addr, _, err := DeriveVaultSolHolder(v.OwnerKey, uint64(v.Nonce))
	return addr, err
}

// LogLevel is the severity of a BotLog row.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
	LogTrade LogLevel = "trade"
)

// BotLog is one append-only durable log row (spec.md §3). Retention: at
// most the latest 1,000 rows per TokenMint; the store trims older rows on
// every insert.
type BotLog struct {
	ID        string
	BotID     string
	TokenMint Address
	Message   string
	Level     LogLevel
	Timestamp time.Time
}

// TradeSide distinguishes a buy from a sell cycle (spec.md §4.4 step 8).
type TradeSide int

const (
	SideBuy TradeSide = iota
	SideSell
)

func (s TradeSide) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// TradeRequest is the executor-agnostic description of a desired trade
// (spec.md §4.2).
type TradeRequest struct {
	Side           TradeSide
	SolAmount      uint64 // lamports, buy only
	TokenAmount    uint64 // raw token units, sell only; 0 means "sell all"
	SlippageBps    uint16
	Mint           Address
	TokenCreator   Address // required input, spec.md §9 open question
	TokenProgramID Address // token-program flavor detected for this mint

	// Graduated and AMMPool carry the worker's own graduation state down
	// into the executor (spec.md §4.3): once set, BuildBuy/BuildSell route
	// through the AMM pool instead of deriving the (now-complete) bonding
	// curve. The worker is the sole owner of this state; the executor
	// never calls LocateAMMPool itself.
	Graduated bool
	AMMPool   Address
}

// TradeResult is what a successful executor call reports back to the
// worker (spec.md §4.4 step 11).
type TradeResult struct {
	Signature   string
	SolAmount   uint64
	TokenAmount uint64
}

// AggregateStats is the manager-level rollup spec.md §4.5 names.
type AggregateStats struct {
	TotalVolumeSOL float64
	TotalTrades    uint64
	ActiveCount    int
	TotalCount     int
}
