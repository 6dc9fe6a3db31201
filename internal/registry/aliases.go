package registry

// Alias maps a user-facing name onto the identifier a collaborator expects.
// Within each list longer and more specific aliases are declared first so a
// short alias cannot mask a longer one ("arbitrum one" before "arbitrum").
type Alias struct {
	Alias     string
	Canonical string
}

// Chain display names are the ones DefiLlama uses in /v2/chains and in
// protocol chainTvls.
const (
	ChainAptos     = "Aptos"
	ChainArbitrum  = "Arbitrum"
	ChainOptimism  = "OP Mainnet"
	ChainEthereum  = "Ethereum"
	ChainBase      = "Base"
	ChainPolygon   = "Polygon"
	ChainBSC       = "BSC"
	ChainAvalanche = "Avalanche"
	ChainSolana    = "Solana"
	ChainSui       = "Sui"
)

var ChainAliases = []Alias{
	{"arbitrum one", ChainArbitrum},
	{"arbitrum", ChainArbitrum},
	{"op mainnet", ChainOptimism},
	{"optimism", ChainOptimism},
	{"zksync era", "zkSync Era"},
	{"zksync", "zkSync Era"},
	{"bnb smart chain", ChainBSC},
	{"binance smart chain", ChainBSC},
	{"bnb chain", ChainBSC},
	{"bsc", ChainBSC},
	{"aptos", ChainAptos},
	{"ethereum", ChainEthereum},
	{"eth mainnet", ChainEthereum},
	{"base", ChainBase},
	{"polygon", ChainPolygon},
	{"matic", ChainPolygon},
	{"avalanche", ChainAvalanche},
	{"avax", ChainAvalanche},
	{"solana", ChainSolana},
	{"sui", ChainSui},
	{"movement", "Movement"},
	{"linea", "Linea"},
	{"blast", "Blast"},
	{"mantle", "Mantle"},
	{"fantom", "Fantom"},
	{"tron", "Tron"},
	{"gnosis", "xDai"},
	{"sei", "Sei"},
}

// ProtocolAliases resolve to DefiLlama protocol slugs.
var ProtocolAliases = []Alias{
	{"thala labs", "thala"},
	{"thala", "thala"},
	{"joule finance", "joule-finance"},
	{"joule", "joule-finance"},
	{"aries markets", "aries-markets"},
	{"aries", "aries-markets"},
	{"echelon market", "echelon-market"},
	{"echelon", "echelon-market"},
	{"amnis finance", "amnis-finance"},
	{"amnis", "amnis-finance"},
	{"liquidswap", "liquidswap"},
	{"pontem", "liquidswap"},
	{"merkle trade", "merkle-trade"},
	{"merkle", "merkle-trade"},
	{"cellana finance", "cellana-finance"},
	{"cellana", "cellana-finance"},
	{"tortuga", "tortuga"},
	{"pancakeswap", "pancakeswap"},
	{"pancake", "pancakeswap"},
	{"uniswap v3", "uniswap-v3"},
	{"uniswap v2", "uniswap-v2"},
	{"uniswap", "uniswap"},
	{"aave v3", "aave-v3"},
	{"aave v2", "aave-v2"},
	{"aave", "aave"},
	{"compound", "compound-finance"},
	{"makerdao", "makerdao"},
	{"maker", "makerdao"},
	{"curve", "curve-dex"},
	{"lido", "lido"},
	{"morpho", "morpho"},
	{"spark", "spark"},
	{"eigenlayer", "eigenlayer"},
	{"pendle", "pendle"},
	{"sushiswap", "sushi"},
	{"sushi", "sushi"},
	{"balancer", "balancer"},
	{"gmx", "gmx"},
	{"jupiter", "jupiter"},
	{"raydium", "raydium"},
	{"hyperliquid", "hyperliquid"},
}

// TokenAliases resolve to Aptos coin type paths or fungible asset addresses.
var TokenAliases = []Alias{
	{"aptos coin", CoinAPT},
	{"apt", CoinAPT},
	{"layerzero usdc", CoinLzUSDC},
	{"lzusdc", CoinLzUSDC},
	{"wormhole usdc", CoinWhUSDC},
	{"whusdc", CoinWhUSDC},
	{"usdc", AssetUSDC},
	{"usdt", AssetUSDT},
	{"thala token", CoinTHL},
	{"thl", CoinTHL},
	{"move dollar", CoinMOD},
	{"mod", CoinMOD},
	{"amapt", CoinAmAPT},
	{"stapt", CoinStAPT},
	{"weth", CoinLzWETH},
	{"cake", CoinCAKE},
}

// ChainRule pins a chain when a trigger phrase names a protocol that only
// exists on that chain. Rules are evaluated in declaration order.
type ChainRule struct {
	Trigger string
	Chain   string
}

var SingleChainProtocols = []ChainRule{
	{"thala", ChainAptos},
	{"joule", ChainAptos},
	{"amnis", ChainAptos},
	{"aries", ChainAptos},
	{"echelon", ChainAptos},
	{"liquidswap", ChainAptos},
	{"pontem", ChainAptos},
	{"merkle", ChainAptos},
	{"cellana", ChainAptos},
	{"tortuga", ChainAptos},
}

// DefaultChain is used when text names no chain at all.
const DefaultChain = ChainAptos
