package registry

import "strings"

const (
	CoinAPT    = "0x1::aptos_coin::AptosCoin"
	CoinLzUSDC = "0xf22bede237a07e121b56d91a491eb7bcdfd1f5907926a9e58338f964a01b17fa::asset::USDC"
	CoinLzWETH = "0xf22bede237a07e121b56d91a491eb7bcdfd1f5907926a9e58338f964a01b17fa::asset::WETH"
	CoinWhUSDC = "0x5e156f1207d0ebfa19a9eeff00d62a282278fb8719f4fab3a586a0a2c0fffbea::coin::T"
	CoinTHL    = "0x7fd500c11216f0fe3095d0c4b8aa4d64a4e2e04f83758462f2b127255643615::thl_coin::THL"
	CoinMOD    = "0x6f986d146e4a90b828d8c12c14b6f4e003fdff11a8eecceceb63744363eaac01::mod_coin::MOD"
	CoinAmAPT  = "0x111ae3e5bc816a5e63c2da97d0aa3886519e0cd5e4b046659fa35796bd11542a::amapt_token::AmnisApt"
	CoinStAPT  = "0x111ae3e5bc816a5e63c2da97d0aa3886519e0cd5e4b046659fa35796bd11542a::stapt_token::StakedApt"
	CoinCAKE   = "0x159df6b7689437016108a019fd5bef736bac692b6d4a1f10c941f6fbb9a74ca6::oft::CakeOFT"

	// Native fungible assets are addressed by their metadata object.
	AssetUSDC = "0xbae207659db88bea0cbead6da0ed00aac12edcdda169e591cd41c94180b46f3b"
	AssetUSDT = "0x357b0b74bc833e95a115ad22604854d6b0fca151cecd94111770e5d6ffc9dc2b"
)

// TokenInfo describes a token the transfer action can size amounts for.
type TokenInfo struct {
	Symbol   string
	ID       string
	Decimals int
}

var tokenInfo = []TokenInfo{
	{Symbol: "APT", ID: CoinAPT, Decimals: 8},
	{Symbol: "USDC", ID: AssetUSDC, Decimals: 6},
	{Symbol: "USDT", ID: AssetUSDT, Decimals: 6},
	{Symbol: "lzUSDC", ID: CoinLzUSDC, Decimals: 6},
	{Symbol: "whUSDC", ID: CoinWhUSDC, Decimals: 6},
	{Symbol: "WETH", ID: CoinLzWETH, Decimals: 6},
	{Symbol: "THL", ID: CoinTHL, Decimals: 8},
	{Symbol: "MOD", ID: CoinMOD, Decimals: 8},
	{Symbol: "amAPT", ID: CoinAmAPT, Decimals: 8},
	{Symbol: "stAPT", ID: CoinStAPT, Decimals: 8},
	{Symbol: "CAKE", ID: CoinCAKE, Decimals: 8},
}

// TokenByID returns metadata for a canonical token identifier.
func TokenByID(id string) (TokenInfo, bool) {
	for _, t := range tokenInfo {
		if strings.EqualFold(t.ID, strings.TrimSpace(id)) {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// IsCoinType reports whether id is a Move struct path (address::module::Name).
func IsCoinType(id string) bool {
	return strings.Count(id, "::") == 2
}
