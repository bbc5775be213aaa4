package domain

import "strings"

// NativeAssetCode is the code used for the network's native asset.
const NativeAssetCode = "XLM"

// Asset identifies a tradable asset: the native asset, or an issued asset
// addressed by its code and issuer account.
type Asset struct {
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset returns the native asset.
func NativeAsset() Asset {
	return Asset{Code: NativeAssetCode}
}

// IsNative reports whether the asset is the network's native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && strings.EqualFold(a.Code, NativeAssetCode)
}

// String returns "CODE" for the native asset or "CODE:ISSUER" otherwise.
func (a Asset) String() string {
	if a.IsNative() {
		return a.Code
	}
	return a.Code + ":" + a.Issuer
}

// TradingPair is an ordered (base, counter) asset combination. Pairs are
// immutable once constructed; they come from the pair catalog and are treated
// as read-only input for each analysis run.
type TradingPair struct {
	Base    Asset `json:"base"`
	Counter Asset `json:"counter"`
}

// Key returns a stable identifier for the pair, e.g. "XLM/USDC:GA...".
func (p TradingPair) Key() string {
	return p.Base.String() + "/" + p.Counter.String()
}
