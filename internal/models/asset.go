package models

import "strings"

// Asset is a supported settlement currency
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetUSDT Asset = "USDT"
)

// Assets lists supported assets in a stable order
var Assets = []Asset{AssetBTC, AssetETH, AssetUSDT}

// ParseAsset converts string to Asset, case-insensitive
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Assets {
		if a == known {
			return a, nil
		}
	}
	return "", ErrAssetNotSupported
}

func (a Asset) String() string {
	return string(a)
}
