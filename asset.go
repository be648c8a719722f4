package core

import (
	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/shopspring/decimal"
)

type (
	// Asset identifies a ledger asset (AssetId) and its oracle symbol.
	Asset struct {
		AssetId   string          `json:"assetId" toml:"asset_id" yaml:"asset_id"`
		Symbol    string          `json:"symbol" toml:"symbol" yaml:"symbol"`
		Name      string          `json:"name,omitempty" toml:"name" yaml:"name"`
		ChainId   string          `json:"chainId,omitempty" toml:"chain_id" yaml:"chain_id"`
		Precision int32           `json:"precision,omitempty" toml:"precision" yaml:"precision"`
		Dust      decimal.Decimal `json:"dust,omitempty" toml:"-" yaml:"-"`
	}

	TradingPair struct {
		Collateral Asset `json:"collateral" toml:"collateral" yaml:"collateral"`
		Borrow     Asset `json:"borrow" toml:"borrow" yaml:"borrow"`
	}
)

func NewAssetFromMixin(asset *mixin.SafeAsset) *Asset {
	return &Asset{
		AssetId:   asset.AssetID,
		Symbol:    asset.Symbol,
		Name:      asset.Name,
		ChainId:   asset.ChainID,
		Precision: asset.Precision,
		Dust:      asset.Dust,
	}
}

func (a Asset) Valid() bool {
	return a.AssetId != "" && a.Symbol != ""
}

func (p TradingPair) Equal(other TradingPair) bool {
	return p.Collateral.AssetId == other.Collateral.AssetId && p.Borrow.AssetId == other.Borrow.AssetId
}

func (p TradingPair) String() string {
	return p.Collateral.Symbol + "/" + p.Borrow.Symbol
}
