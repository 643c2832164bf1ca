package models

// Asset is a static catalog entry. Token is empty when the asset has no
// ERC-20 contract to read total supply from.
type Asset struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	PriceFeed string `json:"priceFeed" yaml:"feed"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
}

func (a Asset) HasToken() bool { return a.Token != "" }
