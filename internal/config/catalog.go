package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/RoeeEidan/Chain-Prices/internal/models"
)

type catalogFile struct {
	Assets []models.Asset `yaml:"assets"`
}

// DefaultCatalog is the mainnet Chainlink USD feed set used when no catalog
// file is present.
func DefaultCatalog() []models.Asset {
	return []models.Asset{
		{ID: "BTC", Name: "Bitcoin", PriceFeed: "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"},
		{ID: "ETH", Name: "Ethereum", PriceFeed: "0x5f4ec3df9cbd43714fe2740f5e3616155c5b8419"},
		{ID: "AAVE", Name: "Aave", PriceFeed: "0x547a514d5e3769680Ce22B2361c10Ea13619e8a9", Token: "0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9"},
		{ID: "COMP", Name: "Compound", PriceFeed: "0xdbd020CAeF83eFd542f4De03e3cF0C28A4428bd5", Token: "0xc00e94Cb662C3520282E6f5717214004A7f26888"},
		{ID: "LINK", Name: "Chainlink", PriceFeed: "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c", Token: "0x514910771AF9Ca656af840dff83E8264EcF986CA"},
		{ID: "UNI", Name: "Uniswap", PriceFeed: "0x553303d460EE0afB37EdFf9bE42922D8FF63220e", Token: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"},
		{ID: "SNX", Name: "Synthetix", PriceFeed: "0xdc3ea94cd0ac27d9a86c180091e7f78c683d3699", Token: "0xC011a73ee8576Fb46F5E1c5751cA3B9Fe0af2a6F"},
		{ID: "YFI", Name: "Yearn Finance", PriceFeed: "0x7c5d4f8345e66f68099581db340cd65b078c41f4", Token: "0x0bc529c00C6401aEF6D220BE8C6Ea1667F6Ad93e"},
		{ID: "USDC", Name: "USD Coin", PriceFeed: "0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6", Token: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		{ID: "DAI", Name: "Dai", PriceFeed: "0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9", Token: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
		{ID: "USDT", Name: "Tether", PriceFeed: "0x3E7d1eAB13ad0104d2750B8863b489D65364e32D", Token: "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
	}
}

// LoadCatalog reads the asset catalog from a YAML file. A missing file falls
// back to DefaultCatalog; a malformed one is an error.
func LoadCatalog(path string) ([]models.Asset, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("path", path).Info("catalog file not found, using built-in catalog")
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]models.Asset, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range f.Assets {
		f.Assets[i].ID = strings.ToUpper(strings.TrimSpace(f.Assets[i].ID))
		if f.Assets[i].Name == "" {
			f.Assets[i].Name = f.Assets[i].ID
		}
	}
	return f.Assets, nil
}

func ValidateCatalog(assets []models.Asset) error {
	if len(assets) == 0 {
		return errors.New("catalog has no assets")
	}
	var errs []string
	seen := make(map[string]struct{}, len(assets))
	for i, a := range assets {
		if a.ID == "" {
			errs = append(errs, fmt.Sprintf("asset #%d has no id", i))
			continue
		}
		if _, dup := seen[a.ID]; dup {
			errs = append(errs, fmt.Sprintf("asset %s is listed twice", a.ID))
		}
		seen[a.ID] = struct{}{}
		if !common.IsHexAddress(a.PriceFeed) {
			errs = append(errs, fmt.Sprintf("asset %s: invalid feed address %q", a.ID, a.PriceFeed))
		}
		if a.HasToken() && !common.IsHexAddress(a.Token) {
			errs = append(errs, fmt.Sprintf("asset %s: invalid token address %q", a.ID, a.Token))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
