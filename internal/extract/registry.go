package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Marketplace 标识一个独立的电商站点。
type Marketplace string

const (
	MarketplaceAmazon    Marketplace = "amazon"
	MarketplaceTokopedia Marketplace = "tokopedia"
	MarketplaceBlibli    Marketplace = "blibli"
)

// ErrUnknownMarketplace 表示商品 URL 无法归类到任何已注册站点。
//
// 这是数据分类错误，不是解析错误：由编排器按跳过并告警处理。
var ErrUnknownMarketplace = errors.New("unknown marketplace")

// Registry 把站点标识映射到对应的提取器。
//
// 新增一个站点只需要实现一个 Extractor 并在 NewRegistry 里
// 注册一条映射。
type Registry struct {
	extractors map[Marketplace]Extractor
}

// NewRegistry 创建包含全部内置站点的注册表。
func NewRegistry() *Registry {
	return &Registry{
		extractors: map[Marketplace]Extractor{
			MarketplaceAmazon:    Amazon{},
			MarketplaceTokopedia: Tokopedia{},
			MarketplaceBlibli:    Blibli{},
		},
	}
}

// Lookup 根据商品 URL 解析站点并返回对应的提取器。
func (r *Registry) Lookup(productURL string) (Marketplace, Extractor, error) {
	mp, err := Identify(productURL)
	if err != nil {
		return "", nil, err
	}
	ex, ok := r.extractors[mp]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownMarketplace, mp)
	}
	return mp, ex, nil
}

// Identify 从商品 URL 的主机名推断站点标识。
func Identify(productURL string) (Marketplace, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %s", ErrUnknownMarketplace, productURL)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "amazon."):
		return MarketplaceAmazon, nil
	case strings.Contains(host, "tokopedia."):
		return MarketplaceTokopedia, nil
	case strings.Contains(host, "blibli."):
		return MarketplaceBlibli, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownMarketplace, host)
	}
}
