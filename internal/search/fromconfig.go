package search

import (
	"prospect/internal/config"
	"prospect/internal/logger"
)

// FromConfig builds a registry from the configured provider list. Providers
// that cannot be constructed (missing keys) are skipped with a warning so a
// partially configured setup still searches.
func FromConfig(cfg config.Search) *Registry {
	var providers []Provider
	for _, name := range cfg.EnabledProviders {
		p, err := buildProvider(ProviderType(name), cfg)
		if err != nil {
			logger.Warn("skipping search provider", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}

	var opts []RegistryOption
	if ttl := config.Duration(cfg.CacheTTL, DefaultCacheTTL); ttl > 0 {
		opts = append(opts, WithCacheTTL(ttl))
	}
	return NewRegistry(providers, opts...)
}

func buildProvider(providerType ProviderType, cfg config.Search) (Provider, error) {
	switch providerType {
	case ProviderTypeGoogle:
		p, err := NewProvider(providerType, map[string]string{
			"api_key":   cfg.Providers.Google.APIKey,
			"search_id": cfg.Providers.Google.SearchID,
		})
		if err != nil {
			return nil, err
		}
		p.(*GoogleProvider).SetRateLimit(cfg.Providers.Google.RatePerMinute)
		return p, nil
	case ProviderTypeSerpAPI:
		p, err := NewProvider(providerType, map[string]string{
			"api_key": cfg.Providers.SerpAPI.APIKey,
		})
		if err != nil {
			return nil, err
		}
		p.(*SerpAPIProvider).SetRateLimit(cfg.Providers.SerpAPI.RatePerMinute)
		return p, nil
	case ProviderTypeDuckDuckGo:
		p, err := NewProvider(providerType, nil)
		if err != nil {
			return nil, err
		}
		p.(*DuckDuckGoProvider).SetRateLimit(cfg.Providers.DuckDuckGo.RatePerMinute)
		return p, nil
	default:
		return NewProvider(providerType, nil)
	}
}
