// Package cachemgr перехватывает запросы страницы к ресурсам и обслуживает их
// из двух поколений кеша (static и dynamic) со stale-while-revalidate.
package cachemgr

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultVersion      = "1.0.0"
	defaultStaticCache  = "static-cache-v1"
	defaultDynamicCache = "dynamic-cache-v1"
	defaultOfflinePage  = "/offline.html"
	defaultAPIPrefix    = "/api/"
)

// Manifest описывает версию кеша и фиксированный набор статических ресурсов.
type Manifest struct {
	Version      string   `yaml:"version"`
	StaticCache  string   `yaml:"static_cache"`
	DynamicCache string   `yaml:"dynamic_cache"`
	OfflinePage  string   `yaml:"offline_page"`
	APIPrefix    string   `yaml:"api_prefix"`
	Assets       []string `yaml:"assets"`
}

// DefaultManifest возвращает набор ресурсов приложения по умолчанию.
func DefaultManifest() Manifest {
	return Manifest{
		Version:      defaultVersion,
		StaticCache:  defaultStaticCache,
		DynamicCache: defaultDynamicCache,
		OfflinePage:  defaultOfflinePage,
		APIPrefix:    defaultAPIPrefix,
		Assets: []string{
			"/",
			"/index.php",
			"/order.php",
			"/app.html",
			"/app.js",
			"/style.css",
			"/manifest.json",
			"/offline.html",
			"/assets/logo.png",
			"/assets/logotop.png",
			"/assets/hero.jpg",
			"/assets/burger.jpg",
			"/assets/pizza.jpg",
			"/assets/iceCream.jpg",
			"/assets/restaurant1.jpg",
			"/assets/restaurant2.jpg",
			"/assets/restaurant3.jpg",
			"/assets/restaurant4.jpg",
			"/assets/logo-192.png",
			"/assets/logo-512.png",
		},
	}
}

// LoadManifest читает YAML-манифест; незаполненные поля берутся из DefaultManifest.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(raw)
}

// ParseManifest разбирает YAML-манифест.
func ParseManifest(raw []byte) (Manifest, error) {
	var parsed Manifest
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	defaults := DefaultManifest()
	if parsed.Version == "" {
		parsed.Version = defaults.Version
	}
	if parsed.StaticCache == "" {
		parsed.StaticCache = defaults.StaticCache
	}
	if parsed.DynamicCache == "" {
		parsed.DynamicCache = defaults.DynamicCache
	}
	if parsed.OfflinePage == "" {
		parsed.OfflinePage = defaults.OfflinePage
	}
	if parsed.APIPrefix == "" {
		parsed.APIPrefix = defaults.APIPrefix
	}
	if len(parsed.Assets) == 0 {
		parsed.Assets = defaults.Assets
	}

	parsed = parsed.normalized()
	if err := parsed.Validate(); err != nil {
		return Manifest{}, err
	}
	return parsed, nil
}

// Validate проверяет согласованность манифеста.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.StaticCache) == "" || strings.TrimSpace(m.DynamicCache) == "" {
		return errors.New("manifest: static_cache and dynamic_cache are required")
	}
	if m.StaticCache == m.DynamicCache {
		return fmt.Errorf("manifest: static and dynamic cache names must differ (%q)", m.StaticCache)
	}
	if !strings.HasPrefix(m.APIPrefix, "/") {
		return fmt.Errorf("manifest: api_prefix must start with '/': %q", m.APIPrefix)
	}
	for _, asset := range m.Assets {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("manifest: asset must be an absolute path: %q", asset)
		}
	}
	return nil
}

// normalized убирает дубликаты ассетов и гарантирует, что offline-страница кешируется при установке.
func (m Manifest) normalized() Manifest {
	seen := make(map[string]struct{}, len(m.Assets)+1)
	assets := make([]string, 0, len(m.Assets)+1)
	for _, asset := range m.Assets {
		asset = strings.TrimSpace(asset)
		if asset == "" {
			continue
		}
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		assets = append(assets, asset)
	}
	if m.OfflinePage != "" {
		if _, ok := seen[m.OfflinePage]; !ok {
			assets = append(assets, m.OfflinePage)
		}
	}
	m.Assets = assets
	return m
}

// isCurrent сообщает, является ли поколение текущим.
func (m Manifest) isCurrent(name string) bool {
	return name == m.StaticCache || name == m.DynamicCache
}
