package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"grocery-price/internal/model"

	"gopkg.in/yaml.v3"
)

// StoresFile is the YAML store catalogue seeded at startup
type StoresFile struct {
	Stores []*model.Store `yaml:"stores"`
}

// DefaultStores is the catalogue used when no stores file exists
func DefaultStores() []*model.Store {
	return []*model.Store{
		{Code: "TNT", Name: "T&T Supermarket", BaseURL: "https://www.tntsupermarket.com", Active: true},
		{Code: "WALMART", Name: "Walmart Canada", BaseURL: "https://www.walmart.ca", Active: true},
		{Code: "RCSS", Name: "Real Canadian Superstore", BaseURL: "https://www.realcanadiansuperstore.ca", Active: true},
		{Code: "PRICESMART", Name: "PriceSmart Foods", BaseURL: "https://www.pricesmartfoods.com", Active: true},
	}
}

func (f *StoresFile) defaults() error {
	seen := make(map[string]bool, len(f.Stores))
	for i, s := range f.Stores {
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return fmt.Errorf("store %d: code is required", i)
		}
		if seen[s.Code] {
			return fmt.Errorf("store %s: duplicate code", s.Code)
		}
		seen[s.Code] = true
		if s.Name == "" {
			s.Name = s.Code
		}
		s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	}
	return nil
}

// LoadStores reads the stores YAML file. A missing file yields DefaultStores.
func LoadStores(path string) ([]*model.Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultStores(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stores file: %w", err)
	}

	f := &StoresFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse stores file: %w", err)
	}
	if err := f.defaults(); err != nil {
		return nil, err
	}
	return f.Stores, nil
}
