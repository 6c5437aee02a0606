package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderID identifies a simulated gateway (Stripe, PayPal, MercadoPago)
type ProviderID string

func (p ProviderID) key() string {
	return strings.ToLower(strings.TrimSpace(string(p)))
}

// GatewayDescriptor is the static metadata of one provider
type GatewayDescriptor struct {
	Gateway             ProviderID  `json:"gateway"`
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	SupportedCurrencies []string    `json:"supportedCurrencies"`
	SupportedCardTypes  []CardBrand `json:"supportedCardTypes"`
	IsActive            bool        `json:"isActive"`
	IsSimulated         bool        `json:"isSimulated"`
}

// SupportsCurrency reports whether code is in the supported list
func (d GatewayDescriptor) SupportsCurrency(code string) bool {
	for _, c := range d.SupportedCurrencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func (d GatewayDescriptor) clone() GatewayDescriptor {
	d.SupportedCurrencies = slices.Clone(d.SupportedCurrencies)
	d.SupportedCardTypes = slices.Clone(d.SupportedCardTypes)
	return d
}

//go:embed gateways.yaml
var defaultGatewaysYAML []byte

type gatewaysFile struct {
	Gateways []gatewayEntry `yaml:"gateways"`
}

// gatewayEntry leaves the flags nil when the file omits them
type gatewayEntry struct {
	Gateway             string   `yaml:"gateway"`
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	SupportedCurrencies []string `yaml:"supportedCurrencies"`
	SupportedCardTypes  []string `yaml:"supportedCardTypes"`
	IsActive            *bool    `yaml:"isActive"`
	IsSimulated         *bool    `yaml:"isSimulated"`
}

// LoadGatewayDescriptors reads descriptors from path, or the embedded
// defaults when path is empty
func LoadGatewayDescriptors(path string) ([]GatewayDescriptor, error) {
	data := defaultGatewaysYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read gateways file: %w", err)
		}
	}
	return parseGatewayDescriptors(data)
}

func parseGatewayDescriptors(data []byte) ([]GatewayDescriptor, error) {
	var file gatewaysFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse gateways file: %w", err)
	}
	if len(file.Gateways) == 0 {
		return nil, errors.New("gateways file declares no gateways")
	}

	out := make([]GatewayDescriptor, 0, len(file.Gateways))
	for i, e := range file.Gateways {
		if strings.TrimSpace(e.Gateway) == "" {
			return nil, fmt.Errorf("gateway #%d has no identifier", i+1)
		}
		out = append(out, e.descriptor())
	}
	return out, nil
}

func (e gatewayEntry) descriptor() GatewayDescriptor {
	d := GatewayDescriptor{
		Gateway:             ProviderID(strings.TrimSpace(e.Gateway)),
		Name:                e.Name,
		Description:         strings.TrimSpace(e.Description),
		SupportedCurrencies: e.SupportedCurrencies,
		IsActive:            true,
		IsSimulated:         true,
	}
	if d.Name == "" {
		d.Name = string(d.Gateway)
	}
	for _, ct := range e.SupportedCardTypes {
		d.SupportedCardTypes = append(d.SupportedCardTypes, CardBrand(ct))
	}
	if len(d.SupportedCardTypes) == 0 {
		d.SupportedCardTypes = []CardBrand{CardVisa, CardMasterCard, CardAmericanExpress}
	}
	if e.IsActive != nil {
		d.IsActive = *e.IsActive
	}
	if e.IsSimulated != nil {
		d.IsSimulated = *e.IsSimulated
	}
	return d
}
