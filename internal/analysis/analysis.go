// Package analysis asks a language model for a qualitative supply risk narrative
// over small samples of supply and demand data.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lox/shrimpwatch/internal/logger"
)

const (
	DefaultMaxRows   = 200
	MaxPayloadLength = 20000
)

// DefaultDemandContext is sent when no demand context is given.
const DefaultDemandContext = "We expect higher demand for lettuce over the next 60 days."

// Instructions frame every analysis request.
const Instructions = "You are a supply-chain risk analyst. Using the USDA/open-data sample plus demand context, " +
	"estimate supply availability risk for 30/60/90 days and give purchasing guidance. " +
	"Be explicit about uncertainty and data gaps. Return bullet points + a short JSON summary."

// Completer sends instructions and input to a model and returns its text output.
type Completer interface {
	Complete(ctx context.Context, instructions, input string) (string, error)
}

type Config struct {
	SupplyPath    string
	DemandPath    string // optional
	DemandContext string // defaults to DefaultDemandContext
	MaxRows       int
}

type payload struct {
	USDASample        []Record `json:"usda_sample"`
	USDAColumns       []string `json:"usda_columns"`
	DemandSample      []Record `json:"demand_sample"`
	DemandColumns     []string `json:"demand_columns"`
	DemandContextText string   `json:"demand_context_text"`
}

// BuildInput loads both samples and renders the request input, cut to MaxPayloadLength characters.
func BuildInput(cfg Config) (string, error) {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.DemandContext == "" {
		cfg.DemandContext = DefaultDemandContext
	}

	supply, err := LoadTable(cfg.SupplyPath)
	if err != nil {
		return "", fmt.Errorf("load supply sample: %w", err)
	}
	demand, err := LoadTable(cfg.DemandPath)
	if err != nil {
		return "", fmt.Errorf("load demand sample: %w", err)
	}

	p := payload{
		USDASample:        supply.Tail(cfg.MaxRows),
		USDAColumns:       nonNil(supply.Columns),
		DemandSample:      []Record{},
		DemandColumns:     []string{},
		DemandContextText: cfg.DemandContext,
	}
	if len(demand.Rows) > 0 {
		p.DemandSample = demand.Tail(cfg.MaxRows)
		p.DemandColumns = demand.Columns
	}

	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return truncateRunes(string(b), MaxPayloadLength), nil
}

// Run builds the payload and returns the model's narrative.
func Run(ctx context.Context, c Completer, cfg Config) (string, error) {
	input, err := BuildInput(cfg)
	if err != nil {
		return "", err
	}

	logger.L().Info().Int("payload_chars", len([]rune(input))).Msg("analysis: requesting narrative")

	out, err := c.Complete(ctx, Instructions, input)
	if err != nil {
		return "", fmt.Errorf("supply analysis: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
