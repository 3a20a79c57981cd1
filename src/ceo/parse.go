package ceo

import (
	"encoding/json"
	"regexp"
	"strings"

	"tradesentinel/src/model"
	"tradesentinel/src/utils"
)

// parsedDirective is the wire shape of the fenced directive block.
type parsedDirective struct {
	Regime             string                     `json:"regime"`
	Bias               string                     `json:"bias"`
	RiskLevel          int                        `json:"risk_level"`
	Coins              []model.CoinGuidance       `json:"coins"`
	Zones              map[string]model.PriceZone `json:"zones"`
	RiskGuidelines     string                     `json:"risk_guidelines"`
	Avoid              []string                   `json:"avoid"`
	EscalationTriggers []string                   `json:"escalation_triggers"`
	Summary            string                     `json:"summary"`
}

var directiveFencePattern = regexp.MustCompile("(?s)```directive\\s*(\\{.*?\\})\\s*```")

// parseDirective extracts the directive from raw reasoning output: the
// fenced ```directive block first, then any balanced JSON object
// carrying a "regime" key, then the last balanced JSON object in the
// text. nil means no usable directive was produced.
func parseDirective(raw string) *parsedDirective {
	if m := directiveFencePattern.FindStringSubmatch(raw); m != nil {
		if d := unmarshalDirective(m[1]); d != nil {
			return d
		}
	}

	objects := utils.JSONObjects(raw)

	for _, candidate := range objects {
		if !strings.Contains(candidate, `"regime"`) {
			continue
		}
		if d := unmarshalDirective(candidate); d != nil {
			return d
		}
	}

	for i := len(objects) - 1; i >= 0; i-- {
		if d := unmarshalDirective(objects[i]); d != nil {
			return d
		}
	}
	return nil
}

func unmarshalDirective(text string) *parsedDirective {
	var d parsedDirective
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil
	}
	if d.Regime == "" {
		return nil
	}
	if d.RiskLevel < 1 {
		d.RiskLevel = 1
	}
	if d.RiskLevel > 10 {
		d.RiskLevel = 10
	}
	if d.Bias == "" {
		d.Bias = model.BiasNeutral
	}
	return &d
}
