package sentinel

import (
	"encoding/json"
	"regexp"
	"strings"

	"tradesentinel/src/utils"
)

// Action is one instruction extracted from the reasoning output.
type Action struct {
	Type       string   `json:"type"`
	Symbol     string   `json:"symbol"`
	AmountUSD  float64  `json:"amount_usd,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Action types the executor understands. Anything else is logged and
// skipped.
const (
	ActionBuy           = "buy"
	ActionSell          = "sell"
	ActionHold          = "hold"
	ActionSetStopLoss   = "set_stop_loss"
	ActionSetTakeProfit = "set_take_profit"
)

// Decision is the structured outcome of one reasoning call.
type Decision struct {
	Sentiment string   `json:"sentiment"`
	Actions   []Action `json:"actions"`
	Summary   string   `json:"summary"`
}

var decisionFencePattern = regexp.MustCompile("(?s)```(?:decision|json)\\s*(\\{.*?\\})\\s*```")

// ParseDecision extracts the structured decision from raw reasoning
// output. Three attempts, most to least strict: the fenced ```decision
// (or ```json) block, then any balanced JSON object containing an
// "actions" key, then
// the last balanced JSON object in the text. A nil decision with a nil
// error means the output was prose only; the caller records the run
// without acting.
func ParseDecision(raw string) *Decision {
	if m := decisionFencePattern.FindStringSubmatch(raw); m != nil {
		if d := unmarshalDecision(m[1]); d != nil {
			return d
		}
	}

	objects := utils.JSONObjects(raw)

	for _, candidate := range objects {
		if !strings.Contains(candidate, `"actions"`) {
			continue
		}
		if d := unmarshalDecision(candidate); d != nil {
			return d
		}
	}

	for i := len(objects) - 1; i >= 0; i-- {
		if d := unmarshalDecision(objects[i]); d != nil {
			return d
		}
	}

	return nil
}

func unmarshalDecision(text string) *Decision {
	var d Decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil
	}
	if d.Sentiment == "" && len(d.Actions) == 0 && d.Summary == "" {
		return nil
	}
	return &d
}
