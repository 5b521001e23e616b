package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/aegis/pkg/policy"
)

// mnpiPhrases are explicit insider-information formulations. Any hit
// blocks outright; ticker mentions alone only escalate.
var mnpiPhrases = []string{
	"insider information",
	"material non-public",
	"material nonpublic",
	"non-public information",
	"confidential deal",
	"upcoming merger",
	"unannounced acquisition",
	"earnings before release",
	"pre-announcement",
}

var tickerPattern = regexp.MustCompile(`\$?\b[A-Z]{2,5}\b`)

// tickerStoplist filters uppercase common words the ticker heuristic
// would otherwise flag.
var tickerStoplist = map[string]bool{
	"AND": true, "THE": true, "FOR": true, "NOT": true, "ARE": true,
	"BUT": true, "ALL": true, "CAN": true, "HAS": true, "HAD": true,
	"WAS": true, "YOU": true, "OUR": true, "ITS": true, "PER": true,
	"CEO": true, "CFO": true, "USD": true, "USA": true, "LLC": true,
	"API": true, "FAQ": true, "ETF": true, "IPO": true, "SEC": true,
}

// MNPIPolicy screens text for material non-public information risk.
// Explicit insider phrases block; mentions of watched securities
// escalate for human review.
type MNPIPolicy struct {
	name      string
	watchlist map[string]bool
}

// NewMNPIPolicy creates an MNPI policy with an empty watchlist. With
// no securities configured, every plausible ticker mention escalates.
func NewMNPIPolicy(name string) *MNPIPolicy {
	return &MNPIPolicy{name: name, watchlist: map[string]bool{}}
}

// Name implements policy.Module.
func (p *MNPIPolicy) Name() string { return p.name }

// Configure implements policy.Module. Recognized options:
//
//	securities: list of ticker symbols to watch
func (p *MNPIPolicy) Configure(options map[string]any) error {
	v, ok := options["securities"]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("option \"securities\" must be a list, got %T", v)
	}
	watchlist := make(map[string]bool, len(list))
	for _, item := range list {
		symbol, ok := item.(string)
		if !ok {
			return fmt.Errorf("securities entries must be strings, got %T", item)
		}
		watchlist[strings.ToUpper(strings.TrimPrefix(symbol, "$"))] = true
	}
	p.watchlist = watchlist
	return nil
}

// Evaluate implements policy.Module.
func (p *MNPIPolicy) Evaluate(pctx *policy.Context) (*policy.Result, error) {
	text := pctx.Prompt
	if pctx.Checkpoint == policy.CheckpointOutput {
		text = pctx.Response
	}
	lower := strings.ToLower(text)

	for _, phrase := range mnpiPhrases {
		if strings.Contains(lower, phrase) {
			return &policy.Result{
				Outcome:         policy.OutcomeBlock,
				Reason:          fmt.Sprintf("MNPI phrase detected: %q", phrase),
				PolicyName:      p.name,
				ConfidenceScore: 0.9,
			}, nil
		}
	}

	if tickers := p.matchTickers(text); len(tickers) > 0 {
		return &policy.Result{
			Outcome:         policy.OutcomeEscalate,
			Reason:          fmt.Sprintf("Watched securities mentioned: %s", strings.Join(tickers, ", ")),
			PolicyName:      p.name,
			ConfidenceScore: 0.7,
		}, nil
	}

	return &policy.Result{
		Outcome:         policy.OutcomeAllow,
		Reason:          "No MNPI indicators",
		PolicyName:      p.name,
		ConfidenceScore: 1.0,
	}, nil
}

func (p *MNPIPolicy) matchTickers(text string) []string {
	var hits []string
	seen := map[string]bool{}
	for _, match := range tickerPattern.FindAllString(text, -1) {
		symbol := strings.TrimPrefix(match, "$")
		if tickerStoplist[symbol] || seen[symbol] {
			continue
		}
		if len(p.watchlist) > 0 && !p.watchlist[symbol] {
			continue
		}
		// Bare uppercase words are too noisy without a watchlist;
		// require the $ prefix in that case.
		if len(p.watchlist) == 0 && !strings.HasPrefix(match, "$") {
			continue
		}
		seen[symbol] = true
		hits = append(hits, symbol)
	}
	return hits
}
