package itinerary

import (
	"context"
	"encoding/json"
	"fmt"
)

// Generator is the external collaborator that proposes candidate
// itineraries. GenerateCandidate serves initial generation;
// ProposeFill serves diff refinement and proposes entries only for
// touchable days.
type Generator interface {
	GenerateCandidate(ctx context.Context, req TripRequest, days int) (Candidate, error)
	ProposeFill(ctx context.Context, req FillRequest) (Candidate, error)
}

const candidateSchemaPrompt = `Required JSON schema:
{
  "title": "string",
  "details": [ { "day": 1, "plan": [ { "time": "10:00", "place": "string (proper noun)", "memo": "string", "query": "string (place + city, optional)" } ] } ]
}`

const generateRules = `Strict rules:
- Respond with JSON ONLY. No prose, no code fences.
- Every "place" must be a real point of interest findable on a map.
  Abstract or placeholder names (e.g. "cafe", "park", "museum") are
  forbidden.
- Provide a "query" field when helpful (place + city); the server
  falls back to place + city otherwise.
- Times use "HH:mm". Leave at least 90 minutes between entries of the
  same day. The memo must not repeat the place name.
- At least 2 places per day.`

const fillRules = `Strict rules:
- Entries marked "locked": true are immutable context. NEVER repeat,
  modify or delete them; propose only new entries.
- Propose new entries ONLY for the days listed in required_per_day,
  at least the required count per day.
- Never propose any place from forbidden_places (case-insensitive),
  nor near-identical variants of them.
- Every new "place" must be a real point of interest findable on a
  map; placeholders are forbidden.
- Times use "HH:mm" with at least 90 minutes between entries of the
  same day.
- Respond with JSON ONLY.`

// LLMGenerator implements Generator over any LLMCaller (Anthropic or
// Gemini).
type LLMGenerator struct {
	caller LLMCaller
}

func NewLLMGenerator(caller LLMCaller) *LLMGenerator {
	return &LLMGenerator{caller: caller}
}

func (g *LLMGenerator) GenerateCandidate(ctx context.Context, req TripRequest, days int) (Candidate, error) {
	prompt := fmt.Sprintf(
		"Plan a %d-day trip to %s.\n\nTrip constraints:\n- start date: %s\n- end date: %s\n- duration: %s\n- companions: %s\n- theme: %s\n- pace: %s\n\n%s\n- \"details\" must contain days 1..%d, exactly %d entries.\n\n%s",
		days, req.City,
		req.StartDate, req.EndDate, req.Duration, req.Companion, req.Theme, req.Pace,
		generateRules, days, days,
		candidateSchemaPrompt,
	)
	return callCandidate(ctx, g.caller, "generate", prompt)
}

func (g *LLMGenerator) ProposeFill(ctx context.Context, req FillRequest) (Candidate, error) {
	prompt := fmt.Sprintf(
		"Edit a %d-day trip to %s by filling removed slots.\n\n%s\n\nrequired_per_day:\n%s\n\nforbidden_places:\n%s\n\nLocked entries (context, do not modify):\n%s\n\n%s",
		req.TargetDays, req.City,
		fillRules,
		mustJSON(req.RequiredPerDay),
		mustJSON(req.Forbidden),
		mustJSON(req.Locked),
		candidateSchemaPrompt,
	)
	return callCandidate(ctx, g.caller, "refine", prompt)
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
