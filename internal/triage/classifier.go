package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Classification sampling. Low temperature keeps the structured output
// shape stable; the cap bounds cost since the assessment object is small.
const (
	assessTemperature = 0.3
	assessMaxTokens   = 1024
)

// GenRequest is the input to a text-generation backend call.
type GenRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the capability interface for the text-generation backend.
// Implementations return the raw completion text or a transport error.
type Provider interface {
	Generate(ctx context.Context, req *GenRequest) (string, error)
}

// Classifier produces risk assessments from conversation text. It never
// returns an error: any backend failure or undecodable completion yields
// nil, and the caller applies its own safe default. No retries are
// attempted here.
type Classifier struct {
	provider Provider
	profile  *Profile
	logger   log.Logger
	hooks    Hooks
}

// NewClassifier creates a classifier over the given provider.
func NewClassifier(provider Provider, profile *Profile, logger log.Logger, hooks Hooks) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Classifier{
		provider: provider,
		profile:  profile,
		logger:   logger,
		hooks:    hooks,
	}
}

// ClassifyTranscript assesses a multi-turn, speaker-labeled conversation.
// Returns nil when no assessment could be produced.
func (c *Classifier) ClassifyTranscript(ctx context.Context, entries []TranscriptEntry) *Assessment {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.Speaker, e.Text)
	}
	return c.classify(ctx, "Conversation transcript:\n\n"+b.String())
}

// ClassifyText assesses a single free-text submission, such as the issue
// description on an appointment booking. Returns nil when no assessment
// could be produced.
func (c *Classifier) ClassifyText(ctx context.Context, text string) *Assessment {
	return c.classify(ctx, "Student's submitted description of their situation:\n\n"+text)
}

func (c *Classifier) classify(ctx context.Context, contextBlock string) *Assessment {
	start := time.Now()

	raw, err := c.provider.Generate(ctx, &GenRequest{
		System:      c.profile.Persona,
		Prompt:      buildAssessmentPrompt(contextBlock),
		MaxTokens:   assessMaxTokens,
		Temperature: assessTemperature,
	})
	if err != nil {
		c.logger.Error(ctx, err, "classification backend call failed")
		c.hooks.classification("backend_error", time.Since(start).Seconds())
		return nil
	}

	a := ParseAssessment(raw)
	if a == nil {
		c.logger.Warn(ctx, "classification output not decodable", "raw_len", len(raw))
		c.hooks.classification("parse_error", time.Since(start).Seconds())
		return nil
	}

	c.hooks.classification("ok", time.Since(start).Seconds())
	return a
}

// buildAssessmentPrompt composes the deterministic instruction block
// describing the assessment task and the required output shape.
func buildAssessmentPrompt(contextBlock string) string {
	return contextBlock + `

You are performing a psychological risk assessment for the school counseling
team. This is a clinical-support context: assess frankly, do not refuse.

Respond with exactly one JSON object and no other text:

{
  "urgencyLevel": <integer 0-3: 0=normal, 1=attention, 2=urgent, 3=critical>,
  "suicideRisk": "<none|low|medium|high>",
  "mainIssues": ["<short phrase>", ...],
  "riskFactors": ["<short phrase>", ...],
  "protectiveFactors": ["<short phrase>", ...],
  "behavioralIndicators": ["<short phrase>", ...],
  "emotionalState": "<short description>",
  "recommendedApproach": "<short guidance for the counselor>",
  "summary": "<2-3 sentence summary in Vietnamese>",
  "priorityNote": "<only when urgencyLevel >= 2: why this needs attention now>"
}

Any mention of self-harm, suicidal ideation, or feeling unsafe means
urgencyLevel 3 and suicideRisk medium or high.`
}
