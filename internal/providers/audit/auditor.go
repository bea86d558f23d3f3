package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/pipeline"
	"server/internal/providers/genai"
)

// GeminiAuditor asks a vision model to compare the generated image against the
// original body photo and garment references and return a structured verdict.
type GeminiAuditor struct {
	client *genai.Client
}

func NewGeminiAuditor(client *genai.Client) *GeminiAuditor {
	return &GeminiAuditor{client: client}
}

type verdictPayload struct {
	ClothingChanged     bool     `json:"clothing_changed"`
	MatchesInputGarment bool     `json:"matches_input_garments"`
	VisualQualityScore  float64  `json:"visual_quality_score"`
	Issues              []string `json:"issues"`
	Summary             string   `json:"summary"`
}

var requiredVerdictKeys = []string{"clothing_changed", "matches_input_garments", "visual_quality_score"}

func (a *GeminiAuditor) Audit(ctx context.Context, req pipeline.AuditRequest) (*domain.AuditReport, error) {
	if a.client.Offline() {
		// Without a key there is no model to judge with; approve the synthetic
		// candidate so local runs exercise the success path.
		return &domain.AuditReport{
			ClothingChanged:      true,
			MatchesInputGarments: true,
			VisualQualityScore:   85,
			Summary:              "synthetic verdict, no audit model configured",
		}, nil
	}

	images := make([]genai.ImageInput, 0, 2+len(req.GarmentImageURLs))
	images = append(images, genai.ImageInput{URL: req.BodyImageURL})
	for _, u := range req.GarmentImageURLs {
		images = append(images, genai.ImageInput{URL: u})
	}
	images = append(images, genai.ImageInput{URL: req.ResultImageURL})

	raw, err := a.client.GenerateText(ctx, genai.TextRequest{
		Prompt:     buildAuditPrompt(len(req.GarmentImageURLs)),
		Images:     images,
		JSONOutput: true,
	})
	if err != nil {
		return nil, err
	}
	return parseVerdict(raw)
}

func buildAuditPrompt(garments int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a strict quality inspector for virtual try-on results. The first image is the original person, the next %d image(s) are the garment references, and the last image is the generated result.\n", garments)
	b.WriteString("Judge whether the result actually changed the person's clothing, whether the new clothing matches the reference garments, and the overall visual quality from 0 to 100.\n")
	b.WriteString(`Respond strictly with JSON matching this schema: {"clothing_changed":bool,"matches_input_garments":bool,"visual_quality_score":number,"issues":string[],"summary":string}.`)
	b.WriteString(" List every defect you see in issues, and keep summary to one sentence.")
	return b.String()
}

// parseVerdict decodes the model's JSON verdict. Models wrap JSON in markdown
// fences or prose often enough that the fragment is extracted first, and a
// verdict missing any required key is rejected rather than defaulted.
func parseVerdict(raw string) (*domain.AuditReport, error) {
	fragment := extractJSONFragment(raw)
	if fragment == "" {
		return nil, fmt.Errorf("empty audit verdict")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(fragment), &keys); err != nil {
		return nil, fmt.Errorf("decode audit verdict: %w", err)
	}
	for _, key := range requiredVerdictKeys {
		if _, ok := keys[key]; !ok {
			return nil, fmt.Errorf("audit verdict missing %q", key)
		}
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(fragment), &payload); err != nil {
		return nil, fmt.Errorf("decode audit verdict: %w", err)
	}
	if payload.VisualQualityScore < 0 || payload.VisualQualityScore > 100 {
		return nil, fmt.Errorf("audit score %v out of range", payload.VisualQualityScore)
	}

	return &domain.AuditReport{
		ClothingChanged:      payload.ClothingChanged,
		MatchesInputGarments: payload.MatchesInputGarment,
		VisualQualityScore:   payload.VisualQualityScore,
		Issues:               payload.Issues,
		Summary:              strings.TrimSpace(payload.Summary),
	}, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

var _ pipeline.Auditor = (*GeminiAuditor)(nil)
