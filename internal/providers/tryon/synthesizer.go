package tryon

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/pipeline"
	"server/internal/providers/genai"
)

// GeminiSynthesizer renders a try-on candidate by asking the image model to
// dress the person from the body photo in the provided garments.
type GeminiSynthesizer struct {
	client *genai.Client
}

func NewGeminiSynthesizer(client *genai.Client) *GeminiSynthesizer {
	return &GeminiSynthesizer{client: client}
}

func (s *GeminiSynthesizer) Synthesize(ctx context.Context, req pipeline.SynthesisRequest) (*pipeline.Candidate, error) {
	images := make([]genai.ImageInput, 0, 1+len(req.GarmentImageURLs))
	images = append(images, genai.ImageInput{URL: req.BodyImageURL})
	for _, u := range req.GarmentImageURLs {
		images = append(images, genai.ImageInput{URL: u})
	}

	result, err := s.client.EditImage(ctx, genai.EditRequest{
		Prompt:    buildSynthesisPrompt(len(req.GarmentImageURLs), req.Attempt, req.RetryHint),
		Images:    images,
		RequestID: fmt.Sprintf("%s-%02d", req.RecordID, req.Attempt),
	})
	if err != nil {
		return nil, err
	}
	return &pipeline.Candidate{Data: result.Data, Format: result.MIMEType}, nil
}

var titler = cases.Title(language.English)

var ordinals = []string{"first", "second", "third", "fourth", "fifth"}

// garmentLabel names one garment reference image inside the prompt, e.g.
// "Second Garment Image".
func garmentLabel(index int) string {
	if index < 0 || index >= len(ordinals) {
		return titler.String(fmt.Sprintf("garment image %d", index+1))
	}
	return titler.String(ordinals[index] + " garment image")
}

func buildSynthesisPrompt(garments, attempt int, hint string) string {
	var b strings.Builder
	b.WriteString("Create a photorealistic virtual try-on image. The first image shows the person; ")
	if garments == 1 {
		b.WriteString("the second image shows the garment they should wear.\n")
		b.WriteString("Replace the person's current clothing with that garment exactly as it appears, keeping its color, pattern, and cut.\n")
	} else {
		fmt.Fprintf(&b, "the following %d images show the garments they should wear together as one outfit.\n", garments)
		for i := 0; i < garments; i++ {
			fmt.Fprintf(&b, "- %s: preserve its color, pattern, and cut exactly.\n", garmentLabel(i))
		}
		b.WriteString("Layer the garments naturally on the person in a single coherent outfit.\n")
	}
	b.WriteString("Keep the person's face, body shape, pose, and the background unchanged. Output only the final image.")
	if attempt > 1 && strings.TrimSpace(hint) != "" {
		b.WriteString("\nA previous attempt was rejected for the following reasons; correct them: ")
		b.WriteString(strings.TrimSpace(hint))
	}
	return b.String()
}

var _ pipeline.Synthesizer = (*GeminiSynthesizer)(nil)
