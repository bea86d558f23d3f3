package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides a lightweight facade over the Gemini generateContent API so
// that providers can focus on translating domain requests to API calls. When no
// API key is configured the client produces deterministic synthetic output,
// which keeps the worker fully operational in local and CI environments while
// preserving the extension points for real API calls.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageInput is one source image attached to a request. Data takes precedence;
// when only a URL is given the client downloads the bytes before the call.
type ImageInput struct {
	URL      string
	MIMEType string
	Data     []byte
}

// EditRequest asks the model to produce a new image from a text instruction
// plus one or more source images.
type EditRequest struct {
	Prompt    string
	Images    []ImageInput
	RequestID string
}

// ImageResult is the normalized representation of a generated image.
type ImageResult struct {
	Data     []byte
	MIMEType string
}

// TextRequest asks the model for a text completion, optionally grounded on
// images. JSONOutput requests application/json as the response MIME type.
type TextRequest struct {
	Prompt     string
	Images     []ImageInput
	JSONOutput bool
	RequestID  string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// Offline reports whether the client has no API key and will serve synthetic
// output instead of calling the remote API.
func (c *Client) Offline() bool {
	return c.apiKey == ""
}

// EditImage produces a new image from the instruction and source images. In
// offline mode a deterministic placeholder image is rendered instead so the
// rest of the pipeline stays exercised end-to-end.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.Offline() {
		return c.syntheticImage(req), nil
	}

	parts := []geminiPart{{Text: req.Prompt}}
	imageParts, err := c.inlineImageParts(ctx, req.Images)
	if err != nil {
		return nil, err
	}
	parts = append(parts, imageParts...)

	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: 1},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline data: %w", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.model).
				Int("bytes", len(data)).
				Msg("genai: generated image")
			return &ImageResult{Data: data, MIMEType: mime}, nil
		}
	}

	return nil, fmt.Errorf("no image content returned")
}

// GenerateText returns the concatenated text parts of the first candidate.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.Offline() {
		return "", fmt.Errorf("no api key configured")
	}

	parts := []geminiPart{{Text: req.Prompt}}
	imageParts, err := c.inlineImageParts(ctx, req.Images)
	if err != nil {
		return "", err
	}
	parts = append(parts, imageParts...)

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if req.JSONOutput {
		payload.GenerationConfig = &geminiGenerationConfig{ResponseMimeType: "application/json"}
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, payload, &response); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no text content returned")
	}
	return text, nil
}

func (c *Client) inlineImageParts(ctx context.Context, images []ImageInput) ([]geminiPart, error) {
	parts := make([]geminiPart, 0, len(images))
	for _, img := range images {
		data := img.Data
		mime := img.MIMEType
		if len(data) == 0 {
			if img.URL == "" {
				continue
			}
			blob, contentType, err := c.downloadFile(ctx, img.URL)
			if err != nil {
				return nil, err
			}
			data = blob
			mime = firstNonEmpty(mime, contentType)
		}
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}
	return parts, nil
}

func (c *Client) syntheticImage(req EditRequest) *ImageResult {
	refs := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		refs = append(refs, img.URL)
	}
	seed := deterministicSeed(req.RequestID, req.Prompt, strings.Join(refs, ","))
	data := renderSyntheticImage(768, 1024, seed)

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.model).
		Msg("genai: generated synthetic image")

	return &ImageResult{Data: data, MIMEType: "image/png"}
}

func (c *Client) invokeGemini(ctx context.Context, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.baseURL, "/"), url.PathEscape(c.model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := maxInt(32, height/12)
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for i := 0; i < maxInt(width, height); i += maxInt(16, width/32) {
		x := i
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	r := mustParseHexByte(segment[0:2])
	g := mustParseHexByte(segment[2:4])
	b := mustParseHexByte(segment[4:6])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
