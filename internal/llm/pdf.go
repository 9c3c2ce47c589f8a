package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// PdfExtractor recovers plain text from a PDF by sending it to the model as a
// document block. Scanned papers OCR the same way as digital ones, which is
// why this goes through the provider instead of a local PDF parser.
type PdfExtractor struct {
	client *AnthropicClient
}

func NewPdfExtractor(client *AnthropicClient) *PdfExtractor {
	return &PdfExtractor{client: client}
}

const pdfExtractionPrompt = "Transcribe the full text content of this document. " +
	"Preserve question numbering and mark allocations exactly as printed. " +
	"Separate pages with a line containing only '---'. " +
	"Output the transcription only, no commentary."

func (e *PdfExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.client.model),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
					Data: base64.StdEncoding.EncodeToString(data),
				}),
				anthropic.NewTextBlock(pdfExtractionPrompt),
			),
		},
	}

	message, err := e.client.client.Messages.New(ctx, params)
	if err != nil {
		return "", ClassifyError(fmt.Errorf("pdf extraction failed: %w", err))
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in pdf extraction response")
}
