// Package inference provides the model backends used for document
// extraction, classification, and grounded Q&A, plus the response
// cleaning applied at the model boundary.
package inference

import (
	"context"

	"misalud-backend/internal/extraction"
)

// Backend is an opaque inference capability: given an image and a
// prompt, or a prompt alone, return raw model text.
type Backend interface {
	// ExtractRaw runs image+prompt inference against the document image.
	ExtractRaw(ctx context.Context, imagePath, prompt string, maxNewTokens int) (string, error)
	// GenerateText runs text-only inference.
	GenerateText(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

// ExtractPrescription runs the prescription extraction task against an
// image and parses the cleaned response.
func ExtractPrescription(ctx context.Context, b Backend, imagePath string) (extraction.PrescriptionExtraction, error) {
	raw, err := b.ExtractRaw(ctx, imagePath, PrescriptionPrompt, MaxNewTokensPrescription)
	if err != nil {
		return extraction.PrescriptionExtraction{}, err
	}
	result := extraction.ParsePrescription(CleanResponse(raw))
	result.RawResponse = raw
	return result, nil
}

// ExtractLabResults runs the lab-result extraction task against an
// image and parses the cleaned response.
func ExtractLabResults(ctx context.Context, b Backend, imagePath string) (extraction.LabResultExtraction, error) {
	raw, err := b.ExtractRaw(ctx, imagePath, LabResultsPrompt, MaxNewTokensLabs)
	if err != nil {
		return extraction.LabResultExtraction{}, err
	}
	result := extraction.ParseLabResults(CleanResponse(raw))
	result.RawResponse = raw
	return result, nil
}
