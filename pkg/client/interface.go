package client

import (
	"context"
)

// VisionClient is a chat backend that accepts images.
type VisionClient interface {
	// SimpleQuery sends one prompt with an optional base64 image.
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// DescribeImages sends a system prompt, a user prompt and any number of
	// base64 images in one turn and returns the reply text.
	DescribeImages(ctx context.Context, model, system, prompt string, imagesB64 []string) (string, error)
}
