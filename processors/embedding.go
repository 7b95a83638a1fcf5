package processors

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder 文本向量化，用于相似讲解检索
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type OpenAIEmbedder struct {
	cli     *ClientHandle
	model   string
	dim     int
	timeout time.Duration
}

func NewOpenAIEmbedder(cli *ClientHandle, model string, dim int, timeout time.Duration) *OpenAIEmbedder {
	return &OpenAIEmbedder{cli: cli, model: model, dim: dim, timeout: timeout}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cli, err := e.cli.Get()
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dim > 0 {
		req.Dimensions = e.dim
	}
	resp, err := cli.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", asUpstream(err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}
