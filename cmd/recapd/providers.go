package main

import (
	"context"

	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// Stand-ins for unconfigured provider slots. Every call fails permanently
// with a message naming the missing configuration, so an affected recording
// lands in the attention list instead of retrying forever.

var (
	_ stt.Provider        = unconfiguredSTT{}
	_ llm.Provider        = unconfiguredLLM{}
	_ embeddings.Provider = unconfiguredEmbeddings{}
)

type unconfiguredSTT struct{}

func (unconfiguredSTT) Transcribe(context.Context, string) ([]stt.Segment, error) {
	return nil, provider.Permanentf("no STT provider configured; set providers.stt in the config")
}

func (unconfiguredSTT) ModelID() string { return "unconfigured" }

type unconfiguredLLM struct{}

func (unconfiguredLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, provider.Permanentf("no LLM provider configured; set providers.llm in the config")
}

func (unconfiguredLLM) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total, nil
}

type unconfiguredEmbeddings struct{}

func (unconfiguredEmbeddings) Embed(context.Context, string) ([]float32, error) {
	return nil, provider.Permanentf("no embeddings provider configured; set providers.embeddings in the config")
}

func (unconfiguredEmbeddings) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, provider.Permanentf("no embeddings provider configured; set providers.embeddings in the config")
}

func (unconfiguredEmbeddings) Dimensions() int { return 0 }

func (unconfiguredEmbeddings) ModelID() string { return "unconfigured" }
