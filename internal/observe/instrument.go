package observe

import (
	"context"

	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// InstrumentSTT wraps p so that every transcription call increments the
// provider request counter, and failed calls additionally increment the
// error counter. The provider name becomes the "provider" attribute.
func InstrumentSTT(p stt.Provider, name string, m *Metrics) stt.Provider {
	return &instrumentedSTT{p: p, name: name, m: m}
}

// InstrumentLLM wraps p with request/error counting on completion calls.
// Token counting is a local operation and is not recorded.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) llm.Provider {
	return &instrumentedLLM{p: p, name: name, m: m}
}

// InstrumentEmbeddings wraps p with request/error counting on embedding
// calls. A batch call counts as a single request.
func InstrumentEmbeddings(p embeddings.Provider, name string, m *Metrics) embeddings.Provider {
	return &instrumentedEmbeddings{p: p, name: name, m: m}
}

type instrumentedSTT struct {
	p    stt.Provider
	name string
	m    *Metrics
}

func (i *instrumentedSTT) Transcribe(ctx context.Context, path string) ([]stt.Segment, error) {
	segments, err := i.p.Transcribe(ctx, path)
	i.record(ctx, "stt", err)
	return segments, err
}

func (i *instrumentedSTT) ModelID() string { return i.p.ModelID() }

func (i *instrumentedSTT) record(ctx context.Context, kind string, err error) {
	recordCall(ctx, i.m, i.name, kind, err)
}

type instrumentedLLM struct {
	p    llm.Provider
	name string
	m    *Metrics
}

func (i *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := i.p.Complete(ctx, req)
	recordCall(ctx, i.m, i.name, "llm", err)
	return resp, err
}

func (i *instrumentedLLM) CountTokens(messages []llm.Message) (int, error) {
	return i.p.CountTokens(messages)
}

type instrumentedEmbeddings struct {
	p    embeddings.Provider
	name string
	m    *Metrics
}

func (i *instrumentedEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := i.p.Embed(ctx, text)
	recordCall(ctx, i.m, i.name, "embeddings", err)
	return vec, err
}

func (i *instrumentedEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := i.p.EmbedBatch(ctx, texts)
	recordCall(ctx, i.m, i.name, "embeddings", err)
	return vecs, err
}

func (i *instrumentedEmbeddings) Dimensions() int { return i.p.Dimensions() }

func (i *instrumentedEmbeddings) ModelID() string { return i.p.ModelID() }

func recordCall(ctx context.Context, m *Metrics, name, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, name, kind)
	}
	m.RecordProviderRequest(ctx, name, kind, status)
}
