// Package testutil provides scripted fakes shared by tests across
// packages.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/shanayatunk/feelori-ai-whatsapp-assistant/internal/provider"
)

// ScriptedProvider is a provider.Client for tests. Replies are chosen
// by the first configured pattern found in the prompt; queued errors
// are returned first, one per call, before any success. All calls are
// recorded. Safe for concurrent use.
type ScriptedProvider struct {
	mu sync.Mutex

	name         string
	replies      []patternReply
	defaultReply string
	embedDim     int

	completeErrs []error
	embedErrs    []error

	completeCalls []provider.CompletionRequest
	embedCalls    []string
}

type patternReply struct {
	pattern string
	reply   string
}

// NewScriptedProvider creates a provider fake with the given name.
func NewScriptedProvider(name string) *ScriptedProvider {
	return &ScriptedProvider{
		name:         name,
		defaultReply: "I can help with that.",
		embedDim:     8,
	}
}

// Name implements provider.Client.
func (p *ScriptedProvider) Name() string { return p.name }

// Reply registers a reply returned when the prompt contains pattern.
// Patterns are matched in registration order.
func (p *ScriptedProvider) Reply(pattern, reply string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, patternReply{pattern: pattern, reply: reply})
	return p
}

// DefaultReply overrides the reply used when no pattern matches.
func (p *ScriptedProvider) DefaultReply(reply string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultReply = reply
	return p
}

// FailCompletions queues errors returned by the next Complete calls,
// one per call, before any success.
func (p *ScriptedProvider) FailCompletions(errs ...error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completeErrs = append(p.completeErrs, errs...)
	return p
}

// FailEmbeddings queues errors returned by the next Embed calls.
func (p *ScriptedProvider) FailEmbeddings(errs ...error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedErrs = append(p.embedErrs, errs...)
	return p
}

// FailureKind queues a classified failure for the next Complete call.
func (p *ScriptedProvider) FailureKind(kind provider.Kind, err error) *ScriptedProvider {
	return p.FailCompletions(&provider.Error{Provider: p.name, Kind: kind, Err: err})
}

// Complete implements provider.Client.
func (p *ScriptedProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Provider: p.name, Kind: provider.KindTimeout, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.completeCalls = append(p.completeCalls, req)
	if len(p.completeErrs) > 0 {
		err := p.completeErrs[0]
		p.completeErrs = p.completeErrs[1:]
		return nil, err
	}

	for _, pr := range p.replies {
		if strings.Contains(req.Prompt, pr.pattern) {
			return &provider.Completion{Text: pr.reply, FinishReason: "stop"}, nil
		}
	}
	return &provider.Completion{Text: p.defaultReply, FinishReason: "stop"}, nil
}

// Embed implements provider.Client using a deterministic hash
// embedding, so identical texts always map to identical vectors.
func (p *ScriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Provider: p.name, Kind: provider.KindTimeout, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.embedCalls = append(p.embedCalls, text)
	if len(p.embedErrs) > 0 {
		err := p.embedErrs[0]
		p.embedErrs = p.embedErrs[1:]
		return nil, err
	}
	return HashEmbedding(text, p.embedDim), nil
}

// CompleteCalls returns a copy of the recorded completion requests.
func (p *ScriptedProvider) CompleteCalls() []provider.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.CompletionRequest, len(p.completeCalls))
	copy(out, p.completeCalls)
	return out
}

// EmbedCalls returns a copy of the recorded embedding texts.
func (p *ScriptedProvider) EmbedCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.embedCalls))
	copy(out, p.embedCalls)
	return out
}

// HashEmbedding maps text onto a deterministic unit vector of dim
// components. Distinct words pull the vector in distinct directions,
// so texts sharing words land closer than unrelated texts.
func HashEmbedding(text string, dim int) []float32 {
	vec := make([]float64, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()
		for i := range vec {
			// Spread each word across all components from its hash bits.
			bit := (sum >> (uint(i) % 64)) & 1
			if bit == 1 {
				vec[i]++
			} else {
				vec[i]--
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	if norm == 0 {
		out[0] = 1
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
