// Package synth assembles synthetic ValidatorTasks (prompt + completions ->
// TaskSynapse + a dense-rank GroundTruth permutation) for devnet/testing use
// without a live upstream model pool. Grounded on the dojo subnet's
// scripts/create_synthetic_task.py and commons/dataset.py.
package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/obfuscate"
)

// Candidate is one model's answer to a synthetic prompt, before obfuscated
// model ids and a ground-truth ranking are assigned.
type Candidate struct {
	Model      string
	Completion map[string]any
}

// Builder assembles ValidatorTasks from Candidate sets, assigning a random
// dense-rank ground truth permutation. The (disambiguated) candidate model
// names serve as the ObfuscatedModelID; no separate opaque id is generated.
type Builder struct {
	obfuscator *obfuscate.Obfuscator
	rng        func(n int) []int // returns a permutation of [0,n)
}

// NewBuilder constructs a Builder. perm, if nil, defaults to a
// time-seeded Fisher-Yates shuffle.
func NewBuilder(ob *obfuscate.Obfuscator, perm func(n int) []int) *Builder {
	if perm == nil {
		perm = defaultPerm
	}
	return &Builder{obfuscator: ob, rng: perm}
}

func defaultPerm(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// simple deterministic-free shuffle using time-seeded source per call
	seed := time.Now().UnixNano()
	for i := n - 1; i > 0; i-- {
		seed = seed*6364136223846793005 + 1442695040888963407
		j := int(uint64(seed) % uint64(i+1))
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// Build renders candidates into a TaskSynapse carrying MULTI_SCORE criteria
// over the candidate model set (matching the original's MultiScoreCriteria
// with options=[models], min=1, max=100), plus a GroundTruth slice giving
// each completion a unique dense rank 1..N. Duplicate model names are
// disambiguated by appending their index, matching the original's collision
// handling.
func (b *Builder) Build(prompt string, candidates []Candidate, taskDeadline time.Duration) (domain.TaskSynapse, []domain.GroundTruth) {
	models := disambiguateModels(candidates)
	perm := b.rng(len(candidates))

	completionResponses := make([]domain.CompletionResponse, len(candidates))
	groundTruth := make([]domain.GroundTruth, len(candidates))
	gtWire := make(map[string]int, len(candidates))

	for i, c := range candidates {
		completionResponses[i] = domain.CompletionResponse{
			Model:      models[i],
			Completion: c.Completion,
			Criteria: []domain.Criterion{{
				CriteriaType: domain.CriteriaMultiScore,
				Config: map[string]any{
					"options": models,
					"min":     1.0,
					"max":     100.0,
				},
			}},
		}
		rank := perm[i] + 1
		groundTruth[i] = domain.GroundTruth{
			ObfuscatedModelID: models[i],
			RealModelID:       c.Model,
			RankID:            rank,
		}
		gtWire[models[i]] = rank
	}

	synapse := domain.TaskSynapse{
		RequestID:           uuid.New(),
		Prompt:              prompt,
		TaskType:            domain.TaskTypeCodeGeneration,
		CriteriaTypes:       []domain.CriteriaType{domain.CriteriaMultiScore},
		CompletionResponses: completionResponses,
		GroundTruth:         gtWire,
		ExpireAt:            time.Now().Add(taskDeadline),
	}
	return synapse, groundTruth
}

// disambiguateModels appends an index suffix to duplicate model names, as
// the original does before assigning obfuscated ids.
func disambiguateModels(candidates []Candidate) []string {
	seen := map[string]int{}
	for _, c := range candidates {
		seen[c.Model]++
	}
	dupCount := map[string]int{}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		if seen[c.Model] > 1 {
			out[i] = fmt.Sprintf("%s_%d", c.Model, dupCount[c.Model])
			dupCount[c.Model]++
		} else {
			out[i] = c.Model
		}
	}
	return out
}

// ObfuscateCompletionFiles runs the obfuscation pipeline over every *.html
// file entry under each completion's "files" key. Best-effort: a malformed
// files entry is skipped rather than failing the whole task.
func (b *Builder) ObfuscateCompletionFiles(synapse *domain.TaskSynapse) {
	if b.obfuscator == nil {
		return
	}
	for i := range synapse.CompletionResponses {
		files, ok := synapse.CompletionResponses[i].Completion["files"].([]any)
		if !ok {
			continue
		}
		for j, f := range files {
			file, ok := f.(map[string]any)
			if !ok {
				continue
			}
			name, _ := file["filename"].(string)
			content, _ := file["content"].(string)
			if name == "" || content == "" || !hasHTMLSuffix(name) {
				continue
			}
			file["content"] = b.obfuscator.Obfuscate(context.Background(), content)
			files[j] = file
		}
		synapse.CompletionResponses[i].Completion["files"] = files
	}
}

func hasHTMLSuffix(name string) bool {
	if len(name) < 5 {
		return false
	}
	suffix := name[len(name)-5:]
	return suffix == ".html" || (len(name) >= 4 && name[len(name)-4:] == ".htm")
}
