// Package mapper is the pure, total translation between in-memory wire
// task objects (domain.TaskSynapse) and stored rows (store.*Row). Each
// direction is its own function, one concept per file-level unit, operating
// on opaque JSON payloads rather than any binary wire format.
package mapper

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/store"
	"github.com/dojonet/subnet/internal/taskerr"
)

// ToValidatorTaskRow translates a TaskSynapse plus its validator-private
// ground truth into a ValidatorTaskRow ready for a nested GORM create
// (Completions, Criteria, and GroundTruths are all created in the same
// transaction as the parent row — see orm.SaveTask).
func ToValidatorTaskRow(t domain.TaskSynapse, groundTruth []domain.GroundTruth) (*store.ValidatorTaskRow, error) {
	row := &store.ValidatorTaskRow{
		ID:             requestIDOrNew(t.RequestID),
		PreviousTaskID: t.PreviousTaskID,
		Prompt:         t.Prompt,
		TaskType:       string(t.TaskType),
		ExpireAt:       t.ExpireAt,
		IsProcessed:    false,
	}

	for _, cr := range t.CompletionResponses {
		completionRow, err := toCompletionRow(row.ID, cr)
		if err != nil {
			return nil, err
		}
		row.Completions = append(row.Completions, *completionRow)
	}

	for _, gt := range groundTruth {
		row.GroundTruths = append(row.GroundTruths, store.GroundTruthRow{
			ID:                uuid.New(),
			ValidatorTaskID:   row.ID,
			ObfuscatedModelID: gt.ObfuscatedModelID,
			RealModelID:       gt.RealModelID,
			RankID:            gt.RankID,
		})
	}

	return row, nil
}

func toCompletionRow(taskID uuid.UUID, cr domain.CompletionResponse) (*store.CompletionRow, error) {
	if cr.Completion == nil {
		return nil, taskerr.ErrInvalidCompletion
	}
	completionJSON, err := json.Marshal(cr.Completion)
	if err != nil {
		log.Crit("mapper: completion payload is not JSON-encodable, caller built a malformed struct", "err", err)
	}

	completionID := uuid.New()
	row := &store.CompletionRow{
		ID:              completionID,
		ValidatorTaskID: taskID,
		Model:           cr.Model,
		CompletionJSON:  completionJSON,
	}
	for _, c := range cr.Criteria {
		configJSON, err := json.Marshal(c.Config)
		if err != nil {
			log.Crit("mapper: criterion config is not JSON-encodable, caller built a malformed struct", "err", err)
		}
		if !c.CriteriaType.Valid() {
			return nil, taskerr.ErrInvalidCriteriaType
		}
		row.Criteria = append(row.Criteria, store.CriterionRow{
			ID:           uuid.New(),
			CompletionID: completionID,
			CriteriaType: string(c.CriteriaType),
			ConfigJSON:   configJSON,
		})
	}
	return row, nil
}

// ToMinerResponseRow translates a TaskSynapse (as filled in by the miner,
// i.e. carrying MinerHotkey/MinerColdkey/DojoTaskID) into a MinerResponseRow
// under the given parent ValidatorTask id. Fails with ErrInvalidMinerResponse
// if any identity field is missing — callers must drop that miner and
// continue rather than aborting the whole task save.
func ToMinerResponseRow(t domain.TaskSynapse, parentID uuid.UUID) (*store.MinerResponseRow, error) {
	if t.MinerHotkey == "" || t.MinerColdkey == "" || t.DojoTaskID == uuid.Nil {
		return nil, taskerr.ErrInvalidMinerResponse
	}
	return &store.MinerResponseRow{
		ID:              uuid.New(),
		ValidatorTaskID: parentID,
		DojoTaskID:      t.DojoTaskID,
		Hotkey:          t.MinerHotkey,
		Coldkey:         t.MinerColdkey,
	}, nil
}

// FromRow reconstructs a TaskSynapse from a stored ValidatorTaskRow,
// rebuilding the criteria list, completion JSON, and ground-truth map.
// When isMiner is true the origin pubkey is tagged as Axon (this process is
// answering as a server); otherwise it is tagged as Dendrite (this process
// is asking as a client).
func FromRow(row *store.ValidatorTaskRow, isMiner bool, selfHotkey string) (*domain.TaskSynapse, error) {
	t := &domain.TaskSynapse{
		RequestID:      row.ID,
		PreviousTaskID: row.PreviousTaskID,
		Prompt:         row.Prompt,
		TaskType:       domain.TaskType(row.TaskType),
		ExpireAt:       row.ExpireAt,
	}
	if isMiner {
		t.Axon = domain.PeerIdentity{Hotkey: selfHotkey}
	} else {
		t.Dendrite = domain.PeerIdentity{Hotkey: selfHotkey}
	}

	seenCriteria := map[domain.CriteriaType]bool{}
	for _, cRow := range row.Completions {
		var completionPayload map[string]any
		if len(cRow.CompletionJSON) > 0 {
			if err := json.Unmarshal(cRow.CompletionJSON, &completionPayload); err != nil {
				return nil, taskerr.ErrInvalidCompletion
			}
		}
		cr := domain.CompletionResponse{
			Model:      cRow.Model,
			Completion: completionPayload,
		}
		for _, crit := range cRow.Criteria {
			ct := domain.CriteriaType(crit.CriteriaType)
			if !ct.Valid() {
				return nil, taskerr.ErrInvalidCriteriaType
			}
			var cfg map[string]any
			if len(crit.ConfigJSON) > 0 {
				if err := json.Unmarshal(crit.ConfigJSON, &cfg); err != nil {
					return nil, taskerr.ErrInvalidCriteriaType
				}
			}
			cr.Criteria = append(cr.Criteria, domain.Criterion{
				ID:           crit.ID,
				CompletionID: crit.CompletionID,
				CriteriaType: ct,
				Config:       cfg,
			})
			seenCriteria[ct] = true
		}
		t.CompletionResponses = append(t.CompletionResponses, cr)
	}
	for ct := range seenCriteria {
		t.CriteriaTypes = append(t.CriteriaTypes, ct)
	}

	t.GroundTruth = map[string]int{}
	for _, gt := range row.GroundTruths {
		t.GroundTruth[gt.ObfuscatedModelID] = gt.RankID
	}

	return t, nil
}

func requestIDOrNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
