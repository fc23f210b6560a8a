package search

import (
	"github.com/sellside/dealgraph/pkg/types"
)

// CitationForChunk derives a citation from a fast-path chunk's provenance
// fields.
func CitationForChunk(chunk *types.ChunkNode) types.Citation {
	return types.Citation{
		ResultID:   chunk.ID,
		DocumentID: chunk.DocumentID,
		ChunkIndex: chunk.ChunkIndex,
		PageNumber: chunk.PageNumber,
	}
}

// CitationForEntity derives a citation from an entity's EXTRACTED_FROM
// provenance. The episode map is keyed by episode id; a missing episode
// yields a citation with the entity id only, never an error.
func CitationForEntity(entity *types.Entity, provenance []*types.Edge, episodes map[string]*types.Episode) types.Citation {
	citation := types.Citation{ResultID: entity.ID}
	for _, edge := range provenance {
		if edge.Kind != types.EdgeExtractedFrom || edge.SourceID != entity.ID {
			continue
		}
		citation.EpisodeID = edge.TargetID
		if ep := episodes[edge.TargetID]; ep != nil {
			citation.Source = ep.SourceDescription
		}
		break
	}
	return citation
}

// AttachCitations fills each item's citation and returns the flattened
// citation list in item order. Items that already carry a citation keep it.
func AttachCitations(items []types.RetrievedItem, provenance []*types.Edge, episodes map[string]*types.Episode, chunks map[string]*types.ChunkNode) ([]types.RetrievedItem, []types.Citation) {
	out := make([]types.RetrievedItem, len(items))
	copy(out, items)

	citations := make([]types.Citation, 0, len(out))
	for i := range out {
		if out[i].Citation == nil {
			var citation types.Citation
			if chunk := chunks[out[i].ID]; chunk != nil {
				citation = CitationForChunk(chunk)
			} else {
				citation = CitationForEntity(&types.Entity{ID: out[i].ID}, provenance, episodes)
			}
			out[i].Citation = &citation
		}
		citations = append(citations, *out[i].Citation)
	}
	return out, citations
}
