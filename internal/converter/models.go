package converter

import (
	"time"

	"github.com/awsl-project/gproxy/internal/domain"
	"github.com/awsl-project/gproxy/internal/protocol/claude"
	"github.com/awsl-project/gproxy/internal/protocol/gemini"
	"github.com/awsl-project/gproxy/internal/protocol/openai"
)

// ModelCatalog is the neutral model-listing record moved between the
// three model surfaces.
type ModelCatalog struct {
	IDs     []CatalogEntry
	HasMore bool
}

type CatalogEntry struct {
	ID          string
	DisplayName string
	Created     int64
}

func CatalogFromOpenAI(in *openai.ModelList) ModelCatalog {
	out := ModelCatalog{}
	for _, model := range in.Data {
		out.IDs = append(out.IDs, CatalogEntry{ID: model.ID, Created: model.Created})
	}
	return out
}

func CatalogFromClaude(in *claude.ListModelsResponse) ModelCatalog {
	out := ModelCatalog{HasMore: in.HasMore}
	for _, model := range in.Data {
		out.IDs = append(out.IDs, CatalogEntry{
			ID:          model.ID,
			DisplayName: model.DisplayName,
			Created:     model.CreatedAt.Unix(),
		})
	}
	return out
}

func CatalogFromGemini(in *gemini.ListModelsResponse) ModelCatalog {
	out := ModelCatalog{HasMore: in.NextPageToken != ""}
	for _, model := range in.Models {
		out.IDs = append(out.IDs, CatalogEntry{
			ID:          gemini.NormalizeModel(model.Name),
			DisplayName: model.DisplayName,
		})
	}
	return out
}

func (c ModelCatalog) ToOpenAI() *openai.ModelList {
	out := &openai.ModelList{Object: "list", Data: []openai.Model{}}
	for _, entry := range c.IDs {
		out.Data = append(out.Data, openai.Model{
			ID:      entry.ID,
			Object:  "model",
			Created: entry.Created,
			OwnedBy: "system",
		})
	}
	return out
}

func (c ModelCatalog) ToClaude() *claude.ListModelsResponse {
	out := &claude.ListModelsResponse{Data: []claude.ModelInfo{}, HasMore: c.HasMore}
	for _, entry := range c.IDs {
		info := claude.ModelInfo{ID: entry.ID, Type: "model", DisplayName: entry.DisplayName}
		if entry.Created > 0 {
			info.CreatedAt = time.Unix(entry.Created, 0).UTC()
		}
		out.Data = append(out.Data, info)
	}
	if len(out.Data) > 0 {
		out.FirstID = out.Data[0].ID
		out.LastID = out.Data[len(out.Data)-1].ID
	}
	return out
}

func (c ModelCatalog) ToGemini() *gemini.ListModelsResponse {
	out := &gemini.ListModelsResponse{Models: []gemini.ModelInfo{}}
	for _, entry := range c.IDs {
		out.Models = append(out.Models, gemini.ModelInfo{
			Name:        gemini.QualifyModel(entry.ID),
			DisplayName: entry.DisplayName,
			SupportedGenerationMethods: []string{
				"generateContent",
				"streamGenerateContent",
				"countTokens",
			},
		})
	}
	return out
}

// ConvertModelList re-shapes a raw model listing between protocols. The
// src body is the typed record already decoded by the caller.
func ConvertModelList(catalog ModelCatalog, dst domain.Proto) any {
	switch dst {
	case domain.ProtoClaude:
		return catalog.ToClaude()
	case domain.ProtoGemini:
		return catalog.ToGemini()
	default:
		return catalog.ToOpenAI()
	}
}

// ConvertModel re-shapes a single model record.
func ConvertModel(entry CatalogEntry, dst domain.Proto) any {
	switch dst {
	case domain.ProtoClaude:
		info := claude.ModelInfo{ID: entry.ID, Type: "model", DisplayName: entry.DisplayName}
		if entry.Created > 0 {
			info.CreatedAt = time.Unix(entry.Created, 0).UTC()
		}
		return info
	case domain.ProtoGemini:
		return gemini.ModelInfo{
			Name:        gemini.QualifyModel(entry.ID),
			DisplayName: entry.DisplayName,
		}
	default:
		return openai.Model{ID: entry.ID, Object: "model", Created: entry.Created, OwnedBy: "system"}
	}
}
