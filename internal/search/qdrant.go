package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
)

// EmbeddingSize matches text-embedding-3-small
const EmbeddingSize = 1536

// embedding input is capped to stay well under the model's token limit
const maxEmbedChars = 8000

// pointStore is the slice of the Qdrant client this package needs
type pointStore interface {
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// QdrantIndex stores one embedding per response for similarity lookups
type QdrantIndex struct {
	store      pointStore
	embedder   Embedder
	collection string
}

func NewQdrantIndex(cfg config.QdrantConfig, embedder Embedder) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.APIKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantIndex{store: client, embedder: embedder, collection: cfg.Collection}, nil
}

func (q *QdrantIndex) Name() string { return "qdrant" }

// EnsureCollection creates the collection; an existing one is left as is
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	err := q.store.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     EmbeddingSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create qdrant collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) Index(ctx context.Context, results []*models.QueryResult) error {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = embedText(r.ResponseText)
	}
	vectors, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed responses: %w", err)
	}
	if len(vectors) != len(results) {
		return fmt.Errorf("embedder returned %d vectors for %d responses", len(vectors), len(results))
	}

	points := make([]*qdrant.PointStruct, len(results))
	for i, r := range results {
		doc := toDocument(r)
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(doc.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"hospital_id":   doc.HospitalID,
				"prompt_id":     doc.PromptID,
				"platform":      doc.Platform,
				"is_mentioned":  doc.IsMentioned,
				"response_date": doc.ResponseDate,
			}),
		}
	}

	wait := true
	if _, err := q.store.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           &wait,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Similar embeds the query and returns the nearest responses of one hospital
func (q *QdrantIndex) Similar(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	vectors, err := q.embedder.Embed(ctx, []string{embedText(query)})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return []Hit{}, nil
	}

	top := uint64(limit)
	points, err := q.store.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("hospital_id", hospitalID.String()),
			},
		},
		Limit: &top,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query similar responses: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		id, err := uuid.Parse(p.GetId().GetUuid())
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ResponseID: id, Score: float64(p.GetScore())})
	}
	return hits, nil
}

func embedText(s string) string {
	if len(s) <= maxEmbedChars {
		return s
	}
	cut := maxEmbedChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
