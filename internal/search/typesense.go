package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
)

const defaultSearchLimit = 20

// TypesenseIndex keeps a keyword-searchable copy of every response
type TypesenseIndex struct {
	client     *typesense.Client
	collection string
}

func NewTypesenseIndex(cfg config.TypesenseConfig) *TypesenseIndex {
	return NewTypesenseIndexWithServer(fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port), cfg.APIKey, cfg.Collection)
}

func NewTypesenseIndexWithServer(server, apiKey, collection string) *TypesenseIndex {
	client := typesense.NewClient(
		typesense.WithServer(server),
		typesense.WithAPIKey(apiKey),
	)
	return &TypesenseIndex{client: client, collection: collection}
}

func (t *TypesenseIndex) Name() string { return "typesense" }

// EnsureCollection creates the collection; an existing one is left as is
func (t *TypesenseIndex) EnsureCollection(ctx context.Context) error {
	facet := true
	sort := true
	defaultSortField := "response_date"
	schema := &api.CollectionSchema{
		Name: t.collection,
		Fields: []api.Field{
			{Name: "hospital_id", Type: "string", Facet: &facet},
			{Name: "prompt_id", Type: "string"},
			{Name: "platform", Type: "string", Facet: &facet},
			{Name: "prompt_text", Type: "string"},
			{Name: "response_text", Type: "string"},
			{Name: "is_mentioned", Type: "bool", Facet: &facet},
			{Name: "competitors", Type: "string[]", Facet: &facet},
			{Name: "response_date", Type: "int64", Sort: &sort},
		},
		DefaultSortingField: &defaultSortField,
	}
	_, err := t.client.Collections().Create(ctx, schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create typesense collection %s: %w", t.collection, err)
	}
	return nil
}

func (t *TypesenseIndex) Index(ctx context.Context, results []*models.QueryResult) error {
	docs := make([]interface{}, len(results))
	for i, r := range results {
		docs[i] = toDocument(r)
	}
	action := "upsert"
	responses, err := t.client.Collection(t.collection).Documents().Import(ctx, docs, &api.ImportDocumentsParams{Action: &action})
	if err != nil {
		return fmt.Errorf("failed to import documents: %w", err)
	}
	for _, resp := range responses {
		if !resp.Success {
			return fmt.Errorf("typesense rejected document: %s", resp.Error)
		}
	}
	return nil
}

// Search runs a keyword query over prompt and response text, scoped to one hospital
func (t *TypesenseIndex) Search(ctx context.Context, hospitalID uuid.UUID, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	queryBy := "response_text,prompt_text"
	filterBy := "hospital_id:=" + hospitalID.String()
	params := &api.SearchCollectionParams{
		Q:        &query,
		QueryBy:  &queryBy,
		FilterBy: &filterBy,
		PerPage:  &limit,
	}

	result, err := t.client.Collection(t.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search responses: %w", err)
	}
	if result.Hits == nil {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, len(*result.Hits))
	for _, h := range *result.Hits {
		if h.Document == nil {
			continue
		}
		raw, _ := (*h.Document)["id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		hit := Hit{ResponseID: id}
		if h.TextMatch != nil {
			hit.Score = float64(*h.TextMatch)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
