// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"log"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound/codewatch/internal/model"
)

// Match represents one vector-search hit, payload decoded into the typed
// VectorIndexPayload schema rather than a loose string map.
type Match struct {
	ID      string
	Score   float32
	Payload model.VectorIndexPayload
	// Vector is populated by Scroll (the cluster analyzer needs the raw
	// embedding to cluster on) but left nil by Search, whose callers only
	// ever need the Score ranking.
	Vector []float32
}

// Filter narrows a search to points matching every non-empty field, backed
// by Qdrant's field index on the attributes spec.md §6 names as indexed.
// ChunkTypeIn, when non-empty, matches any of the listed chunk types
// (Qdrant's "should" clause), needed by the cluster analyzer's query over
// {function, method} chunks. When ChunkType is set as well, a point must
// satisfy both.
type Filter struct {
	RepositoryID string
	CommitSHA    string
	ChunkType    model.ChunkType
	ChunkTypeIn  []model.ChunkType
}

// Index describes the behaviour the embeddings worker and cluster analyzer
// need from the vector index.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, payload model.VectorIndexPayload) error
	Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error)
	// Scroll returns every point matching filter without a similarity
	// query, the retrieval mode the cluster analyzer needs to gather a
	// commit's full chunk population before clustering it (spec.md §4.4
	// step 1). limit <= 0 means no cap.
	Scroll(ctx context.Context, filter Filter, limit int) ([]Match, error)
	Delete(ctx context.Context, id string) error
	GetPointCount(ctx context.Context) (int, error)
	UpdateClusterID(ctx context.Context, id string, clusterID int) error
}

// QdrantIndex is a thin wrapper around the Qdrant service clients, carrying
// the versioned VectorIndexPayload schema instead of the-hive's original
// freeform string-map metadata. The wrapping shape (service clients built
// directly off a shared *grpc.ClientConn, ensureCollection-on-construct) is
// unchanged from the teacher's QdrantVectorDB.
type QdrantIndex struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	collection     string
	dimension      int
}

// NewQdrantIndex constructs a wrapper targeting the named collection and
// ensures it exists with the given vector dimension.
func NewQdrantIndex(conn *grpc.ClientConn, collection string, dimension int) (*QdrantIndex, error) {
	if conn == nil {
		return nil, errors.New("gRPC connection is required")
	}
	if collection == "" {
		collection = "codewatch_chunks"
	}
	if dimension <= 0 {
		dimension = 1536
	}

	idx := &QdrantIndex{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		collection:     collection,
		dimension:      dimension,
	}

	if err := idx.ensureCollection(context.Background(), dimension); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) error {
	log.Printf("ensuring qdrant collection %s exists with dimension %d", q.collection, dim)

	collections, err := q.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	exists := false
	for _, coll := range collections.Collections {
		if coll.Name == q.collection {
			exists = true
			break
		}
	}

	if !exists {
		_, err = q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(dim),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		log.Printf("created qdrant collection %s with dimension %d", q.collection, dim)

		for _, field := range model.IndexedFields {
			if _, err := q.collectionsSvc.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: q.collection,
				FieldName:      field,
			}); err != nil {
				log.Printf("warning: failed to create field index on %s: %v", field, err)
			}
		}
	}

	q.dimension = dim
	return nil
}

// payloadToValues encodes a VectorIndexPayload into Qdrant's payload value
// map, one field per struct field so the field indexes named in spec.md §6
// apply directly — not a single opaque JSON blob.
func payloadToValues(p model.VectorIndexPayload) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"schema_version":         {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.SchemaVersion)}},
		"repository_id":          {Kind: &qdrant.Value_StringValue{StringValue: p.RepositoryID}},
		"commit_sha":             {Kind: &qdrant.Value_StringValue{StringValue: p.CommitSHA}},
		"file_path":              {Kind: &qdrant.Value_StringValue{StringValue: p.FilePath}},
		"language":               {Kind: &qdrant.Value_StringValue{StringValue: p.Language}},
		"chunk_type":             {Kind: &qdrant.Value_StringValue{StringValue: string(p.ChunkType)}},
		"name":                   {Kind: &qdrant.Value_StringValue{StringValue: p.Name}},
		"line_start":             {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.LineStart)}},
		"line_end":               {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.LineEnd)}},
		"parent_name":            {Kind: &qdrant.Value_StringValue{StringValue: p.ParentName}},
		"docstring":              {Kind: &qdrant.Value_StringValue{StringValue: p.Docstring}},
		"content":                {Kind: &qdrant.Value_StringValue{StringValue: p.Content}},
		"content_truncated":      {Kind: &qdrant.Value_BoolValue{BoolValue: p.ContentTruncated}},
		"full_content_length":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.FullContentLength)}},
		"token_estimate":         {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.TokenEstimate)}},
		"level":                  {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.Level)}},
		"qualified_name":         {Kind: &qdrant.Value_StringValue{StringValue: p.QualifiedName}},
		"cyclomatic_complexity":  {Kind: &qdrant.Value_DoubleValue{DoubleValue: p.CyclomaticComplexity}},
		"line_count":             {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.LineCount)}},
		"cluster_id":             {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.ClusterID)}},
	}
}

func valuesToPayload(values map[string]*qdrant.Value) model.VectorIndexPayload {
	var p model.VectorIndexPayload
	p.SchemaVersion = int(values["schema_version"].GetIntegerValue())
	p.RepositoryID = values["repository_id"].GetStringValue()
	p.CommitSHA = values["commit_sha"].GetStringValue()
	p.FilePath = values["file_path"].GetStringValue()
	p.Language = values["language"].GetStringValue()
	p.ChunkType = model.ChunkType(values["chunk_type"].GetStringValue())
	p.Name = values["name"].GetStringValue()
	p.LineStart = int(values["line_start"].GetIntegerValue())
	p.LineEnd = int(values["line_end"].GetIntegerValue())
	p.ParentName = values["parent_name"].GetStringValue()
	p.Docstring = values["docstring"].GetStringValue()
	p.Content = values["content"].GetStringValue()
	p.ContentTruncated = values["content_truncated"].GetBoolValue()
	p.FullContentLength = int(values["full_content_length"].GetIntegerValue())
	p.TokenEstimate = int(values["token_estimate"].GetIntegerValue())
	p.Level = int(values["level"].GetIntegerValue())
	p.QualifiedName = values["qualified_name"].GetStringValue()
	p.CyclomaticComplexity = values["cyclomatic_complexity"].GetDoubleValue()
	p.LineCount = int(values["line_count"].GetIntegerValue())
	p.ClusterID = int(values["cluster_id"].GetIntegerValue())
	return p
}

func pointIDFor(id string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

// Upsert stores or updates one chunk's vector and payload, rejecting
// payloads that fail schema validation (spec.md §8's content-length and
// truncation-consistency invariants) before ever reaching Qdrant.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vector []float32, payload model.VectorIndexPayload) error {
	if len(vector) == 0 {
		return errors.New("vector cannot be empty")
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id: pointIDFor(id),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: payloadToValues(payload),
	}

	_, err := q.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}
	return nil
}

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	addMatch := func(field, value string) {
		if value == "" {
			return
		}
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   field,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
				},
			},
		})
	}
	addMatch("repository_id", f.RepositoryID)
	addMatch("commit_sha", f.CommitSHA)
	addMatch("chunk_type", string(f.ChunkType))

	var should []*qdrant.Condition
	for _, ct := range f.ChunkTypeIn {
		should = append(should, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "chunk_type",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: string(ct)}},
				},
			},
		})
	}

	if len(must) == 0 && len(should) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, Should: should}
}

// Search performs a cosine-similarity search, optionally narrowed by
// Filter's indexed fields.
func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	searchResult, err := q.pointsSvc.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		Filter:         buildFilter(filter),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	matches := make([]Match, 0, len(searchResult.Result))
	for _, scoredPoint := range searchResult.Result {
		var pointID string
		if scoredPoint.Id != nil {
			if uuid := scoredPoint.Id.GetUuid(); uuid != "" {
				pointID = uuid
			} else if num := scoredPoint.Id.GetNum(); num != 0 {
				pointID = fmt.Sprintf("%d", num)
			}
		}
		matches = append(matches, Match{
			ID:      pointID,
			Score:   scoredPoint.Score,
			Payload: valuesToPayload(scoredPoint.Payload),
		})
	}
	return matches, nil
}

// Scroll pages through every point matching filter via Qdrant's Scroll RPC,
// the collection-wide read path (no query vector) spec.md §4.4 step 1 needs
// to gather a commit's full function/method population.
func (q *QdrantIndex) Scroll(ctx context.Context, filter Filter, limit int) ([]Match, error) {
	const pageSize = 256
	var out []Match
	var offset *qdrant.PointId

	for {
		want := uint32(pageSize)
		if limit > 0 {
			remaining := limit - len(out)
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				want = uint32(remaining)
			}
		}

		resp, err := q.pointsSvc.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         buildFilter(filter),
			Limit:          &want,
			Offset:         offset,
			WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("scroll: %w", err)
		}

		for _, point := range resp.Result {
			var pointID string
			if point.Id != nil {
				if uuid := point.Id.GetUuid(); uuid != "" {
					pointID = uuid
				} else if num := point.Id.GetNum(); num != 0 {
					pointID = fmt.Sprintf("%d", num)
				}
			}
			var vec []float32
			if point.Vectors != nil {
				if v := point.Vectors.GetVector(); v != nil {
					vec = v.Data
				}
			}
			out = append(out, Match{ID: pointID, Payload: valuesToPayload(point.Payload), Vector: vec})
		}

		if resp.NextPageOffset == nil || len(resp.Result) == 0 {
			break
		}
		offset = resp.NextPageOffset
	}

	return out, nil
}

// GetPointCount returns the number of points in the collection.
func (q *QdrantIndex) GetPointCount(ctx context.Context) (int, error) {
	info, err := q.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		return 0, fmt.Errorf("get collection info: %w", err)
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}

// UpdateClusterID performs a payload-only update of a single point's
// cluster_id, the write the cluster analyzer issues after clustering runs
// without re-embedding or re-uploading the vector (spec.md §4.4).
func (q *QdrantIndex) UpdateClusterID(ctx context.Context, id string, clusterID int) error {
	payload := map[string]*qdrant.Value{
		"cluster_id": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(clusterID)}},
	}
	_, err := q.pointsSvc.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Payload:        payload,
		PointsSelector: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointIDFor(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("update cluster_id for %s: %w", id, err)
	}
	return nil
}

// Delete removes a point from the collection.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointIDFor(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete point %s: %w", id, err)
	}
	return nil
}
