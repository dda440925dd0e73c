package index

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
	"github.com/MedManualAI/medmanual-mvp/engine/pdfdoc"
)

// QdrantBackend stores each manual's index as its own Qdrant collection,
// named by cache key. An alternative to DiskBackend for deployments that
// already run Qdrant; selected by configuration in the entry point.
type QdrantBackend struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// NewQdrantBackend connects to Qdrant at the given gRPC address.
func NewQdrantBackend(addr string) (*QdrantBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	return &QdrantBackend{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the underlying gRPC connection.
func (b *QdrantBackend) Close() error { return b.conn.Close() }

// Open reports a persisted index when the collection exists.
func (b *QdrantBackend) Open(ctx context.Context, key string) (Index, bool, error) {
	list, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, false, fmt.Errorf("index: list collections: %v: %w", err, domain.ErrIndexLoadFailed)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == key {
			return &qdrantIndex{backend: b, collection: key}, true, nil
		}
	}
	return nil, false, nil
}

// Save creates the collection and upserts one point per chunk. The content
// hash is already part of the collection name, so it is not stored again.
func (b *QdrantBackend) Save(ctx context.Context, key, _ string, chunks []pdfdoc.Chunk, vectors [][]float32) (Index, error) {
	if len(chunks) == 0 || len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: save %s: %d chunks, %d vectors", key, len(chunks), len(vectors))
	}

	_, err := b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: key,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(len(vectors[0])),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("index: create collection %s: %w", key, err)
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(c.Index)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}},
			},
			Payload: map[string]*pb.Value{
				"text": {Kind: &pb.Value_StringValue{StringValue: c.Text}},
				"page": {Kind: &pb.Value_StringValue{StringValue: c.PageLabel}},
			},
		}
	}

	wait := true
	_, err = b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: key,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("index: upsert %d points: %w", len(points), err)
	}

	return &qdrantIndex{backend: b, collection: key}, nil
}

type qdrantIndex struct {
	backend    *QdrantBackend
	collection string
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedPassage, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := q.backend.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant search: %w", err)
	}

	results := make([]domain.RetrievedPassage, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		score := float64(r.GetScore())
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		p := domain.RetrievedPassage{Score: score}
		for k, val := range r.GetPayload() {
			switch k {
			case "text":
				p.Text = val.GetStringValue()
			case "page":
				p.PageLabel = val.GetStringValue()
			}
		}
		results[i] = p
	}
	return results, nil
}
