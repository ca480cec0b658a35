package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"

	"gwi.com/legal-rag/internal/gcp"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/model"
)

// Corpus layout: every file is embedded with the same publisher model and split
// into fixed-length chunks measured in tokens.
const (
	EmbeddingModel = "text-embedding-005"
	ChunkSize      = 512
	ChunkOverlap   = 100
)

// VertexCorpus stores documents in Vertex AI RAG Engine corpora, one per document.
type VertexCorpus struct {
	client *aiplatform.VertexRagDataClient
	parent string
	log    *slog.Logger
}

func NewVertexCorpus(ctx context.Context, project, location string, opts ...option.ClientOption) (*VertexCorpus, error) {
	opts = append(opts, option.WithEndpoint(gcp.RegionalEndpoint(location)))
	client, err := aiplatform.NewVertexRagDataClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex rag data client: %w", err)
	}
	return &VertexCorpus{
		client: client,
		parent: gcp.Parent(project, location),
		log:    logging.New("rag.corpus"),
	}, nil
}

func (c *VertexCorpus) Close() error {
	return c.client.Close()
}

// Ingest creates the corpus if needed and starts importing the source object.
// It returns as soon as the import operation has been accepted.
func (c *VertexCorpus) Ingest(ctx context.Context, req IngestRequest) (Handle, error) {
	if !strings.HasPrefix(req.SourceURI, "gs://") {
		return Handle{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, req.SourceURI)
	}

	corpus := req.Corpus
	if corpus == "" {
		op, err := c.client.CreateRagCorpus(ctx, newCorpusRequest(c.parent, req.DocumentID))
		if err != nil {
			return Handle{}, fmt.Errorf("create corpus: %w", err)
		}
		created, err := op.Wait(ctx)
		if err != nil {
			return Handle{}, fmt.Errorf("wait for corpus creation: %w", err)
		}
		corpus = created.GetName()
		c.log.Info("created corpus", "doc_id", req.DocumentID, "corpus", corpus)
	}

	imp, err := c.client.ImportRagFiles(ctx, newImportRequest(corpus, req.SourceURI))
	if err != nil {
		// The corpus exists; hand it back so a retry does not create another one.
		return Handle{Corpus: corpus}, fmt.Errorf("import %s: %w", req.SourceURI, err)
	}
	c.log.Info("import started", "doc_id", req.DocumentID, "operation", imp.Name())
	return Handle{Corpus: corpus, Operation: imp.Name()}, nil
}

func newCorpusRequest(parent, docID string) *aiplatformpb.CreateRagCorpusRequest {
	return &aiplatformpb.CreateRagCorpusRequest{
		Parent: parent,
		RagCorpus: &aiplatformpb.RagCorpus{
			DisplayName: CorpusDisplayName(docID),
			Description: fmt.Sprintf("Legal document %s", docID),
			BackendConfig: &aiplatformpb.RagCorpus_VectorDbConfig{
				VectorDbConfig: &aiplatformpb.RagVectorDbConfig{
					RagEmbeddingModelConfig: &aiplatformpb.RagEmbeddingModelConfig{
						ModelConfig: &aiplatformpb.RagEmbeddingModelConfig_VertexPredictionEndpoint_{
							VertexPredictionEndpoint: &aiplatformpb.RagEmbeddingModelConfig_VertexPredictionEndpoint{
								Endpoint: parent + "/publishers/google/models/" + EmbeddingModel,
							},
						},
					},
				},
			},
		},
	}
}

func newImportRequest(corpus, sourceURI string) *aiplatformpb.ImportRagFilesRequest {
	return &aiplatformpb.ImportRagFilesRequest{
		Parent: corpus,
		ImportRagFilesConfig: &aiplatformpb.ImportRagFilesConfig{
			ImportSource: &aiplatformpb.ImportRagFilesConfig_GcsSource{
				GcsSource: &aiplatformpb.GcsSource{Uris: []string{sourceURI}},
			},
			RagFileTransformationConfig: &aiplatformpb.RagFileTransformationConfig{
				RagFileChunkingConfig: &aiplatformpb.RagFileChunkingConfig{
					ChunkingConfig: &aiplatformpb.RagFileChunkingConfig_FixedLengthChunking_{
						FixedLengthChunking: &aiplatformpb.RagFileChunkingConfig_FixedLengthChunking{
							ChunkSize:    ChunkSize,
							ChunkOverlap: ChunkOverlap,
						},
					},
				},
			},
		},
	}
}

// Status polls the import operation once.
func (c *VertexCorpus) Status(ctx context.Context, h Handle) (model.IngestionStatus, error) {
	if h.Corpus == "" || h.Operation == "" {
		return model.IngestionNotStarted, nil
	}

	op := c.client.ImportRagFilesOperation(h.Operation)
	resp, err := op.Poll(ctx)
	if err != nil {
		if op.Done() {
			c.log.Warn("import failed", "operation", h.Operation, "error", err)
			return model.IngestionFailed, nil
		}
		return "", fmt.Errorf("poll import %s: %w", h.Operation, err)
	}
	if !op.Done() {
		return model.IngestionPending, nil
	}
	if resp.GetImportedRagFilesCount() == 0 && resp.GetFailedRagFilesCount() > 0 {
		c.log.Warn("import finished without files", "operation", h.Operation,
			"failed", resp.GetFailedRagFilesCount())
		return model.IngestionFailed, nil
	}
	return model.IngestionReady, nil
}
