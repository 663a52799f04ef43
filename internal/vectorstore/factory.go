package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

// NewIndex creates a vector index from the configuration.
//
// The factory examines VectorStoreConfig.Provider and creates the matching
// implementation:
//   - "chromem" (default): embedded ChromemIndex, no external service
//   - "qdrant": QdrantIndex, requires a running Qdrant server
//
// Example usage:
//
//	cfg, err := config.Load(path)
//	index, err := vectorstore.NewIndex(cfg.VectorStore, embedder, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
func NewIndex(cfg config.VectorStoreConfig, embedder Embedder, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.Path,
			VectorSize: cfg.VectorSize,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			VectorSize: uint64(cfg.VectorSize),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
}
