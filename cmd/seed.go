package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/rag/store"
)

var seedFixture string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a knowledge graph fixture into Milvus",
	Long: `Load a pre-embedded knowledge graph fixture (YAML or JSON) into the
configured Milvus collections. The fixture's embedding dimension must match
embedding.dimension.

Examples:
  auditor seed --fixture graph.yaml
  AUDITOR_STORE_MILVUS_ADDRESS=milvus:19530 auditor seed --fixture graph.json`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedFixture, "fixture", "", "Fixture file to load")
	_ = seedCmd.MarkFlagRequired("fixture")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fx, err := store.LoadFixture(seedFixture)
	if err != nil {
		return err
	}

	mc := store.DefaultMilvusConfig()
	mc.Address = cfg.Store.MilvusAddress
	mc.ChunkCollection = cfg.Store.MilvusChunkCollection
	mc.SectionCollection = cfg.Store.MilvusSectionCollection
	mc.Dimension = cfg.Embedding.Dimension

	ms, err := store.NewMilvusStore(ctx, mc, logger)
	if err != nil {
		return err
	}
	defer ms.Close(ctx)

	if err := ms.Seed(ctx, fx); err != nil {
		return err
	}
	logger.Info("fixture seeded",
		zap.Int("documents", len(fx.Documents)),
		zap.Int("chunks", len(fx.Chunks)),
		zap.Int("sections", len(fx.Sections)),
	)
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Seeded %d chunks and %d sections into Milvus", len(fx.Chunks), len(fx.Sections))))
	return nil
}
