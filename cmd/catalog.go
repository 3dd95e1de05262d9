package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the professor Q&A catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Validate a professor Q&A JSON file and upsert it into PostgreSQL",
	Run: func(cmd *cobra.Command, _ []string) {
		importCatalog(cmd)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)

	catalogImportCmd.Flags().StringP("file", "f", "professor_data.json", "professor Q&A JSON file")
}

func importCatalog(cmd *cobra.Command) {
	ctx := context.Background()

	d := setup()
	defer d.close()
	logger := d.logger

	file, _ := cmd.Flags().GetString("file")

	records, err := catalog.ReadRecords(file)
	if err != nil {
		logger.Fatal("reading catalog file", zap.String("filename", file), zap.Error(err))
	}

	store, err := d.postgres(ctx)
	if err != nil {
		logger.Fatal("opening postgres catalog", zap.Error(err))
	}

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("creating catalog schema", zap.Error(err))
	}

	n, err := store.Import(ctx, records)
	if err != nil {
		logger.Fatal("importing catalog", zap.Error(err))
	}

	logger.Info("catalog imported", zap.String("filename", file), zap.Int("records", n))
}
