package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/app"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/storage"
)

var reconcileDir string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-index sources with failed chunks",
	Long: `Reads the chunk ledger and re-ingests every source that has failed
chunks. Sources are opened from object storage when it is configured,
otherwise from --dir.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileDir, "dir", "d", "", "local directory holding the sources")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Ledger == nil {
		return errors.New("reconcile needs the ledger: set database.mysql.dsn")
	}

	var src loader.Source
	switch {
	case reconcileDir != "":
		src = loader.DirSource{Root: reconcileDir}
	case a.Objects != nil:
		src = storage.NewObjectSource(a.Objects, "")
	default:
		return errors.New("no source: pass --dir or configure minio")
	}

	rep, err := a.Ingestor.Reconcile(ctx, src)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	printReport(cmd, rep)
	return nil
}
