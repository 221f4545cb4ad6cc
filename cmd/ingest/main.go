// Command ingest loads university content into the vector store and
// inspects the index from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "ingest",
	Short:        "Index university content for retrieval",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to the YAML configuration")
}

// loadConfig reads the configuration and initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer log.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
