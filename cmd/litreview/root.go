package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	viper      *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "litreview",
		Short: "Draft literature reviews from open-access papers",
		Long: `litreview searches Semantic Scholar for papers on a topic, downloads the
open-access PDFs, extracts and analyzes them with an LLM, and writes a
literature review draft that is critiqued and revised until it is coherent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default searches ./litreview.yaml, ./config, ~/.config/litreview)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("provider", "", "LLM provider (google, openai, anthropic, mock)")
	flags.String("model", "", "primary LLM model")
	flags.String("data-dir", "", "directory for papers, extracted text, analysis and drafts")
	flags.Bool("trace", false, "export workflow spans with the stdout exporter")

	bind(opts.viper, cmd, map[string]string{
		"logging.level":    "log-level",
		"llm.provider":     "provider",
		"llm.model":        "model",
		"storage.data_dir": "data-dir",
		"tracing.enabled":  "trace",
	})

	cmd.AddCommand(
		newRunCmd(opts),
		newSearchCmd(opts),
		newGenerateCmd(opts),
		newReviseCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newCleanCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// bind maps viper keys to flags of cmd, persistent or local.
func bind(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			f = cmd.Flags().Lookup(name)
		}
		if f == nil {
			continue
		}
		_ = v.BindPFlag(key, f)
	}
}
