package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	v := newViper()
	var cfgFile string

	root := &cobra.Command{
		Use:   "gateway",
		Short: "Reverse proxy with distributed admission control",
		Long: `Reverse proxy that admits or rejects each request against a per-client,
per-route-class quota shared through Redis, falling back to reduced local
limits when Redis is unavailable.

Without a subcommand it runs "serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return invalid("read config %s: %v", cfgFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml/json/toml); environment variables take precedence")
	root.PersistentFlags().String("quota-file", "", "YAML quota table (QUOTA_FILE)")
	_ = v.BindPFlag("quota_file", root.PersistentFlags().Lookup("quota-file"))

	serve := newServeCmd(v)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newQuotasCmd(v))
	return root
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
