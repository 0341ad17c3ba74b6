package main

import (
	"strings"

	"admission-gateway/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newQuotasCmd imprime a tabela efetiva; com arquivo malformado sai com erro,
// o que permite validar o arquivo antes de um deploy.
func newQuotasCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotas",
		Short: "Print the effective quota table and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config{QuotaFile: strings.TrimSpace(v.GetString("quota_file"))}
			table, err := cfg.quotaTable()
			if err != nil {
				return err
			}
			return infra.WriteQuotaTable(cmd.OutOrStdout(), table)
		},
	}
	return cmd
}
