package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/vamphost/service"
)

func (a *app) listCommand() *cobra.Command {
	var from []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available extractors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.List(cmd.Context(), service.ListRequest{From: from})
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.Available))
			for _, d := range resp.Available {
				outputs := make([]string, 0, len(d.BasicOutputInfo))
				for _, o := range d.BasicOutputInfo {
					outputs = append(outputs, o.Identifier)
				}
				rows = append(rows, []string{
					d.Key,
					d.Name,
					strings.Join(outputs, ", "),
					fmt.Sprintf("%d-%d", d.MinChannelCount, d.MaxChannelCount),
					strconv.Itoa(d.Version),
				})
			}
			headers := []string{"Key", "Name", "Outputs", "Channels", "Version"}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 4, 5))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", nil, "only list extractors from these libraries")
	return cmd
}
