package main

import (
	"fmt"
	"text/tabwriter"

	"esign-orchestrator/core/provider"

	"github.com/spf13/cobra"
)

var documentsType string

var documentsCmd = &cobra.Command{
	Use:   "documents <staging-id>",
	Short: "List signed and stamped documents for a staging id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		client := provider.New(env, cfg.ProviderOptions(logger)...)

		signed, err := client.ListSignedDocuments(ctx, args[0])
		if err != nil {
			return err
		}
		stamped, err := client.ListStampedDocuments(ctx, args[0])
		if err != nil {
			return err
		}

		docType := documentsType
		if docType == "" {
			docType = cfg.DocumentType
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tID\tSIGNER/SERIAL\tAT\tURL")
		for _, d := range signed {
			fmt.Fprintf(w, "signed\t%s\t%s\t%s\t%s\n", d.ID, d.SignerName, d.SignedAt, client.SignedDownloadURL(d.SignedURL))
		}
		for _, d := range stamped {
			fmt.Fprintf(w, "stamped\t%s\t%s\t%s\t%s\n", d.ID, d.SerialNumber, d.StampedAt, client.StampedDownloadURL(docType, d.SpecificDocumentRef))
		}
		return w.Flush()
	},
}

func init() {
	documentsCmd.Flags().StringVar(&documentsType, "document-type", "", "document type used in stamped download URLs")
}
