package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

var defaultDomains = []domain.DomainID{100, 200, 300}

func sovereignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sovereign [domain-id...]",
		Short: "Print the parent and sibling sovereign accounts of domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := defaultDomains
			if len(args) > 0 {
				ids = make([]domain.DomainID, 0, len(args))
				for _, arg := range args {
					id, err := domain.ParseDomainID(arg)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
			}
			printSovereign(cmd.OutOrStdout(), ids)
			return nil
		},
	}
	return cmd
}

func printSovereign(w io.Writer, ids []domain.DomainID) {
	for _, id := range ids {
		for _, kind := range []domain.SovereignKind{domain.SovereignParent, domain.SovereignSibling} {
			fmt.Fprintf(w, "%s %s\naccount %s\n\n", kind, id, domain.SovereignAccount(kind, id))
		}
	}
}
