package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waftester/wpscout/pkg/cli"
	"github.com/waftester/wpscout/pkg/consent"
	"github.com/waftester/wpscout/pkg/defaults"
	"github.com/waftester/wpscout/pkg/probe"
	"github.com/waftester/wpscout/pkg/ratelimit"
	"github.com/waftester/wpscout/pkg/scanner"
	"github.com/waftester/wpscout/pkg/ui"
)

func newConsentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Prove ownership of a domain",
		Long: `Aggressive scans, AI analysis and rates of 10 req/s or more are only
allowed against domains whose ownership has been verified.

Generate a token, publish it as a file or a DNS TXT record, then verify it.`,
	}
	cmd.AddCommand(newConsentGenCmd(a), newConsentVerifyCmd(a))
	return cmd
}

func newConsentGenCmd(a *app) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a verification token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, closeFn, err := a.consentManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			tok, err := m.Generate(ctx, domain)
			if err != nil {
				return err
			}
			ui.PrintSuccess(a.stdout, "Consent token generated")
			fmt.Fprintln(a.stdout)
			fmt.Fprint(a.stdout, m.Instructions(tok))
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain to verify")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func newConsentVerifyCmd(a *app) *cobra.Command {
	var domain, method, token string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a published token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			meth, err := consent.ParseMethod(method)
			if err != nil {
				return err
			}
			m, closeFn, err := a.consentManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			proof, err := m.VerifyWithRetry(cmd.Context(), meth, domain, token)
			if err != nil {
				ui.PrintError(a.stderr, fmt.Sprintf("Verification failed for %s: %v", domain, err))
				return &cli.ExitError{Code: cli.ExitFailure, Err: err, Silent: true}
			}
			ui.PrintSuccess(a.stdout, fmt.Sprintf("Domain %s verified via %s", proof.Domain, proof.Method))
			if proof.Path != "" {
				fmt.Fprintf(a.stdout, "    proof: %s\n", proof.Path)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&domain, "domain", "d", "", "domain to verify")
	fl.StringVarP(&method, "method", "m", string(consent.MethodHTTP), "verification method: http or dns")
	fl.StringVar(&token, "token", "", "token printed by consent gen")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// consentManager wires a manager to the history database and a probe
// client running at the safe rate. The returned func closes the store.
func (a *app) consentManager(cmd *cobra.Command) (*consent.Manager, func(), error) {
	cfg := a.cfg
	hc := scanner.ClientConfig(cfg)
	client, err := probe.NewFromConfig(hc, ratelimit.New(defaults.RateSafe, 0), probe.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}

	opts := []consent.Option{
		consent.WithLogger(a.logger),
		consent.WithProofsDir(cfg.Paths.ConsentProofsDir),
	}
	closeFn := func() {}
	if st := a.openStore(cmd.Context()); st != nil {
		opts = append(opts, consent.WithStore(st))
		closeFn = func() { _ = st.Close() }
	}
	return consent.NewManager(cfg.Consent, client, opts...), closeFn, nil
}
