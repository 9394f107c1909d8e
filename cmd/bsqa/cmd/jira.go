package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

var jiraCmd = &cobra.Command{
	Use:   "jira",
	Short: "Manage the Jira session",
	Long: `Manage the Jira identity used by the QA assistant.

A successful 'bsqa jira login' keeps the credentials in the session store,
which expires (storage.session.ttl) and is never written to the settings.`,
}

var jiraLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Test Jira credentials and keep them for this session",
	Long: `Test Jira credentials against the backend. On success they are kept in the
session store, and empty user fields are filled from the Jira account.

Missing flags fall back to the Jira settings; a missing token is read from
the terminal without echo.`,
	Args: cobra.NoArgs,
	RunE: runJiraLogin,
}

var jiraStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Jira session",
	Args:  cobra.NoArgs,
	RunE:  runJiraStatus,
}

var jiraLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the Jira session",
	Args:  cobra.NoArgs,
	RunE:  runJiraLogout,
}

var jiraCardCmd = &cobra.Command{
	Use:   "card KEY",
	Short: "Validate a card number and print its Jira link",
	Args:  cobra.ExactArgs(1),
	RunE:  runJiraCard,
}

var (
	jiraBaseURL string
	jiraEmail   string
	jiraToken   string
)

func init() {
	rootCmd.AddCommand(jiraCmd)
	jiraCmd.AddCommand(jiraLoginCmd, jiraStatusCmd, jiraLogoutCmd, jiraCardCmd)

	jiraLoginCmd.Flags().StringVar(&jiraBaseURL, "base-url", "", "Jira base URL, e.g. https://acme.atlassian.net")
	jiraLoginCmd.Flags().StringVar(&jiraEmail, "email", "", "Jira account email")
	jiraLoginCmd.Flags().StringVar(&jiraToken, "token", "", "Jira API token (prompted when omitted)")
}

func runJiraLogin(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		jira := s.View().Document.Integrations.Jira
		baseURL := firstNonEmpty(jiraBaseURL, jira.BaseURL)
		email := firstNonEmpty(jiraEmail, jira.UserEmail)
		token := firstNonEmpty(jiraToken, jira.APIToken)
		if baseURL == "" || email == "" {
			return core.ErrValidation(core.CodeJiraIncomplete, "Jira base URL and email are required (--base-url, --email)")
		}
		if token == "" {
			t, err := readSecret("Jira API token: ")
			if err != nil {
				return err
			}
			token = t
		}

		if !s.View().Document.Integrations.Jira.Enabled {
			if _, err := s.Toggle(ctx, core.IntegrationJira, true); err != nil {
				return err
			}
		}
		for id, v := range map[core.FieldID]string{
			core.FieldJiraBaseURL:   baseURL,
			core.FieldJiraUserEmail: email,
			core.FieldJiraAPIToken:  token,
		} {
			if _, err := s.Change(ctx, id, v); err != nil {
				return err
			}
		}

		res, err := s.TestJiraConnection(ctx)
		if err != nil {
			if res != nil && res.Message != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
			}
			return err
		}

		creds := core.JiraSessionCredentials{BaseURL: baseURL, Email: email}
		name := email
		if res.User != nil && res.User.DisplayName != "" {
			name = res.User.DisplayName
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", creds.InstanceName(), name)
		return nil
	})
}

func runJiraStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out := cmd.OutOrStdout()
	creds := app.Store.ReadJiraSession(ctx)
	if creds == nil {
		fmt.Fprintln(out, "Not logged in to Jira")
		return nil
	}
	fmt.Fprintf(out, "Logged in to %s as %s\n", creds.InstanceName(), creds.DisplayName())
	fmt.Fprintf(out, "  base url: %s\n", creds.BaseURL)
	fmt.Fprintf(out, "  email:    %s\n", creds.Email)
	return nil
}

func runJiraLogout(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.ClearJiraSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out of Jira")
	return nil
}

func runJiraCard(cmd *cobra.Command, args []string) error {
	key, err := core.ValidateCardNumber(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	base := app.Store.ReadConfig(ctx).Integrations.Jira.BaseURL
	if creds := app.Store.ReadJiraSession(ctx); creds != nil {
		base = firstNonEmpty(base, creds.BaseURL)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, key)
	if base == "" {
		return errors.New("no Jira base URL configured: run 'bsqa jira login' first")
	}
	fmt.Fprintf(out, "%s/browse/%s\n", strings.TrimRight(base, "/"), key)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
