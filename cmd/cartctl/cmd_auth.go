package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/hanko-field/storefront/internal/client"
	"github.com/hanko-field/storefront/internal/session"
)

func newSignupCmd(a *app) *cobra.Command {
	var req client.SignupRequest
	var idempotencyKey string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(idempotencyKey) == "" {
				idempotencyKey = ulid.Make().String()
			}
			account, err := a.api.Signup(cmd.Context(), req, idempotencyKey)
			if err != nil {
				return describeAPIError("signup", err)
			}
			return a.signIn(cmd, account)
		},
	}
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "retry key; generated when empty")
	for _, name := range []string{"first-name", "last-name", "email", "password"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and merge the local cart with the saved one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return describeAPIError("login", err)
			}
			return a.signIn(cmd, account)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.session.Identity().IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			creds, ok := a.session.Current()
			if !ok {
				fmt.Fprintln(out, "anonymous")
				return nil
			}
			account, err := a.api.Profile(cmd.Context(), creds.Token)
			if err != nil {
				fmt.Fprintf(out, "%s %s <%s> (offline: %v)\n", creds.FirstName, creds.LastName, creds.Email, err)
				return nil
			}
			role := ""
			if account.IsAdmin {
				role = " [admin]"
			}
			fmt.Fprintf(out, "%s %s <%s>%s\n", account.FirstName, account.LastName, account.Email, role)
			return nil
		},
	}
}

func (a *app) signIn(cmd *cobra.Command, account client.Account) error {
	creds := session.Credentials{
		UserID:    account.ID,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		IsAdmin:   account.IsAdmin,
		Token:     account.Token,
	}
	if account.ExpiresAt != "" {
		if expires, err := time.Parse(time.RFC3339, account.ExpiresAt); err == nil {
			creds.ExpiresAt = expires
		}
	}
	if err := a.session.Login(cmd.Context(), creds); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", account.Email)
	printCart(cmd.OutOrStdout(), a.engine.Snapshot())
	return nil
}

func describeAPIError(action string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("%s failed: %s", action, apiErr.Message)
	}
	return fmt.Errorf("%s failed: %w", action, err)
}
