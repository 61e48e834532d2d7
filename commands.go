package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/parley/config"
	"github.com/akinalp/parley/database"
	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/services"
)

// openStore, CLI komutları için veritabanını açar. Migration'lar her açılışta uygulanır.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, *Repositories, error) {
	db, err := database.New(ctx, cfg.Database.Path, database.Migrations(), logger)
	if err != nil {
		return nil, nil, err
	}
	return db, initRepositories(db.Conn), nil
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, _, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s\n", cfg.Database.Path)
			return nil
		},
	}
}

// buildTokenCmd, geliştirme ve operasyon için imzalı bir oturum token'ı üretir.
// Gerçek kimlik doğrulama akışları bu servisin dışındadır.
func buildTokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed session token for a user",
		Args:  cobra.ExactArgs(1),
		Example: `  parley token 42
  parley token 42 --username alice --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TokenTTL
			}

			token, err := services.NewAuthService(cfg.JWT.Secret).IssueToken(args[0], username, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Display name embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_TOKEN_TTL)")
	return cmd
}

func buildConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Manage conversations",
	}
	cmd.AddCommand(buildConversationCreateCmd())
	return cmd
}

func buildConversationCreateCmd() *cobra.Command {
	var (
		participants []string
		title        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a conversation with the given participants",
		Long: `Create a conversation. Two participants make a direct conversation,
three or more make a group.`,
		Example: `  parley conversation create --participant 1 --participant 2
  parley conversation create -p 1 -p 2 -p 3 --title "Hiring"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, repos, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			conv, err := services.NewConversationService(repos.Conversation, nil).Create(cmd.Context(), models.CreateConversationRequest{
				Title:        title,
				Participants: participants,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), conv)
		},
	}

	cmd.Flags().StringSliceVarP(&participants, "participant", "p", nil, "Participant user id (repeatable)")
	cmd.Flags().StringVar(&title, "title", "", "Optional conversation title")
	_ = cmd.MarkFlagRequired("participant")
	return cmd
}

// buildHistoryCmd, kalıcı log'dan okur; canlı iletimi kaçıran istemcilerin
// göreceği sırayla aynıdır.
func buildHistoryCmd() *cobra.Command {
	var (
		before string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, repos, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := repos.Conversation.GetByID(cmd.Context(), args[0]); err != nil {
				return err
			}

			msgs, err := services.NewMessageLog(repos.Message, nil, nil, logger).History(cmd.Context(), args[0], before, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), msgs)
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "Only messages older than this message id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of messages (1-200)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
