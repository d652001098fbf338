package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// サブコマンド名
const (
	// CommandServe はAPIサーバーモードで起動する。サブコマンド省略時もこれになる。
	CommandServe = "serve"
	// CommandMigrate はPostgreSQLユーザーストアのマイグレーションを実行する。
	CommandMigrate = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck = "healthcheck"
)

const defaultHealthcheckPort = "5001"

// NewRootCommand はCLIのルートコマンドを構築する。
// wはログの出力先（nilの場合はstdout）。
func NewRootCommand(w io.Writer) *cobra.Command {
	var envFile string

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := Init(w, envFile)
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:           Name,
		Short:         Name + " – Discord OAuth relay for local applications",
		Long:          Name + " runs the Discord OAuth flow on behalf of local applications and issues bearer tokens they can validate.\n\nRun '" + Name + " serve' (or no subcommand) to start the server.",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")

	root.AddCommand(
		&cobra.Command{
			Use:   CommandServe,
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   CommandMigrate,
			Short: "Apply database migrations for the PostgreSQL user store",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := Init(w, envFile)
				if err != nil {
					return err
				}
				return runMigrate(cfg)
			},
		},
		&cobra.Command{
			Use:   CommandHealthcheck,
			Short: "Check /health of the running server",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(cmd *cobra.Command, args []string) error {
				port := os.Getenv("PORT")
				if port == "" {
					port = defaultHealthcheckPort
				}
				return runHealthcheck(cmd.Context(), port)
			},
		},
	)

	return root
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMでコンテキストがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
