package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/chatsync/internal"
	"github.com/starford/chatsync/internal/backup"
	"github.com/starford/chatsync/internal/syncer"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage the stored cloud token",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store the cloud token",
				ArgsUsage: "<token>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					tok, err := requireArg(cmd, "token")
					if err != nil {
						return err
					}
					return a.Session.SetToken(ctx, tok)
				}),
			},
			{
				Name:  "clear",
				Usage: "Remove the stored cloud token",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					return a.Session.Clear(ctx)
				}),
			},
			{
				Name:  "status",
				Usage: "Report whether a token is stored",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					tok, err := a.Session.Token(ctx)
					if err != nil {
						return err
					}
					return printJSON(map[string]bool{"loggedIn": tok != ""})
				}),
			},
		},
	}
}

// stateAction runs one on-demand operation and prints its final state.
func stateAction(fn func(*syncer.Orchestrator) func(context.Context) (syncer.State, error)) cli.ActionFunc {
	return withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
		st, err := fn(a.Sync)(ctx)
		if perr := printJSON(st); perr != nil {
			return perr
		}
		return err
	})
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "On-demand cloud operations",
		Commands: []*cli.Command{
			{
				Name:   "upload",
				Usage:  "Push providers, assistants and settings now",
				Action: stateAction(func(o *syncer.Orchestrator) func(context.Context) (syncer.State, error) { return o.UploadSettingsToCloud }),
			},
			{
				Name:   "restore-conversations",
				Usage:  "Insert cloud conversations missing locally",
				Action: stateAction(func(o *syncer.Orchestrator) func(context.Context) (syncer.State, error) { return o.RestoreFromCloud }),
			},
			{
				Name:   "restore-settings",
				Usage:  "Replace local settings with the cloud copy",
				Action: stateAction(func(o *syncer.Orchestrator) func(context.Context) (syncer.State, error) { return o.RestoreSettingsFromCloud }),
			},
			{
				Name:   "restore-all",
				Usage:  "Restore settings and conversations",
				Action: stateAction(func(o *syncer.Orchestrator) func(context.Context) (syncer.State, error) { return o.RestoreAllFromCloud }),
			},
			{
				Name:   "public-provider",
				Usage:  "Install the shared public provider",
				Action: stateAction(func(o *syncer.Orchestrator) func(context.Context) (syncer.State, error) { return o.InstallPublicProvider }),
			},
			{
				Name:  "count",
				Usage: "Count non-deleted cloud conversations",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					n, err := a.Sync.CloudConversationCount(ctx)
					if err != nil {
						return err
					}
					return printJSON(map[string]int{"count": n})
				}),
			},
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "WebDAV and local file backups",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List WebDAV backups, newest first",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					items, err := a.Sync.ListBackups(ctx)
					if err != nil {
						return err
					}
					return printJSON(items)
				}),
			},
			{
				Name:  "create",
				Usage: "Upload a new WebDAV backup",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					item, err := a.Sync.CreateBackup(ctx)
					if err != nil {
						return err
					}
					return printJSON(item)
				}),
			},
			{
				Name:  "test",
				Usage: "Check the WebDAV connection",
				Action: withApp(func(ctx context.Context, _ *cli.Command, a *internal.App) error {
					if err := a.Sync.TestBackupConnection(ctx); err != nil {
						return err
					}
					fmt.Println("ok")
					return nil
				}),
			},
			{
				Name:      "restore",
				Usage:     "Replace local state with a WebDAV backup",
				ArgsUsage: "<name>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}
					st, err := a.Sync.RestoreBackup(ctx, name)
					if err != nil {
						return err
					}
					return printJSON(st)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a WebDAV backup",
				ArgsUsage: "<name>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}
					return a.Sync.DeleteBackup(ctx, name)
				}),
			},
			{
				Name:      "export",
				Usage:     "Write a backup bundle to a local file or directory",
				ArgsUsage: "[dest]",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					dest := cmd.Args().First()
					if dest == "" {
						dest = a.Config.Data.Resolve(a.Config.Data.ExportDir)
						if err := os.MkdirAll(dest, 0o755); err != nil {
							return fmt.Errorf("create export dir: %w", err)
						}
					}
					path, err := a.Sync.ExportBackup(ctx, dest)
					if err != nil {
						return err
					}
					fmt.Println(path)
					return nil
				}),
			},
			{
				Name:  "local",
				Usage: "List exported bundles in the export directory",
				Action: withApp(func(_ context.Context, _ *cli.Command, a *internal.App) error {
					items, err := backup.ListLocal(a.Config.Data.Resolve(a.Config.Data.ExportDir))
					if err != nil {
						return err
					}
					return printJSON(items)
				}),
			},
			{
				Name:      "local-delete",
				Usage:     "Delete an exported bundle from the export directory",
				ArgsUsage: "<name>",
				Action: withApp(func(_ context.Context, cmd *cli.Command, a *internal.App) error {
					name, err := requireArg(cmd, "name")
					if err != nil {
						return err
					}
					return backup.DeleteLocal(a.Config.Data.Resolve(a.Config.Data.ExportDir), name)
				}),
			},
			{
				Name:      "import",
				Usage:     "Replace local state with a local bundle file",
				ArgsUsage: "<file>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					src, err := requireArg(cmd, "file")
					if err != nil {
						return err
					}
					st, err := a.Sync.RestoreLocalBackup(ctx, src)
					if err != nil {
						return err
					}
					return printJSON(st)
				}),
			},
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import providers from other chat clients",
		Commands: []*cli.Command{
			{
				Name:      "chatbox",
				Usage:     "Prepend providers from a Chatbox settings export",
				ArgsUsage: "<file>",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *internal.App) error {
					src, err := requireArg(cmd, "file")
					if err != nil {
						return err
					}
					data, err := os.ReadFile(src)
					if err != nil {
						return fmt.Errorf("read export: %w", err)
					}
					n, err := a.Sync.ImportChatbox(ctx, data)
					if err != nil {
						return err
					}
					return printJSON(map[string]int{"imported": n})
				}),
			},
		},
	}
}
