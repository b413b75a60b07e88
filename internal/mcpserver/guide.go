package mcpserver

// SyncGuide describes what each chatsync operation does, so LLM consumers
// pick the right one and read results correctly.
const SyncGuide = `# chatsync Sync Guide

chatsync keeps the local AI chat settings and conversations in step with a
cloud account and with WebDAV backups.

## Automatic upload

Local settings changes are uploaded on their own, about two seconds after
the last edit. Call ` + "`upload_settings`" + ` only to force an upload now.

## Operations

| Tool | Effect | Overwrites local data |
|---|---|---|
| ` + "`restore_from_cloud`" + ` | Adds cloud conversations missing locally | no |
| ` + "`restore_settings`" + ` | Replaces providers, assistants, display settings | yes |
| ` + "`restore_all`" + ` | Both of the above | settings only |
| ` + "`upload_settings`" + ` | Pushes providers, assistants, settings | no |
| ` + "`create_backup`" + ` | Uploads a zip of settings and conversations to WebDAV | no |
| ` + "`restore_backup`" + ` | Replaces settings and ALL conversations with a backup | yes |
| ` + "`import_chatbox`" + ` | Prepends providers from a Chatbox export | no |

## States

Every operation reports ` + "`status`" + ` (idle, loading, success, error),
` + "`restored`" + ` and ` + "`skipped`" + `.

- Conversation restores count conversations: deleted or already present
  ones are skipped.
- Settings restores and uploads count sections (providers, assistants,
  settings); a skipped section failed and kept its previous value.
- ` + "`not logged in`" + ` means no cloud token is stored. Nothing was sent.

## Rules

1. Ask the user before ` + "`restore_backup`" + ` or ` + "`restore_settings`" + `.
2. Prefer ` + "`restore_from_cloud`" + ` when only conversations are missing.
3. Do not retry an operation that reports ` + "`loading`" + `; it is still running.
`
