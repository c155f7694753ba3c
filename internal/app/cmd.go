package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はHTTPブリッジを起動する。SERVE_SYNC が有効なら同期も行う。
	CommandServe Command = "serve"
	// CommandWorker は同期ワーカーとクリーンアップだけを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はレコードストアのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。distroless環境のDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

var commandUsages = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "HTTPブリッジを起動する（デフォルト）"},
	{CommandWorker, "リモートとの同期とレコードストアのクリーンアップを実行する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "起動中のサーバーのヘルスチェックを行う"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, u := range commandUsages {
		if string(u.cmd) == args[0] {
			return u.cmd
		}
	}
	return CommandServe
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: furuhon [command]\n\ncommands:\n")
	for _, u := range commandUsages {
		fmt.Fprintf(&b, "  %-12s %s\n", u.cmd, u.desc)
	}
	return b.String()
}
