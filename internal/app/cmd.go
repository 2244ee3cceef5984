package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はauthgateのサブコマンド。
type Command string

const (
	// CommandServe は認証ゲートウェイのHTTPサーバーとセッション掃除ジョブを起動する。
	CommandServe Command = "serve"
	// CommandWorker はセッション掃除ジョブのみを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はストアのスキーマ（PostgreSQLのテーブル、MongoDBのインデックス）を作成する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの /health を叩く。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ErrUnknownCommand は未知のサブコマンドが指定された場合に返る。
var ErrUnknownCommand = errors.New("unknown command")

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "usage: authgate [" + strings.Join(names, "|") + "]"
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServe。未知のサブコマンドは起動せずにエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q; %s", ErrUnknownCommand, args[0], Usage())
}
