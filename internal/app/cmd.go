package app

// Command はscanscoreバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe は比較APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は古いスキャン履歴を定期削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIサーバーの/healthを確認して終了する。
	// distrolessイメージにはcurlがないため、DockerのHEALTHCHECKから使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空、または未知のサブコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// NeedsConfig は起動前に設定の読み込みが必要かを返す。
// healthcheckはSERVER_PORTだけを参照する。
func (c Command) NeedsConfig() bool {
	return c != CommandHealthcheck
}
