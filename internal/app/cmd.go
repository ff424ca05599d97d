package app

// Command はバイナリのサブコマンド。
type Command string

const (
	// CommandServe はBFFを起動する。期限切れセッションの掃除も同じプロセスで行う。
	CommandServe Command = "serve"
	// CommandMigrate はsessionsテーブルのスキーマを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を叩く。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数が無い場合や知らない名前の場合はserveとして起動する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// needsConfig は設定全体の読み込みが必要かを返す。
// healthcheckはSERVER_PORTだけを見るので、必須の環境変数が無くても動く。
func (c Command) needsConfig() bool {
	return c != CommandHealthcheck
}
