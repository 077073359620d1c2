package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー。
	CommandServe Command = "serve"
	// CommandWorker はトークン更新と期限切れデータ掃除のワーカー。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマ移行。`migrate [up|down N|version]`。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭引数からサブコマンドを決める。
// 空または未知の場合はCommandServe。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// commandArgs はサブコマンド名より後ろの引数を返す。
func commandArgs(args []string) []string {
	if len(args) < 2 {
		return nil
	}
	return args[1:]
}
