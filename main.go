package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const configEnv = "DIRKV_CONFIG"

// exitError 携带子命令希望返回的退出码。
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error { return e.err }

func fail(code int, err error) error {
	return exitError{code: code, err: err}
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 运行 CLI 并返回退出码：0 成功，1 运行失败，2 参数错误。
func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var ee exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stdErr, ee.err.Error())
		}
		return ee.code
	}
	fmt.Fprintln(stdErr, err.Error())
	return 2
}

// resolveConfigPath 按 flag > DIRKV_CONFIG > ./config.toml 的优先级确定配置路径。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return "config.toml"
}

func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "dirkv",
		Short:         "Directory-backed key-value cache (one file per key, mtime as TTL)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")

	configPath := func() string { return resolveConfigPath(configFlag) }

	root.AddCommand(newServeCmd(configPath))
	root.AddCommand(newGetCmd(configPath))
	root.AddCommand(newSetCmd(configPath))
	root.AddCommand(newDeleteCmd(configPath))
	root.AddCommand(newHasCmd(configPath))
	root.AddCommand(newClearCmd(configPath))
	root.AddCommand(newPathCmd(configPath))
	root.AddCommand(newCheckConfigCmd(configPath))
	root.AddCommand(newVersionCmd())
	return root
}
