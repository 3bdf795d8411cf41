// Package main 是应用程序的入口点。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand 返回挂载了全部子命令的根命令，未指定子命令时启动 HTTP 服务。
func newRootCommand() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "report-intake",
		Short:         "合规报告附件上传服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newMigrateCommand(&configPath))
	rootCmd.AddCommand(newImportCommand(&configPath))
	return rootCmd
}
