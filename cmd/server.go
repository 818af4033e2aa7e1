package cmd

import (
	"resonate/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动Resonate服务器",
	Long:  `启动Resonate音乐系统的HTTP服务器，提供专辑摄取与流式播放接口`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
