package cmd

import (
	"github.com/spf13/cobra"

	"AuraFM/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动AuraFM服务器",
	Long:  `启动AuraFM的HTTP服务器：播放会话API、下载队列API和WebSocket事件推送`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
