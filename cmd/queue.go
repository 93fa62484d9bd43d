package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"AuraFM/cache"
	"AuraFM/config"
)

var queueRecover bool

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "下载队列巡检",
	Long:  `查看下载队列各状态的任务规模与最旧条目，并可手动触发一轮失联任务回收。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer cache.CloseRedis()

		store := cache.NewRedisJobStore(cache.RedisClient)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		stats, err := store.Stats(ctx)
		if err != nil {
			log.Fatalf("读取队列统计失败: %v", err)
		}

		fmt.Println("下载队列状态:")
		fmt.Printf("  排队中:   %d", stats.Pending)
		if stats.HeadPending != nil {
			fmt.Printf("  (队首入队于 %s)", humanize.Time(*stats.HeadPending))
		}
		fmt.Println()
		fmt.Printf("  处理中:   %d", stats.Processing)
		if stats.OldestLease != nil {
			fmt.Printf("  (最旧心跳 %s)", humanize.Time(*stats.OldestLease))
		}
		fmt.Println()
		fmt.Printf("  待重试:   %d\n", stats.FailedAwaiting)

		if !queueRecover {
			return
		}

		cutoff := time.Now().Add(-cfg.DownloadLeaseTTL)
		fmt.Printf("\n回收心跳早于 %s 的处理中任务...\n", humanize.Time(cutoff))
		jobs, err := store.RecoverStale(ctx, cutoff)
		if err != nil {
			log.Fatalf("回收失联任务失败: %v", err)
		}
		for _, job := range jobs {
			fmt.Printf("  重新入队: %s (重试 %d 次)\n", job.ID, job.RetryCount)
		}
		fmt.Printf("共回收 %d 个任务\n", len(jobs))
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.Flags().BoolVarP(&queueRecover, "recover", "R", false, "触发一轮失联任务回收")
}
