package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"AuraFM/config"
	"AuraFM/storage"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看MinIO存储桶中的下载产物，支持按前缀过滤、递归列出和用量统计。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if minioStats {
			fmt.Println("\n按顶层前缀统计存储桶用量...")
			usage, err := storage.GetBucketUsage(ctx)
			if err != nil {
				log.Fatalf("获取存储桶统计信息失败: %v", err)
			}
			for prefix, size := range usage {
				fmt.Printf("  %-24s %s\n", prefix, humanize.Bytes(uint64(size)))
			}
			return
		}

		fmt.Printf("\n列出存储桶中的文件 (前缀: %q)...\n", minioPrefix)
		objects, stats, err := storage.ListBucketObjects(ctx, minioPrefix, minioRecursive)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}
		for _, obj := range objects {
			fmt.Printf("  %-64s %10s  %s\n",
				obj.Key, humanize.Bytes(uint64(obj.Size)), humanize.Time(obj.LastModified))
		}
		fmt.Printf("\n共 %d 个对象，合计 %s\n",
			stats.TotalObjects, humanize.Bytes(uint64(stats.TotalSize)))
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶用量统计")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出所有对象")

	minioCmd.Example = `  # 列出所有文件
  aurafm minio

  # 按前缀过滤文件
  aurafm minio -p "tracks/"

  # 显示存储桶用量统计
  aurafm minio -s`
}
