package cmd

import (
	"fmt"
	"log"
	"os/exec"

	"resonate/config"
	"resonate/db"
	"resonate/storage"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查外部依赖连通性",
	Long:  `逐项检查 MySQL、Redis、MinIO 与 ffmpeg 是否可用，用于部署排查。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		fmt.Printf("MySQL配置: %s:%s/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("无法连接到MySQL: %v", err)
		}
		fmt.Println("MySQL连接成功！")
		db.DB.Close()

		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		if err := db.ConnectRedis(cfg); err != nil {
			log.Printf("Redis不可用（运行时将降级为直查数据库）: %v", err)
		} else {
			fmt.Println("Redis连接成功！")
			db.CloseRedis()
		}

		if cfg.MinioEnabled {
			fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
			if err := storage.InitMinio(cfg); err != nil {
				log.Fatalf("无法连接到MinIO: %v", err)
			}
			fmt.Println("MinIO连接成功！")
		}

		if path, err := exec.LookPath(cfg.FFmpegPath); err != nil {
			log.Fatalf("找不到ffmpeg: %v", err)
		} else {
			fmt.Printf("ffmpeg: %s\n", path)
		}

		fmt.Println("依赖检查完成。")
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
