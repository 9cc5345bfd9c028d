package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dnshole/tunnel"
	"dnshole/types"
	"dnshole/utils"
)

func main() {
	var (
		server  string
		suffix  string
		outDir  string
		timeout = types.DefaultClientTimeout
		retries int
		level   string
	)

	flag.StringVar(&server, "server", "127.0.0.1:53", "隧道DNS服务器地址")
	flag.StringVar(&suffix, "suffix", types.DefaultTunnelSuffix, "隧道域名后缀")
	flag.StringVar(&outDir, "out", "received_files", "输出目录")
	flag.DurationVar(&timeout, "timeout", timeout, "单次查询超时")
	flag.IntVar(&retries, "retries", types.DefaultClientMaxRetries, "连续失败次数上限")
	flag.StringVar(&level, "log-level", types.DefaultLogLevel, "日志级别 (none,error,warn,info,debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "🕳️ tunnelget\n\n")
		fmt.Fprintf(os.Stderr, "用法:\n")
		fmt.Fprintf(os.Stderr, "  %s [选项] <文件ID>\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	fileID := flag.Arg(0)

	logLevel, ok := utils.ValidLogLevels[level]
	if !ok {
		utils.GetLogger().Fatalf("❌ 无效的日志级别: %s", level)
	}
	utils.SetLogLevel(logLevel)
	// 标准输出只留给保存路径
	utils.SetLogOutput(os.Stderr)
	utils.SetLogStyle(false, true)

	if err := tunnel.ValidateFileID(fileID); err != nil {
		utils.GetLogger().Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := tunnel.NewClient(server, suffix, timeout, retries)
	utils.WriteLog(utils.LogInfo, "📥 开始下载 %s 来自 %s (%s)", fileID, server, client.Suffix)

	outPath, err := client.DownloadToFile(ctx, fileID, outDir)
	if err != nil {
		stop()
		utils.GetLogger().Fatalf("❌ 下载失败 %s: %v", fileID, err)
	}

	fmt.Println(outPath)
}
