package main

import (
	"flag"
	"fmt"
	"os"

	"dnshole/audit"
	"dnshole/config"
	"dnshole/dns"
	"dnshole/store"
	"dnshole/utils"
)

func main() {
	var (
		configFile     string
		generateConfig bool
		importFile     string
		importAddress  string
		blocklogStats  bool
		noColor        bool
	)

	flag.StringVar(&configFile, "config", "", "配置文件路径 (JSON格式)")
	flag.BoolVar(&generateConfig, "generate-config", false, "生成示例配置文件")
	flag.StringVar(&importFile, "import", "", "导入域名列表为拦截记录后退出")
	flag.StringVar(&importAddress, "import-address", "0.0.0.0", "导入域名使用的应答地址")
	flag.BoolVar(&blocklogStats, "blocklog-stats", false, "统计拦截日志中的域名后退出")
	flag.BoolVar(&noColor, "no-color", false, "关闭日志颜色")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "🚀 dnshole\n\n")
		fmt.Fprintf(os.Stderr, "用法:\n")
		fmt.Fprintf(os.Stderr, "  %s -config <配置文件>          # 使用配置文件启动\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -generate-config            # 生成示例配置文件\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -import <域名列表>          # 导入拦截域名\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -blocklog-stats             # 拦截日志统计\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s                              # 使用默认配置启动\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if noColor {
		utils.SetLogStyle(false, true)
	}

	if generateConfig {
		fmt.Println(config.GenerateExampleConfig())
		return
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		utils.GetLogger().Fatalf("❌ 配置加载失败: %v", err)
	}

	if blocklogStats {
		summary, err := audit.SummarizeFile(cfg.Audit.File)
		if err != nil {
			utils.GetLogger().Fatalf("❌ 拦截日志统计失败: %v", err)
		}
		if err := audit.WriteSummary(os.Stdout, summary); err != nil {
			utils.GetLogger().Fatalf("❌ 输出统计失败: %v", err)
		}
		return
	}

	if importFile != "" {
		recordStore, err := store.Load(cfg.Server.RecordsFile)
		if err != nil {
			utils.WriteLog(utils.LogWarn, "⚠️ %v", err)
		}
		server := dns.NewDNSServerWith(cfg, dns.Components{Store: recordStore})
		_, err = server.ImportBlocklist(importFile, importAddress)
		_ = server.Shutdown()
		if err != nil {
			utils.GetLogger().Fatalf("❌ 导入失败: %v", err)
		}
		return
	}

	server, err := dns.NewDNSServer(cfg)
	if err != nil {
		utils.GetLogger().Fatalf("❌ 服务器创建失败: %v", err)
	}

	if err := server.Start(); err != nil {
		utils.GetLogger().Fatalf("❌ 服务器启动失败: %v", err)
	}
}
