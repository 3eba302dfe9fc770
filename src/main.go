package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/datasource/file"
	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/service"
	"FlightDelayInsight/src/storage"

	"github.com/fatih/color"
	"github.com/robfig/cron"
)

const usage = `用法:
  flightdelay report [flags]   生成一次报表
  flightdelay watch  [flags]   监控数据目录并定时刷新报表 (SIGHUP 清空缓存并重新打开日志)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "report":
		err = runReport(os.Args[2:], os.Stdout)
	case "watch":
		err = runWatch(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		color.Red("错误: %v", err)
		os.Exit(1)
	}
}

// setup 解析参数、加载配置并创建日志和Dashboard
func setup(name string, args []string, out io.Writer) (*service.Dashboard, *config.Config, *storage.Logger, processor.Params, error) {
	fs, opts := newFlagSet(name, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, processor.Params{}, err
	}

	cfg, dcfg, err := config.LoadConfig(opts.configDir, opts.configFile, opts.dataConfig)
	if err != nil {
		return nil, nil, nil, processor.Params{}, fmt.Errorf("加载配置失败: %w", err)
	}
	params, err := opts.apply(cfg)
	if err != nil {
		return nil, nil, nil, processor.Params{}, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, processor.Params{}, err
	}

	if opts.quiet {
		out = nil
	}
	return service.New(cfg, dcfg, logger, out), cfg, logger, params, nil
}

// newLogger 初始化日志系统并设置最低级别
func newLogger(cfg *config.Config) (*storage.Logger, error) {
	level, err := storage.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger, err := storage.NewLogger(cfg.LogName, cfg.LogMaxSize)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}

func runReport(args []string, out io.Writer) error {
	d, _, logger, params, err := setup("report", args, out)
	if err != nil {
		return err
	}
	defer logger.Close()

	t1 := time.Now()
	report, err := d.Run(context.Background(), params)
	if err != nil {
		logger.Error("生成报表失败: " + err.Error())
		return err
	}
	written, err := d.Publish(report)
	if err != nil {
		logger.Error("输出报表失败: " + err.Error())
		return err
	}
	for _, f := range written {
		color.Green("已输出 %s", f)
	}
	logger.Info(fmt.Sprintf("报表完成, 耗时 %v", time.Since(t1)))
	return nil
}

func runWatch(args []string, out io.Writer) error {
	d, cfg, logger, params, err := setup("watch", args, out)
	if err != nil {
		return err
	}
	defer logger.Close()

	if err := writePidFile(cfg.Watch.PidFile); err != nil {
		return err
	}
	defer os.Remove(cfg.Watch.PidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 终端回显日志
	go echoLogs(logger.Subscribe())

	refresh := func(reason string) {
		logger.Info("刷新报表: " + reason)
		if err := d.Refresh(ctx, params); err != nil {
			logger.Error("刷新报表失败: " + err.Error())
		}
	}
	refresh("启动")

	// 数据目录变化
	monitor, err := file.NewFileMonitor(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("监控数据目录失败: %w", err)
	}
	defer monitor.Close()
	go func() {
		err := monitor.Watch(ctx, func(path string) {
			if d.FileChanged(path) {
				refresh("文件变化 " + path)
			}
		})
		if err != nil {
			logger.Error("文件监控出错: " + err.Error())
		}
	}()

	// 定时刷新, 顺带检查日志大小
	c := cron.New()
	interval := time.Duration(cfg.Watch.RefreshInterval).String()
	cronSpec := fmt.Sprintf("@every %s", interval)
	err = c.AddFunc(cronSpec, func() {
		if err := logger.CheckRotate(); err != nil {
			logger.Error("日志轮转失败: " + err.Error())
		}
		refresh("定时 " + interval)
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}
	c.Start()
	defer c.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info(fmt.Sprintf("监控已启动 (目录: %s, 刷新间隔: %v, pid: %d), 按Ctrl+C退出", cfg.DataDir, interval, os.Getpid()))
	for {
		select {
		case <-ctx.Done():
			logger.Info("收到退出信号, 停止监控")
			return nil
		case <-hup:
			if err := logger.Reopen(""); err != nil {
				color.Red("重新打开日志失败: %v", err)
			}
			d.Cache().Purge()
			d.LoadLookups()
			refresh("SIGHUP")
		}
	}
}

func echoLogs(ch <-chan string) {
	dim := color.New(color.FgHiBlack)
	for msg := range ch {
		dim.Fprint(os.Stderr, msg)
	}
}

func writePidFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("写入pid文件失败: %w", err)
	}
	return nil
}
