package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/config"
	"github.com/zhouzirui/drafting/backend/internal/service/ai"
	"github.com/zhouzirui/drafting/backend/internal/service/prompt"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

func main() {
	logger := logging.NewLogger()

	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Warn("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("配置加载失败")
	}
	if !cfg.AI.Enabled() {
		logger.WithField("provider", cfg.AI.Provider).Fatal("生成后端未配置，请先设置对应的 API Key 与模型")
	}

	mode := flag.String("mode", "", "测试模式: email 或 report")
	contextText := flag.String("context", "", "邮件背景 (email)")
	recipient := flag.String("recipient", "", "收件人 (email)")
	subject := flag.String("subject", "", "主题 (email)")
	topic := flag.String("topic", "", "报告主题 (report)")
	keyPoints := flag.String("points", "", "报告要点 (report)")
	structure := flag.String("structure", "", "报告结构: executive_summary / detailed / bullet_points")
	tone := flag.String("tone", "professional", "语气: professional / casual / formal / friendly")
	showPrompt := flag.Bool("show-prompt", false, "打印最终提示词")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	var text string
	switch *mode {
	case "email":
		text, err = prompt.BuildEmailPrompt(prompt.EmailInput{
			Context:   *contextText,
			Recipient: *recipient,
			Subject:   *subject,
			Tone:      *tone,
		})
	case "report":
		text, err = prompt.BuildReportPrompt(prompt.ReportInput{
			Topic:     *topic,
			KeyPoints: *keyPoints,
			Tone:      *tone,
			Structure: *structure,
		})
	default:
		flag.Usage()
		logger.Fatal("请通过 -mode=email 或 -mode=report 指定测试模式")
	}
	if err != nil {
		logger.WithError(err).Fatal("提示词构建失败")
	}

	if *showPrompt {
		fmt.Println(text)
		fmt.Println("----")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := cfg.AI.NewBackend(ctx)
	if err != nil {
		logger.WithError(err).Fatal("生成后端初始化失败")
	}
	client := ai.NewClient(backend, cfg.AI.ClientOptions(), logger)

	result, err := client.Generate(ctx, ai.GenerateParams{
		Prompt:        text,
		CorrelationID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
	})
	if err != nil {
		if genErr, ok := apperr.AsGeneration(err); ok {
			logger.WithFields(logging.Fields{"kind": genErr.Kind, "category": genErr.Category}).Error(genErr.Message)
		}
		logger.WithError(err).Fatal("生成失败")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.WithError(err).Fatal("输出结果失败")
	}
}
