package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/codec"
	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/types"
	"github.com/BaSui01/arpublish/workflow"
)

// publishOptions 一次性发布参数
type publishOptions struct {
	glb     string
	usdz    string
	subject string
	title   string
	qrPath  string
}

func runPublish(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	var opts publishOptions
	fs.StringVar(&opts.glb, "glb", "", "GLB file to publish")
	fs.StringVar(&opts.usdz, "usdz", "", "USDZ file to publish")
	fs.StringVar(&opts.subject, "subject", "", "Loaded subject id")
	fs.StringVar(&opts.title, "title", "", "Subject title")
	fs.StringVar(&opts.qrPath, "qr", "ar-qr.png", "QR code PNG output path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	_, err = publishOnce(ctx, cfg, opts, logger, out)
	return err
}

// cliPresenter 把呈现回调打印到终端
type cliPresenter struct {
	out io.Writer
}

func (p cliPresenter) SetBusy(busy bool) {
	if busy {
		fmt.Fprintln(p.out, "Exporting and publishing...")
	}
}

func (p cliPresenter) PresentResult(res *publish.Result) {
	fmt.Fprintf(p.out, "AR link: %s\n", res.ARLink)
}

func (p cliPresenter) PresentFailure(message string) {
	fmt.Fprintf(p.out, "Publish failed: %s\n", message)
}

// publishOnce 以文件导出器跑一次完整周期，并把二维码写成 PNG
func publishOnce(ctx context.Context, cfg *config.Config, opts publishOptions, logger *zap.Logger, out io.Writer) (workflow.Outcome, error) {
	files := map[types.Format]string{}
	if opts.glb != "" {
		files[types.FormatGLB] = opts.glb
	}
	if opts.usdz != "" {
		files[types.FormatUSDZ] = opts.usdz
	}
	if len(files) == 0 {
		return workflow.Outcome{}, fmt.Errorf("at least one of --glb or --usdz is required")
	}

	exportCfg := cfg.Export
	exportCfg.OutputDir, exportCfg.RendererURL = "", ""
	// 只请求给出了文件或可由占位规则覆盖的格式
	var formats []string
	for _, name := range exportCfg.Formats {
		f, ok := types.ParseFormat(name)
		if !ok {
			continue
		}
		if _, given := files[f]; given {
			formats = append(formats, name)
		} else if src, ok := exportCfg.Placeholders[strings.ToLower(name)]; ok {
			if s, ok := types.ParseFormat(src); ok && files[s] != "" {
				formats = append(formats, name)
			}
		}
	}
	exportCfg.Formats = formats

	coord, requested, err := exporter.NewFromConfig(exportCfg, files, logger)
	if err != nil {
		return workflow.Outcome{}, fmt.Errorf("exporter: %w", err)
	}
	pub, err := publish.New(cfg.Publish, logger)
	if err != nil {
		return workflow.Outcome{}, err
	}

	var subjects []types.Subject
	if opts.subject != "" || opts.title != "" {
		subjects = append(subjects, types.Subject{ID: opts.subject, Title: opts.title})
	}
	c, err := workflow.NewController(workflow.Config{Formats: requested}, workflow.Deps{
		Exporter:  coord,
		Publisher: pub,
		Subjects:  workflow.StaticSubjects(subjects...),
		Presenter: workflow.MultiPresenter{workflow.NewLogPresenter(logger), cliPresenter{out: out}},
	}, logger)
	if err != nil {
		return workflow.Outcome{}, err
	}

	outcome := c.Run(ctx)
	if outcome.Err != nil {
		return outcome, outcome.Err
	}
	for _, f := range outcome.Placeholders {
		fmt.Fprintf(out, "Warning: %s was published as a placeholder copy\n", f)
	}

	if opts.qrPath != "" {
		if err := writeCode(outcome.Result, cfg.Publish.CodeSize, opts.qrPath); err != nil {
			return outcome, err
		}
		fmt.Fprintf(out, "QR code: %s\n", opts.qrPath)
	}
	return outcome, nil
}

// writeCode 写出结果中的二维码；结果不带 data URI 时按链接本地生成
func writeCode(res *publish.Result, size int, path string) error {
	code := res.QRCodeURL
	if !strings.HasPrefix(code, "data:") {
		generated, err := publish.GenerateCode(res.ARLink, size)
		if err != nil {
			return fmt.Errorf("generate qr code: %w", err)
		}
		code = generated
	}
	png, err := codec.DecodeBase64(code)
	if err != nil {
		return fmt.Errorf("decode qr code: %w", err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	return nil
}
