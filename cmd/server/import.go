package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"report-intake-go/internal/service"
	"report-intake-go/pkg/idgen"
	"report-intake-go/pkg/log"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newImportCommand(configPath *string) *cobra.Command {
	var reportID string
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "将目录下的文件作为一个批次导入到指定报告",
		Long: `递归扫描目录并跳过隐藏文件与隐藏目录，通过标准上传流程导入到报告。
类型、大小与配额校验与 HTTP 上传一致，结果以 JSON 输出。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !idgen.IsReportID(reportID) {
				return fmt.Errorf("无效的报告 ID: %q", reportID)
			}
			a, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			inputs, err := collectFiles(afero.NewOsFs(), args[0], a.cfg.Upload.MaxFileSize)
			if err != nil {
				return err
			}
			res := a.uploads.UploadBatch(cmd.Context(), inputs, reportID, "")
			if !res.Success {
				return res.Error
			}
			log.Infof("导入完成: 请求 %d, 成功 %d", res.Value().TotalRequested, res.Value().TotalUploaded)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&reportID, "report", "r", "", "目标报告 ID，如 rep_AbC123")
	_ = cmd.MarkFlagRequired("report")
	return cmd
}

// collectFiles 按路径顺序读取目录下的普通文件，跳过隐藏文件与隐藏目录。
// 每个文件最多读取 maxSize+1 字节，超限由校验闸门判定。
func collectFiles(fs afero.Fs, dir string, maxSize int64) ([]service.FileInput, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("目录 '%s' 不可用: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("'%s' 不是目录", dir)
	}

	var paths []string
	walkErr := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("import: 访问失败: %s, err=%v", path, err)
			return nil
		}
		hidden := path != dir && len(info.Name()) > 0 && info.Name()[0] == '.'
		if info.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && info.Mode().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(paths)

	inputs := make([]service.FileInput, 0, len(paths))
	for _, path := range paths {
		f, err := fs.Open(path)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(io.LimitReader(f, maxSize+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("读取文件 '%s' 失败: %w", path, err)
		}
		// 声明类型留空，由服务端按内容嗅探
		inputs = append(inputs, service.FileInput{Name: filepath.Base(path), Body: body})
	}
	return inputs, nil
}
