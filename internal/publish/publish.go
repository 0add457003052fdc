/**
 * internal/publish/publish.go
 * 发布输出目录到 S3 兼容存储（Cloudflare R2 等）
 *
 * 功能：
 * - 发布清单记录每个已上传文件的大小和内容哈希，只上传内容变化的文件
 *   （输出文件的修改时间跟随源文件，不能用来判断是否已发布）
 * - .br 文件设置 Content-Encoding: br，Content-Type 取原文件类型
 * - 上传失败时也保存已成功部分的清单
 *
 * 依赖：
 * - github.com/aws/aws-sdk-go-v2 (s3)
 * - golang.org/x/crypto/blake2b (内容哈希)
 */

package publish

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"sitebuild/internal/config"
	"sitebuild/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/crypto/blake2b"
)

// ====================  常量定义 ====================

// MarkerFile 发布清单文件名（位于中间产物目录，release 清空输出目录时不受影响）
const MarkerFile = ".published"

// extraTypes 系统 mime 表可能缺少的类型
var extraTypes = map[string]string{
	".webp":  "image/webp",
	".woff2": "font/woff2",
	".ico":   "image/x-icon",
	".json":  "application/json",
	".js":    "text/javascript; charset=utf-8",
}

// ====================  数据结构 ====================

// putter S3 上传接口（便于测试替换）
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Publisher 发布器
type Publisher struct {
	client putter
	bucket string
	prefix string
}

// Entry 清单中一个已发布文件
type Entry struct {
	Size int64  `json:"size"`
	Hash string `json:"blake2b"`
}

// Ledger 已发布文件清单，键为相对输出目录的 / 分隔路径
type Ledger map[string]Entry

// Stats 发布统计
type Stats struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// ====================  构造函数 ====================

// New 根据配置创建发布器
func New(ctx context.Context, cfg *config.Config) (*Publisher, error) {
	if !cfg.IsPublishConfigured() {
		return nil, fmt.Errorf("%w: set PUBLISH_ENDPOINT, PUBLISH_ACCESS_KEY, PUBLISH_SECRET_KEY and PUBLISH_BUCKET",
			config.ErrPublishNotConfigured)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.PublishAccessKey,
			cfg.PublishSecretKey,
			"",
		)),
		awsconfig.WithRegion(cfg.PublishRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load publish config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.PublishEndpoint)
		o.UsePathStyle = true
	})

	utils.LogPrintf("[PUBLISH] Publisher initialized: bucket=%s, prefix=%q", cfg.PublishBucket, cfg.PublishPrefix)
	return &Publisher{client: client, bucket: cfg.PublishBucket, prefix: cfg.PublishPrefix}, nil
}

// ====================  发布 ====================

// Publish 上传 dir 中与上次发布清单（marker）内容不同的文件，然后更新清单
func (p *Publisher) Publish(ctx context.Context, dir, marker string) (Stats, error) {
	var stats Stats
	previous := ReadLedger(marker)
	current := Ledger{}

	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && file != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		entry, err := fingerprint(file)
		if err != nil {
			return err
		}
		if previous[rel] == entry {
			current[rel] = entry
			stats.Skipped++
			return nil
		}

		n, err := p.upload(ctx, file, rel)
		if err != nil {
			return err
		}
		current[rel] = entry
		stats.Uploaded++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		// 保留已成功上传的部分，未处理的文件沿用旧记录
		for rel, entry := range previous {
			if _, ok := current[rel]; !ok {
				current[rel] = entry
			}
		}
		if werr := current.Write(marker); werr != nil {
			utils.LogPrintf("[PUBLISH] WARN: Failed to save ledger: %v", werr)
		}
		return stats, err
	}

	if err := current.Write(marker); err != nil {
		return stats, err
	}

	utils.LogPrintf("[PUBLISH] Uploaded %d files (%s), %d unchanged",
		stats.Uploaded, utils.FormatBytes(stats.Bytes), stats.Skipped)
	return stats, nil
}

// ====================  发布清单 ====================

// ReadLedger 读取发布清单；不存在或格式无法识别时返回空清单（全部重新上传）
func ReadLedger(path string) Ledger {
	data, err := os.ReadFile(path)
	if err != nil {
		return Ledger{}
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil || l == nil {
		utils.LogPrintf("[PUBLISH] WARN: Ignoring unreadable ledger %s, uploading everything", path)
		return Ledger{}
	}
	return l
}

// Write 保存清单（encoding/json 按键排序输出）
func (l Ledger) Write(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	return utils.WriteFile(path, append(data, '\n'))
}

// fingerprint 计算文件大小和内容哈希
func fingerprint(file string) (Entry, error) {
	f, err := os.Open(file)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return Entry{}, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to hash %s: %w", file, err)
	}
	return Entry{Size: n, Hash: hex.EncodeToString(h.Sum(nil))}, nil
}

// upload 上传单个文件
func (p *Publisher) upload(ctx context.Context, file, rel string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", rel, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.key(rel)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}

	base := rel
	if strings.HasSuffix(rel, ".br") {
		base = strings.TrimSuffix(rel, ".br")
		input.ContentEncoding = aws.String("br")
	}
	input.ContentType = aws.String(ContentType(base))

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", rel, err)
	}
	utils.LogPrintf("[PUBLISH] Uploaded %s", rel)
	return info.Size(), nil
}

// key 对象键
func (p *Publisher) key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// ContentType 根据扩展名推断 Content-Type
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
