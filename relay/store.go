package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BaSui01/arpublish/types"
)

// ErrModelNotFound 模型不存在
var ErrModelNotFound = errors.New("model not found")

// Object 已保存模型的元数据
type Object struct {
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ModelStore 保存和读取模型文件
type ModelStore interface {
	Put(ctx context.Context, name string, data []byte) (*Object, error)
	Get(ctx context.Context, name string) (io.ReadCloser, *Object, error)
	Delete(ctx context.Context, name string) error
}

// ObjectName 返回分享中某一格式的对象名
func ObjectName(shareID string, format types.Format) string {
	return shareID + "." + format.Extension()
}

// contentTypeOf 按扩展名推断 Content-Type
func contentTypeOf(name string) string {
	f, ok := types.ParseFormat(strings.TrimPrefix(path.Ext(name), "."))
	if !ok {
		return "application/octet-stream"
	}
	return f.ContentType()
}

// validName 拒绝带路径的对象名
func validName(name string) error {
	if name == "" || name != path.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid model name %q", name)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// 📁 本地存储
// =============================================================================

// LocalStore 将模型保存在本地目录
type LocalStore struct {
	dir string
}

// NewLocalStore 创建本地存储，目录不存在时自动创建
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Put 写入模型文件
func (s *LocalStore) Put(_ context.Context, name string, data []byte) (*Object, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	p := filepath.Join(s.dir, name)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return nil, fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("commit model: %w", err)
	}
	return &Object{
		Name:        name,
		ContentType: contentTypeOf(name),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Get 打开模型文件
func (s *LocalStore) Get(_ context.Context, name string) (io.ReadCloser, *Object, error) {
	if err := validName(name); err != nil {
		return nil, nil, ErrModelNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrModelNotFound
		}
		return nil, nil, fmt.Errorf("open model: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat model: %w", err)
	}
	return f, &Object{
		Name:        name,
		ContentType: contentTypeOf(name),
		Size:        info.Size(),
		CreatedAt:   info.ModTime().UTC(),
	}, nil
}

// Delete 删除模型文件，不存在时视为成功
func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}
