package evidence

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage 证据片段持久化
// 对象存储上传在外部协作方完成，这里只负责落盘
type Storage interface {
	WriteClip(name string, frames [][]byte) (string, error)
}

// FileStorage 本地文件存储，裸 H.264 流直接拼接落盘
type FileStorage struct {
	dir string
}

// NewFileStorage 创建文件存储，目录不存在时创建
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// WriteClip 写入一个片段，返回文件路径
func (s *FileStorage) WriteClip(name string, frames [][]byte) (string, error) {
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	defer f.Close()

	for _, frame := range frames {
		if _, err := f.Write(frame); err != nil {
			return "", fmt.Errorf("write clip file: %w", err)
		}
	}
	return path, nil
}
