package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnsureParentDir 确保文件的父目录存在
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败 %s: %w", dir, err)
	}
	return nil
}

// RemoveIfExists 删除文件，文件不存在时忽略
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("删除文件失败 %s: %w", path, err)
	}
	return nil
}

// FileSize 返回普通文件的大小，文件不存在或是目录时 ok 为 false
func FileSize(path string) (size int64, ok bool) {
	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return 0, false
	}
	return stat.Size(), true
}

// ReplaceExt 替换文件扩展名
func ReplaceExt(path, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// HasExtension 判断文件扩展名是否在列表中，不区分大小写，列表为空时返回 true
func HasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}

// IsSubPath 检查 path 是否等于 dir 或位于 dir 之下
func IsSubPath(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
