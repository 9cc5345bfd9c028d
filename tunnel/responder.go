package tunnel

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dnshole/cache"
	"dnshole/utils"
)

// NewResponder 创建隧道文件应答器，目录不存在时自动创建
func NewResponder(dir string, chunkSize int, encodedCache cache.EncodedCache) (*Responder, error) {
	if chunkSize <= 0 || chunkSize%4 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if encodedCache == nil {
		encodedCache = cache.NewNullCache()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("📁 隧道目录路径无效: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("📁 创建隧道目录失败: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absDir); err == nil {
		absDir = resolved
	}

	utils.WriteLog(utils.LogInfo, "📡 隧道目录: %s (分块大小: %d)", absDir, chunkSize)
	return &Responder{dir: absDir, chunkSize: chunkSize, cache: encodedCache}, nil
}

// Dir 隧道文件目录
func (r *Responder) Dir() string {
	return r.dir
}

// ChunkSize 每块base64字符数
func (r *Responder) ChunkSize() int {
	return r.chunkSize
}

// Respond 返回第index块；index越过末尾时返回空负载作为结束标记
func (r *Responder) Respond(fileID string, index int) (Chunk, error) {
	if index < 0 {
		return Chunk{}, fmt.Errorf("%w: 序号 %d", ErrInvalidChunkName, index)
	}

	encoded, err := r.encoded(fileID)
	if err != nil {
		return Chunk{}, err
	}

	chunk := Chunk{FileID: fileID, Index: index}
	// 先比较块数再相乘，避免超大序号溢出后回绕到开头
	if index >= (len(encoded)+r.chunkSize-1)/r.chunkSize {
		return chunk, nil
	}
	start := index * r.chunkSize
	end := min(start+r.chunkSize, len(encoded))
	chunk.Payload = encoded[start:end]
	return chunk, nil
}

// ChunkCount 文件的非空分块数量
func (r *Responder) ChunkCount(fileID string) (int, error) {
	encoded, err := r.encoded(fileID)
	if err != nil {
		return 0, err
	}
	return (len(encoded) + r.chunkSize - 1) / r.chunkSize, nil
}

// resolvePath 将文件标识映射到目录内的常规文件，拒绝任何越界路径
func (r *Responder) resolvePath(fileID string) (string, fs.FileInfo, error) {
	if err := ValidateFileID(fileID); err != nil {
		return "", nil, err
	}

	path := filepath.Join(r.dir, fileID)
	if !r.contains(path) {
		return "", nil, ErrInvalidFileID
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return "", nil, fmt.Errorf("📄 解析隧道文件失败: %w", err)
	}
	if !r.contains(resolved) {
		return "", nil, ErrInvalidFileID
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return "", nil, fmt.Errorf("📄 读取隧道文件信息失败: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return resolved, info, nil
}

func (r *Responder) contains(path string) bool {
	rel, err := filepath.Rel(r.dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// encoded 读取整个文件的base64文本；缓存键包含大小和修改时间，文件变更后自动失效
func (r *Responder) encoded(fileID string) (string, error) {
	path, info, err := r.resolvePath(fileID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if encoded, ok := r.cache.Get(key); ok {
		return encoded, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return "", fmt.Errorf("📄 读取隧道文件失败: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	r.cache.Set(key, encoded)
	utils.WriteLog(utils.LogDebug, "📡 隧道文件已编码: %s (%d字节 -> %d字符)", fileID, len(data), len(encoded))
	return encoded, nil
}
