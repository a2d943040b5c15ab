package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StoredFile describes an upload written to storage
type StoredFile struct {
	Path string
	Size int64
	Hash string // hex SHA-256 of the content
}

type FileStorage interface {
	UploadFileFromReader(src io.Reader, fileName string) (*StoredFile, error)
	DeleteFile(fileName string) error
}

type LocalFileStorage struct {
	uploadPath string
}

func NewLocalFileStorage(uploadPath string) *LocalFileStorage {
	return &LocalFileStorage{uploadPath: uploadPath}
}

// UploadFileFromReader copies src into the upload directory, hashing it on the way
func (s *LocalFileStorage) UploadFileFromReader(src io.Reader, fileName string) (*StoredFile, error) {
	if err := EnsureDirectoryExists(s.uploadPath); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	filePath := filepath.Join(s.uploadPath, filepath.Base(fileName))
	dst, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	hash := sha256.New()
	size, err := io.Copy(dst, io.TeeReader(src, hash))
	if err != nil {
		// Clean up on error
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}

	return &StoredFile{
		Path: filePath,
		Size: size,
		Hash: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// DeleteFile removes a file from storage. A missing file is not an error.
func (s *LocalFileStorage) DeleteFile(fileName string) error {
	fullPath := filepath.Join(s.uploadPath, filepath.Base(fileName))

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
