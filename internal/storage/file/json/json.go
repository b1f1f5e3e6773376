package json

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/skyex/desk/internal/storage"
)

// BlobStorage persists one json file per key under table/shard.
type BlobStorage struct {
	path  string
	table string
	shard string
}

// BlobShard creates a file backed storage shard for the given table.
func BlobShard(table string) storage.Shard {
	return func(shard string) (storage.Persistence, error) {
		return NewJsonBlob(table, shard), nil
	}
}

// NewJsonBlob creates a new file storage.
// table has the same schema, shard is a logical split.
func NewJsonBlob(table, shard string) *BlobStorage {
	return &BlobStorage{
		table: table,
		shard: shard,
		path:  storage.DefaultDir,
	}
}

func (s BlobStorage) Store(k storage.Key, value interface{}) error {
	return Save(filepath.Join(s.path, s.table, s.shard), k.Path(), value)
}

func (s BlobStorage) Load(k storage.Key, value interface{}) error {
	return Load(filepath.Join(s.path, s.table, s.shard), k.Path(), value)
}

// Save saves the given json struct into the given path with the provided filename.
func Save(filePath string, fileName string, value interface{}) error {
	// check if filepath exists
	info, err := os.Stat(filePath)
	if err != nil {
		err := os.MkdirAll(filePath, os.ModePerm)
		if err != nil {
			return fmt.Errorf("could not make dir: %s: %w", filePath, err)
		}
	} else if !info.IsDir() {
		return fmt.Errorf("path given is not a dir: %s", filePath)
	}

	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode value for '%s': %w", fileName, err)
	}

	// write to a temp file and rename, so that a crash mid-write
	// never leaves a half-applied snapshot behind
	p := filepath.Join(filePath, fmt.Sprintf("%s.json", fileName))
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("could not create file '%s': %w", tmp, err)
	}
	_, err = f.Write(b)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return fmt.Errorf("could not write bytes to file '%s': %w", tmp, err)
	}
	err = os.Rename(tmp, p)
	if err != nil {
		return fmt.Errorf("could not move file '%s': %w", tmp, err)
	}
	return nil
}

// Load loads the payload from the given filePath and fileName.
func Load(filePath string, fileName string, value interface{}) error {
	p := filepath.Join(filePath, fmt.Sprintf("%s.json", fileName))

	data, err := ioutil.ReadFile(p)
	if os.IsNotExist(err) {
		return fmt.Errorf("no file '%s': %w", p, storage.NotFoundErr)
	}
	if err != nil {
		// permission or I/O failures must stay retryable, a snapshot exists
		return fmt.Errorf("could not read file '%s': %w", p, err)
	}

	err = json.Unmarshal(data, value)
	if err != nil {
		return fmt.Errorf("could not unmarshal '%s': %s: %w", p, err.Error(), storage.CouldNotLoadErr)
	}

	return nil
}
