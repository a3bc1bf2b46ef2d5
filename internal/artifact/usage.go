package artifact

import (
	"errors"
	"io/fs"
	"os"
	"strings"
)

// Usage — объём и число артефактов в каталогах хранилища.
type Usage struct {
	PartialFiles int   `json:"partial_files"`
	PartialBytes int64 `json:"partial_bytes"`
	RecordFiles  int   `json:"record_files"`
	RecordBytes  int64 `json:"record_bytes"`
}

// Usage считает только файлы *.jsonl.gz верхнего уровня: scratch обычно общий /tmp.
func (s *Store) Usage() (Usage, error) {
	var u Usage
	var err error

	if u.PartialFiles, u.PartialBytes, err = dirUsage(s.scratchDir); err != nil {
		return Usage{}, err
	}
	if u.RecordFiles, u.RecordBytes, err = dirUsage(s.dataDir); err != nil {
		return Usage{}, err
	}

	return u, nil
}

func dirUsage(dir string) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	var (
		files int
		total int64
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files++
		total += info.Size()
	}

	return files, total, nil
}
