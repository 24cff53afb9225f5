/*
 *     Copyright 2023 The Balancer Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// RecordFilePrefix is prefix of record file name.
	RecordFilePrefix = "record"

	// RecordFileExt is extension of record file name.
	RecordFileExt = "ndjson"

	// CSVFileExt is extension of exported csv file name.
	CSVFileExt = "csv"
)

const (
	// megabyte is the conversion factor of maxSize.
	megabyte = 1024 * 1024

	// defaultMaxSize is the default maximum size in megabytes of the
	// active record file before it is rotated.
	defaultMaxSize = 100

	// defaultMaxBackups is the default maximum number of rotated record
	// files to retain.
	defaultMaxBackups = 10
)

// Storage persists per-iteration records as JSON lines, rotating the active
// file by size, and exports the full history as CSV.
type Storage interface {
	// Create appends a record to the active record file.
	Create(Record) error

	// List returns all records, oldest first, across rotated files.
	List() ([]Record, error)

	// Open returns a reader over the active record file.
	Open() (io.ReadCloser, error)

	// Count returns the number of records written since New or Clear.
	Count() int64

	// ExportCSV writes all records to w as CSV with a header row.
	ExportCSV(w io.Writer) error

	// Clear removes the active record file and all rotated backups.
	Clear() error
}

type storage struct {
	mu         sync.Mutex
	baseDir    string
	runKey     string
	maxSize    int64
	maxBackups int
	count      int64
}

// Option is a functional option for configuring the Storage.
type Option func(s *storage)

// WithMaxSize sets the maximum size in megabytes of the record file.
func WithMaxSize(maxSize uint) Option {
	return func(s *storage) {
		s.maxSize = int64(maxSize) * megabyte
	}
}

// WithMaxBackups sets the maximum number of rotated record files to retain.
func WithMaxBackups(maxBackups uint) Option {
	return func(s *storage) {
		s.maxBackups = int(maxBackups)
	}
}

// New returns a new Storage instance rooted at baseDir. Each instance writes
// under a fresh run key so concurrent runs sharing a directory do not mix
// records.
func New(baseDir string, options ...Option) (Storage, error) {
	s := &storage{
		baseDir:    baseDir,
		runKey:     uuid.NewString(),
		maxSize:    defaultMaxSize * megabyte,
		maxBackups: defaultMaxBackups,
	}

	for _, opt := range options {
		opt(s)
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.Wrap(err, "create storage directory")
	}

	return s, nil
}

func (s *storage) Create(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	if err := s.rotate(int64(len(data) + 1)); err != nil {
		return err
	}

	file, err := os.OpenFile(s.filename(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return errors.Wrap(err, "open record file")
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write record")
	}

	s.count++
	return nil
}

func (s *storage) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []Record
	for _, name := range s.recordFilenames() {
		file, err := os.Open(name)
		if err != nil {
			return nil, errors.Wrap(err, "open record file")
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var record Record
			if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
				file.Close()
				return nil, errors.Wrap(err, "unmarshal record")
			}

			records = append(records, record)
		}

		if err := scanner.Err(); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "scan record file")
		}
		file.Close()
	}

	return records, nil
}

func (s *storage) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.filename())
	if err != nil {
		return nil, errors.Wrap(err, "open record file")
	}

	return file, nil
}

func (s *storage) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

func (s *storage) ExportCSV(w io.Writer) error {
	records, err := s.List()
	if err != nil {
		return err
	}

	if err := gocsv.Marshal(&records, w); err != nil {
		return errors.Wrap(err, "marshal records to csv")
	}

	return nil
}

func (s *storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.recordFilenames() {
		if err := os.Remove(name); err != nil {
			return errors.Wrap(err, "remove record file")
		}
	}

	s.count = 0
	return nil
}

// rotate moves the active file aside when the pending write would exceed
// maxSize, then prunes the oldest backups beyond maxBackups.
func (s *storage) rotate(pending int64) error {
	info, err := os.Stat(s.filename())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errors.Wrap(err, "stat record file")
	}

	if info.Size()+pending <= s.maxSize {
		return nil
	}

	backup := filepath.Join(s.baseDir, fmt.Sprintf("%s-%s-%s.%s", RecordFilePrefix, s.runKey, uuid.NewString(), RecordFileExt))
	if err := os.Rename(s.filename(), backup); err != nil {
		return errors.Wrap(err, "rotate record file")
	}

	backups := s.backupFilenames()
	for i := 0; i+s.maxBackups < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil {
			return errors.Wrap(err, "prune record backup")
		}
	}

	return nil
}

// recordFilenames returns the run's record files, oldest first with the
// active file last.
func (s *storage) recordFilenames() []string {
	names := s.backupFilenames()
	if _, err := os.Stat(s.filename()); err == nil {
		names = append(names, s.filename())
	}

	return names
}

// backupFilenames returns the run's rotated files sorted by modification
// time, oldest first.
func (s *storage) backupFilenames() []string {
	pattern := filepath.Join(s.baseDir, fmt.Sprintf("%s-%s-*.%s", RecordFilePrefix, s.runKey, RecordFileExt))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var names []string
	for _, name := range matches {
		if name != s.filename() {
			names = append(names, name)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		a, errA := os.Stat(names[i])
		b, errB := os.Stat(names[j])
		if errA != nil || errB != nil {
			return strings.Compare(names[i], names[j]) < 0
		}

		return a.ModTime().Before(b.ModTime())
	})

	return names
}

// filename is the active record file of the run.
func (s *storage) filename() string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s-%s.%s", RecordFilePrefix, s.runKey, RecordFileExt))
}
