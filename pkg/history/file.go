package history

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// FileStore appends finished calls to a JSONL file. Reads re-scan the file,
// which keeps the implementation trivial and crash-safe for the call volumes
// a single device produces.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

func (s *FileStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *FileStore) ByNumber(number string) ([]Entry, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.FromNumber == number {
			out = append(out, e)
		}
	}
	return out, nil
}

// Update rewrites the file with the patch applied to the given call.
func (s *FileStore) Update(callID string, patch EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	found := false
	for i := range all {
		if all[i].CallID == callID {
			patch.apply(&all[i])
			found = true
			break
		}
	}
	if !found {
		return ErrNoEntry
	}
	return s.writeAll(all)
}

// Remove rewrites the file without the given call. Unknown ids are a no-op.
func (s *FileStore) Remove(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	kept := all[:0]
	for _, e := range all {
		if e.CallID != callID {
			kept = append(kept, e)
		}
	}
	return s.writeAll(kept)
}

// writeAll replaces the file contents through a tmp file rename. Callers
// hold s.mu.
func (s *FileStore) writeAll(entries []Entry) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) readAll() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// Skip torn lines from an interrupted write.
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndedAt.After(out[j].EndedAt)
	})
	return out, nil
}

// FileBlockList persists blocked numbers as a JSON array.
type FileBlockList struct {
	mu   sync.Mutex
	path string
	mem  *MemoryBlockList
}

func NewFileBlockList(path string) (*FileBlockList, error) {
	b := &FileBlockList{path: path, mem: NewMemoryBlockList()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}
	var numbers []string
	if err := json.Unmarshal(data, &numbers); err != nil {
		return nil, err
	}
	for _, n := range numbers {
		_ = b.mem.Add(n)
	}
	return b, nil
}

func (b *FileBlockList) Add(number string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.mem.Add(number); err != nil {
		return err
	}
	return b.save()
}

func (b *FileBlockList) Remove(number string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.mem.Remove(number); err != nil {
		return err
	}
	return b.save()
}

func (b *FileBlockList) Contains(number string) bool {
	return b.mem.Contains(number)
}

func (b *FileBlockList) Numbers() []string {
	return b.mem.Numbers()
}

func (b *FileBlockList) save() error {
	data, err := json.MarshalIndent(b.mem.Numbers(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o644)
}

var (
	_ Store     = (*FileStore)(nil)
	_ BlockList = (*FileBlockList)(nil)
)
