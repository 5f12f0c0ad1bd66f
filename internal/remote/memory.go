package remote

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	size     int64
	created  time.Time
	modified time.Time
}

type memFault struct {
	op    string
	id    string
	err   error
	times int // <0 means forever
}

// MemoryStorage is an in-process Storage, selected with the "memory" driver
// and used by tests. It can be told to fail specific calls.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]memObject // key: bucket/key, folder markers end with "/"
	faults  []*memFault
	calls   map[string]int
	now     func() time.Time
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memObject),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// PutFile stores a file. Parent folders are created implicitly.
func (m *MemoryStorage) PutFile(id string, size int64, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = memObject{size: size, created: modified, modified: modified}
}

// PutFolder stores a folder marker. The id must end with "/".
func (m *MemoryStorage) PutFolder(id string, modified time.Time) {
	if !strings.HasSuffix(id, "/") {
		id += "/"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = memObject{created: modified, modified: modified}
}

// Remove deletes an object.
func (m *MemoryStorage) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
}

// Exists reports whether a file or folder marker exists.
func (m *MemoryStorage) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[id]
	return ok
}

// Keys returns every stored id under prefix in lexical order.
func (m *MemoryStorage) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Fail makes the next times calls of op fail with err. An empty id matches
// every id; times < 0 fails forever.
func (m *MemoryStorage) Fail(op, id string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, &memFault{op: op, id: id, err: err, times: times})
}

// Calls returns how many times op was invoked.
func (m *MemoryStorage) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryStorage) enter(op, id string) error {
	m.calls[op]++
	for _, f := range m.faults {
		if f.op != op || (f.id != "" && f.id != id) || f.times == 0 {
			continue
		}
		if f.times > 0 {
			f.times--
		}
		return f.err
	}
	return nil
}

func (m *MemoryStorage) ListChanged(_ context.Context, folderID string, since time.Time) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListChanged", folderID); err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}
	entries := m.children(bucket, prefix)
	changed := entries[:0]
	for _, f := range entries {
		if f.ModifiedTime.After(since) || f.CreatedTime.After(since) {
			changed = append(changed, f)
		}
	}
	return changed, nil
}

func (m *MemoryStorage) ListFolders(_ context.Context, folderID string) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListFolders", folderID); err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseFolderID(folderID)
	if err != nil {
		return nil, err
	}
	var folders []File
	for _, f := range m.children(bucket, prefix) {
		if f.IsFolder {
			folders = append(folders, f)
		}
	}
	return folders, nil
}

func (m *MemoryStorage) Copy(_ context.Context, fileID, destFolderID, name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Copy", fileID); err != nil {
		return File{}, err
	}
	if err := validName(name); err != nil {
		return File{}, err
	}
	src, ok := m.objects[fileID]
	if !ok {
		return File{}, newError("Copy", fileID, 404, fmt.Errorf("no such key"))
	}
	bucket, prefix, err := ParseFolderID(destFolderID)
	if err != nil {
		return File{}, err
	}
	now := m.now()
	id := FileID(bucket, prefix+name)
	m.objects[id] = memObject{size: src.size, created: now, modified: now}
	return File{ID: id, Name: name, Size: src.size, CreatedTime: now, ModifiedTime: now, Link: m.Link(id)}, nil
}

func (m *MemoryStorage) CreateFolder(_ context.Context, name, parentID string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateFolder", parentID); err != nil {
		return File{}, err
	}
	if err := validName(name); err != nil {
		return File{}, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return File{}, err
	}
	now := m.now()
	id := FolderID(bucket, prefix+name)
	m.objects[id] = memObject{created: now, modified: now}
	return File{ID: id, Name: name, IsFolder: true, CreatedTime: now, ModifiedTime: now, Link: m.Link(id)}, nil
}

func (m *MemoryStorage) FindByName(_ context.Context, name, parentID string) ([]File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindByName", parentID); err != nil {
		return nil, err
	}
	bucket, prefix, err := ParseFolderID(parentID)
	if err != nil {
		return nil, err
	}
	var found []File
	for _, f := range m.children(bucket, prefix) {
		if f.Name == name {
			found = append(found, f)
		}
	}
	return found, nil
}

func (m *MemoryStorage) Link(id string) string {
	return "mem://" + id
}

// children returns the direct children of prefix, folders derived from
// deeper keys included, in lexical key order. Callers hold m.mu.
func (m *MemoryStorage) children(bucket, prefix string) []File {
	base := bucket + "/" + prefix
	seen := make(map[string]File)
	for id, obj := range m.objects {
		if !strings.HasPrefix(id, base) || id == base {
			continue
		}
		rest := strings.TrimPrefix(id, base)
		name, _, nested := strings.Cut(rest, "/")
		if !nested {
			seen[id] = File{
				ID:           id,
				Name:         name,
				Size:         obj.size,
				CreatedTime:  obj.created,
				ModifiedTime: obj.modified,
				Link:         m.Link(id),
			}
			continue
		}
		folderID := base + name + "/"
		f, ok := seen[folderID]
		if !ok {
			f = File{ID: folderID, Name: name, IsFolder: true, Link: m.Link(folderID)}
		}
		if id == folderID {
			f.CreatedTime = obj.created
			f.ModifiedTime = obj.modified
		}
		seen[folderID] = f
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	files := make([]File, 0, len(keys))
	for _, k := range keys {
		files = append(files, seen[k])
	}
	return files
}
