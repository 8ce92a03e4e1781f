package sessions

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
)

// transcript is a candidate .jsonl file.
type transcript struct {
	path    string
	modTime int64
}

// recentFiles walks root for *.jsonl files, newest first, keeping at most
// limit (0 keeps all).
func recentFiles(root string, limit int) []transcript {
	var files []transcript
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, transcript{path: path, modTime: info.ModTime().UnixNano()})
		return nil
	})
	return newestFirst(files, limit)
}

// dirFiles lists *.jsonl directly inside dir, newest first.
func dirFiles(dir string, limit int) []transcript {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []transcript
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, transcript{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	return newestFirst(files, limit)
}

func newestFirst(files []transcript, limit int) []transcript {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime > files[j].modTime
		}
		return files[i].path < files[j].path
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}

// eachLine calls fn for up to max non-empty lines of path (0 means all).
// fn returns false to stop.
func eachLine(path string, max int, fn func(line []byte) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	n := 0
	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			n++
			if !fn(line) {
				return nil
			}
			if max > 0 && n >= max {
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// firstLine returns the first non-empty line of path.
func firstLine(path string) []byte {
	var out []byte
	_ = eachLine(path, 1, func(line []byte) bool {
		out = line
		return false
	})
	return out
}

// lastLine reads backwards from the end of path to its last non-empty line.
func lastLine(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return nil
	}

	const step = 4096
	size := info.Size()
	var chunk []byte
	for size > 0 {
		n := int64(step)
		if size < n {
			n = size
		}
		size -= n
		buf := make([]byte, n)
		if _, err := f.ReadAt(buf, size); err != nil && err != io.EOF {
			return nil
		}
		chunk = append(buf, chunk...)
		trimmed := bytes.TrimRight(chunk, " \t\r\n")
		if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
			return bytes.TrimSpace(trimmed[i+1:])
		}
	}
	return bytes.TrimSpace(chunk)
}

var skipPrefixes = []string{
	"# agents.md instructions",
	"<environment_context",
	"<instructions",
	"user arguments:",
}

// firstNonTrivialLine skips boilerplate the tools inject ahead of the real
// prompt.
func firstNonTrivialLine(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		lower := strings.ToLower(line)
		skip := false
		for _, p := range skipPrefixes {
			if strings.HasPrefix(lower, p) {
				skip = true
				break
			}
		}
		if !skip {
			return line
		}
	}
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// ProjectRoot returns the git top-level containing path, else path itself.
func ProjectRoot(path string) string {
	abs := resolvePath(path)
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return abs
	}
	wt, err := repo.Worktree()
	if err != nil {
		return abs
	}
	return resolvePath(wt.Filesystem.Root())
}

func resolvePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// within reports whether cwd is root or below it.
func within(cwd, root string) bool {
	if cwd == "" {
		return false
	}
	rel, err := filepath.Rel(root, resolvePath(cwd))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
