package agentloop

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records every filesystem access.
type countingStore struct {
	OSFileStore
	reads, writes int
}

func (c *countingStore) ReadFile(name string) ([]byte, error) {
	c.reads++
	return c.OSFileStore.ReadFile(name)
}

func (c *countingStore) WriteFile(name string, data []byte) error {
	c.writes++
	return c.OSFileStore.WriteFile(name, data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestReplaceEmptyPathTouchesNothing(t *testing.T) {
	store := &countingStore{}

	res := Replace(store, "", "foo", "bar")

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Zero(t, store.reads)
	assert.Zero(t, store.writes)
}

func TestReplaceIdenticalStringsIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "util.py")
	writeFile(t, path, "def foo():\n    pass\n")
	store := &countingStore{}

	for _, s := range []string{"", "foo", "not present"} {
		res := Replace(store, path, s, s)
		assert.True(t, res.Success)
		assert.Empty(t, res.Error)
	}
	assert.Equal(t, "def foo():\n    pass\n", readFile(t, path))
	assert.Zero(t, store.writes)
}

func TestReplaceMissingFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("creates when old is empty", func(t *testing.T) {
		path := filepath.Join(dir, "pkg", "new.py")
		res := Replace(OSFileStore{}, path, "", "print('hi')\n")
		assert.True(t, res.Success)
		assert.Empty(t, res.Error)
		assert.Equal(t, "print('hi')\n", readFile(t, path))
	})

	t.Run("fails when old is set", func(t *testing.T) {
		path := filepath.Join(dir, "absent.py")
		res := Replace(OSFileStore{}, path, "foo", "bar")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "not found")
		_, err := os.Stat(path)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestReplaceOldStringAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "util.py")
	writeFile(t, path, "def foo():\n")

	res := Replace(OSFileStore{}, path, "def baz(", "def bar(")

	assert.True(t, res.Success)
	assert.Equal(t, MsgOldStringNotFound, res.Error)
	assert.Equal(t, "def foo():\n", readFile(t, path))
}

func TestReplaceOnlyFirstOccurrence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "util.py")
	writeFile(t, path, "foo = 1\nfoo = 2\n")

	res := Replace(OSFileStore{}, path, "foo", "bar")

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, "bar = 1\nfoo = 2\n", readFile(t, path))
}

func TestChangedLines(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		want          int
	}{
		{"identical", "a\nb\n", "a\nb\n", 0},
		{"one line edited", "a\nb\nc\n", "a\nB\nc\n", 1},
		{"one line inserted", "a\nc\n", "a\nb\nc\n", 1},
		{"two lines edited", "a\nb\nc\n", "A\nb\nC\n", 2},
		{"lines joined", "a\nb\nc\n", "ab\nc\n", 2},
		{"no trailing newline", "x = 1", "x = 2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChangedLines("f.py", tt.before, tt.after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSingleLineEditor(t *testing.T) {
	root := t.TempDir()
	env := NewLocalExecutionEnvironment(root)
	editor := NewSingleLineEditor(env)
	writeFile(t, filepath.Join(root, "util.py"), "def foo(a):\n    return a\n")

	t.Run("rejects multi-line replacement without writing", func(t *testing.T) {
		res := editor.ReplaceText("util.py", "def foo(a):\n    return a", "def bar(b):\n    return b")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "changes 2 lines")
		assert.Equal(t, "def foo(a):\n    return a\n", readFile(t, filepath.Join(root, "util.py")))
	})

	t.Run("accepts single-line replacement", func(t *testing.T) {
		res := editor.ReplaceText("util.py", "def foo(", "def bar(")
		assert.True(t, res.Success)
		assert.Empty(t, res.Error)
		assert.Equal(t, "def bar(a):\n    return a\n", readFile(t, filepath.Join(root, "util.py")))
	})

	t.Run("passes through soft failures", func(t *testing.T) {
		res := editor.ReplaceText("util.py", "missing", "x")
		assert.True(t, res.Success)
		assert.Equal(t, MsgOldStringNotFound, res.Error)

		res = editor.ReplaceText("", "a\nb\nc", "")
		assert.True(t, res.Success)
	})
}

func TestSummarizeDiff(t *testing.T) {
	text := `diff --git a/util.py b/util.py
index 1111111..2222222 100644
--- a/util.py
+++ b/util.py
@@ -1,3 +1,3 @@
-def foo():
+def bar():
     pass
 
diff --git a/new.py b/new.py
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/new.py
@@ -0,0 +1,2 @@
+import os
+print(os.getcwd())
`
	summary, err := SummarizeDiff(text)
	require.NoError(t, err)
	require.Len(t, summary.Files, 2)
	assert.Equal(t, FileChange{Path: "util.py", Added: 1, Removed: 1}, summary.Files[0])
	assert.Equal(t, FileChange{Path: "new.py", Added: 2, Removed: 0}, summary.Files[1])
	assert.Equal(t, 3, summary.Added)
	assert.Equal(t, 1, summary.Removed)

	empty, err := SummarizeDiff("")
	require.NoError(t, err)
	assert.Empty(t, empty.Files)
}
