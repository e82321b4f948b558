package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"dappled/internal/logger"
)

// Manifest is a dappled.yml document. It is hand-edited, so it is kept as a
// yaml.Node tree: comments and key order survive load/modify/save, and a
// manifest that was not modified is written back byte for byte.
type Manifest struct {
	path    string
	raw     []byte
	doc     yaml.Node
	dirty   bool
	touched map[string]bool
	// compact is set when block sequences sit at their key's indentation.
	compact bool
}

// LoadManifest reads the manifest at path. A missing file yields ErrManifestNotFound.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ToolError{Err: ErrManifestNotFound}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// LoadProjectManifest reads dappled.yml from dir.
func LoadProjectManifest(dir string) (*Manifest, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

// ManifestExists reports whether dir holds a dappled.yml.
func ManifestExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil
}

// ParseManifest parses manifest text that is not (yet) tied to a file.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{raw: data}
	if err := yaml.Unmarshal(data, &m.doc); err != nil {
		return nil, err
	}
	if m.doc.Kind == 0 {
		m.doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(m.doc.Content) == 0 {
		// Empty document: start an empty mapping so setters work.
		m.doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
		m.dirty = true
	}
	if m.root().Kind != yaml.MappingNode {
		return nil, errors.New("manifest must be a mapping of keys to values")
	}
	m.compact = compactSequences(m.root())
	return m, nil
}

// compactSequences reports whether the first block sequence of root is written
// "key:\n- item" rather than indented under its key. Without one, compact wins.
func compactSequences(root *yaml.Node) bool {
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind == yaml.SequenceNode && v.Style&yaml.FlowStyle == 0 && len(v.Content) > 0 {
			return v.Column <= k.Column
		}
	}
	return true
}

// Path returns the file the manifest was loaded from, or "" for parsed text.
func (m *Manifest) Path() string { return m.path }

// Dir returns the project directory holding the manifest.
func (m *Manifest) Dir() string { return filepath.Dir(m.path) }

func (m *Manifest) root() *yaml.Node {
	return m.doc.Content[0]
}

// lookup returns the value node for key, or nil.
func (m *Manifest) lookup(key string) *yaml.Node {
	root := m.root()
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			return root.Content[i+1]
		}
	}
	return nil
}

// Has reports whether key is present with a non-null value.
func (m *Manifest) Has(key string) bool {
	n := m.lookup(key)
	return n != nil && !isNull(n)
}

// Get returns the scalar value of key, or "" when missing, null or not a scalar.
func (m *Manifest) Get(key string) string {
	n := m.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode || isNull(n) {
		return ""
	}
	return n.Value
}

// Set stores a string scalar under key, appending the key if it is new.
func (m *Manifest) Set(key, value string) {
	m.touch(key)
	if n := m.lookup(key); n != nil {
		*n = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value,
			HeadComment: n.HeadComment, LineComment: n.LineComment, FootComment: n.FootComment}
		return
	}
	root := m.root()
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}

func (m *Manifest) touch(key string) {
	m.dirty = true
	if m.touched == nil {
		m.touched = make(map[string]bool)
	}
	m.touched[key] = true
}

// IsList reports whether key is absent, null or a sequence.
func (m *Manifest) IsList(key string) bool {
	n := m.lookup(key)
	return n == nil || isNull(n) || n.Kind == yaml.SequenceNode
}

// Decode decodes the value under key into out. A missing or null key leaves out untouched.
func (m *Manifest) Decode(key string, out any) error {
	n := m.lookup(key)
	if n == nil || isNull(n) {
		return nil
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("invalid %q section: %w", key, err)
	}
	return nil
}

// Strings returns the scalar items of the sequence under key. Non-scalar items
// (such as a {pip: [...]} entry in packages) are skipped.
func (m *Manifest) Strings(key string) []string {
	n := m.lookup(key)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []string
	for _, item := range n.Content {
		if item.Kind == yaml.ScalarNode && !isNull(item) {
			out = append(out, item.Value)
		}
	}
	return out
}

// sequence returns the sequence node under key, creating or converting a null value.
func (m *Manifest) sequence(key string) *yaml.Node {
	n := m.lookup(key)
	if n == nil {
		root := m.root()
		n = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, n)
		return n
	}
	if n.Kind != yaml.SequenceNode {
		*n = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq",
			HeadComment: n.HeadComment, LineComment: n.LineComment, FootComment: n.FootComment}
	}
	return n
}

// Insert puts value at index of the sequence under key (clamped to its length).
func (m *Manifest) Insert(key string, index int, value string) {
	m.touch(key)
	seq := m.sequence(key)
	index = max(0, min(index, len(seq.Content)))
	seq.Content = slices.Insert(seq.Content, index, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}

// Append adds values that the sequence under key does not already contain.
// It returns the values that were actually added.
func (m *Manifest) Append(key string, values ...string) []string {
	existing := m.Strings(key)
	var added []string
	for _, v := range values {
		if slices.Contains(existing, v) || slices.Contains(added, v) {
			continue
		}
		added = append(added, v)
	}
	if len(added) == 0 {
		return nil
	}
	m.touch(key)
	seq := m.sequence(key)
	for _, v := range added {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	return added
}

// Name is the project's display name.
func (m *Manifest) Name() string { return m.Get(KeyName) }

// Filename is the notebook document path, relative to the project directory.
func (m *Manifest) Filename() string { return m.Get(KeyFilename) }

// DockerImage is the container image the project must run in, if any.
func (m *Manifest) DockerImage() string { return m.Get(KeyDockerImage) }

// PublishID is the id the project was last published under, if any.
func (m *Manifest) PublishID() string { return m.Get(KeyPublishID) }

// Packages returns the conda package specifiers in declaration order.
func (m *Manifest) Packages() []string { return m.Strings(KeyPackages) }

// Channels returns the package channels in declaration order.
func (m *Manifest) Channels() []string { return m.Strings(KeyChannels) }

// Downloads returns the URLs of extra files fetched into the project.
func (m *Manifest) Downloads() []string { return m.Strings(KeyDownloads) }

// PipPackages returns the specifiers listed under a {pip: [...]} entry of packages.
func (m *Manifest) PipPackages() []string {
	n := m.lookup(KeyPackages)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	var out []string
	for _, item := range n.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i+1 < len(item.Content); i += 2 {
			if item.Content[i].Value != "pip" || item.Content[i+1].Kind != yaml.SequenceNode {
				continue
			}
			for _, p := range item.Content[i+1].Content {
				if p.Kind == yaml.ScalarNode && !isNull(p) {
					out = append(out, p.Value)
				}
			}
		}
	}
	return out
}

// GitHub returns the pinned GitHub snapshot, if the manifest declares a complete one.
func (m *Manifest) GitHub() (GitHubRef, bool) {
	var ref GitHubRef
	if n := m.lookup(KeyGitHub); n == nil || n.Kind != yaml.MappingNode {
		return ref, false
	}
	if err := m.Decode(KeyGitHub, &ref); err != nil {
		logger.Warn("[WARN] Ignoring malformed github section: %v\n", err)
		return ref, false
	}
	return ref, ref.Owner != "" && ref.Repo != "" && ref.SHA != ""
}

// Bytes renders the manifest. An unmodified manifest renders as the exact bytes
// it was parsed from. Otherwise only the top-level entries that changed are
// re-encoded; the others are copied from the parsed text together with the
// blank lines and comments around them.
func (m *Manifest) Bytes() ([]byte, error) {
	if !m.dirty {
		return m.raw, nil
	}
	root := m.root()
	if root.Style&yaml.FlowStyle != 0 || len(root.Content) == 0 {
		return encodeNode(&m.doc)
	}

	lines := bytes.SplitAfter(m.raw, []byte("\n"))
	var source, added []int
	last := 0
	for i := 0; i+1 < len(root.Content); i += 2 {
		line := root.Content[i].Line
		switch {
		case line == 0:
			added = append(added, i)
		case line > last && line <= len(lines):
			source = append(source, i)
			last = line
		default:
			// Several keys on one line: there is no layout worth keeping.
			return encodeNode(&m.doc)
		}
	}

	var buf bytes.Buffer
	start := len(lines)
	if len(source) > 0 {
		start = root.Content[source[0]].Line - 1
	}
	for _, l := range lines[:start] {
		buf.Write(l)
	}
	for j, i := range source {
		k, v := root.Content[i], root.Content[i+1]
		end := len(lines)
		if j+1 < len(source) {
			end = root.Content[source[j+1]].Line - 1
		}
		chunk := lines[k.Line-1 : end]
		if !m.touched[k.Value] {
			for _, l := range chunk {
				buf.Write(l)
			}
			continue
		}
		// Blank lines and comments ending the chunk separate it from the next entry.
		tail := len(chunk)
		for tail > 1 && isSpacer(chunk[tail-1]) {
			tail--
		}
		out, err := m.encodeEntry(k, v)
		if err != nil {
			return nil, err
		}
		buf.Write(out)
		for _, l := range chunk[tail:] {
			buf.Write(l)
		}
	}
	for _, i := range added {
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		out, err := m.encodeEntry(root.Content[i], root.Content[i+1])
		if err != nil {
			return nil, err
		}
		buf.Write(out)
	}
	return buf.Bytes(), nil
}

// encodeEntry renders one top-level key and its value. Comments above the key
// and trailing top-level comments stay with the surrounding source text.
func (m *Manifest) encodeEntry(k, v *yaml.Node) ([]byte, error) {
	key := *k
	key.HeadComment = ""
	out, err := encodeNode(&yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{&key, v}})
	if err != nil {
		return nil, err
	}
	lines := bytes.SplitAfter(out, []byte("\n"))
	n := len(lines)
	for n > 1 && isSpacer(lines[n-1]) {
		n--
	}
	if m.compact && v.Kind == yaml.SequenceNode && v.Style&yaml.FlowStyle == 0 {
		for i := 1; i < n; i++ {
			lines[i] = bytes.TrimPrefix(lines[i], []byte("  "))
		}
	}
	return bytes.Join(lines[:n], nil), nil
}

func encodeNode(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isSpacer reports whether line is blank or a comment starting in the first column.
func isSpacer(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0 || line[0] == '#'
}

// Save writes the manifest back to the file it was loaded from.
func (m *Manifest) Save() error {
	if m.path == "" {
		return errors.New("manifest has no file path; use SaveAs")
	}
	return m.SaveAs(m.path)
}

// SaveAs writes the manifest to path and binds the manifest to it.
func (m *Manifest) SaveAs(path string) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Debug("[DEBUG] Wrote manifest %s\n", path)
	// Reparse so later edits are placed against the text now on disk.
	fresh, err := ParseManifest(data)
	if err != nil {
		return fmt.Errorf("failed to reparse %s: %w", path, err)
	}
	fresh.path = path
	fresh.dirty = false
	*m = *fresh
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
