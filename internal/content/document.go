// Package content implements the on-disk document format: a YAML
// front matter block delimited by a pair of "---" lines, followed by a
// body. Several documents may share one file, separated by three blank
// lines; documents are addressed by their byte offset within the file.
//
// The filesystem is the durable source of truth for the whole server:
// using this format as the event log avoids a bespoke storage engine
// while still supporting append-mostly writes and full-catalog rebuild
// by directory walk.
package content

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Delimiter opens and closes a front matter block.
const Delimiter = "---"

// separator terminates a document inside a multi-document file: three
// consecutive blank lines. Bodies may contain up to two consecutive
// blank lines without being cut short.
const separator = "\n\n\n"

// ErrMalformedDocument is returned for a document whose front matter
// is missing or unparsable. During a catalog rebuild such files are
// skipped with a diagnostic; on a direct read it is a hard failure.
var ErrMalformedDocument = errors.New("content: malformed document")

// Document is one stored unit: structured metadata plus a body. The
// body is returned with trailing newlines trimmed.
type Document struct {
	Meta map[string]any
	Body string
}

// Reader decodes consecutive documents from a stream, tracking the
// byte offset at which each document starts.
type Reader struct {
	r      *bufio.Reader
	offset int64
}

// NewReader returns a Reader positioned at offset 0 of r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// readLine returns the next line without its trailing newline, along
// with io.EOF once the stream is exhausted. A final line without a
// newline is still returned.
func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	r.offset += int64(len(line))
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// Next reads the next document and returns it together with the byte
// offset of its opening delimiter. It returns (nil, 0, nil) at a clean
// end of stream and ErrMalformedDocument if data is present but does
// not start with a front matter block.
func (r *Reader) Next() (*Document, int64, error) {
	// Skip blank lines before the opening delimiter.
	var line string
	var start int64
	for {
		start = r.offset
		var err error
		line, err = r.readLine()
		if err == io.EOF {
			return nil, 0, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("content: read: %w", err)
		}
		if strings.TrimSpace(line) != "" {
			break
		}
	}
	if line != Delimiter {
		return nil, 0, fmt.Errorf("%w: expected %q, got %q", ErrMalformedDocument, Delimiter, line)
	}

	var frontMatter strings.Builder
	for {
		line, err := r.readLine()
		if err == io.EOF {
			return nil, 0, fmt.Errorf("%w: unterminated front matter", ErrMalformedDocument)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("content: read: %w", err)
		}
		if line == Delimiter {
			break
		}
		frontMatter.WriteString(line)
		frontMatter.WriteByte('\n')
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(frontMatter.String()), &meta); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if meta == nil {
		meta = map[string]any{}
	}

	// Body: everything up to EOF or the three-blank-line separator.
	var body strings.Builder
	blanks := 0
	for {
		line, err := r.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("content: read: %w", err)
		}
		if line == "" {
			blanks++
			if blanks == 3 {
				break
			}
			continue
		}
		for ; blanks > 0; blanks-- {
			body.WriteByte('\n')
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	return &Document{Meta: meta, Body: strings.TrimRight(body.String(), "\n")}, start, nil
}

// WriteDocument serializes one document: delimiter, YAML front matter,
// delimiter, body with a terminating newline.
func WriteDocument(w io.Writer, meta map[string]any, body string) error {
	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("content: marshal front matter: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n%s%s\n", Delimiter, metaBytes, Delimiter); err != nil {
		return fmt.Errorf("content: write: %w", err)
	}
	if _, err := io.WriteString(w, strings.TrimRight(body, "\n")+"\n"); err != nil {
		return fmt.Errorf("content: write: %w", err)
	}
	return nil
}

// WriteDocumentFile writes a single-document file, creating parent
// directories and truncating any previous content at that path.
func WriteDocumentFile(path string, meta map[string]any, body string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("content: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("content: create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteDocument(f, meta, body); err != nil {
		return err
	}
	return f.Close()
}

// AppendDocument appends one document to path, inserting the
// triple-blank-line separator first when the file already holds
// documents. It returns the byte offset of the new document.
func AppendDocument(path string, meta map[string]any, body string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("content: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("content: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("content: stat %s: %w", path, err)
	}
	offset := info.Size()
	if offset > 0 {
		if _, err := io.WriteString(f, separator); err != nil {
			return 0, fmt.Errorf("content: write separator: %w", err)
		}
		offset += int64(len(separator))
	}

	if err := WriteDocument(f, meta, body); err != nil {
		return 0, err
	}
	return offset, f.Close()
}

// ReadDocumentAt reopens path, seeks to offset and decodes the single
// document found there. Records never hold live file handles; reads
// always reopen and seek.
func ReadDocumentAt(path string, offset int64) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("content: seek %s@%d: %w", path, offset, err)
	}

	doc, _, err := NewReader(f).Next()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: no document at %s@%d", ErrMalformedDocument, path, offset)
	}
	return doc, nil
}

// ReadDocumentFile decodes the first document of a file.
func ReadDocumentFile(path string) (*Document, error) {
	return ReadDocumentAt(path, 0)
}
