package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

const maxManifestLine = 4 << 20

// ManifestProvider reads JSON Lines manifests from local disk. Each line is
// one row; the audio cell is a WAV path relative to the manifest, or an
// object with a "path" field.
//
// Params: path (required).
type ManifestProvider struct{}

func (ManifestProvider) Open(ctx context.Context, d Descriptor, offset int) (RowStream, error) {
	path := d.Param("path", "")
	if path == "" {
		return nil, errs.Configuration("corpus %q: manifest provider needs params.path", d.ID)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Configuration("corpus %q: opening manifest: %v", d.ID, err)
	}
	return newJSONLStream(ctx, f, offset)
}

func (ManifestProvider) AudioRef(d Descriptor, cell any) (audio.Ref, error) {
	p, err := audioPathCell(cell)
	if err != nil {
		return audio.Ref{}, errs.Schema("corpus %q: %v", d.ID, err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(d.Param("path", "")), p)
	}
	return audio.PathRef(p), nil
}

// audioPathCell extracts a path from a string cell or {"path": "..."}.
func audioPathCell(cell any) (string, error) {
	switch v := cell.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("empty audio path")
		}
		return v, nil
	case map[string]any:
		if p, ok := v["path"].(string); ok && p != "" {
			return p, nil
		}
		return "", fmt.Errorf("audio object has no path")
	default:
		return "", fmt.Errorf("audio cell is %T, want path", cell)
	}
}

// jsonlStream decodes one Row per line. The first row is read at open time
// so Columns is available before iteration.
type jsonlStream struct {
	rc      io.ReadCloser
	sc      *bufio.Scanner
	columns []string
	peeked  Row
	line    int
}

func newJSONLStream(ctx context.Context, rc io.ReadCloser, offset int) (RowStream, error) {
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), maxManifestLine)
	s := &jsonlStream{rc: rc, sc: sc}

	for i := 0; i < offset; i++ {
		if _, ok, err := s.read(); err != nil || !ok {
			if err == nil {
				// Offset past the end yields an empty stream.
				return s, nil
			}
			rc.Close()
			return nil, err
		}
	}
	first, ok, err := s.read()
	if err != nil {
		rc.Close()
		return nil, err
	}
	if ok {
		s.peeked = first
		for k := range first {
			s.columns = append(s.columns, k)
		}
		sort.Strings(s.columns)
	}
	if err := ctx.Err(); err != nil {
		rc.Close()
		return nil, err
	}
	return s, nil
}

func (s *jsonlStream) read() (Row, bool, error) {
	for s.sc.Scan() {
		s.line++
		b := s.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var r Row
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, false, errs.Schema("manifest line %d: %v", s.line, err)
		}
		return r, true, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, false, fmt.Errorf("reading manifest: %w", err)
	}
	return nil, false, nil
}

func (s *jsonlStream) Columns() []string { return s.columns }

func (s *jsonlStream) Next(ctx context.Context) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.peeked != nil {
		r := s.peeked
		s.peeked = nil
		return r, true, nil
	}
	return s.read()
}

func (s *jsonlStream) Close() error { return s.rc.Close() }
