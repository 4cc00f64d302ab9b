package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/chaz8081/gostt-bench/internal/audio"
	"github.com/chaz8081/gostt-bench/internal/errs"
)

// DefaultHFEndpoint is the public datasets-server.
const DefaultHFEndpoint = "https://datasets-server.huggingface.co"

// maxHFPage is the datasets-server cap on rows per request.
const maxHFPage = 100

// HFOptions configures an HFProvider.
type HFOptions struct {
	Endpoint string
	Token    string
	PageSize int
	Client   *http.Client
}

// HFProvider pages rows out of the Hugging Face datasets-server /rows API.
// Audio cells are lists of {src, type} entries; the WAV entry is fetched
// lazily when the sample is resolved.
//
// Params: dataset (defaults to the corpus id), config, split, and
// token=required for gated datasets.
type HFProvider struct {
	endpoint string
	token    string
	pageSize int
	client   *http.Client
}

// NewHFProvider returns a provider with defaults filled in.
func NewHFProvider(opts HFOptions) *HFProvider {
	p := &HFProvider{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		token:    opts.Token,
		pageSize: opts.PageSize,
		client:   opts.Client,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultHFEndpoint
	}
	if p.pageSize <= 0 || p.pageSize > maxHFPage {
		p.pageSize = maxHFPage
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

// LoadHFToken finds a Hugging Face token. It checks envVar in the process
// environment, then in envFile (a dotenv file), then the first line of
// tokenFile. Missing files are skipped. An empty result is not an error.
func LoadHFToken(envVar, envFile, tokenFile string) (string, error) {
	if envVar != "" {
		if tok := strings.TrimSpace(os.Getenv(envVar)); tok != "" {
			return tok, nil
		}
	}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			if tok := strings.TrimSpace(vals[envVar]); tok != "" {
				return tok, nil
			}
		case !os.IsNotExist(err):
			return "", fmt.Errorf("reading %s: %w", envFile, err)
		}
	}
	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		switch {
		case err == nil:
			line, _, _ := strings.Cut(string(data), "\n")
			return strings.TrimSpace(line), nil
		case !os.IsNotExist(err):
			return "", fmt.Errorf("reading %s: %w", tokenFile, err)
		}
	}
	return "", nil
}

type hfFeature struct {
	Name string `json:"name"`
}

type hfRow struct {
	RowIdx int `json:"row_idx"`
	Row    Row `json:"row"`
}

type hfPage struct {
	Features     []hfFeature `json:"features"`
	Rows         []hfRow     `json:"rows"`
	NumRowsTotal int         `json:"num_rows_total"`
	Error        string      `json:"error"`
}

func (p *HFProvider) Open(ctx context.Context, d Descriptor, offset int) (RowStream, error) {
	if d.Param("token", "") == "required" && p.token == "" {
		return nil, errs.Configuration("corpus %q: dataset is gated; set a Hugging Face token", d.ID)
	}
	s := &hfStream{
		p:       p,
		dataset: d.Param("dataset", d.ID),
		config:  d.Param("config", "default"),
		split:   d.Param("split", "test"),
		offset:  offset,
		total:   -1,
	}
	if err := s.fill(ctx); err != nil {
		return nil, fmt.Errorf("corpus %q: %w", d.ID, err)
	}
	return s, nil
}

func (p *HFProvider) AudioRef(d Descriptor, cell any) (audio.Ref, error) {
	src, err := hfAudioSource(cell)
	if err != nil {
		return audio.Ref{}, errs.Schema("corpus %q: %v", d.ID, err)
	}
	return audio.RemoteRef(src, func(ctx context.Context) (*audio.Waveform, error) {
		data, err := p.get(ctx, src)
		if err != nil {
			return nil, err
		}
		w, err := audio.DecodeBytes(data)
		if err != nil {
			return nil, errs.Audio(err, "decoding %s", src)
		}
		return w, nil
	}), nil
}

// hfAudioSource picks the WAV rendition out of a datasets-server audio cell.
func hfAudioSource(cell any) (string, error) {
	entries, ok := cell.([]any)
	if !ok {
		if m, isMap := cell.(map[string]any); isMap {
			entries = []any{m}
		} else {
			return "", fmt.Errorf("audio cell is %T, want list of sources", cell)
		}
	}
	var fallback string
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		src, _ := m["src"].(string)
		if src == "" {
			continue
		}
		if typ, _ := m["type"].(string); typ == "audio/wav" || typ == "audio/x-wav" {
			return src, nil
		}
		if fallback == "" {
			fallback = src
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("audio cell has no source")
	}
	return fallback, nil
}

func (p *HFProvider) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var page hfPage
		if json.Unmarshal(body, &page) == nil && page.Error != "" {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, page.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return body, nil
}

// hfStream buffers one page of rows at a time.
type hfStream struct {
	p       *HFProvider
	dataset string
	config  string
	split   string

	offset  int
	total   int
	buf     []Row
	columns []string
}

func (s *hfStream) fill(ctx context.Context) error {
	if s.total >= 0 && s.offset >= s.total {
		return nil
	}
	q := url.Values{}
	q.Set("dataset", s.dataset)
	q.Set("config", s.config)
	q.Set("split", s.split)
	q.Set("offset", strconv.Itoa(s.offset))
	q.Set("length", strconv.Itoa(s.p.pageSize))

	body, err := s.p.get(ctx, s.p.endpoint+"/rows?"+q.Encode())
	if err != nil {
		return fmt.Errorf("fetching rows at offset %d: %w", s.offset, err)
	}
	var page hfPage
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("decoding rows page: %w", err)
	}
	if s.columns == nil {
		s.columns = make([]string, 0, len(page.Features))
		for _, f := range page.Features {
			s.columns = append(s.columns, f.Name)
		}
	}
	s.total = page.NumRowsTotal
	for _, r := range page.Rows {
		s.buf = append(s.buf, r.Row)
	}
	s.offset += len(page.Rows)
	if len(page.Rows) == 0 {
		// Guard against a server that reports more rows than it returns.
		s.total = s.offset
	}
	return nil
}

func (s *hfStream) Columns() []string { return s.columns }

func (s *hfStream) Next(ctx context.Context) (Row, bool, error) {
	if len(s.buf) == 0 {
		if err := s.fill(ctx); err != nil {
			return nil, false, err
		}
		if len(s.buf) == 0 {
			return nil, false, nil
		}
	}
	r := s.buf[0]
	s.buf = s.buf[1:]
	return r, true, nil
}

func (s *hfStream) Close() error {
	s.buf = nil
	return nil
}
