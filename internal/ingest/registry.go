package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"finset/internal/config"
	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// ErrUnknownInterface is returned for interface ids with no handler
var ErrUnknownInterface = errors.New("unknown interface")

// Body formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Decoder turns a response body into a table
type Decoder func(r io.Reader) (domain.Table, error)

// Handler is the typed descriptor for fetching one interface over HTTP
type Handler struct {
	InterfaceID string
	URL         string
	Query       map[string]string
	Decode      Decoder
}

// Request builds the endpoint URL for a task: static query values first,
// task params override them.
func (h Handler) Request(task domain.FetchTask) (string, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url for %s: %w", h.InterfaceID, err)
	}
	q := u.Query()
	for k, v := range h.Query {
		q.Set(k, v)
	}
	for k, v := range task.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Registry resolves interface ids to handlers
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds handlers for every interface that declares a URL.
// Interfaces without an endpoint are replay-only and have no handler.
func NewRegistry(interfaces []config.Interface) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, iface := range interfaces {
		if iface.URL == "" {
			continue
		}
		if _, err := url.Parse(iface.URL); err != nil {
			return nil, fmt.Errorf("interface %s: invalid url: %w", iface.ID, err)
		}
		var dec Decoder
		switch iface.Format {
		case FormatCSV:
			dec = DecodeCSV
		case FormatJSON, "":
			dec = JSONDecoder(iface.RecordsPath)
		default:
			return nil, fmt.Errorf("interface %s: unsupported format %q", iface.ID, iface.Format)
		}
		r.handlers[iface.ID] = Handler{
			InterfaceID: iface.ID,
			URL:         iface.URL,
			Query:       iface.Query,
			Decode:      dec,
		}
	}
	return r, nil
}

// Register adds or replaces a handler
func (r *Registry) Register(h Handler) {
	r.handlers[h.InterfaceID] = h
}

// Lookup returns the handler for id or ErrUnknownInterface
func (r *Registry) Lookup(id string) (Handler, error) {
	h, ok := r.handlers[id]
	if !ok {
		return Handler{}, fmt.Errorf("%w: %s", ErrUnknownInterface, id)
	}
	return h, nil
}

// IDs lists the registered interface ids, sorted
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DecodeCSV reads a delimited body with a header row
func DecodeCSV(r io.Reader) (domain.Table, error) {
	return files.DecodeTable(r, files.ReadOptions{})
}

// JSONDecoder reads an array of objects, optionally nested under a dotted
// path. Columns are the keys of the first record in document order followed
// by keys first seen in later records.
func JSONDecoder(recordsPath string) Decoder {
	return func(r io.Reader) (domain.Table, error) {
		body, err := io.ReadAll(r)
		if err != nil {
			return domain.Table{}, err
		}

		raw := json.RawMessage(body)
		if recordsPath != "" {
			for _, key := range strings.Split(recordsPath, ".") {
				var obj map[string]json.RawMessage
				if err := json.Unmarshal(raw, &obj); err != nil {
					return domain.Table{}, fmt.Errorf("records path %q: %w", recordsPath, err)
				}
				next, ok := obj[key]
				if !ok {
					return domain.Table{}, fmt.Errorf("records path %q: key %q not found", recordsPath, key)
				}
				raw = next
			}
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return domain.Table{}, fmt.Errorf("expected an array of records: %w", err)
		}

		var t domain.Table
		index := make(map[string]int)
		var records []map[string]string
		for i, item := range items {
			keys, values, err := decodeObject(item)
			if err != nil {
				return domain.Table{}, fmt.Errorf("record %d: %w", i, err)
			}
			for _, k := range keys {
				if _, ok := index[k]; !ok {
					index[k] = len(t.Columns)
					t.Columns = append(t.Columns, k)
				}
			}
			records = append(records, values)
		}

		t.Rows = make([][]string, 0, len(records))
		for _, rec := range records {
			row := make([]string, len(t.Columns))
			for k, v := range rec {
				row[index[k]] = v
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	}
}

// decodeObject returns an object's keys in document order with scalar
// values rendered as strings; nested values keep their JSON text.
func decodeObject(data json.RawMessage) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object")
	}

	var keys []string
	values := make(map[string]string)
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := kt.(string)

		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = scalarText(v)
	}
	return keys, values, nil
}

func scalarText(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			return str
		}
	}
	return s
}
