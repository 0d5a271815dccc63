package csv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"epiviz/internal/config"
	"epiviz/internal/transformer"
)

func source(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

// collect receives n rows from ch.
func collect(ch <-chan *transformer.Row, n int) []*transformer.Row {
	out := make([]*transformer.Row, 0, n)
	for range n {
		out = append(out, <-ch)
	}
	return out
}

// stream runs StreamCSVRows to completion and returns the emitted rows and
// the reported row errors.
func stream(t *testing.T, doc string, columns []string, opt config.Options) ([]*transformer.Row, []string) {
	t.Helper()
	out := make(chan *transformer.Row, 64)
	var errs []string
	err := StreamCSVRows(context.Background(), source(doc), columns, opt, out, func(line int, err error) {
		errs = append(errs, fmt.Sprintf("%d: %v", line, err))
	})
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	close(out)
	var rows []*transformer.Row
	for r := range out {
		rows = append(rows, r)
		t.Cleanup(r.Free)
	}
	return rows, errs
}

func TestStreamCSVRows_COVIDHeaders(t *testing.T) {
	t.Parallel()

	doc := "\uFEFFProvince/State,Country/Region,Lat,Long,Date,Confirmed,WHO Region\r\n" +
		",Afghanistan,33.93911,67.709953,2020-01-22,0,Eastern Mediterranean\r\n" +
		"Ontario, Canada ,51.2538,-85.3232,2020-01-22,  ,Americas\r\n"
	opt := config.Options{
		"header_map": map[string]any{
			"Province/State": "province",
			"country_region": "country",
			"lat":            "latitude",
			"long":           "longitude",
		},
	}
	columns := []string{"country", "province", "latitude", "longitude", "date", "confirmed", "who_region", "continent"}

	rows, errs := stream(t, doc, columns, opt)
	if len(errs) != 0 || len(rows) != 2 {
		t.Fatalf("rows=%d errs=%v", len(rows), errs)
	}
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Fatalf("lines = %d,%d, want 2,3", rows[0].Line, rows[1].Line)
	}
	want := [][]any{
		{"Afghanistan", nil, "33.93911", "67.709953", "2020-01-22", "0", "Eastern Mediterranean", nil},
		{"Canada", "Ontario", "51.2538", "-85.3232", "2020-01-22", nil, "Americas", nil},
	}
	for i, w := range want {
		for j := range w {
			if rows[i].V[j] != w[j] {
				t.Fatalf("row %d %s = %#v, want %#v", i+1, columns[j], rows[i].V[j], w[j])
			}
		}
	}
}

func TestStreamCSVRows_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		columns []string
		opt     config.Options
		want    [][]any
		errs    int
	}{
		{
			name:    "positional without header",
			doc:     "France,3\n",
			columns: []string{"country", "confirmed"},
			opt:     config.Options{"has_header": false},
			want:    [][]any{{"France", "3"}},
		},
		{
			name:    "semicolon",
			doc:     "location;total_cases\nFrance;3\n",
			columns: []string{"location", "total_cases"},
			opt:     config.Options{"comma": ";"},
			want:    [][]any{{"France", "3"}},
		},
		{
			name:    "lazy quotes",
			doc:     "country,province\nCote d\"Ivoire,\n",
			columns: []string{"country", "province"},
			opt:     config.Options{"lazy_quotes": true},
			want:    [][]any{{`Cote d"Ivoire`, nil}},
		},
		{
			name:    "no trim",
			doc:     "country\n France \n",
			columns: []string{"country"},
			opt:     config.Options{"trim_space": false},
			want:    [][]any{{" France "}},
		},
		{
			name:    "fields per record",
			doc:     "country,confirmed\nFrance,3,extra\nSpain,1\n",
			columns: []string{"country", "confirmed"},
			opt:     config.Options{"fields_per_record": 2},
			want:    [][]any{{"Spain", "1"}},
			errs:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, errs := stream(t, tt.doc, tt.columns, tt.opt)
			if len(errs) != tt.errs {
				t.Fatalf("errs = %v, want %d", errs, tt.errs)
			}
			if len(rows) != len(tt.want) {
				t.Fatalf("rows = %d, want %d", len(rows), len(tt.want))
			}
			for i, w := range tt.want {
				for j := range w {
					if rows[i].V[j] != w[j] {
						t.Fatalf("row %d col %d = %#v, want %#v", i, j, rows[i].V[j], w[j])
					}
				}
			}
		})
	}
}

func TestStreamCSVRows_MalformedLineReported(t *testing.T) {
	t.Parallel()

	rows, errs := stream(t, "country,confirmed\nFrance,3\n\"Spain,1\n", []string{"country", "confirmed"}, nil)
	if len(rows) == 0 || rows[0].V[0] != "France" {
		t.Fatalf("good row missing: %d rows", len(rows))
	}
	if len(errs) == 0 || !strings.Contains(errs[0], "csv read") {
		t.Fatalf("errs = %v", errs)
	}
}

func TestStreamCSVRows_EmptyInput(t *testing.T) {
	t.Parallel()

	called := false
	out := make(chan *transformer.Row, 1)
	err := StreamCSVRows(context.Background(), source(""), []string{"country"}, nil, out, func(int, error) { called = true })
	if !errors.Is(err, io.EOF) || !called {
		t.Fatalf("err = %v called = %v", err, called)
	}
}

func TestStreamCSVRows_Canceled(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	go func() {
		fmt.Fprintln(pw, "country")
		for {
			if _, err := fmt.Fprintln(pw, "France"); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := make(chan *transformer.Row, 1024)
	err := StreamCSVRows(ctx, pr, []string{"country"}, nil, out, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	_ = pr.Close()
}

// failingReader returns its data, then err on every later read.
type failingReader struct {
	r   io.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if n, err := f.r.Read(p); err != io.EOF {
		return n, err
	}
	return 0, f.err
}

func (f *failingReader) Close() error { return nil }

func TestStreamCSVRows_ReadErrorStops(t *testing.T) {
	t.Parallel()

	errIO := errors.New("input/output error")
	src := &failingReader{r: strings.NewReader("country\nFrance\nSpain\n"), err: errIO}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *transformer.Row, 8)
	reported := 0
	err := StreamCSVRows(ctx, src, []string{"country"}, nil, out, func(int, error) { reported++ })
	if !errors.Is(err, errIO) {
		t.Fatalf("err = %v, want %v", err, errIO)
	}
	if reported != 0 {
		t.Fatalf("onErr called %d times for a reader failure", reported)
	}
	close(out)
	var got []any
	for r := range out {
		got = append(got, r.V[0])
		r.Free()
	}
	if len(got) != 2 || got[0] != "France" || got[1] != "Spain" {
		t.Fatalf("rows = %v, want France, Spain", got)
	}
}

func BenchmarkStreamCSVRows(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("Province/State,Country/Region,Lat,Long,Date,Confirmed,Deaths,Recovered,Active,WHO Region\n")
	for i := range 10_000 {
		fmt.Fprintf(&sb, ",Country %d,1.5,2.5,2020-01-22,%d,0,0,%d,Europe\n", i, i, i)
	}
	doc := sb.String()
	columns := transformer.ObservationColumns
	opt := config.Options{"header_map": map[string]any{"country_region": "country", "province_state": "province"}}

	b.SetBytes(int64(len(doc)))
	b.ReportAllocs()
	for range b.N {
		out := make(chan *transformer.Row, 10_000)
		if err := StreamCSVRows(context.Background(), source(doc), columns, opt, out, nil); err != nil {
			b.Fatal(err)
		}
		close(out)
		for r := range out {
			r.Free()
		}
	}
}
