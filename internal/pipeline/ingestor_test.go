package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/chunker"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/enricher"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/loader"
	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/tasks"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/vectorstore"
)

type memSource map[string]string

func (m memSource) List(context.Context) ([]string, error) {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m memSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	body, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", name)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// stubEmbedder fails every batch containing a text with failOn.
type stubEmbedder struct {
	failOn string
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.failOn != "" && strings.Contains(t, s.failOn) {
			return nil, errors.New("provider returned 503")
		}
		out[i] = []float32{1, float32(len(t) % 7), 0.5}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }
func (s *stubEmbedder) Model() string   { return "stub" }

type fakeLedger struct {
	sources map[string]*model.SourceFile
	rows    map[string]model.ChunkLedger
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{sources: map[string]*model.SourceFile{}, rows: map[string]model.ChunkLedger{}}
}

func (f *fakeLedger) UpsertSource(_ context.Context, src *model.SourceFile) error {
	c := *src
	c.Status = model.SourcePending
	f.sources[src.Source] = &c
	return nil
}

func (f *fakeLedger) FinishSource(_ context.Context, source string, chunks, failed int) error {
	s := f.sources[source]
	s.Chunks, s.FailedChunks = chunks, failed
	switch {
	case failed == 0:
		s.Status = model.SourceIndexed
	case failed >= chunks:
		s.Status = model.SourceFailed
	default:
		s.Status = model.SourcePartial
	}
	return nil
}

func (f *fakeLedger) RecordChunks(_ context.Context, rows []model.ChunkLedger) error {
	for _, r := range rows {
		f.rows[r.VectorID] = r
	}
	return nil
}

func (f *fakeLedger) FindSource(_ context.Context, source string) (*model.SourceFile, error) {
	return f.sources[source], nil
}

func (f *fakeLedger) SourcesNeedingReconcile(context.Context) ([]model.SourceFile, error) {
	var out []model.SourceFile
	for _, s := range f.sources {
		if s.Status == model.SourcePartial || s.Status == model.SourceFailed {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (f *fakeLedger) Stats(context.Context) (model.LedgerStats, error) {
	st := model.LedgerStats{Sources: int64(len(f.sources))}
	for _, r := range f.rows {
		if r.Status == model.ChunkFailed {
			st.Failed++
		} else {
			st.Indexed++
		}
	}
	return st, nil
}

func newIngestor(t *testing.T, emb *stubEmbedder, store vectorstore.Store, ledger *fakeLedger, maxSize int) *Ingestor {
	t.Helper()
	sp, err := chunker.New(chunker.WithMaxSize(maxSize), chunker.WithOverlap(10))
	require.NoError(t, err)
	reg := loader.NewRegistry(loader.Options{CSVHeaderRows: 1})
	cfg := config.VectorStoreConfig{BatchSize: 2, UpsertWorkers: 1}
	return NewIngestor(reg, sp, enricher.New(enricher.WithFilename(true)), emb, store, cfg, WithLedger(ledger))
}

var corpus = memSource{
	"raw/admissions.txt": "Heading: Admission\n\nAdmission requires a 3.0 GPA.\n\nTwo recommendation letters are required.",
	"raw/tuition.csv":    "program,rate\nMS,1200\nPhD,900\nMBA,1500\nMEng,1100\nBS,800\n",
	"raw/programs.json":  `[{"name": "Computer Science, MS", "url": "https://example.edu/cs"}]`,
	"raw/logo.png":       "\x89PNG",
	"raw/empty.txt":      "",
}

func TestIngestSource(t *testing.T) {
	store := vectorstore.NewMemory(3)
	ledger := newFakeLedger()
	ing := newIngestor(t, &stubEmbedder{}, store, ledger, 60)

	rep, err := ing.IngestSource(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Files)
	assert.Equal(t, 2, rep.Skipped, "png is unsupported and the empty file is skipped")
	assert.Zero(t, rep.Failed)
	assert.Equal(t, rep.Chunks, rep.Indexed)
	assert.Equal(t, rep.Chunks, store.Len())

	rec, ok := store.Get("admissions_txt_chunk_0")
	require.True(t, ok)
	assert.Equal(t, "admissions.txt", rec.Metadata.Source)
	assert.Equal(t, "admissions.txt", rec.Metadata.Filename)
	assert.Equal(t, "Admission", rec.Metadata.Subheading)
	assert.Equal(t, loader.TypeText, rec.Metadata.Type)

	rec, ok = store.Get("tuition_csv_chunk_1")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(rec.Metadata.Text, "program | rate\nMS | 1200"), "header repeated: %q", rec.Metadata.Text)

	src := ledger.sources["admissions.txt"]
	require.NotNil(t, src)
	assert.Equal(t, model.SourceIndexed, src.Status)
	assert.Equal(t, "raw/admissions.txt", src.ObjectKey)
	assert.Equal(t, model.ContentMD5(corpus["raw/admissions.txt"]), src.FileMD5)
	assert.Len(t, ledger.rows, rep.Chunks)

	// a rerun overwrites the same ids
	again, err := ing.IngestSource(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, rep.Chunks, again.Chunks)
	assert.Equal(t, rep.Chunks, store.Len())
}

func TestIngest_EmbeddingFailureThenReconcile(t *testing.T) {
	store := vectorstore.NewMemory(3)
	ledger := newFakeLedger()
	emb := &stubEmbedder{failOn: "recommendation"}
	ing := newIngestor(t, emb, store, ledger, 40)

	rep, err := ing.IngestSource(context.Background(), memSource{"raw/admissions.txt": corpus["raw/admissions.txt"]})
	require.NoError(t, err)
	require.Greater(t, rep.Failed, 0)
	assert.Greater(t, rep.Indexed, 0, "other batches were still written")
	assert.Equal(t, rep.Indexed, store.Len())
	assert.Equal(t, model.SourcePartial, ledger.sources["admissions.txt"].Status)
	for _, id := range rep.FailedIDs {
		row := ledger.rows[id]
		assert.Equal(t, model.ChunkFailed, row.Status)
		assert.Contains(t, row.LastError, "503")
	}

	emb.failOn = ""
	fixed, err := ing.Reconcile(context.Background(), memSource{"raw/admissions.txt": corpus["raw/admissions.txt"]})
	require.NoError(t, err)
	assert.Zero(t, fixed.Failed)
	assert.Equal(t, rep.Chunks, fixed.Indexed)
	assert.Equal(t, model.SourceIndexed, ledger.sources["admissions.txt"].Status)

	stats, err := ledger.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Failed)

	nothing, err := ing.Reconcile(context.Background(), memSource{})
	require.NoError(t, err)
	assert.Zero(t, nothing.Files)
}

type failingStore struct {
	*vectorstore.Memory
}

func (failingStore) Upsert(context.Context, []model.VectorRecord) error {
	return errors.New("index read-only")
}

func TestIngest_UpsertFailureMarksLedger(t *testing.T) {
	ledger := newFakeLedger()
	ing := newIngestor(t, &stubEmbedder{}, failingStore{vectorstore.NewMemory(3)}, ledger, 60)

	rep, err := ing.IngestFile(context.Background(), corpus, "raw/admissions.txt")
	require.NoError(t, err)
	assert.Equal(t, rep.Chunks, rep.Failed)
	assert.Equal(t, model.SourceFailed, ledger.sources["admissions.txt"].Status)
	assert.Contains(t, ledger.rows["admissions_txt_chunk_0"].LastError, "read-only")
}

func TestChunk_JSONDescriptions(t *testing.T) {
	ing := newIngestor(t, &stubEmbedder{}, vectorstore.NewMemory(3), newFakeLedger(), 200)
	docs, err := loader.NewRegistry(loader.Options{}).Load("programs.json", strings.NewReader(`[
	  {"program_name": "Data Science", "degreelevel": "MS", "overview": "A two year program."},
	  {"program_name": "Finance", "degreelevel": "MBA", "overview": "Markets and valuation."}
	]`))
	require.NoError(t, err)

	records, err := ing.Chunk(docs)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, r := range records {
		assert.Equal(t, i, r.Metadata.ChunkIndex, "indices count across records of one source")
		assert.Equal(t, model.ContentRecordID("programs.json", r.Metadata.Text, i), r.ID)
		assert.Equal(t, loader.TypeProgramDescription, r.Metadata.Type)
	}
	assert.Equal(t, "Finance", records[1].Metadata.ProgramName)
	assert.Equal(t, "MBA", records[1].Metadata.DegreeLevel)
}

func TestProcess_NeedsObjectStore(t *testing.T) {
	ing := newIngestor(t, &stubEmbedder{}, vectorstore.NewMemory(3), newFakeLedger(), 60)
	err := ing.Process(context.Background(), tasks.IngestTask{Source: "a.txt", ObjectKey: "raw/a.txt"})
	assert.ErrorIs(t, err, ErrNoObjectStore)
}

func TestIngestSource_SkipUnchanged(t *testing.T) {
	store := vectorstore.NewMemory(3)
	ledger := newFakeLedger()
	emb := &stubEmbedder{}
	ing := newIngestor(t, emb, store, ledger, 60)
	WithSkipUnchanged()(ing)

	src := memSource{"raw/admissions.txt": corpus["raw/admissions.txt"]}
	first, err := ing.IngestSource(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, first.Files)
	calls := emb.calls

	again, err := ing.IngestSource(context.Background(), src)
	require.NoError(t, err)
	assert.Zero(t, again.Files)
	assert.Equal(t, 1, again.Skipped)
	assert.Equal(t, calls, emb.calls, "unchanged file is not embedded again")

	src["raw/admissions.txt"] += "\n\nDeadlines are in March."
	changed, err := ing.IngestSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, changed.Files)
}

func TestIngestSource_SameBaseNameInSubdirectories(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"grad/deadlines.txt":      "Graduate deadline is March 1.",
		"undergrad/deadlines.txt": "Undergraduate deadline is May 1.",
	}
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}

	store := vectorstore.NewMemory(3)
	ledger := newFakeLedger()
	emb := &stubEmbedder{}
	ing := newIngestor(t, emb, store, ledger, 60)
	WithSkipUnchanged()(ing)
	src := loader.DirSource{Root: dir}

	rep, err := ing.IngestSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, 2, rep.Indexed)
	assert.Equal(t, 2, store.Len(), "one record per file")

	for name, body := range files {
		rec, ok := store.Get(model.RecordID(name, 0))
		require.True(t, ok, name)
		assert.Equal(t, body, rec.Metadata.Text)
		assert.Equal(t, name, rec.Metadata.Source)
		assert.Equal(t, "deadlines.txt", rec.Metadata.Filename)

		row := ledger.sources[name]
		require.NotNil(t, row, name)
		assert.Equal(t, model.SourceIndexed, row.Status)
		assert.Equal(t, model.ContentMD5(body), row.FileMD5)
	}

	calls := emb.calls
	again, err := ing.IngestSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, calls, emb.calls, "neither file is embedded again")
}
