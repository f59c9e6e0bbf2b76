package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/xhad/newsbot/internal/models"
	"github.com/xhad/newsbot/internal/types"
	"github.com/xhad/newsbot/pkg/index"
)

var (
	ErrNoURLs        = errors.New("please enter at least one URL")
	ErrTooManyURLs   = fmt.Errorf("please enter at most %d URLs", MaxURLs)
	ErrEmptyQuestion = errors.New("please enter a question")
	ErrNoContent     = errors.New("no article text could be extracted from the given URLs")
	ErrBusy          = errors.New("another task is still running")
	ErrPanic         = errors.New("task stopped unexpectedly")

	// ErrIndexNotFound is returned by Query before anything was processed.
	ErrIndexNotFound = types.ErrIndexNotFound
)

// IsInputError reports whether err is a problem with what the user entered
// or asked for, as opposed to a failure while running a task.
func IsInputError(err error) bool {
	return errors.Is(err, ErrNoURLs) ||
		errors.Is(err, ErrTooManyURLs) ||
		errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, ErrIndexNotFound) ||
		errors.Is(err, ErrNoContent)
}

// MaxURLs is how many article URLs one process run accepts.
const MaxURLs = 3

// Stage is the step a task is in.
type Stage int

const (
	StageIdle Stage = iota
	StageFetching
	StageChunking
	StageEmbedding
	StagePersisted
	StageLoading
	StageRetrieving
	StageGenerating
	StageAnswered
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageFetching:
		return "fetching"
	case StageChunking:
		return "chunking"
	case StageEmbedding:
		return "embedding"
	case StagePersisted:
		return "persisted"
	case StageLoading:
		return "loading"
	case StageRetrieving:
		return "retrieving"
	case StageGenerating:
		return "generating"
	case StageAnswered:
		return "answered"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Status is the progress line shown to the user for a stage.
func (s Stage) Status() string {
	switch s {
	case StageFetching:
		return "Data Loading...Started..."
	case StageChunking:
		return "Text Splitter...Started..."
	case StageEmbedding:
		return "Embedding Vector Started Building..."
	case StagePersisted:
		return "URLs processed successfully!"
	case StageLoading:
		return "Loading index..."
	case StageRetrieving:
		return "Searching articles..."
	case StageGenerating:
		return "Generating answer..."
	default:
		return ""
	}
}

// Notify receives every stage transition of a task.
type Notify func(Stage)

// Sink stores a freshly built index, replacing the previous one.
type Sink interface {
	Save(ix *index.Index) error
}

type Config struct {
	Fetcher  types.Fetcher
	Chunker  types.Chunker
	Embedder types.Embedder
	Answerer types.Answerer
	Sink     Sink
	Source   types.Source
	TopK     int
}

// Pipeline runs the process and query flows. Stages run one after the other.
type Pipeline struct {
	fetcher  types.Fetcher
	chunker  types.Chunker
	embedder types.Embedder
	answerer types.Answerer
	sink     Sink
	source   types.Source
	topK     int
}

func New(config Config) *Pipeline {
	if config.TopK <= 0 {
		config.TopK = 4
	}
	return &Pipeline{
		fetcher:  config.Fetcher,
		chunker:  config.Chunker,
		embedder: config.Embedder,
		answerer: config.Answerer,
		sink:     config.Sink,
		source:   config.Source,
		topK:     config.TopK,
	}
}

type ProcessReport struct {
	Documents int
	Chunks    int
	Sources   []string
	Path      string
}

// CleanURLs trims entries and drops the empty ones, keeping order.
func CleanURLs(urls []string) []string {
	var cleaned []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}

// Process fetches urls, indexes their text and replaces the persisted index.
// On any error the previous index is left as it was.
func (p *Pipeline) Process(ctx context.Context, urls []string, notify Notify) (report ProcessReport, err error) {
	emit := notifier(notify)
	defer func() {
		if err != nil {
			emit(StageIdle)
		}
	}()

	urls = CleanURLs(urls)
	if len(urls) == 0 {
		return report, ErrNoURLs
	}
	if len(urls) > MaxURLs {
		return report, ErrTooManyURLs
	}

	emit(StageFetching)
	docs, err := p.fetcher.Fetch(ctx, urls)
	if err != nil {
		return report, fmt.Errorf("fetch: %w", err)
	}
	if len(docs) == 0 {
		return report, ErrNoContent
	}

	emit(StageChunking)
	chunks, err := p.chunker.Process(docs)
	if err != nil {
		return report, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return report, ErrNoContent
	}

	emit(StageEmbedding)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return report, fmt.Errorf("embed: %w", err)
	}

	ix, err := index.Build(ctx, chunks, vectors, p.embedder.Model())
	if err != nil {
		return report, fmt.Errorf("index: %w", err)
	}
	if err := p.sink.Save(ix); err != nil {
		return report, fmt.Errorf("save: %w", err)
	}
	emit(StagePersisted)

	report = ProcessReport{
		Documents: len(docs),
		Chunks:    len(chunks),
		Sources:   ix.Sources(),
	}
	if withPath, ok := p.sink.(interface{ Path() string }); ok {
		report.Path = withPath.Path()
	}
	return report, nil
}

// Query answers question from the persisted index.
func (p *Pipeline) Query(ctx context.Context, question string, notify Notify) (result models.QueryResult, err error) {
	emit := notifier(notify)
	defer func() {
		if err != nil {
			emit(StageIdle)
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return result, ErrEmptyQuestion
	}

	emit(StageLoading)
	retriever, err := p.source.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return result, err
		}
		return result, fmt.Errorf("load: %w", err)
	}
	if ix, ok := retriever.(*index.Index); ok && ix.Meta().EmbeddingModel != p.embedder.Model() {
		log.Printf("index was built with %q, querying with %q", ix.Meta().EmbeddingModel, p.embedder.Model())
	}

	emit(StageRetrieving)
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return result, fmt.Errorf("embed: %w", err)
	}
	matches, err := retriever.Search(ctx, vector, p.topK)
	if err != nil {
		return result, fmt.Errorf("retrieve: %w", err)
	}

	emit(StageGenerating)
	result, err = p.answerer.Answer(ctx, question, matches)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("answer: %w", err)
	}
	emit(StageAnswered)

	return result, nil
}

func notifier(notify Notify) Notify {
	if notify == nil {
		return func(Stage) {}
	}
	return notify
}
