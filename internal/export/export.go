// Package export snapshots one user's documents into a JSON archive and uploads it to object
// storage. Exports run on a small worker pool so HTTP callers return immediately.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buzzbuddies/backend/internal/directory"
	"github.com/buzzbuddies/backend/internal/docstore"
	"github.com/buzzbuddies/backend/internal/logging"
	"github.com/buzzbuddies/backend/internal/models"
)

// ErrUnavailable is returned when the exporter is closed or has no object writer.
var ErrUnavailable = errors.New("export unavailable")

// ObjectWriter persists an archive and reports where it was stored.
type ObjectWriter interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Config controls the worker pool.
type Config struct {
	QueueSize int
	Workers   int
	// Timeout bounds a single queued export. Zero means one minute.
	Timeout time.Duration
}

// Record is one exported document.
type Record struct {
	ID         string          `json:"id"`
	Path       string          `json:"path"`
	Fields     docstore.Fields `json:"fields"`
	UpdateTime time.Time       `json:"updateTime"`
}

// Archive is the JSON document written for each export.
type Archive struct {
	UserID         string    `json:"userId"`
	ExportedAt     time.Time `json:"exportedAt"`
	Profile        Record    `json:"profile"`
	FriendRequests []Record  `json:"friendRequests"`
	Friends        []Record  `json:"friends"`
	Buzzes         []Record  `json:"buzzes"`
}

// Exporter builds and uploads archives.
type Exporter struct {
	store   docstore.Store
	writer  ObjectWriter
	logger  *slog.Logger
	timeout time.Duration

	NowFunc func() time.Time

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New constructs an Exporter and starts its workers.
func New(store docstore.Store, writer ObjectWriter, cfg Config, logger *slog.Logger) *Exporter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Exporter{
		store:   store,
		writer:  writer,
		logger:  logger,
		timeout: cfg.Timeout,
		NowFunc: time.Now,
		jobs:    make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	e.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go e.worker()
	}
	return e
}

// Snapshot reads the user's profile and sub-collections concurrently.
func (e *Exporter) Snapshot(ctx context.Context, userID string) (Archive, error) {
	if userID == "" {
		return Archive{}, models.ErrInvalidInput
	}

	archive := Archive{UserID: userID, ExportedAt: e.NowFunc().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := e.store.Get(gctx, directory.UserDoc(userID))
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return fmt.Errorf("export %s: %w", userID, models.ErrNotFound)
			}
			return fmt.Errorf("export profile %s: %w: %w", userID, models.ErrStore, err)
		}
		archive.Profile = recordOf(doc)
		return nil
	})
	collect := func(dst *[]Record, q docstore.Query) {
		g.Go(func() error {
			docs, err := e.store.Query(gctx, q)
			if err != nil {
				return fmt.Errorf("export %s: %w: %w", q.Collection.Path(), models.ErrStore, err)
			}
			records := make([]Record, 0, len(docs))
			for _, doc := range docs {
				records = append(records, recordOf(doc))
			}
			*dst = records
			return nil
		})
	}
	collect(&archive.FriendRequests, directory.RequestsOf(userID).Query().OrderBy(directory.FieldTimestamp, docstore.Asc))
	collect(&archive.Friends, directory.FriendsOf(userID).Query())
	collect(&archive.Buzzes, directory.BuzzesOf(userID).Query())

	if err := g.Wait(); err != nil {
		return Archive{}, err
	}
	return archive, nil
}

// Export builds the user's archive and uploads it, returning the stored location.
func (e *Exporter) Export(ctx context.Context, userID string) (string, error) {
	if e.writer == nil {
		return "", ErrUnavailable
	}

	ctx, span := logging.StartSpan(ctx, "export.user")
	location, err := e.export(ctx, userID)
	span.End(err)
	return location, err
}

func (e *Exporter) export(ctx context.Context, userID string) (string, error) {
	archive, err := e.Snapshot(ctx, userID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(archive); err != nil {
		return "", fmt.Errorf("encode export %s: %w", userID, err)
	}

	location, err := e.writer.Save(ctx, ObjectName(userID, archive.ExportedAt), &buf)
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", userID, err)
	}
	return location, nil
}

// Enqueue schedules an export for userID.
func (e *Exporter) Enqueue(ctx context.Context, userID string) error {
	if userID == "" {
		return models.ErrInvalidInput
	}
	if e.writer == nil {
		return ErrUnavailable
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrUnavailable
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrUnavailable
	case e.jobs <- userID:
		return nil
	}
}

// Shutdown stops accepting jobs and waits for in-flight exports to finish. Queued exports that
// have not started are dropped.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.once.Do(func() {
		e.cancel()
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *Exporter) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case userID := <-e.jobs:
			e.handle(userID)
		}
	}
}

func (e *Exporter) handle(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	ctx = logging.WithLogger(ctx, e.logger.With("user_id", userID))
	location, err := e.Export(ctx, userID)
	if err != nil {
		e.logger.Error("export failed", "user_id", userID, "error", err)
		return
	}
	e.logger.Info("export stored", "user_id", userID, "location", location)
}

// ObjectName is the key an export of userID taken at t is stored under.
func ObjectName(userID string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%s.json", userID, t.UTC().Format("20060102T150405Z"))
}

func recordOf(doc docstore.Document) Record {
	return Record{
		ID:         doc.ID(),
		Path:       doc.Ref.Path(),
		Fields:     doc.Fields,
		UpdateTime: doc.UpdateTime,
	}
}
