package fragfinder

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

type fakeAdapter struct {
	mu sync.Mutex

	dbs    []*Database
	tables map[string][]*Table
	after  map[string]*Table
	fail   map[string]error
	errMsg map[string]string
	note   string
	delay  time.Duration

	optimized   []string
	inFlight    int
	maxInFlight int
}

var _ Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Close() error { return nil }

func (f *fakeAdapter) Version(context.Context) (string, error) { return "8.0.34-log", nil }

func (f *fakeAdapter) Databases(context.Context) ([]*Database, error) {
	return f.dbs, nil
}

func (f *fakeAdapter) TableStatus(_ context.Context, schema string) ([]*Table, error) {
	return f.tables[schema], nil
}

func (f *fakeAdapter) Table(_ context.Context, schema, name string) (*Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := schema + "." + name
	if InArray(f.optimized, key) {
		if t, ok := f.after[key]; ok {
			return t, nil
		}
	}
	for _, t := range f.tables[schema] {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}

	return nil, sql.ErrNoRows
}

func (f *fakeAdapter) Optimize(ctx context.Context, t *Table, _ OptimizeOptions) (*OptimizeResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := t.String()
	if err, ok := f.fail[key]; ok {
		return nil, err
	}

	f.mu.Lock()
	f.optimized = append(f.optimized, key)
	f.mu.Unlock()

	res := &OptimizeResult{Table: t}
	if f.note != "" {
		res.Messages = append(res.Messages, Message{Table: key, Op: "optimize", Type: "note", Text: f.note})
	}
	if msg, ok := f.errMsg[key]; ok {
		res.Messages = append(res.Messages, Message{Table: key, Op: "optimize", Type: "error", Text: msg})
	}
	res.Messages = append(res.Messages, Message{Table: key, Op: "optimize", Type: "status", Text: "OK"})

	return res, nil
}
