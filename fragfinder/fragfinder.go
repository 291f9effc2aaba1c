package fragfinder

import (
	"context"
	"fmt"
	"strings"
)

type Adapter interface {
	Close() error

	Version(context.Context) (string, error)
	Databases(context.Context) ([]*Database, error)
	TableStatus(ctx context.Context, schema string) ([]*Table, error)
	Table(ctx context.Context, schema, name string) (*Table, error)
	Optimize(ctx context.Context, t *Table, opts OptimizeOptions) (*OptimizeResult, error)
}

type Engine string

const (
	EngineMyISAM Engine = "MyISAM"
	EngineInnoDB Engine = "InnoDB"
	EngineAria   Engine = "Aria"
)

// OptimizableEngines are the engines whose free space OPTIMIZE TABLE reclaims.
var OptimizableEngines = []Engine{EngineMyISAM, EngineInnoDB, EngineAria}

// ParseEngine returns the canonical spelling of name, or false if name is
// not an optimizable engine.
func ParseEngine(name string) (Engine, bool) {
	for _, e := range OptimizableEngines {
		if strings.EqualFold(string(e), name) {
			return e, true
		}
	}

	return Engine(name), false
}

type Database struct {
	Name   string
	Tables []*Table
}

type Table struct {
	Name        string
	DBName      string
	Engine      string
	Rows        uint64
	DataLength  int64
	IndexLength int64
	DataFree    int64
}

type OptimizeOptions struct {
	// NoWriteToBinlog keeps the statement out of the binary log.
	NoWriteToBinlog bool
}

// Message is one row of the OPTIMIZE TABLE result set.
type Message struct {
	Table string
	Op    string
	Type  string
	Text  string
}

type OptimizeResult struct {
	Table    *Table
	Messages []Message
}

func (d *Database) String() string {
	return d.Name
}

func (t *Table) String() string {
	return fmt.Sprintf("%s.%s", t.DBName, t.Name)
}

// Size is the on-disk size excluding free space.
func (t *Table) Size() int64 {
	return t.DataLength + t.IndexLength
}

// FragRatio is the share of allocated space that is free, in percent.
func (t *Table) FragRatio() float64 {
	total := t.Size() + t.DataFree
	if total <= 0 {
		return 0
	}

	return float64(t.DataFree) / float64(total) * 100
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s %s: %s", m.Table, m.Op, m.Type, m.Text)
}

// Err returns the first error message reported by the server, if any.
func (r *OptimizeResult) Err() (Message, bool) {
	for _, m := range r.Messages {
		if strings.EqualFold(m.Type, "error") {
			return m, true
		}
	}

	return Message{}, false
}

func InArray(ary []string, s string) bool {
	for _, a := range ary {
		if a == s {
			return true
		}
	}

	return false
}
