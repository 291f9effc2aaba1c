package fragfinder

import (
	"context"
	"sort"
	"strings"

	"github.com/morikuni/failure"
)

const ErrInvalidArgument failure.StringCode = "InvalidArgument"

type Mode string

const (
	ModeAll   Mode = "all"
	ModeSmall Mode = "small"
	ModeBig   Mode = "big"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeAll, ModeSmall, ModeBig:
		return m, nil
	}

	return "", failure.New(ErrInvalidArgument,
		failure.Context{"mode": s},
		failure.Messagef("unknown mode %q, want one of all, small, big", s),
	)
}

type Bucket string

const (
	BucketSmall Bucket = "small"
	BucketBig   Bucket = "big"
)

// DefaultThreshold separates small tables from big ones.
const DefaultThreshold int64 = 1 << 30

type Criteria struct {
	Engines   []Engine
	MinFree   int64
	MinRatio  float64
	Threshold int64
	Mode      Mode
}

func (c Criteria) Bucket(t *Table) Bucket {
	if t.Size() < c.Threshold {
		return BucketSmall
	}

	return BucketBig
}

// Match reports whether t is worth optimizing under c.
func (c Criteria) Match(t *Table) bool {
	e, ok := ParseEngine(t.Engine)
	if !ok {
		return false
	}
	if len(c.Engines) > 0 {
		found := false
		for _, want := range c.Engines {
			if want == e {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if t.DataFree <= c.MinFree {
		return false
	}
	if t.FragRatio() < c.MinRatio {
		return false
	}

	switch c.Mode {
	case ModeSmall:
		return c.Bucket(t) == BucketSmall
	case ModeBig:
		return c.Bucket(t) == BucketBig
	}

	return true
}

// Select returns the tables matching c, most reclaimable space first.
func Select(tables []*Table, c Criteria) []*Table {
	selected := []*Table{}
	for _, t := range tables {
		if c.Match(t) {
			selected = append(selected, t)
		}
	}

	SortByFreeSpace(selected)

	return selected
}

func SortByFreeSpace(tables []*Table) {
	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].DataFree != tables[j].DataFree {
			return tables[i].DataFree > tables[j].DataFree
		}

		return tables[i].String() < tables[j].String()
	})
}

// Scan loads the table status of every database, or only of schemas when
// given.
func Scan(ctx context.Context, a Adapter, schemas []string) ([]*Database, error) {
	dbs, err := a.Databases(ctx)
	if err != nil {
		return nil, failure.Wrap(err)
	}

	result := []*Database{}
	for _, db := range dbs {
		if len(schemas) > 0 && !InArray(schemas, db.Name) {
			continue
		}

		tables, err := a.TableStatus(ctx, db.Name)
		if err != nil {
			return nil, failure.Wrap(err, failure.Context{"schema": db.Name})
		}
		db.Tables = tables
		result = append(result, db)
	}

	return result, nil
}

func Tables(dbs []*Database) []*Table {
	tables := []*Table{}
	for _, db := range dbs {
		tables = append(tables, db.Tables...)
	}

	return tables
}
