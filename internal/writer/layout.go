package writer

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
)

// DefaultPartitionValue names the directory of rows whose partition value
// is empty.
const DefaultPartitionValue = "__HIVE_DEFAULT_PARTITION__"

// Layout describes where the rows of one table go: the table directory and
// the columns it is partitioned by.
type Layout[T any] struct {
	Table string

	// PartitionBy lists the partition columns, outermost first.
	PartitionBy []string

	// Partition returns the row's value for each PartitionBy column.
	Partition func(T) []string
}

// Dir returns the table directory relative to the output root.
func (l Layout[T]) Dir() string {
	return l.Table + ".parquet"
}

// Partitioned reports whether the table is split into partition directories.
func (l Layout[T]) Partitioned() bool {
	return len(l.PartitionBy) > 0
}

// filePart is the set of rows destined for a single parquet file.
type filePart[T any] struct {
	path      string // relative to the table directory
	partition map[string]string
	rows      []T
}

// plan groups rows by partition and splits each partition into files of at
// most rowsPerFile rows (unlimited when rowsPerFile <= 0). Partitions are
// ordered by their directory name and rows keep their input order, so the
// same rows always produce the same files.
func (l Layout[T]) plan(rows []T, rowsPerFile int) ([]filePart[T], error) {
	if !l.Partitioned() {
		return splitFiles("", nil, rows, rowsPerFile), nil
	}

	groups := make(map[string][]T)
	values := make(map[string]map[string]string)
	for _, r := range rows {
		vals := l.Partition(r)
		if len(vals) != len(l.PartitionBy) {
			return nil, fmt.Errorf("%s: got %d partition values for %d columns", l.Table, len(vals), len(l.PartitionBy))
		}
		dir := PartitionPath(l.PartitionBy, vals)
		if _, ok := values[dir]; !ok {
			m := make(map[string]string, len(vals))
			for i, col := range l.PartitionBy {
				m[col] = vals[i]
			}
			values[dir] = m
		}
		groups[dir] = append(groups[dir], r)
	}

	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var parts []filePart[T]
	for _, dir := range dirs {
		parts = append(parts, splitFiles(dir, values[dir], groups[dir], rowsPerFile)...)
	}
	return parts, nil
}

// splitFiles always returns at least one file for an unpartitioned table,
// so an empty table still carries its schema.
func splitFiles[T any](dir string, partition map[string]string, rows []T, rowsPerFile int) []filePart[T] {
	if rowsPerFile <= 0 {
		rowsPerFile = len(rows)
	}

	var parts []filePart[T]
	for i := 0; i == 0 || i*rowsPerFile < len(rows); i++ {
		lo := i * rowsPerFile
		hi := min(lo+rowsPerFile, len(rows))
		parts = append(parts, filePart[T]{
			path:      path.Join(dir, fmt.Sprintf("part-%05d.parquet", i)),
			partition: partition,
			rows:      rows[lo:hi],
		})
		if rowsPerFile == 0 {
			break
		}
	}
	return parts
}

// PartitionPath renders Hive-style directory names, e.g. "year=2018/month=11".
func PartitionPath(cols, vals []string) string {
	segs := make([]string, len(cols))
	for i, col := range cols {
		segs[i] = col + "=" + EscapePartitionValue(vals[i])
	}
	return strings.Join(segs, "/")
}

// EscapePartitionValue percent-encodes the characters Hive does not allow in
// a partition directory name.
func EscapePartitionValue(v string) string {
	if v == "" {
		return DefaultPartitionValue
	}

	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < 0x20 || c == 0x7f || strings.IndexByte(`"#%'*/:=?\{[]^`, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Table layouts of the songplay lake.

var TracksLayout = Layout[tables.TrackRecord]{
	Table:       tables.TracksTable,
	PartitionBy: []string{"year", "artist_id"},
	Partition: func(r tables.TrackRecord) []string {
		return []string{strconv.Itoa(int(r.Year)), r.ArtistID}
	},
}

var ArtistsLayout = Layout[tables.ArtistRecord]{
	Table: tables.ArtistsTable,
}

var UsersLayout = Layout[tables.UserSnapshot]{
	Table: tables.UsersTable,
}

var TimeLayout = Layout[tables.TimeRecord]{
	Table:       tables.TimeTable,
	PartitionBy: []string{"year", "month"},
	Partition: func(r tables.TimeRecord) []string {
		return []string{strconv.Itoa(int(r.Year)), strconv.Itoa(int(r.Month))}
	},
}

var SongplaysLayout = Layout[tables.SongplayFact]{
	Table:       tables.SongplaysTable,
	PartitionBy: []string{"year", "month"},
	Partition: func(r tables.SongplayFact) []string {
		return []string{strconv.Itoa(int(r.Year)), strconv.Itoa(int(r.Month))}
	},
}
