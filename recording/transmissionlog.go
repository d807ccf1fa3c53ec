// Package recording keeps a SQLite history of what went onto the
// track.
package recording

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/trackforge/dccwave/dcc"
	"github.com/trackforge/dccwave/waveform"
)

// A Transmission is one row of track history: which packets went out,
// as which graph, and how large the graph came out. The fields must
// stay flat scalars; they map one-to-one onto table columns.
type Transmission struct {
	Time       string
	GraphID    string
	Packets    string
	Blocks     int
	DataWords  int
	Passes     int
	DurationUS int64
}

// transmissionColumns derives the column list from the row type, so
// schema and insert order cannot drift apart.
func transmissionColumns() []string {
	return structs.Names(Transmission{})
}

// A TransmissionLog records every graph hand-off. Rows buffer in
// memory and flush in batches; a registered exit hook drains the
// tail.
type TransmissionLog struct {
	db        *sql.DB
	buffered  []Transmission
	batchSize int
}

// Open creates the log in a fresh SQLite file named path with the
// .sqlite3 extension appended. An empty path picks a unique name.
func Open(path string) (*TransmissionLog, error) {
	if path == "" {
		path = "dccwave_history_" + xid.New().String()
	}
	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("history file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	return NewWithDB(db)
}

// NewWithDB creates the log on an already-open database.
func NewWithDB(db *sql.DB) (*TransmissionLog, error) {
	columns := strings.Join(transmissionColumns(), ", \n\t")
	_, err := db.Exec(`CREATE TABLE transmissions (` + "\n\t" + columns + "\n" + `);`)
	if err != nil {
		return nil, fmt.Errorf("creating transmissions table: %w", err)
	}

	l := &TransmissionLog{
		db:        db,
		batchSize: 64,
	}

	atexit.Register(l.Flush)

	return l, nil
}

// Record logs one enqueued graph and the packets it carries.
func (l *TransmissionLog) Record(g *waveform.CompiledGraph, packets []dcc.Packet) {
	encoded := make([]string, len(packets))
	for i, p := range packets {
		encoded[i] = hex.EncodeToString(p)
	}

	l.buffered = append(l.buffered, Transmission{
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		GraphID:    g.ID(),
		Packets:    strings.Join(encoded, " "),
		Blocks:     len(g.Blocks()),
		DataWords:  len(g.DataWords()),
		Passes:     g.Passes(),
		DurationUS: g.Duration().Microseconds(),
	})

	if len(l.buffered) >= l.batchSize {
		l.Flush()
	}
}

// Flush writes all buffered rows out in one transaction.
func (l *TransmissionLog) Flush() {
	if len(l.buffered) == 0 {
		return
	}

	placeholders := strings.TrimSuffix(
		strings.Repeat("?, ", len(transmissionColumns())), ", ")

	tx, err := l.db.Begin()
	if err != nil {
		panic(err)
	}

	statement, err := tx.Prepare(`INSERT INTO transmissions VALUES (` + placeholders + `)`)
	if err != nil {
		panic(err)
	}

	for _, row := range l.buffered {
		if _, err := statement.Exec(structs.Values(row)...); err != nil {
			panic(err)
		}
	}

	statement.Close()
	if err := tx.Commit(); err != nil {
		panic(err)
	}

	l.buffered = nil
}
